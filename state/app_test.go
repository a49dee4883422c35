package state

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"onboarding-api/domain"
)

func TestAppStoreHydratesFromPersistence(t *testing.T) {
	estimate := 560
	persist := &fakeAppPersistence{loadFn: func(context.Context) (domain.AppState, error) {
		return domain.AppState{OnboardingCompleted: true, LastEstimate: &estimate}, nil
	}}
	logger, _ := test.NewNullLogger()
	s := NewAppStore(persist, logger)
	if !s.IsHydrating() {
		t.Fatal("expected new store to be hydrating")
	}
	s.Hydrate(context.Background())

	snap := s.Snapshot()
	if s.IsHydrating() || !snap.OnboardingCompleted || snap.LastEstimate == nil || *snap.LastEstimate != 560 {
		t.Fatalf("unexpected state after hydration: %+v", snap)
	}
}

func TestAppStoreDegradedHydration(t *testing.T) {
	persist := &fakeAppPersistence{loadFn: func(context.Context) (domain.AppState, error) {
		return domain.AppState{}, errLoad
	}}
	logger, _ := test.NewNullLogger()
	s := NewAppStore(persist, logger)
	s.Hydrate(context.Background())

	if s.IsHydrating() {
		t.Fatal("expected failed load to complete hydration")
	}
	if s.Snapshot().OnboardingCompleted {
		t.Fatal("expected default state")
	}
}

func TestAppStoreReplaysUpdatesMadeWhileHydrating(t *testing.T) {
	release := make(chan struct{})
	persist := &fakeAppPersistence{loadFn: func(context.Context) (domain.AppState, error) {
		<-release
		return domain.AppState{UpdatedAt: 7}, nil
	}}
	logger, _ := test.NewNullLogger()
	s := NewAppStore(persist, logger)
	go s.Hydrate(context.Background())

	s.Update(func(st *domain.AppState) { st.OnboardingCompleted = true })
	close(release)
	<-s.Done()

	snap := s.Snapshot()
	if !snap.OnboardingCompleted || snap.UpdatedAt != 7 {
		t.Fatalf("expected update replayed over loaded state, got %+v", snap)
	}
	if saves := persist.Saves(); len(saves) != 1 {
		t.Fatalf("expected one save after replay, got %d", len(saves))
	}
}

func TestAppStoreSnapshotIsCopy(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewAppStore(nil, logger)
	s.Hydrate(context.Background())
	v := 551
	s.Update(func(st *domain.AppState) { st.LastEstimate = &v })

	snap := s.Snapshot()
	*snap.LastEstimate = 999
	if got := *s.Snapshot().LastEstimate; got != 551 {
		t.Fatalf("snapshot shares memory with store, got %d", got)
	}
}

func TestAppStoreDetachStopsSaves(t *testing.T) {
	persist := &fakeAppPersistence{}
	logger, _ := test.NewNullLogger()
	s := NewAppStore(persist, logger)
	s.Hydrate(context.Background())
	s.Detach()
	s.Update(func(st *domain.AppState) { st.OnboardingCompleted = true })

	if saves := persist.Saves(); len(saves) != 0 {
		t.Fatalf("expected no saves after Detach, got %d", len(saves))
	}
	if !s.Snapshot().OnboardingCompleted {
		t.Fatal("detached store must keep applying updates in memory")
	}
}
