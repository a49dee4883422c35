package state

import (
	"context"
	"errors"
	"sync"

	"onboarding-api/domain"
)

type fakeIntakePersistence struct {
	loadFn func(ctx context.Context) (domain.Answers, error)

	mu    sync.Mutex
	saves []domain.Answers
}

func (f *fakeIntakePersistence) LoadIntake(ctx context.Context) (domain.Answers, error) {
	if f.loadFn == nil {
		return domain.Answers{}, nil
	}
	return f.loadFn(ctx)
}

func (f *fakeIntakePersistence) SaveIntake(a domain.Answers) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, a)
}

func (f *fakeIntakePersistence) Saves() []domain.Answers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Answers(nil), f.saves...)
}

type fakeAppPersistence struct {
	loadFn func(ctx context.Context) (domain.AppState, error)

	mu    sync.Mutex
	saves []domain.AppState
}

func (f *fakeAppPersistence) LoadAppState(ctx context.Context) (domain.AppState, error) {
	if f.loadFn == nil {
		return domain.AppState{}, nil
	}
	return f.loadFn(ctx)
}

func (f *fakeAppPersistence) SaveAppState(s domain.AppState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, s)
}

func (f *fakeAppPersistence) Saves() []domain.AppState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AppState(nil), f.saves...)
}

var errLoad = errors.New("storage unavailable")
