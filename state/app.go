package state

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"onboarding-api/domain"
)

// AppPersistence is the durable storage behind an AppStore.
type AppPersistence interface {
	LoadAppState(ctx context.Context) (domain.AppState, error)
	SaveAppState(s domain.AppState)
}

// AppStore owns the session-wide application flags.
type AppStore struct {
	*Hydration

	persist AppPersistence
	logger  log.FieldLogger
	opts    options
	start   sync.Once

	mu    sync.RWMutex
	state domain.AppState

	// updates applied before hydration, replayed over the loaded state
	pending []func(*domain.AppState)

	detached bool
}

// NewAppStore creates a store in the hydrating state.
func NewAppStore(persist AppPersistence, logger log.FieldLogger, opts ...Option) *AppStore {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &AppStore{
		Hydration: newHydration(),
		persist:   persist,
		logger:    logger,
		opts:      buildOptions(opts),
	}
}

// Hydrate loads the persisted app state; see IntakeStore.Hydrate.
func (s *AppStore) Hydrate(ctx context.Context) {
	s.start.Do(func() { s.hydrate(ctx) })
}

func (s *AppStore) hydrate(ctx context.Context) {
	var loaded domain.AppState
	if s.persist != nil {
		var err error
		loaded, err = loadWithin(ctx, s.opts.hydrationTimeout, s.persist.LoadAppState)
		if err != nil {
			s.logger.WithError(err).Warn("app state hydration failed, starting from defaults")
			loaded = domain.AppState{}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fn := range s.pending {
		fn(&loaded)
	}
	s.state = loaded
	if len(s.pending) > 0 {
		s.save()
	}
	s.pending = nil
	s.finish()
	s.logger.Debug("app state hydrated")
}

// Snapshot returns a copy of the current state.
func (s *AppStore) Snapshot() domain.AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Update applies fn to the state.
func (s *AppStore) Update(fn func(*domain.AppState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	if s.IsHydrating() {
		s.pending = append(s.pending, fn)
		return
	}
	s.save()
}

// Detach stops the store from persisting; see IntakeStore.Detach.
func (s *AppStore) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = true
}

func (s *AppStore) save() {
	if s.persist == nil || s.detached {
		return
	}
	s.persist.SaveAppState(s.state.Clone())
}
