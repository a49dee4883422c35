package state

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"onboarding-api/domain"
)

// IntakePersistence is the durable storage behind an IntakeStore. Save must
// not block; it hands the snapshot off for asynchronous persistence.
type IntakePersistence interface {
	LoadIntake(ctx context.Context) (domain.Answers, error)
	SaveIntake(answers domain.Answers)
}

// IntakeStore owns the answers collected during the onboarding flow.
type IntakeStore struct {
	*Hydration

	persist IntakePersistence
	logger  log.FieldLogger
	opts    options
	start   sync.Once

	mu      sync.RWMutex
	answers domain.Answers

	// set when the intake was written or reset before hydration finished
	dirty   bool
	cleared bool

	detached bool
}

// NewIntakeStore creates a store in the hydrating state. Call Hydrate to load
// the persisted answers.
func NewIntakeStore(persist IntakePersistence, logger log.FieldLogger, opts ...Option) *IntakeStore {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &IntakeStore{
		Hydration: newHydration(),
		persist:   persist,
		logger:    logger,
		opts:      buildOptions(opts),
	}
}

// Hydrate loads the persisted answers and marks the store hydrated. A failed
// or slow load degrades to empty answers; the store always ends up hydrated.
// Only the first call does any work.
func (s *IntakeStore) Hydrate(ctx context.Context) {
	s.start.Do(func() { s.hydrate(ctx) })
}

func (s *IntakeStore) hydrate(ctx context.Context) {
	var loaded domain.Answers
	if s.persist != nil {
		var err error
		loaded, err = loadWithin(ctx, s.opts.hydrationTimeout, s.persist.LoadIntake)
		if err != nil {
			s.logger.WithError(err).Warn("intake hydration failed, starting from empty answers")
			loaded = domain.Answers{}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	base := loaded.Clone()
	if s.cleared {
		base = domain.Answers{}
	}
	base.Merge(s.answers)
	s.answers = base
	if s.dirty {
		s.save()
	}
	s.dirty, s.cleared = false, false
	s.finish()
	s.logger.WithField("answers", s.answers.Len()).Debug("intake hydrated")
}

// SetAnswer records value for key, replacing any previous answer.
func (s *IntakeStore) SetAnswer(key string, value domain.Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers.Set(key, value)
	s.changed()
}

// Answers returns a snapshot of the current answers.
func (s *IntakeStore) Answers() domain.Answers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answers.Clone()
}

// Reset discards every answer.
func (s *IntakeStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = domain.Answers{}
	if s.IsHydrating() {
		s.cleared = true
	}
	s.changed()
}

// changed must be called with mu held.
func (s *IntakeStore) changed() {
	if s.IsHydrating() {
		s.dirty = true
		return
	}
	s.save()
}

// Detach stops the store from persisting. Later changes, including writes
// replayed when hydration finishes, stay in memory only.
func (s *IntakeStore) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = true
}

func (s *IntakeStore) save() {
	if s.persist == nil || s.detached {
		return
	}
	s.persist.SaveIntake(s.answers.Clone())
}
