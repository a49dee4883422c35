// Package session owns the per-user onboarding sessions. A session is one
// launch of the client: it holds a fresh app state store and intake store,
// both hydrating from durable storage in the background.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"onboarding-api/domain"
	"onboarding-api/state"
)

// Backend is the durable storage used by sessions.
type Backend interface {
	LoadIntake(ctx context.Context, userID string) (domain.Answers, error)
	SaveIntake(ctx context.Context, userID string, answers domain.Answers) error
	LoadAppState(ctx context.Context, userID string) (domain.AppState, error)
	SaveAppState(ctx context.Context, userID string, st domain.AppState) error
}

// Session is one launch of the onboarding client for a user.
type Session struct {
	ID        string
	UserID    string
	StartedAt time.Time
	App       *state.AppStore
	Intake    *state.IntakeStore

	lastSeen atomic.Int64
	holds    atomic.Int32
	now      func() time.Time
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// Hold marks the session as in use, for example by a mounted gate stream,
// until the returned func is called. Held sessions are never swept.
func (s *Session) Hold() func() {
	s.holds.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.touch(s.now())
			s.holds.Add(-1)
		})
	}
}

func (s *Session) held() bool {
	return s.holds.Load() > 0
}

// LastSeen is the time the session was last returned by the registry.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

type userSlots struct {
	intake *Slot
	app    *Slot
}

func (u *userSlots) busy() bool {
	return u.intake.Busy() || u.app.Busy()
}

// Registry tracks the live session of every user.
type Registry struct {
	backend Backend
	pool    *Pool
	logger  log.FieldLogger
	opts    []state.Option
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	slots    map[string]*userSlots
}

// NewRegistry creates a registry. Sessions idle for longer than idleTTL are
// removed by Sweep; a non-positive idleTTL disables eviction.
func NewRegistry(backend Backend, pool *Pool, logger log.FieldLogger, idleTTL time.Duration, opts ...state.Option) *Registry {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Registry{
		backend:  backend,
		pool:     pool,
		logger:   logger,
		opts:     opts,
		idleTTL:  idleTTL,
		now:      time.Now,
		sessions: make(map[string]*Session),
		slots:    make(map[string]*userSlots),
	}
}

// Get returns the live session of userID, launching one if none exists.
func (r *Registry) Get(userID string) *Session {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	r.mu.Unlock()
	if ok {
		s.touch(r.now())
		return s
	}
	return r.launch(userID, false)
}

// Launch starts a fresh session for userID, replacing any live one. The new
// stores start hydrating immediately.
func (r *Registry) Launch(userID string) *Session {
	return r.launch(userID, true)
}

func (r *Registry) launch(userID string, replace bool) *Session {
	r.mu.Lock()
	existing, ok := r.sessions[userID]
	if ok && !replace {
		r.mu.Unlock()
		existing.touch(r.now())
		return existing
	}
	if ok {
		// Saves already submitted by the old stores keep the slots busy, so
		// the new stores load after them; nothing later from the old stores
		// reaches storage.
		existing.App.Detach()
		existing.Intake.Detach()
	}
	slots, ok := r.slots[userID]
	if !ok {
		slots = &userSlots{intake: NewSlot("intake:" + userID), app: NewSlot("app:" + userID)}
		r.slots[userID] = slots
	}
	logger := r.logger.WithField("user", userID)
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: r.now(),
		App:       state.NewAppStore(&appPersistence{userID: userID, backend: r.backend, pool: r.pool, slot: slots.app}, logger, r.opts...),
		Intake:    state.NewIntakeStore(&intakePersistence{userID: userID, backend: r.backend, pool: r.pool, slot: slots.intake}, logger, r.opts...),
		now:       r.now,
	}
	s.touch(s.StartedAt)
	r.sessions[userID] = s
	r.mu.Unlock()

	logger.WithField("session", s.ID).Info("session launched")
	go s.App.Hydrate(context.Background())
	go s.Intake.Hydrate(context.Background())
	return s
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than the idle TTL and returns how
// many were removed.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for userID, s := range r.sessions {
		if s.held() || s.LastSeen().After(cutoff) {
			continue
		}
		delete(r.sessions, userID)
		if slots, ok := r.slots[userID]; ok && !slots.busy() {
			delete(r.slots, userID)
		}
		removed++
	}
	if removed > 0 {
		r.logger.WithField("removed", removed).Debug("idle sessions swept")
	}
	return removed
}

// Run sweeps idle sessions every interval until ctx ends.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.idleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

type intakePersistence struct {
	userID  string
	backend Backend
	pool    *Pool
	slot    *Slot
}

// LoadIntake waits for saves still in flight from an earlier session so the
// load observes them.
func (p *intakePersistence) LoadIntake(ctx context.Context) (domain.Answers, error) {
	if err := p.slot.Wait(ctx); err != nil {
		return domain.Answers{}, err
	}
	return p.backend.LoadIntake(ctx, p.userID)
}

func (p *intakePersistence) SaveIntake(answers domain.Answers) {
	p.pool.Submit(p.slot, func(ctx context.Context) error {
		return p.backend.SaveIntake(ctx, p.userID, answers)
	})
}

type appPersistence struct {
	userID  string
	backend Backend
	pool    *Pool
	slot    *Slot
}

func (p *appPersistence) LoadAppState(ctx context.Context) (domain.AppState, error) {
	if err := p.slot.Wait(ctx); err != nil {
		return domain.AppState{}, err
	}
	return p.backend.LoadAppState(ctx, p.userID)
}

func (p *appPersistence) SaveAppState(st domain.AppState) {
	p.pool.Submit(p.slot, func(ctx context.Context) error {
		return p.backend.SaveAppState(ctx, p.userID, st)
	})
}
