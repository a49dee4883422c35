package session

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// SaveFunc persists one snapshot.
type SaveFunc func(ctx context.Context) error

// PoolConfig tunes the save workers.
type PoolConfig struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HandoffTimeout < 0 {
		c.HandoffTimeout = 0
	}
	return c
}

// Slot coalesces the saves of one store. At most one save per slot runs at a
// time and only the latest submitted snapshot is written, so a slot never
// persists an older snapshot after a newer one.
type Slot struct {
	name string

	mu        sync.Mutex
	pending   SaveFunc
	scheduled bool
	idle      chan struct{}
}

// NewSlot creates an idle slot; name identifies it in logs.
func NewSlot(name string) *Slot {
	return &Slot{name: name}
}

// Busy reports whether a save is queued or running.
func (s *Slot) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled
}

// Wait blocks until no save is queued or running, or ctx ends.
func (s *Slot) Wait(ctx context.Context) error {
	s.mu.Lock()
	if !s.scheduled {
		s.mu.Unlock()
		return nil
	}
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// put stores fn as the latest save and reports whether the slot needs to be
// handed to a worker.
func (s *Slot) put(fn SaveFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = fn
	if s.scheduled {
		return false
	}
	s.scheduled = true
	s.idle = make(chan struct{})
	return true
}

// take returns the next save, or nil after marking the slot idle.
func (s *Slot) take() SaveFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn := s.pending
	s.pending = nil
	if fn == nil {
		s.scheduled = false
		close(s.idle)
	}
	return fn
}

// Pool runs slot saves on a fixed set of workers.
type Pool struct {
	cfg    PoolConfig
	logger log.FieldLogger

	mu     sync.RWMutex
	jobs   chan *Slot
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts the workers.
func NewPool(cfg PoolConfig, logger log.FieldLogger) *Pool {
	if logger == nil {
		panic("session.NewPool: logger is nil")
	}
	cfg = cfg.withDefaults()
	p := &Pool{cfg: cfg, logger: logger, jobs: make(chan *Slot, cfg.Buffer)}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infof("save pool started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return p
}

// Submit schedules fn as the latest save of slot. It never blocks longer than
// the handoff timeout.
func (p *Pool) Submit(slot *Slot, fn SaveFunc) {
	if !slot.put(fn) {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drain(-1, slot)
		return
	}
	if p.handoff(slot) {
		return
	}
	p.logger.WithField("slot", slot.name).Warn("save buffer saturated; draining on a dedicated goroutine")
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.drain(-1, slot)
	}()
}

func (p *Pool) handoff(slot *Slot) bool {
	select {
	case p.jobs <- slot:
		return true
	default:
	}
	if p.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(p.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case p.jobs <- slot:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting work and waits for queued saves to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for slot := range p.jobs {
		p.drain(id, slot)
	}
}

func (p *Pool) drain(worker int, slot *Slot) {
	for fn := slot.take(); fn != nil; fn = slot.take() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
		err := fn(ctx)
		cancel()
		if err != nil {
			p.logger.WithError(err).WithFields(log.Fields{"slot": slot.name, "worker": worker}).Error("save failed")
		}
	}
}
