// Package gate decides when the onboarding client may leave the loading
// screen: navigation waits until both the app state and the intake state have
// hydrated, then redirects to the home route exactly once.
package gate

import (
	"context"
	"errors"
	"sync/atomic"
)

// Action is the outcome of a gate evaluation.
type Action int

const (
	// Suspend renders nothing and waits for the next hydration change.
	Suspend Action = iota
	// RedirectToHome navigates to the main application.
	RedirectToHome
)

func (a Action) String() string {
	switch a {
	case Suspend:
		return "suspend"
	case RedirectToHome:
		return "redirect"
	default:
		return "unknown"
	}
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Decide suspends while either store is hydrating.
func Decide(appHydrating, intakeHydrating bool) Action {
	if appHydrating || intakeHydrating {
		return Suspend
	}
	return RedirectToHome
}

// Source is a store whose hydration the gate observes.
type Source interface {
	IsHydrating() bool
	Subscribe() (<-chan struct{}, func())
}

// Decision is what the gate asks the client to render.
type Decision struct {
	Action Action `json:"action"`
	Target string `json:"target,omitempty"`
}

// ErrAlreadyRedirected is returned by Run when the gate has already fired.
var ErrAlreadyRedirected = errors.New("gate already redirected")

// Gate is one mount of the routing gate. It owns no state besides whether it
// has fired.
type Gate struct {
	app    Source
	intake Source
	target string
	fired  atomic.Bool
}

// New mounts a gate that redirects to target once both stores are hydrated
// and the app state is not completed.
func New(app, intake Source, target string) *Gate {
	return &Gate{app: app, intake: intake, target: target}
}

// Evaluate returns the current decision without firing the gate.
func (g *Gate) Evaluate() Decision {
	action := Decide(g.app.IsHydrating(), g.intake.IsHydrating())
	if action == RedirectToHome {
		return Decision{Action: action, Target: g.target}
	}
	return Decision{Action: action}
}

// Fired reports whether the redirect has been rendered.
func (g *Gate) Fired() bool {
	return g.fired.Load()
}

// Run renders the gate until it redirects. Suspend is rendered at most once,
// and only when the first evaluation is not already a redirect. The redirect
// is rendered exactly once per Gate; Run returns after rendering it, or with
// the context error if ctx ends first.
func (g *Gate) Run(ctx context.Context, render func(Decision) error) error {
	if g.fired.Load() {
		return ErrAlreadyRedirected
	}
	appCh, cancelApp := g.app.Subscribe()
	defer cancelApp()
	intakeCh, cancelIntake := g.intake.Subscribe()
	defer cancelIntake()

	suspended := false
	for {
		d := g.Evaluate()
		if d.Action == RedirectToHome {
			if !g.fired.CompareAndSwap(false, true) {
				return ErrAlreadyRedirected
			}
			return render(d)
		}
		if !suspended {
			if err := render(d); err != nil {
				return err
			}
			suspended = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-appCh:
		case <-intakeCh:
		}
	}
}
