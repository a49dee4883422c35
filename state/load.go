package state

import (
	"context"
	"fmt"
	"time"
)

const defaultHydrationTimeout = 10 * time.Second

// Option configures a store.
type Option func(*options)

type options struct {
	hydrationTimeout time.Duration
}

// WithHydrationTimeout bounds how long a store waits for its initial load.
func WithHydrationTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.hydrationTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{hydrationTimeout: defaultHydrationTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// loadWithin runs load and gives up after timeout, even if load ignores its
// context. A panicking load is reported as an error.
func loadWithin[T any](ctx context.Context, timeout time.Duration, load func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("load panicked: %v", r)}
			}
		}()
		v, err := load(ctx)
		ch <- result{value: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
