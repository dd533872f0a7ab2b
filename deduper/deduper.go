// Package deduper coalesces concurrent callers asking for the same
// in-flight computation. At most one underlying call per key is
// outstanding at any instant; every waiter observes the same result.
package deduper

import (
	"context"

	"golang.org/x/sync/singleflight"
)

type Deduper interface {
	// Do runs fn for key unless a computation for key is already in
	// flight, in which case the caller waits for the shared result. The
	// key is forgotten once the computation settles, success or failure.
	Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error)
}

func New() Deduper {
	return &group{}
}

var _ Deduper = (*group)(nil)

type group struct {
	sf singleflight.Group
}

func (g *group) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	// The shared computation must not die with the first caller, so it
	// runs detached from any individual caller's cancellation. Each
	// caller still honors its own context while waiting.
	workCtx := context.WithoutCancel(ctx)

	ch := g.sf.DoChan(key, func() (any, error) {
		return fn(workCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}
