// README: Starts the long-running workers together and waits for all of them on shutdown.
package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

type Supervisor struct {
	runners []Runner
}

func NewSupervisor(runners ...Runner) *Supervisor {
	return &Supervisor{runners: runners}
}

// Run blocks until every runner returns. The first runner error cancels the rest.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range s.runners {
		g.Go(func() error { return r.Run(gctx) })
	}
	return g.Wait()
}

// Status reports which workers are currently polling.
func (s *Supervisor) Status() map[string]bool {
	out := make(map[string]bool, len(s.runners))
	for _, r := range s.runners {
		if w, ok := r.(interface{ Running() bool }); ok {
			out[r.Name()] = w.Running()
		}
	}
	return out
}
