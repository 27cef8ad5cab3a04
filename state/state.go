package state

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

type NyModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State is shared by every worker. The topology guards itself, module
// fields are owned by their module.
type State struct {
	*Env
	Modules map[string]NyModule
}

// Env can be read from any Goroutine
type Env struct {
	LocalCfg
	Context  context.Context
	Cancel   context.CancelCauseFunc
	Log      *slog.Logger
	Topology *Topology
	// Out receives operator-facing output, it must be safe for concurrent writes
	Out     io.Writer
	Started time.Time
	workers *errgroup.Group
}

func NewEnv(ctx context.Context, cancel context.CancelCauseFunc, cfg LocalCfg, log *slog.Logger, out io.Writer) *Env {
	workers, wctx := errgroup.WithContext(ctx)
	now := time.Now()
	topo := NewTopology(cfg.Id, TimestampOf(now))
	for _, neigh := range cfg.Neighbours {
		// config costs are validated before we get here
		_, _ = topo.MergeEdge(cfg.Id, neigh.Id, neigh.Cost, TimestampOf(now))
	}
	return &Env{
		LocalCfg: cfg,
		Context:  wctx,
		Cancel:   cancel,
		Log:      log,
		Topology: topo,
		Out:      out,
		Started:  now,
		workers:  workers,
	}
}

// SelfDown is true while the operator has marked this node down
func (e *Env) SelfDown() bool {
	return e.Topology.IsDown(e.Id)
}

func (e *Env) Uptime() time.Duration {
	return time.Since(e.Started)
}

func (e *Env) GetNeighbour(id NodeId) *NeighbourCfg {
	for i := range e.Neighbours {
		if e.Neighbours[i].Id == id {
			return &e.Neighbours[i]
		}
	}
	return nil
}
