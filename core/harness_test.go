package core

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/encodeous/strand/state"
	"github.com/stretchr/testify/require"
)

// lockedBuffer can be read by the test while workers write to it
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestState(t *testing.T, cfg state.LocalCfg) (*state.State, *lockedBuffer) {
	ctx, cancel := context.WithCancelCause(context.Background())
	t.Cleanup(func() { cancel(context.Canceled) })
	out := &lockedBuffer{}
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &state.State{
		Env:     state.NewEnv(ctx, cancel, cfg, log, out),
		Modules: make(map[string]state.NyModule),
	}, out
}

// freePort finds a port that was free a moment ago
func freePort(t *testing.T) uint16 {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return uint16(port)
}

// fastTimings shrinks every worker interval so tests finish quickly
func fastTimings(t *testing.T) {
	liveness, broadcast, tick, warmup := state.LivenessWindow, state.BroadcastDelay, state.RouteTickDelay, state.RouteWarmup
	accept, down := state.AcceptPollDelay, state.PowerDownPollDelay
	t.Cleanup(func() {
		state.LivenessWindow, state.BroadcastDelay, state.RouteTickDelay, state.RouteWarmup = liveness, broadcast, tick, warmup
		state.AcceptPollDelay, state.PowerDownPollDelay = accept, down
	})
	state.LivenessWindow = 600 * time.Millisecond
	state.BroadcastDelay = 50 * time.Millisecond
	state.RouteTickDelay = 10 * time.Millisecond
	state.RouteWarmup = 200 * time.Millisecond
	state.AcceptPollDelay = 20 * time.Millisecond
	state.PowerDownPollDelay = 10 * time.Millisecond
}
