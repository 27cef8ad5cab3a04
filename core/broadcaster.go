package core

import (
	"context"
	"net"
	"time"

	"github.com/encodeous/strand/perf"
	"github.com/encodeous/strand/protocol"
	"github.com/encodeous/strand/state"
	"github.com/jellydator/ttlcache/v3"
)

// Broadcaster periodically pushes the full topology snapshot to every
// configured neighbour that is not known to be down.
type Broadcaster struct {
	*state.State
	// neighbours that recently failed a dial, so repeated failures only log once per window
	failures *ttlcache.Cache[state.NodeId, string]
}

func (b *Broadcaster) Init(s *state.State) error {
	s.Log.Debug("init broadcaster")
	b.State = s
	b.failures = ttlcache.New[state.NodeId, string](
		ttlcache.WithTTL[state.NodeId, string](state.DialFailureLogDedup),
		ttlcache.WithDisableTouchOnHit[state.NodeId, string](),
	)

	s.Env.RepeatTaskDelayed(b.broadcastTask, state.BroadcastDelay)
	return nil
}

func (b *Broadcaster) Cleanup(s *state.State) error {
	b.failures.DeleteAll()
	return nil
}

func (b *Broadcaster) broadcastTask(e *state.Env) error {
	b.Broadcast(e.Context)
	return nil
}

// Broadcast sends one snapshot to each live neighbour and returns how many deliveries succeeded.
// Nothing is sent while this node is marked down.
func (b *Broadcaster) Broadcast(ctx context.Context) int {
	if b.SelfDown() {
		return 0
	}
	b.failures.DeleteExpired()

	payload, err := protocol.Marshal(protocol.NewEnvelope(b.Id, b.Topology.Snapshot()))
	if err != nil {
		b.Log.Error("failed to encode snapshot", "err", err)
		return 0
	}
	perf.SnapshotSize.Add(float64(len(payload)))

	sent := 0
	for _, neigh := range b.Neighbours {
		if b.Topology.IsDown(neigh.Id) {
			b.Log.Debug("skipping down neighbour", "neigh", neigh.Id)
			continue
		}
		if err := b.send(ctx, neigh, payload); err != nil {
			b.dialFailed(neigh, err)
			continue
		}
		b.failures.Delete(neigh.Id)
		sent++
	}
	return sent
}

func (b *Broadcaster) send(ctx context.Context, neigh state.NeighbourCfg, payload []byte) error {
	dialer := net.Dialer{Timeout: state.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", neigh.Addr())
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(state.ReadTimeout))
	if err := protocol.WriteFrame(conn, payload); err != nil {
		return err
	}
	perf.SnapshotsSent.Add(1)
	return nil
}

func (b *Broadcaster) dialFailed(neigh state.NeighbourCfg, err error) {
	perf.DialFailures.Add(1)
	if b.failures.Get(neigh.Id) != nil {
		b.Log.Debug("failed to send snapshot", "neigh", neigh.Id, "err", err)
		return
	}
	b.failures.Set(neigh.Id, err.Error(), ttlcache.DefaultTTL)
	b.Log.Warn("failed to send snapshot", "neigh", neigh.Id, "addr", neigh.Addr(), "err", err)
}
