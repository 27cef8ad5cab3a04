package core

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/encodeous/strand/protocol"
	"github.com/encodeous/strand/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func snapshotFrom(sender state.NodeId, ts state.Timestamp, links ...state.LinkFact) *protocol.Envelope {
	topo := map[state.NodeId]state.NodeRecord{
		sender: {
			Power: state.PowerFact{State: state.PowerUp, Updated: ts},
			Links: links,
		},
	}
	for _, l := range links {
		topo[l.Peer] = state.NodeRecord{Power: state.PowerFact{State: state.PowerUp, Updated: ts}}
	}
	return protocol.NewEnvelope(sender, topo)
}

func TestListenerLiveness(t *testing.T) {
	s, _ := newTestState(t, state.LocalCfg{
		Id:         "A",
		Neighbours: []state.NeighbourCfg{{Id: "B", Cost: 1, Port: 6001}},
	})
	l := &Listener{State: s, lastContact: make(map[state.NodeId]time.Time)}
	base := time.Now()

	l.accept(snapshotFrom("B", state.Now()), base)
	l.evaluateLiveness(base.Add(state.LivenessWindow))
	assert.False(t, s.Topology.IsDown("B"), "exactly the window is still alive")

	l.evaluateLiveness(base.Add(state.LivenessWindow + time.Second))
	assert.True(t, s.Topology.IsDown("B"))

	// a snapshot alone does not revive B, its own power fact is older than our observation
	l.accept(snapshotFrom("B", state.Now()), base.Add(state.LivenessWindow+2*time.Second))
	assert.True(t, s.Topology.IsDown("B"))

	l.evaluateLiveness(base.Add(state.LivenessWindow + 2*time.Second))
	assert.False(t, s.Topology.IsDown("B"))
}

func TestListenerLivenessOnlyTracksSenders(t *testing.T) {
	s, _ := newTestState(t, state.LocalCfg{
		Id:         "A",
		Neighbours: []state.NeighbourCfg{{Id: "B", Cost: 1, Port: 6001}},
	})
	l := &Listener{State: s, lastContact: make(map[state.NodeId]time.Time)}
	base := time.Now()

	l.accept(snapshotFrom("B", state.Now(), state.LinkFact{Peer: "C", Cost: 2, Updated: state.Now()}), base)
	l.accept(snapshotFrom("A", state.Now()), base)
	assert.Len(t, l.lastContact, 1)

	l.evaluateLiveness(base.Add(time.Hour))
	assert.True(t, s.Topology.IsDown("B"))
	assert.False(t, s.Topology.IsDown("C"), "C was never heard from directly")
	assert.False(t, s.SelfDown())
}

func TestListenerAcceptMerges(t *testing.T) {
	s, _ := newTestState(t, state.LocalCfg{
		Id:         "A",
		Neighbours: []state.NeighbourCfg{{Id: "B", Cost: 1, Port: 6001}},
	})
	l := &Listener{State: s, lastContact: make(map[state.NodeId]time.Time)}
	ts := state.Now() + 10

	l.accept(snapshotFrom("B", ts,
		state.LinkFact{Peer: "A", Cost: 3, Updated: ts},
		state.LinkFact{Peer: "C", Cost: 2, Updated: ts},
	), time.Now())

	assert.Equal(t, []state.NodeId{"A", "B", "C"}, s.Topology.Nodes())
	assert.Equal(t, 3.0, linkCost(t, s.Topology, "A", "B"))
	assert.Equal(t, 2.0, linkCost(t, s.Topology, "C", "B"))
}

func TestListenerServes(t *testing.T) {
	defer goleak.VerifyNone(t)
	fastTimings(t)
	s, _ := newTestState(t, state.LocalCfg{
		Id:         "A",
		Neighbours: []state.NeighbourCfg{{Id: "B", Cost: 1, Port: 6001}},
	})
	l := &Listener{}
	s.Modules["*core.Listener"] = l
	require.NoError(t, l.Init(s))

	// garbage first, the listener must survive it
	conn, err := net.Dial("tcp", l.BoundAddr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte{0, 0, 0, 3, 'b', 'a', 'd'})
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	conn, err = net.Dial("tcp", l.BoundAddr().String())
	require.NoError(t, err)
	require.NoError(t, protocol.Send(conn, snapshotFrom("B", state.Now(), state.LinkFact{Peer: "D", Cost: 4, Updated: state.Now()})))
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		_, ok := s.Topology.Power("D")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, Stop(s))
}

func TestListenerBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s, _ := newTestState(t, state.LocalCfg{
		Id:   "A",
		Port: uint16(ln.Addr().(*net.TCPAddr).Port),
	})
	l := &Listener{}
	err = l.Init(s)
	assert.ErrorContains(t, err, "failed to listen")
	assert.NoError(t, l.Cleanup(s))
	s.Cancel(context.Canceled)
}

func TestListenerResumeRefreshesContact(t *testing.T) {
	s, _ := newTestState(t, state.LocalCfg{
		Id:         "A",
		Neighbours: []state.NeighbourCfg{{Id: "B", Cost: 1, Port: 6001}},
	})
	l := &Listener{State: s, lastContact: make(map[state.NodeId]time.Time)}
	base := time.Now()
	l.accept(snapshotFrom("B", state.Now()), base)

	later := base.Add(state.LivenessWindow * 3)
	l.paused = true
	l.resume(later)
	l.evaluateLiveness(later)
	assert.False(t, s.Topology.IsDown("B"))
	assert.False(t, l.paused)
}
