package core

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/encodeous/strand/perf"
	"github.com/encodeous/strand/protocol"
	"github.com/encodeous/strand/state"
)

// Listener accepts snapshots from neighbours and tracks when each sender was
// last heard from. Peers silent for longer than state.LivenessWindow are
// marked down, and marked up again once they are heard.
type Listener struct {
	*state.State
	ln *net.TCPListener
	// only touched by the listener worker
	lastContact map[state.NodeId]time.Time
	paused      bool
}

func (l *Listener) Init(s *state.State) error {
	s.Log.Debug("init listener")
	l.State = s
	l.lastContact = make(map[state.NodeId]time.Time)

	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(s.Context, "tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	l.ln = ln.(*net.TCPListener)
	s.Log.Info("listening for snapshots", "addr", l.ln.Addr().String())

	s.Env.Go(l.run)
	return nil
}

func (l *Listener) Cleanup(s *state.State) error {
	if l.ln == nil {
		return nil
	}
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// BoundAddr is the address actually bound, which differs from the configured one when port 0 was requested
func (l *Listener) BoundAddr() net.Addr {
	return l.ln.Addr()
}

func (l *Listener) run() error {
	for l.Context.Err() == nil {
		l.poll()
	}
	return nil
}

func (l *Listener) poll() {
	if l.SelfDown() {
		// pending connections wait in the backlog until we come back up
		l.paused = true
		l.Sleep(state.PowerDownPollDelay)
		return
	}
	if l.paused {
		l.resume(time.Now())
	}
	l.evaluateLiveness(time.Now())

	err := l.ln.SetDeadline(time.Now().Add(state.AcceptPollDelay))
	if err != nil {
		l.Log.Debug("failed to set accept deadline", "err", err)
		l.Sleep(state.AcceptPollDelay)
		return
	}
	conn, err := l.ln.Accept()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) || l.Context.Err() != nil {
			return
		}
		l.Log.Warn("accept failed", "err", err)
		l.Sleep(state.PowerDownPollDelay)
		return
	}
	l.handle(conn)
}

func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(state.ReadTimeout))

	env, err := protocol.Receive(conn)
	if err != nil {
		if errors.Is(err, protocol.ErrMalformed) || errors.Is(err, protocol.ErrFrameSize) {
			perf.MalformedSnapshots.Add(1)
		}
		l.Log.Debug("dropped snapshot", "remote", conn.RemoteAddr().String(), "err", err)
		return
	}
	l.accept(env, time.Now())
}

// accept merges a decoded snapshot and records contact with its sender
func (l *Listener) accept(env *protocol.Envelope, now time.Time) {
	perf.SnapshotsReceived.Add(1)
	changed := l.Topology.Reconcile(env.Topology)
	if env.Sender != l.Id {
		l.lastContact[env.Sender] = now
	}
	l.Log.Debug("received snapshot", "from", env.Sender, "id", env.Id.String(), "nodes", len(env.Topology), "changed", changed)
}

// resume gives every known peer a fresh liveness window after we were marked down
func (l *Listener) resume(now time.Time) {
	l.paused = false
	for peer := range l.lastContact {
		l.lastContact[peer] = now
	}
	l.Log.Debug("resumed listening", "peers", len(l.lastContact))
}

func (l *Listener) evaluateLiveness(now time.Time) {
	ts := state.TimestampOf(now)
	for peer, last := range l.lastContact {
		if now.Sub(last) > state.LivenessWindow {
			if l.Topology.MergePower(peer, state.PowerDown, ts) {
				perf.PowerTransitions.Add(1)
				l.Log.Info("peer went silent, marking down", "peer", peer, "silent", now.Sub(last).Round(time.Millisecond))
			}
		} else if l.Topology.MergePower(peer, state.PowerUp, ts) {
			perf.PowerTransitions.Add(1)
			l.Log.Info("peer is back up", "peer", peer)
		}
	}
}
