package state

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"time"
)

var (
	ErrInvalidCost = errors.New("link cost must be a positive number")
	ErrSelfLink    = errors.New("a node cannot link to itself")
)

type NodeId string

// Timestamp is a unix time in milliseconds
type Timestamp int64

func TimestampOf(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

func Now() Timestamp {
	return TimestampOf(time.Now())
}

func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t))
}

type PowerState uint8

const (
	PowerUp PowerState = iota + 1
	PowerDown
)

func (p PowerState) String() string {
	switch p {
	case PowerUp:
		return "up"
	case PowerDown:
		return "down"
	}
	return fmt.Sprintf("invalid(%d)", uint8(p))
}

func (p PowerState) Valid() bool {
	return p == PowerUp || p == PowerDown
}

type PowerFact struct {
	State   PowerState
	Updated Timestamp
}

type LinkFact struct {
	Peer    NodeId
	Cost    float64
	Updated Timestamp
}

// NodeRecord is everything a node believes about one participant: its power
// state and the links it has to its peers (at most one per peer).
type NodeRecord struct {
	Power PowerFact
	Links []LinkFact
}

func (r NodeRecord) Clone() NodeRecord {
	return NodeRecord{
		Power: r.Power,
		Links: slices.Clone(r.Links),
	}
}

func (r *NodeRecord) link(peer NodeId) *LinkFact {
	idx := slices.IndexFunc(r.Links, func(l LinkFact) bool {
		return l.Peer == peer
	})
	if idx == -1 {
		return nil
	}
	return &r.Links[idx]
}

// Topology is the shared belief about the network. All methods are safe for
// concurrent use, and every merge is applied atomically.
type Topology struct {
	mu    sync.RWMutex
	nodes map[NodeId]*NodeRecord
}

func NewTopology(self NodeId, ts Timestamp) *Topology {
	t := &Topology{
		nodes: make(map[NodeId]*NodeRecord),
	}
	t.ensure(self, ts)
	return t
}

func ValidCost(cost float64) error {
	if !(cost > 0) || math.IsInf(cost, 1) {
		return fmt.Errorf("%w, got %v", ErrInvalidCost, cost)
	}
	return nil
}

func (t *Topology) ensure(id NodeId, ts Timestamp) *NodeRecord {
	rec, ok := t.nodes[id]
	if !ok {
		rec = &NodeRecord{
			Power: PowerFact{State: PowerUp, Updated: ts},
			Links: make([]LinkFact, 0),
		}
		t.nodes[id] = rec
	}
	return rec
}

// Ensure creates a record for id if none exists. New records start up.
func (t *Topology) Ensure(id NodeId, ts Timestamp) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensure(id, ts)
}

func mergeLink(rec *NodeRecord, peer NodeId, cost float64, ts Timestamp) bool {
	cur := rec.link(peer)
	if cur == nil {
		rec.Links = append(rec.Links, LinkFact{Peer: peer, Cost: cost, Updated: ts})
		return true
	}
	// only a different cost that is strictly newer supersedes the stored fact
	if cur.Cost != cost && ts > cur.Updated {
		cur.Cost = cost
		cur.Updated = ts
		return true
	}
	return false
}

// MergeEdge records the bidirectional link a <-> b. It reports whether the store changed.
func (t *Topology) MergeEdge(a, b NodeId, cost float64, ts Timestamp) (bool, error) {
	if err := ValidCost(cost); err != nil {
		return false, err
	}
	if a == b {
		return false, fmt.Errorf("%w: %s", ErrSelfLink, a)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mergeEdge(a, b, cost, ts), nil
}

func (t *Topology) mergeEdge(a, b NodeId, cost float64, ts Timestamp) bool {
	recA := t.ensure(a, ts)
	recB := t.ensure(b, ts)
	changedA := mergeLink(recA, b, cost, ts)
	changedB := mergeLink(recB, a, cost, ts)
	return changedA || changedB
}

// MergePower records a power observation for a known node. A same-state
// observation never refreshes the stored timestamp. It reports whether the store changed.
func (t *Topology) MergePower(id NodeId, st PowerState, ts Timestamp) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mergePower(id, st, ts)
}

func (t *Topology) mergePower(id NodeId, st PowerState, ts Timestamp) bool {
	rec, ok := t.nodes[id]
	if !ok {
		return false
	}
	if rec.Power.State != st && ts > rec.Power.Updated {
		rec.Power = PowerFact{State: st, Updated: ts}
		return true
	}
	return false
}

// Reconcile merges a snapshot received from a peer. Nodes first heard of
// through the snapshot start up, stamped with the advertised time, and only a
// strictly newer power fact can move them. Links with invalid costs are dropped.
func (t *Topology) Reconcile(snapshot map[NodeId]NodeRecord) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := slices.Sorted(maps.Keys(snapshot))
	for _, id := range ids {
		power := snapshot[id].Power
		if !power.State.Valid() {
			continue
		}
		if _, ok := t.nodes[id]; !ok {
			t.ensure(id, power.Updated)
			changed = true
		}
		changed = t.mergePower(id, power.State, power.Updated) || changed
	}
	for _, id := range ids {
		for _, link := range snapshot[id].Links {
			if ValidCost(link.Cost) != nil || link.Peer == id {
				continue
			}
			changed = t.mergeEdge(id, link.Peer, link.Cost, link.Updated) || changed
		}
	}
	return changed
}

func (t *Topology) Power(id NodeId) (PowerFact, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.nodes[id]
	if !ok {
		return PowerFact{}, false
	}
	return rec.Power, true
}

// IsDown is true only for known nodes whose power state is down
func (t *Topology) IsDown(id NodeId) bool {
	p, ok := t.Power(id)
	return ok && p.State == PowerDown
}

// Snapshot returns a deep copy of the whole store.
func (t *Topology) Snapshot() map[NodeId]NodeRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[NodeId]NodeRecord, len(t.nodes))
	for id, rec := range t.nodes {
		out[id] = rec.Clone()
	}
	return out
}

// ChangedSince reports whether any stored fact is strictly newer than ts.
func (t *Topology) ChangedSince(ts Timestamp) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, rec := range t.nodes {
		if rec.Power.Updated > ts {
			return true
		}
		for _, link := range rec.Links {
			if link.Updated > ts {
				return true
			}
		}
	}
	return false
}

func (t *Topology) Nodes() []NodeId {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Sorted(maps.Keys(t.nodes))
}
