package core

import (
	"container/heap"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/encodeous/strand/perf"
	"github.com/encodeous/strand/state"
)

type Route struct {
	Dest state.NodeId
	// Path starts at the computing node and ends at Dest
	Path      []state.NodeId
	Cost      float64
	Reachable bool
}

type RouteReport struct {
	Self   state.NodeId
	Routes []Route
}

// RoundCost rounds a path cost to two decimals for display
func RoundCost(c float64) float64 {
	return math.Round(c*100) / 100
}

func (r Route) Describe(self state.NodeId) string {
	if !r.Reachable {
		return fmt.Sprintf("No path from %s to %s", self, r.Dest)
	}
	hops := make([]string, len(r.Path))
	for i, n := range r.Path {
		hops[i] = string(n)
	}
	return fmt.Sprintf("Least cost path from %s to %s: %s, link cost: %.2f", self, r.Dest, strings.Join(hops, "-"), RoundCost(r.Cost))
}

func (rep RouteReport) String() string {
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "I am Node %s\n", rep.Self)
	for _, r := range rep.Routes {
		sb.WriteString(r.Describe(rep.Self))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (rep RouteReport) Write(w io.Writer) error {
	_, err := io.WriteString(w, rep.String())
	return err
}

type queued struct {
	node state.NodeId
	cost float64
}

type routeQueue []queued

func (q routeQueue) Len() int           { return len(q) }
func (q routeQueue) Less(i, j int) bool { return q[i].cost < q[j].cost }
func (q routeQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *routeQueue) Push(x any)        { *q = append(*q, x.(queued)) }
func (q *routeQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// ComputeRoutes runs Dijkstra from self over the nodes whose power fact is up.
// Every other live node gets exactly one Route, sorted by destination.
func ComputeRoutes(self state.NodeId, topo map[state.NodeId]state.NodeRecord) RouteReport {
	live := func(id state.NodeId) bool {
		rec, ok := topo[id]
		return ok && rec.Power.State == state.PowerUp
	}

	dist := make(map[state.NodeId]float64)
	prev := make(map[state.NodeId]state.NodeId)
	if live(self) {
		settled := make(map[state.NodeId]struct{})
		dist[self] = 0
		q := &routeQueue{{node: self}}
		for q.Len() > 0 {
			cur := heap.Pop(q).(queued)
			if _, ok := settled[cur.node]; ok {
				// stale entry, a cheaper one was already settled
				continue
			}
			settled[cur.node] = struct{}{}
			for _, l := range topo[cur.node].Links {
				if _, ok := settled[l.Peer]; ok || !live(l.Peer) {
					continue
				}
				nd := cur.cost + l.Cost
				if d, ok := dist[l.Peer]; !ok || nd < d {
					dist[l.Peer] = nd
					prev[l.Peer] = cur.node
					heap.Push(q, queued{node: l.Peer, cost: nd})
				}
			}
		}
	}

	rep := RouteReport{Self: self, Routes: make([]Route, 0)}
	for _, id := range slices.Sorted(maps.Keys(topo)) {
		if id == self || !live(id) {
			continue
		}
		d, ok := dist[id]
		if !ok {
			rep.Routes = append(rep.Routes, Route{Dest: id, Cost: math.Inf(1)})
			continue
		}
		path := []state.NodeId{id}
		for cur := id; cur != self; {
			cur = prev[cur]
			path = append(path, cur)
		}
		slices.Reverse(path)
		rep.Routes = append(rep.Routes, Route{Dest: id, Path: path, Cost: d, Reachable: true})
	}
	return rep
}

// shouldRecompute decides whether a route tick reports. Nothing is reported
// during warmup, the tick that ends warmup always reports, and afterwards only
// facts newer than the watermark trigger a report.
func shouldRecompute(tick, warmup int, watermark state.Timestamp, topo *state.Topology) bool {
	if tick < warmup {
		return false
	}
	if tick == warmup {
		return true
	}
	return topo.ChangedSince(watermark)
}

// RouteEngine recomputes least cost paths once per tick when the topology changed
type RouteEngine struct {
	*state.State
	tick      int
	warmup    int
	watermark state.Timestamp
}

func (r *RouteEngine) Init(s *state.State) error {
	s.Log.Debug("init route engine")
	r.State = s
	r.warmup = int(state.RouteWarmup / state.RouteTickDelay)
	r.watermark = state.TimestampOf(s.Started.Add(state.RouteWarmup))

	s.Env.RepeatTask(r.onTick, state.RouteTickDelay)
	return nil
}

func (r *RouteEngine) Cleanup(s *state.State) error {
	return nil
}

func (r *RouteEngine) onTick(e *state.Env) error {
	if e.SelfDown() {
		// the tick counter holds while we are down
		return nil
	}
	if shouldRecompute(r.tick, r.warmup, r.watermark, e.Topology) {
		r.watermark = state.Now()
		rep := computeRoutes(e)
		e.Log.Debug("recomputed routes", "tick", r.tick, "destinations", len(rep.Routes))
		if err := rep.Write(e.Out); err != nil {
			e.Log.Warn("failed to write route report", "err", err)
		}
	}
	r.tick++
	return nil
}

func computeRoutes(e *state.Env) RouteReport {
	start := time.Now()
	rep := ComputeRoutes(e.Id, e.Topology.Snapshot())
	perf.RouteComputeLatency.Add(float64(time.Since(start).Microseconds()))
	return rep
}
