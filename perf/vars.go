package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	RouteComputeLatency = metric.NewHistogram("1m1s")
	SnapshotSize        = metric.NewHistogram("1m1s")
	SnapshotsSent       = metric.NewCounter("1m1s")
	SnapshotsReceived   = metric.NewCounter("1m1s")
	MalformedSnapshots  = metric.NewCounter("1m1s")
	DialFailures        = metric.NewCounter("1m1s")
	PowerTransitions    = metric.NewCounter("1m1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("strand:RouteComputeLatency (µs)", RouteComputeLatency)
	expvar.Publish("strand:SnapshotSize (bytes)", SnapshotSize)
	expvar.Publish("strand:SnapshotsSent", SnapshotsSent)
	expvar.Publish("strand:SnapshotsReceived", SnapshotsReceived)
	expvar.Publish("strand:MalformedSnapshots", MalformedSnapshots)
	expvar.Publish("strand:DialFailures", DialFailures)
	expvar.Publish("strand:PowerTransitions", PowerTransitions)
}
