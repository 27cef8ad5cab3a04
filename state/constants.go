package state

import "time"

var (
	// LivenessWindow is how long a peer may stay silent before it is presumed down.
	LivenessWindow = time.Second * 12
	BroadcastDelay = time.Second * 10
	RouteTickDelay = time.Second * 1
	// RouteWarmup suppresses automatic route computation right after startup.
	RouteWarmup        = time.Second * 60
	AcceptPollDelay    = time.Second * 1
	PowerDownPollDelay = time.Millisecond * 100
	DialTimeout        = time.Second * 2
	ReadTimeout        = time.Second * 5

	// DialFailureLogDedup limits warn-level dial failure logs to one per neighbour per window.
	DialFailureLogDedup = LivenessWindow

	DefaultHost = "127.0.0.1"

	// debug flags
	DBG_debug      = false
	DBG_debug_addr = "127.0.0.1:6060"
)
