// Package protocol defines the snapshot envelope exchanged between peers.
//
// The encoding is protobuf-compatible and equivalent to:
//
//	message Envelope {
//	  bytes id = 1;        // 16 byte uuid, used to correlate logs
//	  string sender = 2;   // node that built the snapshot
//	  repeated Node nodes = 3;
//	}
//	message Node {
//	  string id = 1;
//	  Power power = 2;
//	  repeated Link links = 3;
//	}
//	message Power {
//	  uint32 state = 1;    // 1 = up, 2 = down
//	  int64 updated = 2;   // unix milliseconds
//	}
//	message Link {
//	  string peer = 1;
//	  double cost = 2;
//	  int64 updated = 3;
//	}
package protocol

import "google.golang.org/protobuf/encoding/protowire"

const (
	envelopeId     protowire.Number = 1
	envelopeSender protowire.Number = 2
	envelopeNode   protowire.Number = 3

	nodeId    protowire.Number = 1
	nodePower protowire.Number = 2
	nodeLink  protowire.Number = 3

	powerState   protowire.Number = 1
	powerUpdated protowire.Number = 2

	linkPeer    protowire.Number = 1
	linkCost    protowire.Number = 2
	linkUpdated protowire.Number = 3
)

// MaxFrameSize bounds a single snapshot on the wire
const MaxFrameSize = 4 << 20
