package protocol

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/encodeous/strand/state"
	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrMalformed = errors.New("malformed snapshot")
	ErrNoSender  = errors.New("envelope has no sender")
)

// Envelope carries one full topology snapshot from Sender
type Envelope struct {
	Id       uuid.UUID
	Sender   state.NodeId
	Topology map[state.NodeId]state.NodeRecord
}

func NewEnvelope(sender state.NodeId, topology map[state.NodeId]state.NodeRecord) *Envelope {
	return &Envelope{
		Id:       uuid.New(),
		Sender:   sender,
		Topology: topology,
	}
}

func appendPower(b []byte, p state.PowerFact) []byte {
	b = protowire.AppendTag(b, powerState, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.State))
	b = protowire.AppendTag(b, powerUpdated, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Updated))
	return b
}

func appendLink(b []byte, l state.LinkFact) []byte {
	b = protowire.AppendTag(b, linkPeer, protowire.BytesType)
	b = protowire.AppendString(b, string(l.Peer))
	b = protowire.AppendTag(b, linkCost, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(l.Cost))
	b = protowire.AppendTag(b, linkUpdated, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(l.Updated))
	return b
}

func appendNode(b []byte, id state.NodeId, rec state.NodeRecord) []byte {
	b = protowire.AppendTag(b, nodeId, protowire.BytesType)
	b = protowire.AppendString(b, string(id))
	b = protowire.AppendTag(b, nodePower, protowire.BytesType)
	b = protowire.AppendBytes(b, appendPower(nil, rec.Power))
	for _, l := range rec.Links {
		b = protowire.AppendTag(b, nodeLink, protowire.BytesType)
		b = protowire.AppendBytes(b, appendLink(nil, l))
	}
	return b
}

// Marshal encodes e. Nodes are written in id order so equal snapshots encode identically.
func Marshal(e *Envelope) ([]byte, error) {
	if e.Sender == "" {
		return nil, ErrNoSender
	}
	b := make([]byte, 0, 64*(len(e.Topology)+1))
	b = protowire.AppendTag(b, envelopeId, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Id[:])
	b = protowire.AppendTag(b, envelopeSender, protowire.BytesType)
	b = protowire.AppendString(b, string(e.Sender))
	for _, id := range slices.Sorted(maps.Keys(e.Topology)) {
		b = protowire.AppendTag(b, envelopeNode, protowire.BytesType)
		b = protowire.AppendBytes(b, appendNode(nil, id, e.Topology[id]))
	}
	return b, nil
}

// walk calls fn for every field in b. fn returns how many bytes of the value it
// consumed, or 0 to skip a field it does not know.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
		}
		b = b[m:]
	}
	return nil
}

func expectType(num protowire.Number, typ, want protowire.Type) error {
	if typ != want {
		return fmt.Errorf("field %d: unexpected wire type %d", num, typ)
	}
	return nil
}

func fieldBytes(num protowire.Number, typ protowire.Type, b []byte) ([]byte, int, error) {
	if err := expectType(num, typ, protowire.BytesType); err != nil {
		return nil, 0, err
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func fieldVarint(num protowire.Number, typ protowire.Type, b []byte) (uint64, int, error) {
	if err := expectType(num, typ, protowire.VarintType); err != nil {
		return 0, 0, err
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func fieldFixed64(num protowire.Number, typ protowire.Type, b []byte) (uint64, int, error) {
	if err := expectType(num, typ, protowire.Fixed64Type); err != nil {
		return 0, 0, err
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func unmarshalPower(b []byte) (state.PowerFact, error) {
	var p state.PowerFact
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case powerState:
			v, n, err := fieldVarint(num, typ, b)
			if err != nil {
				return 0, err
			}
			if v > math.MaxUint8 || !state.PowerState(v).Valid() {
				return 0, fmt.Errorf("unknown power state %d", v)
			}
			p.State = state.PowerState(v)
			return n, nil
		case powerUpdated:
			v, n, err := fieldVarint(num, typ, b)
			if err != nil {
				return 0, err
			}
			p.Updated = state.Timestamp(v)
			return n, nil
		}
		return 0, nil
	})
	if err == nil && !p.State.Valid() {
		err = errors.New("power state missing")
	}
	return p, err
}

func unmarshalLink(b []byte) (state.LinkFact, error) {
	var l state.LinkFact
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case linkPeer:
			v, n, err := fieldBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			l.Peer = state.NodeId(v)
			return n, nil
		case linkCost:
			v, n, err := fieldFixed64(num, typ, b)
			if err != nil {
				return 0, err
			}
			l.Cost = math.Float64frombits(v)
			return n, nil
		case linkUpdated:
			v, n, err := fieldVarint(num, typ, b)
			if err != nil {
				return 0, err
			}
			l.Updated = state.Timestamp(v)
			return n, nil
		}
		return 0, nil
	})
	return l, err
}

func unmarshalNode(b []byte) (state.NodeId, state.NodeRecord, error) {
	var id state.NodeId
	rec := state.NodeRecord{Links: make([]state.LinkFact, 0)}
	hasPower := false
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case nodeId:
			v, n, err := fieldBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			id = state.NodeId(v)
			return n, nil
		case nodePower:
			v, n, err := fieldBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			rec.Power, err = unmarshalPower(v)
			if err != nil {
				return 0, err
			}
			hasPower = true
			return n, nil
		case nodeLink:
			v, n, err := fieldBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			l, err := unmarshalLink(v)
			if err != nil {
				return 0, err
			}
			// invalid links from peers are dropped, not fatal
			if l.Peer != "" && state.ValidCost(l.Cost) == nil {
				rec.Links = append(rec.Links, l)
			}
			return n, nil
		}
		return 0, nil
	})
	if err != nil {
		return "", rec, err
	}
	if id == "" {
		return "", rec, errors.New("node without id")
	}
	if !hasPower {
		return "", rec, fmt.Errorf("node %s has no power fact", id)
	}
	return id, rec, nil
}

func Unmarshal(b []byte) (*Envelope, error) {
	e := &Envelope{
		Topology: make(map[state.NodeId]state.NodeRecord),
	}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case envelopeId:
			v, n, err := fieldBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			e.Id, err = uuid.FromBytes(v)
			if err != nil {
				return 0, err
			}
			return n, nil
		case envelopeSender:
			v, n, err := fieldBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			e.Sender = state.NodeId(v)
			return n, nil
		case envelopeNode:
			v, n, err := fieldBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			id, rec, err := unmarshalNode(v)
			if err != nil {
				return 0, err
			}
			if _, dup := e.Topology[id]; dup {
				return 0, fmt.Errorf("duplicate node %s", id)
			}
			e.Topology[id] = rec
			return n, nil
		}
		return 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if e.Sender == "" {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrNoSender)
	}
	return e, nil
}
