package stream

import (
	"strconv"

	"github.com/interstellare/server/internal/physics"
	"github.com/interstellare/server/internal/world"
)

// Kind names a stream event on the wire.
type Kind uint8

const (
	KindSimulation Kind = iota + 1
	KindRemoved
)

func (k Kind) String() string {
	switch k {
	case KindSimulation:
		return "simulation"
	case KindRemoved:
		return "removed"
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "simulation":
		return KindSimulation, true
	case "removed":
		return KindRemoved, true
	}
	return 0, false
}

// Event is one encoded stream message. Data is shared by every subscriber
// and must not be modified after Publish.
type Event struct {
	Kind Kind
	Data []byte
}

// SimulationEvent encodes a snapshot:
//
//	{"simstate": [<Body>, ...], "metadata": <SimMetaData>}
//
// withIDs appends "ids": [...] holding the body handles in sequence order.
func SimulationEvent(snap world.Snapshot, withIDs bool) Event {
	buf := make([]byte, 0, 64+len(snap.Bodies)*200)
	buf = append(buf, `{"simstate": [`...)
	for i, b := range snap.Bodies {
		if i > 0 {
			buf = append(buf, ", "...)
		}
		buf = physics.AppendBody(buf, b)
	}
	buf = append(buf, `], "metadata": `...)
	buf = physics.AppendMetadata(buf, snap.Meta)
	if withIDs {
		buf = append(buf, `, "ids": [`...)
		for i, id := range snap.IDs {
			if i > 0 {
				buf = append(buf, ", "...)
			}
			buf = strconv.AppendUint(buf, uint64(id), 10)
		}
		buf = append(buf, ']')
	}
	buf = append(buf, '}')
	return Event{Kind: KindSimulation, Data: buf}
}

// RemovedEvent encodes a removal notice: {"index":<n>}, plus "id" when
// withID is set.
func RemovedEvent(r world.Removal, withID bool) Event {
	buf := make([]byte, 0, 48)
	buf = append(buf, `{"index":`...)
	buf = strconv.AppendInt(buf, int64(r.Index), 10)
	if withID {
		buf = append(buf, `,"id":`...)
		buf = strconv.AppendUint(buf, uint64(r.ID), 10)
	}
	buf = append(buf, '}')
	return Event{Kind: KindRemoved, Data: buf}
}
