// Package command decodes the mutation envelope clients post to the
// simulation:
//
//	{"event_type": "Add",    "body": <Body>}
//	{"event_type": "Remove", "body": {"<target>": <any>}}
//	{"event_type": "Update", "body": {"<target>": <Body>}}
//	{"event_type": "Meta",   "metadata": <SimMetaData>}
//
// A target is a positional index or a stable body handle depending on the
// addressing mode the owner runs with; the envelope does not distinguish.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/interstellare/server/internal/physics"
)

// Event categorises a command.
type Event int

const (
	Add Event = iota + 1
	Remove
	Update
	Meta
)

func (e Event) String() string {
	switch e {
	case Add:
		return "Add"
	case Remove:
		return "Remove"
	case Update:
		return "Update"
	case Meta:
		return "Meta"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// ErrUnknownEvent reports an event_type outside Add, Remove, Update, Meta.
var ErrUnknownEvent = errors.New("command: unknown event_type")

// Command is one decoded mutation. Body and Meta are nil when the envelope
// carried no payload; the owner rejects such Add/Update/Meta commands.
type Command struct {
	Event  Event
	Target uint64
	Body   *physics.Body
	Meta   *physics.Metadata
}

func NewAdd(b physics.Body) Command { return Command{Event: Add, Body: &b} }

func NewRemove(target uint64) Command { return Command{Event: Remove, Target: target} }

func NewUpdate(target uint64, b physics.Body) Command {
	return Command{Event: Update, Target: target, Body: &b}
}

func NewMeta(m physics.Metadata) Command { return Command{Event: Meta, Meta: &m} }

type envelope struct {
	EventType    string          `json:"event_type"`
	EventTypeAlt string          `json:"eventType"`
	Body         json.RawMessage `json:"body"`
	Metadata     json.RawMessage `json:"metadata"`
}

// Parse decodes a raw envelope.
func Parse(raw []byte) (Command, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return Command{}, &physics.ParseError{Type: "InputEvent", Err: err}
	}

	name := env.EventType
	if name == "" {
		name = env.EventTypeAlt
	}

	switch name {
	case "Add":
		cmd := Command{Event: Add}
		if isNull(env.Body) {
			return cmd, nil
		}
		b, err := physics.ParseBody(env.Body)
		if err != nil {
			return Command{}, err
		}
		cmd.Body = &b
		return cmd, nil

	case "Remove", "Update":
		ev := Remove
		if name == "Update" {
			ev = Update
		}
		target, payload, err := parseTargeted(env.Body)
		if err != nil {
			return Command{}, err
		}
		cmd := Command{Event: ev, Target: target}
		if ev == Update && !isNull(payload) {
			b, err := physics.ParseBody(payload)
			if err != nil {
				return Command{}, err
			}
			cmd.Body = &b
		}
		return cmd, nil

	case "Meta":
		payload := env.Metadata
		if isNull(payload) {
			payload = env.Body
		}
		cmd := Command{Event: Meta}
		if isNull(payload) {
			return cmd, nil
		}
		m, err := physics.ParseMetadata(payload)
		if err != nil {
			return Command{}, err
		}
		cmd.Meta = &m
		return cmd, nil

	default:
		return Command{}, &physics.ParseError{
			Type: "InputEvent",
			Key:  "event_type",
			Err:  fmt.Errorf("%w: expected 'Add', 'Remove', 'Meta' or 'Update', but found %q", ErrUnknownEvent, name),
		}
	}
}

// parseTargeted splits {"<target>": payload}.
func parseTargeted(raw json.RawMessage) (uint64, json.RawMessage, error) {
	if isNull(raw) {
		return 0, nil, &physics.ParseError{Type: "InputEvent", Key: "body", Err: errors.New("missing target")}
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return 0, nil, &physics.ParseError{Type: "InputEvent", Key: "body", Err: err}
	}
	if len(m) != 1 {
		return 0, nil, &physics.ParseError{
			Type: "InputEvent",
			Key:  "body",
			Err:  fmt.Errorf("expected exactly one target, got %d", len(m)),
		}
	}
	for k, v := range m {
		target, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return 0, nil, &physics.ParseError{Type: "InputEvent", Key: "body", Err: fmt.Errorf("target %q: %w", k, err)}
		}
		return target, v, nil
	}
	panic("unreachable")
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// Marshal encodes cmd as an envelope accepted by Parse.
func Marshal(cmd Command) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, `{"event_type": "`...)
	buf = append(buf, cmd.Event.String()...)
	buf = append(buf, '"')

	switch cmd.Event {
	case Add:
		if cmd.Body != nil {
			buf = append(buf, `, "body": `...)
			buf = physics.AppendBody(buf, *cmd.Body)
		}
	case Remove:
		buf = append(buf, `, "body": {"`...)
		buf = strconv.AppendUint(buf, cmd.Target, 10)
		buf = append(buf, `": `...)
		buf = strconv.AppendUint(buf, cmd.Target, 10)
		buf = append(buf, '}')
	case Update:
		buf = append(buf, `, "body": {"`...)
		buf = strconv.AppendUint(buf, cmd.Target, 10)
		buf = append(buf, `": `...)
		if cmd.Body != nil {
			buf = physics.AppendBody(buf, *cmd.Body)
		} else {
			buf = append(buf, "null"...)
		}
		buf = append(buf, '}')
	case Meta:
		if cmd.Meta != nil {
			buf = append(buf, `, "metadata": `...)
			buf = physics.AppendMetadata(buf, *cmd.Meta)
		}
	}
	return append(buf, '}')
}
