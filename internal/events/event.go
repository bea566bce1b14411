// Package events defines push events announced by the server and their wire codec.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEvent reports a push frame that cannot be turned into an Event.
var ErrMalformedEvent = errors.New("malformed event")

// Event is one decoded push message. Name keeps the wire kind so unknown kinds
// survive a decode/encode cycle; Data is the compacted JSON payload.
type Event struct {
	Kind Kind
	Name string
	Data json.RawMessage
}

type envelope struct {
	Kind *string         `json:"kind,omitempty"`
	Type *string         `json:"type,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// New builds an event of a known kind from a typed payload.
func New(kind Kind, payload any) (Event, error) {
	if kind == KindUnknown {
		return Event{}, fmt.Errorf("%w: cannot build event of unknown kind", ErrMalformedEvent)
	}
	data, err := marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Event{Kind: kind, Name: kind.String(), Data: data}, nil
}

// Decode parses one wire frame. The kind is read from "kind", falling back to
// the legacy "type" field.
func Decode(raw []byte) (Event, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, fmt.Errorf("%w: frame is not a JSON object", ErrMalformedEvent)
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	name := ""
	switch {
	case env.Kind != nil:
		name = *env.Kind
	case env.Type != nil:
		name = *env.Type
	}
	if name == "" {
		return Event{}, fmt.Errorf("%w: missing kind", ErrMalformedEvent)
	}

	data, err := compactData(env.Data)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: ParseKind(name), Name: name, Data: data}, nil
}

// Encode renders the event in wire form, normalized the way Decode reads it,
// so decoding the result yields Normalize(e).
func Encode(e Event) ([]byte, error) {
	n, err := Normalize(e)
	if err != nil {
		return nil, err
	}
	return marshal(envelope{Kind: &n.Name, Data: n.Data})
}

// Normalize returns e in the form Decode produces: compact data, no null
// payload, and a Name derived from the kind when empty.
func Normalize(e Event) (Event, error) {
	if e.Name == "" {
		if e.Kind == KindUnknown {
			return Event{}, fmt.Errorf("%w: missing kind", ErrMalformedEvent)
		}
		e.Name = e.Kind.String()
	}
	e.Kind = ParseKind(e.Name)
	data, err := compactData(e.Data)
	if err != nil {
		return Event{}, err
	}
	e.Data = data
	return e, nil
}

func compactData(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return buf.Bytes(), nil
}

// Payload decodes the event data into T.
func Payload[T any](e Event) (T, error) {
	var out T
	if len(e.Data) == 0 {
		return out, fmt.Errorf("%w: %s has no data", ErrMalformedEvent, e.Name)
	}
	if err := json.Unmarshal(e.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return out, nil
}

func (e Event) String() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Kind.String()
}

// marshal encodes without HTML escaping so payload bytes are preserved verbatim.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
