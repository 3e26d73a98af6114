package message

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Payload is the serializable body of a message. It is copied on the way in
// and on the way out of a Message, so a Message's payload never changes after
// construction.
type Payload map[string]any

// Message is the runtime shape shared by commands and events: a type tag, an
// immutable payload and a process-local annotation set. Only the payload ever
// crosses a process boundary.
type Message struct {
	id      string
	typ     string
	payload Payload

	mu          sync.RWMutex
	annotations map[string]any
}

// New builds a message with an empty annotation set.
func New(typ string, payload Payload) *Message {
	return &Message{
		id:          uuid.NewString(),
		typ:         typ,
		payload:     maps.Clone(payload),
		annotations: make(map[string]any),
	}
}

// ID is a process-local identifier used to correlate log lines.
func (m *Message) ID() string { return m.id }

// Type returns the message type tag, which doubles as the wire channel name.
func (m *Message) Type() string { return m.typ }

// Payload returns a copy of the payload.
func (m *Message) Payload() Payload {
	p := maps.Clone(m.payload)
	if p == nil {
		p = Payload{}
	}
	return p
}

// Annotate sets a process-local annotation.
func (m *Message) Annotate(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.annotations[key] = value
}

// Annotation reads a process-local annotation.
func (m *Message) Annotation(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.annotations[key]
	return v, ok
}

// Annotations returns a snapshot of the annotation set.
func (m *Message) Annotations() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.annotations)
}

// String reads a string field.
func (p Payload) String(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("payload field %q is missing", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("payload field %q: expected string, got %T", key, v)
	}
	return s, nil
}

// Int reads an integer field. Numbers decoded from JSON arrive as float64 or
// json.Number depending on the decoder, so both are accepted.
func (p Payload) Int(key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("payload field %q is missing", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("payload field %q: %v is not an integer", key, n)
		}
		return int(n), nil
	case json.Number:
		i, err := strconv.Atoi(n.String())
		if err != nil {
			return 0, fmt.Errorf("payload field %q: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("payload field %q: expected integer, got %T", key, v)
	}
}

// OptionalTime reads an RFC 3339 timestamp. A missing or null field yields nil.
func (p Payload) OptionalTime(key string) (*time.Time, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case time.Time:
		return &t, nil
	case string:
		if t == "" {
			return nil, nil
		}
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return nil, fmt.Errorf("payload field %q: %w", key, err)
		}
		return &parsed, nil
	default:
		return nil, fmt.Errorf("payload field %q: expected RFC 3339 string, got %T", key, v)
	}
}
