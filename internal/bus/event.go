package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventKind discriminates change-notification payloads.
type EventKind string

const (
	// KindFullReload requests a reload of every key source and route table.
	KindFullReload EventKind = "fullReload"

	// KindSourceReload requests a reload of a single key source.
	KindSourceReload EventKind = "sourceReload"

	// KindClientInvalidate drops the named client config entries.
	KindClientInvalidate EventKind = "clientInvalidate"
)

// Event is one change notification.
type Event struct {
	// Kind selects the invalidation behavior.
	Kind EventKind `json:"kind"`

	// SourceID names the key source for KindSourceReload.
	SourceID string `json:"sourceId,omitempty"`

	// ClientIDs lists affected clients for KindClientInvalidate.
	ClientIDs []string `json:"clientIds,omitempty"`
}

// DecodeEvent parses an event payload.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("invalid event payload: %w", err)
	}
	switch ev.Kind {
	case KindFullReload, KindSourceReload, KindClientInvalidate:
		return ev, nil
	default:
		return Event{}, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

// Encode serializes the event for publishing.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Handler processes one event. Handler errors are logged by the subscriber
// and do not stop consumption.
type Handler func(ctx context.Context, ev Event) error

// Subscriber delivers change notifications to a handler.
type Subscriber interface {
	// Subscribe consumes events until ctx is cancelled. Blocking.
	Subscribe(ctx context.Context, handler Handler) error

	// Healthy reports whether the channel is currently reachable.
	Healthy(ctx context.Context) bool

	// Close releases the underlying connection.
	Close() error
}
