package ws

import (
	"encoding/json"
	"fmt"
)

// Event names.
const (
	EventOutput = "output"
	EventInput  = "input"
	EventResize = "resize"
	EventPing   = "ping"
	EventPong   = "pong"
)

// Message is the wire representation of an event.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ResizePayload is the data of a resize event.
type ResizePayload struct {
	Col uint16 `json:"col"`
	Row uint16 `json:"row"`
}

// Event is a decoded client event.
type Event struct {
	Name string

	// Data is the payload of an input event.
	Data string

	// Resize is set for resize events.
	Resize *ResizePayload
}

// EncodeMessage builds the frame for an outgoing event. Byte slices are sent
// as strings.
func EncodeMessage(event string, payload any) ([]byte, error) {
	msg := Message{Event: event}
	if b, ok := payload.([]byte); ok {
		payload = string(b)
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
		}
		msg.Data = data
	}
	return json.Marshal(msg)
}

// DecodeEvent parses an incoming frame.
func DecodeEvent(frame []byte) (Event, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if msg.Event == "" {
		return Event{}, fmt.Errorf("message has no event name")
	}

	ev := Event{Name: msg.Event}
	switch msg.Event {
	case EventInput:
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &ev.Data); err != nil {
				return Event{}, fmt.Errorf("invalid input payload: %w", err)
			}
		}
	case EventResize:
		var size ResizePayload
		if err := json.Unmarshal(msg.Data, &size); err != nil {
			return Event{}, fmt.Errorf("invalid resize payload: %w", err)
		}
		ev.Resize = &size
	}
	return ev, nil
}
