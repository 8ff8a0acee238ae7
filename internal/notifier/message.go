package notifier

import (
	"encoding/json"
	"fmt"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
)

// Message is the JSON envelope published by every transport.
type Message struct {
	Recipients Recipients           `json:"recipients"`
	Event      *tracking.AlertEvent `json:"event"`
}

// Encode renders the envelope for the event.
func Encode(to Recipients, event *tracking.AlertEvent) ([]byte, error) {
	if event == nil {
		return nil, ErrNoEvent
	}

	body, err := json.Marshal(Message{Recipients: to, Event: event})
	if err != nil {
		return nil, fmt.Errorf("encode alert message: %w", err)
	}

	return body, nil
}

// Decode parses an envelope produced by Encode.
func Decode(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decode alert message: %w", err)
	}

	if msg.Event == nil {
		return nil, ErrNoEvent
	}

	return &msg, nil
}
