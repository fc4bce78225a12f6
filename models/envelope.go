package models

import "encoding/json"

// Envelope is the websocket frame format: a named event plus its payload.
//
// Client → server events: "chat msg", "get:online:users", "user:disconnect".
// Server → client events: "chat msg", "online-users", "presence-update", "error".
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope wraps a payload into an Envelope for the given event.
func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

type ErrorPayload struct {
	Message string `json:"message"`
}
