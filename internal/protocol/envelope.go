// Package protocol defines the JSON messages exchanged with clients over the
// websocket transport.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MessageType names an outbound message.
type MessageType string

const (
	WSHealthPing      MessageType = "WS_HEALTH_PING"
	WSReconnect       MessageType = "WS_RECONNECT"
	HeartbeatPing     MessageType = "HEARTBEAT_PING"
	HeartbeatPong     MessageType = "HEARTBEAT_PONG"
	SessionHealthPong MessageType = "SESSION_HEALTH_PONG"
	ExceptionMessage  MessageType = "EXCEPTION_MESSAGE"

	RoomList       MessageType = "ROOM_LIST"
	RoomJoined     MessageType = "ROOM_JOINED"
	RoomLeft       MessageType = "ROOM_LEFT"
	RoomState      MessageType = "ROOM_STATE"
	GameStarted    MessageType = "GAME_STARTED"
	RoundStarted   MessageType = "ROUND_STARTED"
	RoundSettled   MessageType = "ROUND_SETTLED"
	GameEnded      MessageType = "GAME_ENDED"
	ActionAccepted MessageType = "ACTION_ACCEPTED"
	ActionRejected MessageType = "ACTION_REJECTED"
)

// emptyPayload is how an envelope without content is encoded.
var emptyPayload = json.RawMessage(`{}`)

// Envelope is one outbound message. Payload is always a JSON object; an envelope
// without content carries {} rather than null or a missing field.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope encodes payload into an Envelope of type t. A nil payload yields {}.
//
// Postcondition: Returns an envelope whose Payload is a JSON object, or an error when
// payload cannot be encoded as one.
func NewEnvelope(t MessageType, payload any) (Envelope, error) {
	if payload == nil {
		return Empty(t), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", t, err)
	}
	if bytes.Equal(raw, []byte("null")) {
		raw = emptyPayload
	}
	if len(raw) == 0 || raw[0] != '{' {
		return Envelope{}, fmt.Errorf("%s payload must encode as a JSON object, got %s", t, raw)
	}
	return Envelope{Type: t, Payload: raw}, nil
}

// MustEnvelope is NewEnvelope for payload types known to encode; it panics otherwise.
func MustEnvelope(t MessageType, payload any) Envelope {
	env, err := NewEnvelope(t, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Empty returns an envelope of type t with the explicit empty payload.
func Empty(t MessageType) Envelope {
	return Envelope{Type: t, Payload: emptyPayload}
}

// MarshalJSON encodes e, substituting {} for a missing payload.
func (e Envelope) MarshalJSON() ([]byte, error) {
	payload := e.Payload
	if len(payload) == 0 {
		payload = emptyPayload
	}
	return json.Marshal(struct {
		Type    MessageType     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}{Type: e.Type, Payload: payload})
}

// Decode unmarshals e's payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
