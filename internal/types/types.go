// Package types defines the JSON envelope spoken on the websocket,
// symmetric in both directions: a "type" discriminator plus
// type-specific fields.
package types

import "encoding/json"

// ClientMessage is everything a client may send.
type ClientMessage struct {
	Type    string       `json:"type"`
	Payload StartPayload `json:"payload,omitempty"`
	Command string       `json:"command,omitempty"`
}

// StartPayload initiates or resumes a session.
type StartPayload struct {
	Mode       string          `json:"mode,omitempty"` // "ai" | "pvp"
	FormatID   string          `json:"formatid,omitempty"`
	Team       json.RawMessage `json:"team,omitempty"`
	Difficulty int             `json:"difficulty,omitempty"`
	RoomID     string          `json:"roomId,omitempty"`
	Side       string          `json:"side,omitempty"`
}

// ServerMessage is everything the server may send.
type ServerMessage struct {
	Type    string          `json:"type"`
	Data    string          `json:"data,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Protocol wraps one projected engine line for transport, verbatim.
func Protocol(line string) []byte {
	return marshal(ServerMessage{Type: "protocol", Data: line})
}

// Notice builds a typed server notice with a JSON payload.
func Notice(kind string, payload any) []byte {
	body, err := json.Marshal(payload)
	if err != nil {
		return marshal(ServerMessage{Type: kind})
	}
	return marshal(ServerMessage{Type: kind, Payload: body})
}

// ErrorMessage reports a client-facing failure.
func ErrorMessage(msg string) []byte {
	return marshal(ServerMessage{Type: "error", Error: msg})
}

func marshal(m ServerMessage) []byte {
	b, err := json.Marshal(m)
	if err != nil {
		return []byte(`{"type":"error","error":"encoding failure"}`)
	}
	return b
}

// RoomNotice payloads.
type RoomCreatedPayload struct {
	RoomID string `json:"roomId"`
}

type RoomJoinedPayload struct {
	RoomID string `json:"roomId"`
	Side   string `json:"side"`
}

type RoomClosedPayload struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// ReconnectedPayload notifies a rebound client of its side.
type ReconnectedPayload struct {
	Side    string `json:"side"`
	Message string `json:"message"`
}
