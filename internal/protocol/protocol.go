package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manpreetbhatti/sketchroom/internal/model"
)

// Names a message on the wire
type EventType string

const (
	// Sent by clients
	EventJoinRoom      EventType = "join-room"
	EventShapeAdded    EventType = "shape-added"
	EventShapeUpdated  EventType = "shape-updated"
	EventShapeDeleted  EventType = "shape-deleted"
	EventCanvasCleared EventType = "canvas-cleared"
	EventCursorMove    EventType = "cursor-move"

	// Sent by the server only
	EventRoomState  EventType = "room-state"
	EventUserJoined EventType = "user-joined"
	EventUserLeft   EventType = "user-left"
)

var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrUnknownEvent = errors.New("unknown event type")
)

// Reports whether clients may send this event
func (t EventType) Inbound() bool {
	switch t {
	case EventJoinRoom, EventShapeAdded, EventShapeUpdated,
		EventShapeDeleted, EventCanvasCleared, EventCursorMove:
		return true
	}
	return false
}

// Reports whether the server may send this event
func (t EventType) Outbound() bool {
	switch t {
	case EventRoomState, EventUserJoined, EventUserLeft,
		EventShapeAdded, EventShapeUpdated, EventShapeDeleted,
		EventCanvasCleared, EventCursorMove:
		return true
	}
	return false
}

// Envelope multiplexes named events over a single websocket.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Bind decodes the payload into v. A missing payload leaves v untouched.
func (e Envelope) Bind(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Encode builds a frame. A nil data produces an envelope without payload.
func Encode(t EventType, data any) ([]byte, error) {
	env := Envelope{Type: t}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", t, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode parses a frame's envelope, leaving the payload raw.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if len(frame) == 0 {
		return env, ErrEmptyFrame
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("%w: missing type", ErrUnknownEvent)
	}
	return env, nil
}

// Client to server payloads. RoomID names the room the sender believes it
// is in; the server only ever applies events to the room a connection joined.

type JoinRoom struct {
	RoomID string        `json:"roomId"`
	User   model.Profile `json:"user"`
}

type ShapeAdded struct {
	RoomID string      `json:"roomId"`
	Shape  model.Shape `json:"shape"`
}

// Also relayed to peers, without RoomID.
type ShapeUpdated struct {
	RoomID  string           `json:"roomId,omitempty"`
	ShapeID string           `json:"shapeId"`
	Updates model.ShapePatch `json:"updates"`
}

type ShapeDeleted struct {
	RoomID  string `json:"roomId"`
	ShapeID string `json:"shapeId"`
}

type CanvasCleared struct {
	RoomID string `json:"roomId"`
}

type CursorMove struct {
	RoomID string  `json:"roomId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// RoomState is the authoritative snapshot sent once to a joining connection.
type RoomState struct {
	Shapes []model.Shape `json:"shapes"`
	Users  []model.User  `json:"users"`
}
