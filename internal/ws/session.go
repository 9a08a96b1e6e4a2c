package ws

import (
	"log/slog"
	"sync"

	"github.com/manpreetbhatti/sketchroom/internal/db"
	"github.com/manpreetbhatti/sketchroom/internal/model"
	"github.com/manpreetbhatti/sketchroom/internal/protocol"
	"github.com/manpreetbhatti/sketchroom/internal/room"
)

// Recorder receives room activity for the ledger.
type Recorder interface {
	Record(ev db.Event)
}

type discard struct{}

func (discard) Record(db.Event) {}

type sessionState int

const (
	stateUnjoined sessionState = iota
	stateJoined
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateUnjoined:
		return "unjoined"
	case stateJoined:
		return "joined"
	default:
		return "closed"
	}
}

// Session is the protocol side of one connection. It is bound to at most one
// room for its whole life and moves unjoined -> joined -> closed.
type Session struct {
	peer     Peer
	store    *room.Store
	hub      *Hub
	recorder Recorder

	mu     sync.Mutex
	state  sessionState
	roomID string
	user   model.User
}

func NewSession(peer Peer, store *room.Store, hub *Hub, recorder Recorder) *Session {
	if recorder == nil {
		recorder = discard{}
	}
	return &Session{
		peer:     peer,
		store:    store,
		hub:      hub,
		recorder: recorder,
	}
}

func (s *Session) ID() string {
	return s.peer.ID()
}

// Room returns the bound room id, empty until joined.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Handle processes one inbound frame. Frames are handled strictly in the
// order the transport delivers them.
func (s *Session) Handle(frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		slog.Debug("invalid frame", "conn", s.ID(), "error", err)
		return
	}
	if !env.Type.Inbound() {
		slog.Debug("unexpected event", "conn", s.ID(), "event", env.Type)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateClosed:
		slog.Debug("dropping event", "conn", s.ID(), "state", s.state, "event", env.Type)
		return
	case stateUnjoined:
		if env.Type != protocol.EventJoinRoom {
			slog.Debug("ignoring event before join", "conn", s.ID(), "event", env.Type)
			return
		}
		s.join(env)
		return
	}

	switch env.Type {
	case protocol.EventJoinRoom:
		slog.Debug("already joined", "conn", s.ID(), "room", s.roomID)
	case protocol.EventShapeAdded:
		s.shapeAdded(env)
	case protocol.EventShapeUpdated:
		s.shapeUpdated(env)
	case protocol.EventShapeDeleted:
		s.shapeDeleted(env)
	case protocol.EventCanvasCleared:
		s.canvasCleared(env)
	case protocol.EventCursorMove:
		s.cursorMove(env)
	}
}

func (s *Session) join(env protocol.Envelope) {
	var msg protocol.JoinRoom
	if err := env.Bind(&msg); err != nil {
		slog.Warn("bad join", "conn", s.ID(), "error", err)
		return
	}
	if msg.RoomID == "" {
		slog.Warn("join without room id", "conn", s.ID())
		return
	}

	var (
		user    model.User
		members int
	)
	err := s.hub.Subscribe(msg.RoomID, s.peer, func() ([]byte, error) {
		var snap room.Snapshot
		user, snap = s.store.Join(msg.RoomID, s.ID(), msg.User)
		members = len(snap.Users)
		return protocol.Encode(protocol.EventRoomState, protocol.RoomState{
			Shapes: snap.Shapes,
			Users:  snap.Users,
		})
	}, func() {
		s.store.Leave(msg.RoomID, s.ID())
	})
	if err != nil {
		slog.Warn("join failed", "conn", s.ID(), "room", msg.RoomID, "error", err)
		s.state = stateClosed
		go s.peer.Close()
		return
	}

	s.state = stateJoined
	s.roomID = msg.RoomID
	s.user = user

	if members == 1 {
		s.recorder.Record(db.Event{RoomID: s.roomID, Kind: db.KindRoomOpened})
	}
	s.recorder.Record(db.Event{RoomID: s.roomID, Kind: db.KindUserJoined, ConnID: user.ID, Name: user.Name})
	slog.Info("user joined", "room", s.roomID, "conn", user.ID, "name", user.Name, "members", members)

	if frame := s.encode(protocol.EventUserJoined, user); frame != nil {
		s.hub.Broadcast(s.roomID, s.ID(), frame)
	}
}

// Reports whether an event naming roomID is meant for this session's room.
// Clients may omit the id; they may not address another room.
func (s *Session) addressed(roomID string, event protocol.EventType) bool {
	if roomID == "" || roomID == s.roomID {
		return true
	}
	slog.Debug("event for foreign room", "conn", s.ID(), "room", s.roomID, "target", roomID, "event", event)
	return false
}

func (s *Session) shapeAdded(env protocol.Envelope) {
	var msg protocol.ShapeAdded
	if err := env.Bind(&msg); err != nil {
		slog.Debug("bad shape-added", "conn", s.ID(), "error", err)
		return
	}
	if !s.addressed(msg.RoomID, env.Type) {
		return
	}
	if err := msg.Shape.Validate(); err != nil {
		slog.Debug("rejected shape", "conn", s.ID(), "error", err)
		return
	}

	s.hub.Publish(s.roomID, s.ID(), func() []byte {
		if !s.store.AppendShape(s.roomID, msg.Shape) {
			return nil
		}
		return s.encode(protocol.EventShapeAdded, msg.Shape)
	})
}

func (s *Session) shapeUpdated(env protocol.Envelope) {
	var msg protocol.ShapeUpdated
	if err := env.Bind(&msg); err != nil {
		slog.Debug("bad shape-updated", "conn", s.ID(), "error", err)
		return
	}
	if !s.addressed(msg.RoomID, env.Type) || msg.ShapeID == "" {
		return
	}

	s.hub.Publish(s.roomID, s.ID(), func() []byte {
		if !s.store.UpdateShape(s.roomID, msg.ShapeID, msg.Updates) {
			return nil
		}
		return s.encode(protocol.EventShapeUpdated, protocol.ShapeUpdated{
			ShapeID: msg.ShapeID,
			Updates: msg.Updates,
		})
	})
}

func (s *Session) shapeDeleted(env protocol.Envelope) {
	var msg protocol.ShapeDeleted
	if err := env.Bind(&msg); err != nil {
		slog.Debug("bad shape-deleted", "conn", s.ID(), "error", err)
		return
	}
	if !s.addressed(msg.RoomID, env.Type) || msg.ShapeID == "" {
		return
	}

	// Relayed whenever the room exists, whether or not the store held the shape.
	s.hub.Publish(s.roomID, s.ID(), func() []byte {
		if !s.store.Exists(s.roomID) {
			return nil
		}
		s.store.DeleteShape(s.roomID, msg.ShapeID)
		return s.encode(protocol.EventShapeDeleted, msg.ShapeID)
	})
}

func (s *Session) canvasCleared(env protocol.Envelope) {
	var msg protocol.CanvasCleared
	if err := env.Bind(&msg); err != nil {
		slog.Debug("bad canvas-cleared", "conn", s.ID(), "error", err)
		return
	}
	if !s.addressed(msg.RoomID, env.Type) {
		return
	}

	s.hub.Publish(s.roomID, s.ID(), func() []byte {
		if !s.store.Clear(s.roomID) {
			return nil
		}
		return s.encode(protocol.EventCanvasCleared, nil)
	})
}

// Cursor moves are relayed, never stored. Name and color are looked up at
// send time so receivers can label a cursor before they see user-joined.
func (s *Session) cursorMove(env protocol.Envelope) {
	var msg protocol.CursorMove
	if err := env.Bind(&msg); err != nil {
		slog.Debug("bad cursor-move", "conn", s.ID(), "error", err)
		return
	}
	if !s.addressed(msg.RoomID, env.Type) {
		return
	}

	user, ok := s.store.User(s.roomID, s.ID())
	if !ok {
		user = model.Profile{}.Assign(s.ID())
	}
	frame := s.encode(protocol.EventCursorMove, model.Cursor{
		UserID: s.ID(),
		X:      msg.X,
		Y:      msg.Y,
		Name:   user.Name,
		Color:  user.Color,
	})
	if frame != nil {
		s.hub.Broadcast(s.roomID, s.ID(), frame)
	}
}

// Close runs the leave protocol once. It is called for every kind of
// disconnect, graceful or not.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state = stateClosed
	if prev != stateJoined {
		return
	}

	var (
		empty  bool
		shapes int
	)
	remaining := s.hub.Unsubscribe(s.roomID, s.ID(), func() []byte {
		_, shapes, _ = s.store.Counts(s.roomID)
		empty = s.store.Leave(s.roomID, s.ID())
		if empty {
			return nil
		}
		return s.encode(protocol.EventUserLeft, s.ID())
	})

	s.recorder.Record(db.Event{RoomID: s.roomID, Kind: db.KindUserLeft, ConnID: s.ID(), Name: s.user.Name})
	if empty {
		s.recorder.Record(db.Event{RoomID: s.roomID, Kind: db.KindRoomClosed, Shapes: shapes})
		slog.Info("room closed", "room", s.roomID, "shapes", shapes)
		return
	}
	slog.Info("user left", "room", s.roomID, "conn", s.ID(), "remaining", remaining)
}

func (s *Session) encode(t protocol.EventType, data any) []byte {
	frame, err := protocol.Encode(t, data)
	if err != nil {
		slog.Error("encode failed", "conn", s.ID(), "event", t, "error", err)
		return nil
	}
	return frame
}
