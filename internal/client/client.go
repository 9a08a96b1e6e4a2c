package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/manpreetbhatti/sketchroom/internal/model"
	"github.com/manpreetbhatti/sketchroom/internal/protocol"
)

const (
	writeWait        = 10 * time.Second
	DefaultFrameRate = 60
	minBackoff       = 500 * time.Millisecond
	maxBackoff       = 10 * time.Second
)

var ErrStopped = errors.New("client stopped")

// Renderer receives the client's view of the room. All calls come from the
// client's event loop.
type Renderer interface {
	RenderShapes(shapes []model.Shape, draft *model.Shape)
	RenderCursors(cursors []model.Cursor)
	UserJoined(user model.User)
	UserLeft(userID string)
}

type nopRenderer struct{}

func (nopRenderer) RenderShapes([]model.Shape, *model.Shape) {}
func (nopRenderer) RenderCursors([]model.Cursor)            {}
func (nopRenderer) UserJoined(model.User)                   {}
func (nopRenderer) UserLeft(string)                         {}

type Config struct {
	URL            string
	RoomID         string
	Profile        model.Profile
	CursorInterval time.Duration
	FrameRate      int
	Renderer       Renderer
}

// View is a point-in-time copy of the client state.
type View struct {
	Shapes  []model.Shape
	Draft   *model.Shape
	Cursors []model.Cursor
	Users   []model.User
}

type incoming struct {
	conn *websocket.Conn
	env  protocol.Envelope
	err  error
}

type dialResult struct {
	conn *websocket.Conn
	err  error
}

// Client joins one room and keeps a local mirror of it. A single event loop
// owns all state; network reads, the cursor throttle and the frame ticker
// feed it through channels. The connection is re-established with the same
// profile whenever it drops.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer

	actions chan func()
	inbound chan incoming
	dialed  chan dialResult
	stopped chan struct{}

	// Event loop state
	conn     *websocket.Conn
	joined   bool
	recon    *Reconciler
	cursors  *Cursors
	batch    *CursorBatch
	users    map[string]model.User
	throttle *Throttle
}

func New(cfg Config) *Client {
	if cfg.Renderer == nil {
		cfg.Renderer = nopRenderer{}
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	c := &Client{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		actions: make(chan func(), 256),
		inbound: make(chan incoming, 256),
		dialed:  make(chan dialResult),
		stopped: make(chan struct{}),
		recon:   NewReconciler(),
		cursors: NewCursors(),
		batch:   NewCursorBatch(),
		users:   make(map[string]model.User),
	}
	c.throttle = NewThrottle(cfg.CursorInterval, func(x, y float64) {
		c.post(func() {
			// A draw may have begun after the timer fired.
			if c.recon.Drawing() {
				return
			}
			c.emit(protocol.EventCursorMove, protocol.CursorMove{RoomID: c.cfg.RoomID, X: x, Y: y})
		})
	})
	return c
}

// Run connects and processes events until ctx is done. It fails only when
// the first connection attempt fails.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.stopped)
	defer c.throttle.Stop()
	defer c.hangup()

	ticker := time.NewTicker(time.Second / time.Duration(c.cfg.FrameRate))
	defer ticker.Stop()

	var (
		redial    <-chan time.Time
		backoff   = minBackoff
		connected bool
	)
	c.dial(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case res := <-c.dialed:
			if res.err != nil {
				if !connected {
					return res.err
				}
				slog.Warn("reconnect failed", "room", c.cfg.RoomID, "retry_in", backoff, "error", res.err)
				redial = time.After(backoff)
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			connected = true
			c.conn = res.conn
			go c.readLoop(res.conn)
			c.emit(protocol.EventJoinRoom, protocol.JoinRoom{RoomID: c.cfg.RoomID, User: c.cfg.Profile})

		case <-redial:
			redial = nil
			c.dial(ctx)

		case in := <-c.inbound:
			if in.conn != c.conn {
				continue
			}
			if in.err != nil {
				slog.Info("disconnected", "room", c.cfg.RoomID, "error", in.err)
				c.hangup()
				redial = time.After(backoff)
				continue
			}
			if in.env.Type == protocol.EventRoomState {
				backoff = minBackoff
			}
			c.dispatch(in.env)

		case f := <-c.actions:
			f()

		case <-ticker.C:
			c.flushCursors()
		}
	}
}

func (c *Client) dial(ctx context.Context) {
	go func() {
		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		select {
		case c.dialed <- dialResult{conn: conn, err: err}:
		case <-c.stopped:
			if conn != nil {
				conn.Close()
			}
		}
	}()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		var in incoming
		if err != nil {
			in = incoming{conn: conn, err: err}
		} else {
			env, derr := protocol.Decode(frame)
			if derr != nil {
				slog.Debug("invalid frame", "error", derr)
				continue
			}
			in = incoming{conn: conn, env: env}
		}
		select {
		case c.inbound <- in:
		case <-c.stopped:
			return
		}
		if err != nil {
			return
		}
	}
}

// Drops the current connection. Room-scoped state is rebuilt by the next
// room-state.
func (c *Client) hangup() {
	if c.conn == nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
	c.conn = nil
	c.joined = false
}

func (c *Client) emit(t protocol.EventType, data any) {
	if c.conn == nil {
		return
	}
	if t != protocol.EventJoinRoom && !c.joined {
		return
	}
	frame, err := protocol.Encode(t, data)
	if err != nil {
		slog.Error("encode failed", "event", t, "error", err)
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		// The read loop reports the broken connection.
		slog.Warn("write failed", "event", t, "error", err)
		c.conn.Close()
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	switch env.Type {
	case protocol.EventRoomState:
		var state protocol.RoomState
		if !c.bind(env, &state) {
			return
		}
		c.joined = true
		c.recon.Reset(state.Shapes)
		c.users = make(map[string]model.User, len(state.Users))
		for _, u := range state.Users {
			c.users[u.ID] = u
		}
		c.cursors.Reset()
		c.batch.Drain()
		slog.Info("joined room", "room", c.cfg.RoomID, "shapes", len(state.Shapes), "users", len(state.Users))
		c.renderShapes()
		c.cfg.Renderer.RenderCursors(nil)

	case protocol.EventUserJoined:
		var user model.User
		if !c.bind(env, &user) {
			return
		}
		c.users[user.ID] = user
		c.cfg.Renderer.UserJoined(user)

	case protocol.EventUserLeft:
		var userID string
		if !c.bind(env, &userID) {
			return
		}
		delete(c.users, userID)
		c.batch.Remove(userID)
		if c.cursors.Drop(userID) {
			c.cfg.Renderer.RenderCursors(c.cursors.All())
		}
		c.cfg.Renderer.UserLeft(userID)

	case protocol.EventShapeAdded:
		var shape model.Shape
		if !c.bind(env, &shape) {
			return
		}
		if c.recon.Add(shape) {
			c.renderShapes()
		}

	case protocol.EventShapeUpdated:
		var msg protocol.ShapeUpdated
		if !c.bind(env, &msg) {
			return
		}
		if c.recon.Update(msg.ShapeID, msg.Updates) {
			c.renderShapes()
		}

	case protocol.EventShapeDeleted:
		var shapeID string
		if !c.bind(env, &shapeID) {
			return
		}
		if c.recon.Delete(shapeID) {
			c.renderShapes()
		}

	case protocol.EventCanvasCleared:
		c.recon.Clear()
		c.renderShapes()

	case protocol.EventCursorMove:
		var cur model.Cursor
		if !c.bind(env, &cur) || cur.UserID == "" {
			return
		}
		c.batch.Put(cur)

	default:
		slog.Debug("unexpected event", "event", env.Type)
	}
}

func (c *Client) bind(env protocol.Envelope, v any) bool {
	if err := env.Bind(v); err != nil {
		slog.Debug("bad payload", "event", env.Type, "error", err)
		return false
	}
	return true
}

func (c *Client) flushCursors() {
	if c.batch.Len() == 0 {
		return
	}
	c.cursors.Apply(c.batch.Drain())
	c.cfg.Renderer.RenderCursors(c.cursors.All())
}

func (c *Client) renderShapes() {
	var draft *model.Shape
	if d, ok := c.recon.Draft(); ok {
		draft = &d
	}
	c.cfg.Renderer.RenderShapes(c.recon.Shapes(), draft)
}

// Queues f on the event loop.
func (c *Client) post(f func()) bool {
	select {
	case c.actions <- f:
		return true
	case <-c.stopped:
		return false
	}
}

// Move reports the pointer position. While a shape is being drawn it
// stretches the draft; otherwise the position is broadcast, throttled.
func (c *Client) Move(x, y float64) {
	c.post(func() {
		if c.recon.Drawing() {
			if c.recon.Revise(x, y) {
				c.renderShapes()
			}
			return
		}
		c.throttle.Move(x, y)
	})
}

// BeginShape starts drawing a shape of kind t at (x, y). Cursor broadcast is
// off until the shape ends.
func (c *Client) BeginShape(t model.ShapeType, x, y float64) {
	c.post(func() {
		if t == model.ShapeText || !t.Valid() {
			return
		}
		c.throttle.SetSuppressed(true)
		c.recon.Begin(NewDraft(uuid.NewString(), t, x, y, c.cfg.Profile.Color))
		c.renderShapes()
	})
}

// EndShape commits the draft locally and sends it to the room.
func (c *Client) EndShape() {
	c.post(func() {
		c.throttle.SetSuppressed(false)
		shape, ok := c.recon.Commit()
		if !ok {
			return
		}
		c.renderShapes()
		c.emit(protocol.EventShapeAdded, protocol.ShapeAdded{RoomID: c.cfg.RoomID, Shape: shape})
	})
}

func (c *Client) CancelShape() {
	c.post(func() {
		c.throttle.SetSuppressed(false)
		c.recon.Cancel()
		c.renderShapes()
	})
}

func (c *Client) AddText(x, y float64, text string) {
	c.post(func() {
		if text == "" {
			return
		}
		shape := NewText(uuid.NewString(), x, y, text, c.cfg.Profile.Color)
		c.recon.Add(shape)
		c.renderShapes()
		c.emit(protocol.EventShapeAdded, protocol.ShapeAdded{RoomID: c.cfg.RoomID, Shape: shape})
	})
}

func (c *Client) UpdateShape(shapeID string, patch model.ShapePatch) {
	c.post(func() {
		if !c.recon.Update(shapeID, patch) {
			return
		}
		c.renderShapes()
		c.emit(protocol.EventShapeUpdated, protocol.ShapeUpdated{RoomID: c.cfg.RoomID, ShapeID: shapeID, Updates: patch})
	})
}

func (c *Client) Erase(shapeID string) {
	c.post(func() {
		if c.recon.Delete(shapeID) {
			c.renderShapes()
		}
		c.emit(protocol.EventShapeDeleted, protocol.ShapeDeleted{RoomID: c.cfg.RoomID, ShapeID: shapeID})
	})
}

func (c *Client) Clear() {
	c.post(func() {
		c.recon.Clear()
		c.renderShapes()
		c.emit(protocol.EventCanvasCleared, protocol.CanvasCleared{RoomID: c.cfg.RoomID})
	})
}

// View returns a copy of the client state as seen by the event loop.
func (c *Client) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	ok := c.post(func() {
		v := View{
			Shapes:  c.recon.Shapes(),
			Cursors: c.cursors.All(),
			Users:   make([]model.User, 0, len(c.users)),
		}
		if d, ok := c.recon.Draft(); ok {
			v.Draft = &d
		}
		for _, u := range c.users {
			v.Users = append(v.Users, u)
		}
		reply <- v
	})
	if !ok {
		return View{}, ErrStopped
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.stopped:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}
