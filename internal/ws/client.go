package ws

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/manpreetbhatti/sketchroom/internal/ratelimit"
	"github.com/manpreetbhatti/sketchroom/internal/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendBufferSize = 512
)

// Options tunes per-connection limits.
type Options struct {
	MessagesPerSecond float64
	MessageBurst      int
	UpgradesPerSecond float64
	UpgradeBurst      int
}

func DefaultOptions() Options {
	return Options{
		MessagesPerSecond: 100,
		MessageBurst:      200,
		UpgradesPerSecond: 5,
		UpgradeBurst:      20,
	}
}

// Server accepts websocket connections and binds each to a Session.
type Server struct {
	store    *room.Store
	hub      *Hub
	recorder Recorder
	opts     Options
	upgrades *ratelimit.ClientLimiters
	upgrader websocket.Upgrader
}

func NewServer(store *room.Store, hub *Hub, recorder Recorder, opts Options) *Server {
	return &Server{
		store:    store,
		hub:      hub,
		recorder: recorder,
		opts:     opts,
		upgrades: ratelimit.NewClientLimiters(opts.UpgradesPerSecond, opts.UpgradeBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) Close() {
	s.upgrades.Stop()
}

// Client is one websocket connection. The read pump feeds its Session in
// arrival order; the write pump drains the send buffer.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	session *Session
	limiter *ratelimit.Limiter
}

func (c *Client) ID() string { return c.id }

// Send enqueues a frame without blocking.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrPeerClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close asks the write pump to send a close frame and release the socket.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}

func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !s.upgrades.Allow(host) {
		slog.Warn("upgrade rate limited", "remote", host)
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("upgrade error", "error", err)
		return
	}

	client := &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		limiter: ratelimit.NewLimiter(s.opts.MessagesPerSecond, s.opts.MessageBurst),
	}
	client.session = NewSession(client, s.store, s.hub, s.recorder)

	slog.Debug("client connected", "conn", client.id, "remote", conn.RemoteAddr().String())

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.session.Close()
		c.Close()
		slog.Debug("client disconnected", "conn", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error", "conn", c.id, "error", err)
			}
			c.conn.Close()
			return
		}

		switch decision, violations, warn := c.limiter.Check(); decision {
		case ratelimit.Drop:
			if warn {
				slog.Warn("rate limit exceeded", "conn", c.id, "room", c.session.Room(), "violations", violations)
			}
			continue
		case ratelimit.Disconnect:
			slog.Warn("disconnecting for excessive rate limit violations", "conn", c.id, "violations", violations)
			return
		}

		c.session.Handle(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
