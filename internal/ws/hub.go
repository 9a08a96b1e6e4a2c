package ws

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrPeerClosed     = errors.New("peer closed")
)

// Peer is one connection as seen by the hub.
type Peer interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// The subscriber set of one room
type channel struct {
	members map[string]Peer
	closed  bool
	mu      sync.Mutex
}

// Hub fans frames out to the members of a room. Each room has its own lock,
// so rooms never contend with each other and a frame published by one
// sender is enqueued at every peer before that sender's next frame.
type Hub struct {
	rooms map[string]*channel
	mu    sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]*channel),
	}
}

// Returns the room's channel locked, or nil when it does not exist and
// create is false. A channel that was retired while we waited is skipped.
func (h *Hub) acquire(roomID string, create bool) *channel {
	for {
		h.mu.Lock()
		ch, ok := h.rooms[roomID]
		if !ok {
			if !create {
				h.mu.Unlock()
				return nil
			}
			ch = &channel{members: make(map[string]Peer)}
			h.rooms[roomID] = ch
		}
		h.mu.Unlock()

		ch.mu.Lock()
		if !ch.closed {
			return ch
		}
		ch.mu.Unlock()
	}
}

// Must be called with ch locked.
func (h *Hub) retire(roomID string, ch *channel) {
	ch.closed = true
	h.mu.Lock()
	if h.rooms[roomID] == ch {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()
}

// Subscribe adds p to the room. When welcome is non-nil it is evaluated and
// its frame sent to p before p becomes visible to other publishers, so p
// never misses a frame that is not already reflected in its welcome. When
// the welcome cannot be delivered, rollback runs before the room is released.
func (h *Hub) Subscribe(roomID string, p Peer, welcome func() ([]byte, error), rollback func()) error {
	ch := h.acquire(roomID, true)
	defer ch.mu.Unlock()

	if welcome != nil {
		frame, err := welcome()
		if err == nil {
			err = p.Send(frame)
		}
		if err != nil {
			if rollback != nil {
				rollback()
			}
			if len(ch.members) == 0 {
				h.retire(roomID, ch)
			}
			return err
		}
	}

	ch.members[p.ID()] = p
	return nil
}

// Unsubscribe removes the peer and, when farewell returns a frame, delivers
// it to the members that remain. farewell runs even if the room has no
// subscribers left. Returns the number of remaining members.
func (h *Hub) Unsubscribe(roomID, peerID string, farewell func() []byte) int {
	ch := h.acquire(roomID, false)
	if ch == nil {
		if farewell != nil {
			farewell()
		}
		return 0
	}
	defer ch.mu.Unlock()

	delete(ch.members, peerID)

	if farewell != nil {
		if frame := farewell(); frame != nil {
			h.fanout(roomID, ch, peerID, frame)
		}
	}

	remaining := len(ch.members)
	if remaining == 0 {
		h.retire(roomID, ch)
	}
	return remaining
}

// Publish runs apply while holding the room and delivers the frame it
// returns to every member except excludeID. A nil frame publishes nothing.
// Returns the number of peers the frame was enqueued for.
func (h *Hub) Publish(roomID, excludeID string, apply func() []byte) int {
	ch := h.acquire(roomID, false)
	if ch == nil {
		return 0
	}
	defer ch.mu.Unlock()

	frame := apply()
	if frame == nil {
		return 0
	}
	return h.fanout(roomID, ch, excludeID, frame)
}

// Broadcast delivers data to every member of the room except excludeID.
func (h *Hub) Broadcast(roomID, excludeID string, data []byte) int {
	return h.Publish(roomID, excludeID, func() []byte { return data })
}

// Must be called with ch locked. Peers that cannot take the frame are
// evicted and closed; their own cleanup runs when their read loop exits.
func (h *Hub) fanout(roomID string, ch *channel, excludeID string, frame []byte) int {
	delivered := 0
	for id, p := range ch.members {
		if id == excludeID {
			continue
		}
		if err := p.Send(frame); err != nil {
			slog.Warn("dropping slow peer", "room", roomID, "conn", id, "error", err)
			delete(ch.members, id)
			go p.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// Members returns the number of subscribers in a room.
func (h *Hub) Members(roomID string) int {
	ch := h.acquire(roomID, false)
	if ch == nil {
		return 0
	}
	defer ch.mu.Unlock()
	return len(ch.members)
}

func (h *Hub) Stats() (rooms, peers int) {
	h.mu.Lock()
	channels := make([]*channel, 0, len(h.rooms))
	for _, ch := range h.rooms {
		channels = append(channels, ch)
	}
	h.mu.Unlock()

	for _, ch := range channels {
		ch.mu.Lock()
		if !ch.closed && len(ch.members) > 0 {
			rooms++
			peers += len(ch.members)
		}
		ch.mu.Unlock()
	}
	return rooms, peers
}
