package room

import (
	"sync"

	"github.com/manpreetbhatti/sketchroom/internal/model"
)

// A collaborative drawing session
type Room struct {
	ID     string
	users  map[string]model.User
	shapes []model.Shape
	ids    map[string]struct{}
	closed bool
	mu     sync.RWMutex
}

// Creates a new empty room with the given ID
func NewRoom(id string) *Room {
	return &Room{
		ID:     id,
		users:  make(map[string]model.User),
		shapes: make([]model.Shape, 0),
		ids:    make(map[string]struct{}),
	}
}

// Snapshot is a point-in-time copy of a room, safe to hand to other goroutines.
type Snapshot struct {
	Shapes []model.Shape
	Users  []model.User
}

// Returns a copy of the room's shapes and members
func (r *Room) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() Snapshot {
	shapes := make([]model.Shape, len(r.shapes))
	for i, s := range r.shapes {
		shapes[i] = s.Clone()
	}
	users := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	return Snapshot{Shapes: shapes, Users: users}
}

// Appends a shape unless its id is already present
func (r *Room) AddShape(shape model.Shape) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if _, dup := r.ids[shape.ID]; dup {
		return false
	}
	r.shapes = append(r.shapes, shape.Clone())
	r.ids[shape.ID] = struct{}{}
	return true
}

// Removes the shape with the given id, if any
func (r *Room) RemoveShape(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if _, ok := r.ids[id]; !ok {
		return false
	}
	for i, s := range r.shapes {
		if s.ID == id {
			r.shapes = append(r.shapes[:i], r.shapes[i+1:]...)
			break
		}
	}
	delete(r.ids, id)
	return true
}

// Shallow-merges a patch into the shape with the given id. A patch that
// does not decode against the shape, or leaves it invalid, is dropped.
func (r *Room) PatchShape(id string, patch model.ShapePatch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if _, ok := r.ids[id]; !ok {
		return false
	}
	for i, s := range r.shapes {
		if s.ID != id {
			continue
		}
		merged, err := s.Merge(patch)
		if err != nil || merged.Validate() != nil {
			return false
		}
		r.shapes[i] = merged
		return true
	}
	return false
}

// Removes all shapes
func (r *Room) ClearShapes() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.shapes = make([]model.Shape, 0)
	r.ids = make(map[string]struct{})
	return true
}

func (r *Room) User(connID string) (model.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[connID]
	return u, ok
}

// Counts returns the number of members and shapes.
func (r *Room) Counts() (users, shapes int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users), len(r.shapes)
}
