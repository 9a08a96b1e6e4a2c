package room

import (
	"sort"
	"sync"

	"github.com/manpreetbhatti/sketchroom/internal/model"
)

// Store maps room ids to live rooms. Rooms are created by the first join and
// dropped as soon as their last member leaves.
type Store struct {
	rooms map[string]*Room
	mu    sync.RWMutex
}

func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*Room),
	}
}

// Info summarizes a live room.
type Info struct {
	ID     string `json:"id"`
	Users  int    `json:"users"`
	Shapes int    `json:"shapes"`
}

// Ensure returns the room with the given id, creating an empty one if needed.
func (s *Store) Ensure(roomID string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(roomID)
}

func (s *Store) ensureLocked(roomID string) *Room {
	r, ok := s.rooms[roomID]
	if !ok {
		r = NewRoom(roomID)
		s.rooms[roomID] = r
	}
	return r
}

func (s *Store) get(roomID string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	return r, ok
}

// Join adds a member bound to connID and returns the assigned user together
// with the room state the member starts from.
func (s *Store) Join(roomID, connID string, profile model.Profile) (model.User, Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.ensureLocked(roomID)
	user := profile.Assign(connID)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[connID] = user
	return user, r.snapshotLocked()
}

// Leave removes the member and reports whether the room is now empty, in
// which case it has already been dropped. Leaving an unknown room reports true.
func (s *Store) Leave(roomID, connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, connID)
	if len(r.users) > 0 {
		return false
	}
	r.closed = true
	delete(s.rooms, roomID)
	return true
}

// AppendShape is a no-op when the room is gone or the id is taken.
func (s *Store) AppendShape(roomID string, shape model.Shape) bool {
	r, ok := s.get(roomID)
	if !ok {
		return false
	}
	return r.AddShape(shape)
}

func (s *Store) DeleteShape(roomID, shapeID string) bool {
	r, ok := s.get(roomID)
	if !ok {
		return false
	}
	return r.RemoveShape(shapeID)
}

func (s *Store) UpdateShape(roomID, shapeID string, patch model.ShapePatch) bool {
	r, ok := s.get(roomID)
	if !ok {
		return false
	}
	return r.PatchShape(shapeID, patch)
}

func (s *Store) Clear(roomID string) bool {
	r, ok := s.get(roomID)
	if !ok {
		return false
	}
	return r.ClearShapes()
}

// User looks up a member of a live room.
func (s *Store) User(roomID, connID string) (model.User, bool) {
	r, ok := s.get(roomID)
	if !ok {
		return model.User{}, false
	}
	return r.User(connID)
}

func (s *Store) Snapshot(roomID string) (Snapshot, bool) {
	r, ok := s.get(roomID)
	if !ok {
		return Snapshot{}, false
	}
	return r.Snapshot(), true
}

// Counts returns the member and shape counts of a live room.
func (s *Store) Counts(roomID string) (users, shapes int, ok bool) {
	r, ok := s.get(roomID)
	if !ok {
		return 0, 0, false
	}
	users, shapes = r.Counts()
	return users, shapes, true
}

func (s *Store) Exists(roomID string) bool {
	_, ok := s.get(roomID)
	return ok
}

// Returns the live rooms ordered by id
func (s *Store) Rooms() []Info {
	s.mu.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	infos := make([]Info, 0, len(rooms))
	for _, r := range rooms {
		users, shapes := r.Counts()
		infos = append(infos, Info{ID: r.ID, Users: users, Shapes: shapes})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Stats returns the number of live rooms and members across them.
func (s *Store) Stats() (rooms, users int) {
	for _, info := range s.Rooms() {
		rooms++
		users += info.Users
	}
	return rooms, users
}
