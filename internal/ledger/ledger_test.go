package ledger

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/sketchroom/internal/db"
)

type fakeStore struct {
	events  []db.Event
	pruned  []time.Time
	failing bool
	mu      sync.Mutex
}

func (f *fakeStore) RecordEvents(events []db.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("disk full")
	}
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeStore) PruneEventsBefore(t time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned = append(f.pruned, t)
	return 0, nil
}

func (f *fakeStore) recorded() []db.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]db.Event, len(f.events))
	copy(out, f.events)
	return out
}

func TestServiceFlushesOnStop(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, Config{Interval: time.Hour, BatchSize: 100, QueueSize: 10, Retention: time.Hour})
	svc.Start()

	svc.Record(db.Event{RoomID: "r1", Kind: db.KindRoomOpened})
	svc.Record(db.Event{RoomID: "r1", Kind: db.KindUserJoined, ConnID: "a"})
	svc.Stop()

	events := store.recorded()
	require.Len(t, events, 2)
	assert.Equal(t, db.KindRoomOpened, events[0].Kind)
	assert.False(t, events[0].At.IsZero(), "Record stamps the event")
	assert.Len(t, store.pruned, 1, "prunes once at start")
}

func TestServiceFlushesOnTick(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, Config{Interval: 10 * time.Millisecond, BatchSize: 100, QueueSize: 10})
	svc.Start()
	defer svc.Stop()

	svc.Record(db.Event{RoomID: "r1", Kind: db.KindRoomOpened})

	assert.Eventually(t, func() bool { return len(store.recorded()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestServiceFlushesFullBatch(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, Config{Interval: time.Hour, BatchSize: 2, QueueSize: 10})
	svc.Start()
	defer svc.Stop()

	svc.Record(db.Event{RoomID: "r1", Kind: db.KindUserJoined})
	svc.Record(db.Event{RoomID: "r1", Kind: db.KindUserLeft})

	assert.Eventually(t, func() bool { return len(store.recorded()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestServiceDropsWhenQueueFull(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, Config{Interval: time.Hour, BatchSize: 100, QueueSize: 1})

	// Not started, so nothing drains the queue.
	svc.Record(db.Event{RoomID: "r1", Kind: db.KindUserJoined})
	svc.Record(db.Event{RoomID: "r1", Kind: db.KindUserJoined})
	svc.Record(db.Event{RoomID: "r1", Kind: db.KindUserJoined})

	assert.Equal(t, int64(2), svc.Dropped())
}

func TestServiceSurvivesStoreErrors(t *testing.T) {
	store := &fakeStore{failing: true}
	svc := New(store, Config{Interval: time.Hour, BatchSize: 1, QueueSize: 10})
	svc.Start()

	svc.Record(db.Event{RoomID: "r1", Kind: db.KindUserJoined})
	svc.Stop()

	assert.Empty(t, store.recorded())
}

func TestServiceWithDatabase(t *testing.T) {
	database, err := db.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer database.Close()

	svc := New(database, DefaultConfig())
	svc.Start()
	svc.Record(db.Event{RoomID: "r1", Kind: db.KindRoomOpened})
	svc.Record(db.Event{RoomID: "r1", Kind: db.KindUserJoined, ConnID: "a", Name: "Warm Deer"})
	svc.Stop()

	room, err := database.GetRoom("r1")
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, 1, room.Sessions)
	assert.Equal(t, 1, room.Joins)
}
