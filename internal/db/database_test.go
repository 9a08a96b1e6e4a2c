package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "create database")
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDatabaseCreation(t *testing.T) {
	db := setupTestDB(t)
	require.NotNil(t, db)
}

func TestRecordEventsFoldsIntoRoom(t *testing.T) {
	db := setupTestDB(t)

	t0 := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{RoomID: "r1", Kind: KindRoomOpened, At: t0},
		{RoomID: "r1", Kind: KindUserJoined, ConnID: "a", Name: "Swift Fox", At: t0},
		{RoomID: "r1", Kind: KindUserJoined, ConnID: "b", Name: "Bold Owl", At: t0.Add(time.Second)},
		{RoomID: "r1", Kind: KindUserLeft, ConnID: "a", At: t0.Add(2 * time.Second)},
		{RoomID: "r1", Kind: KindRoomClosed, Shapes: 7, At: t0.Add(3 * time.Second)},
	}
	require.NoError(t, db.RecordEvents(events))

	room, err := db.GetRoom("r1")
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, 1, room.Sessions)
	assert.Equal(t, 2, room.Joins)
	assert.Equal(t, 7, room.PeakShapes)
	assert.Equal(t, t0, room.FirstSeen)
	assert.Equal(t, t0.Add(3*time.Second), room.LastActive)

	// A second lifetime of the same room id
	require.NoError(t, db.RecordEvents([]Event{
		{RoomID: "r1", Kind: KindRoomOpened, At: t0.Add(time.Hour)},
		{RoomID: "r1", Kind: KindRoomClosed, Shapes: 3, At: t0.Add(2 * time.Hour)},
	}))

	room, err = db.GetRoom("r1")
	require.NoError(t, err)
	assert.Equal(t, 2, room.Sessions)
	assert.Equal(t, 7, room.PeakShapes, "peak keeps the maximum")
	assert.Equal(t, t0, room.FirstSeen)
}

func TestGetMissingRoom(t *testing.T) {
	db := setupTestDB(t)

	room, err := db.GetRoom("non-existent")
	require.NoError(t, err)
	assert.Nil(t, room)
}

func TestListEventsNewestFirst(t *testing.T) {
	db := setupTestDB(t)

	now := time.Now()
	require.NoError(t, db.RecordEvents([]Event{
		{RoomID: "r1", Kind: KindRoomOpened, At: now},
		{RoomID: "r1", Kind: KindUserJoined, ConnID: "a", At: now},
		{RoomID: "r2", Kind: KindRoomOpened, At: now},
	}))

	events, err := db.ListEvents("r1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, KindUserJoined, events[0].Kind)
	assert.Equal(t, "a", events[0].ConnID)
	assert.Equal(t, KindRoomOpened, events[1].Kind)
}

func TestListRoomsPaging(t *testing.T) {
	db := setupTestDB(t)

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, db.RecordEvents([]Event{
			{RoomID: "room-" + string(rune('a'+i)), Kind: KindRoomOpened, At: base.Add(time.Duration(i) * time.Minute)},
		}))
	}

	rooms, err := db.ListRooms(10, 0)
	require.NoError(t, err)
	require.Len(t, rooms, 5)
	assert.Equal(t, "room-e", rooms[0].ID, "most recently active first")

	rooms, err = db.ListRooms(2, 0)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	rooms, err = db.ListRooms(2, 3)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
}

func TestPruneEventsBefore(t *testing.T) {
	db := setupTestDB(t)

	now := time.Now()
	require.NoError(t, db.RecordEvents([]Event{
		{RoomID: "r1", Kind: KindRoomOpened, At: now.Add(-48 * time.Hour)},
		{RoomID: "r1", Kind: KindRoomClosed, At: now.Add(-47 * time.Hour)},
		{RoomID: "r1", Kind: KindRoomOpened, At: now},
	}))

	n, err := db.PruneEventsBefore(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	events, err := db.ListEvents("r1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	room, err := db.GetRoom("r1")
	require.NoError(t, err)
	assert.NotNil(t, room, "pruning events keeps the room summary")
}

func TestDeleteRoom(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.RecordEvents([]Event{{RoomID: "r1", Kind: KindRoomOpened, At: time.Now()}}))
	require.NoError(t, db.DeleteRoom("r1"))

	room, err := db.GetRoom("r1")
	require.NoError(t, err)
	assert.Nil(t, room)

	events, err := db.ListEvents("r1", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)

	now := time.Now()
	require.NoError(t, db.RecordEvents([]Event{
		{RoomID: "a", Kind: KindRoomOpened, At: now},
		{RoomID: "a", Kind: KindUserJoined, At: now},
		{RoomID: "a", Kind: KindUserJoined, At: now},
		{RoomID: "b", Kind: KindRoomOpened, At: now},
		{RoomID: "b", Kind: KindUserJoined, At: now},
	}))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats["room_count"])
	assert.Equal(t, 5, stats["event_count"])
	assert.Equal(t, 3, stats["join_count"])
}

func TestRecordEmptyBatch(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.RecordEvents(nil))
}
