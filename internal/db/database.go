package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Database struct {
	db *sql.DB
}

// Room is the recorded history of one room id across all of its lifetimes.
type Room struct {
	ID         string    `json:"id"`
	FirstSeen  time.Time `json:"first_seen"`
	LastActive time.Time `json:"last_active"`
	Sessions   int       `json:"sessions"`
	Joins      int       `json:"joins"`
	PeakShapes int       `json:"peak_shapes"`
}

// Event kinds as stored in room_events.kind
const (
	KindRoomOpened = "room_opened"
	KindUserJoined = "user_joined"
	KindUserLeft   = "user_left"
	KindRoomClosed = "room_closed"
)

type Event struct {
	ID     int64     `json:"id"`
	RoomID string    `json:"room_id"`
	Kind   string    `json:"kind"`
	ConnID string    `json:"conn_id,omitempty"`
	Name   string    `json:"name,omitempty"`
	Shapes int       `json:"shapes"`
	At     time.Time `json:"at"`
}

func New(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	slog.Info("database initialized", "path", dbPath)
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		first_seen INTEGER NOT NULL,
		last_active INTEGER NOT NULL,
		sessions INTEGER NOT NULL DEFAULT 0,
		joins INTEGER NOT NULL DEFAULT 0,
		peak_shapes INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS room_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		conn_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		shapes INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_room_events_room_id ON room_events(room_id, id);
	CREATE INDEX IF NOT EXISTS idx_room_events_created_at ON room_events(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Event operations

// RecordEvents appends a batch of events and folds them into the per-room
// counters in a single transaction.
func (d *Database) RecordEvents(events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.Prepare(
		"INSERT INTO room_events (room_id, kind, conn_id, name, shapes, created_at) VALUES (?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	upsert, err := tx.Prepare(`
		INSERT INTO rooms (id, first_seen, last_active, sessions, joins, peak_shapes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_active = MAX(rooms.last_active, excluded.last_active),
			sessions = rooms.sessions + excluded.sessions,
			joins = rooms.joins + excluded.joins,
			peak_shapes = MAX(rooms.peak_shapes, excluded.peak_shapes)
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer upsert.Close()

	for _, ev := range events {
		at := ev.At.UnixMilli()
		if _, err := insert.Exec(ev.RoomID, ev.Kind, ev.ConnID, ev.Name, ev.Shapes, at); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		var sessions, joins, shapes int
		switch ev.Kind {
		case KindRoomOpened:
			sessions = 1
		case KindUserJoined:
			joins = 1
		case KindRoomClosed:
			shapes = ev.Shapes
		}
		if _, err := upsert.Exec(ev.RoomID, at, at, sessions, joins, shapes); err != nil {
			return fmt.Errorf("upsert room: %w", err)
		}
	}

	return tx.Commit()
}

// ListEvents returns a room's most recent events, newest first.
func (d *Database) ListEvents(roomID string, limit int) ([]Event, error) {
	rows, err := d.db.Query(`
		SELECT id, room_id, kind, conn_id, name, shapes, created_at
		FROM room_events
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var at int64
		if err := rows.Scan(&ev.ID, &ev.RoomID, &ev.Kind, &ev.ConnID, &ev.Name, &ev.Shapes, &at); err != nil {
			return nil, err
		}
		ev.At = time.UnixMilli(at).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// PruneEventsBefore deletes events older than t and returns how many went.
func (d *Database) PruneEventsBefore(t time.Time) (int64, error) {
	result, err := d.db.Exec("DELETE FROM room_events WHERE created_at < ?", t.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Room operations

func (d *Database) GetRoom(id string) (*Room, error) {
	row := d.db.QueryRow(
		"SELECT id, first_seen, last_active, sessions, joins, peak_shapes FROM rooms WHERE id = ?",
		id,
	)

	room, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (d *Database) ListRooms(limit, offset int) ([]Room, error) {
	rows, err := d.db.Query(
		"SELECT id, first_seen, last_active, sessions, joins, peak_shapes FROM rooms ORDER BY last_active DESC, id LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(s scanner) (*Room, error) {
	var room Room
	var firstSeen, lastActive int64
	if err := s.Scan(&room.ID, &firstSeen, &lastActive, &room.Sessions, &room.Joins, &room.PeakShapes); err != nil {
		return nil, err
	}
	room.FirstSeen = time.UnixMilli(firstSeen).UTC()
	room.LastActive = time.UnixMilli(lastActive).UTC()
	return &room, nil
}

func (d *Database) DeleteRoom(id string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM room_events WHERE room_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM rooms WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// Stats

func (d *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var roomCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM rooms").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["room_count"] = roomCount

	var eventCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM room_events").Scan(&eventCount); err != nil {
		return nil, err
	}
	stats["event_count"] = eventCount

	var joinCount int
	if err := d.db.QueryRow("SELECT COALESCE(SUM(joins), 0) FROM rooms").Scan(&joinCount); err != nil {
		return nil, err
	}
	stats["join_count"] = joinCount

	return stats, nil
}
