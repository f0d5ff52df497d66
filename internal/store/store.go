// Package store persists per-room game state, roster state, and the
// single-slot alarm over SQLite. Each room actor is the sole writer for its
// rows; actor single-threading is what keeps read-modify-persist race-free.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dicee/internal/domain"
)

// ErrNotFound is returned when no row exists for a room code.
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS games (
    room_code  TEXT PRIMARY KEY,
    state      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rooms (
    room_code  TEXT PRIMARY KEY,
    state      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

-- One row per room: scheduling a new alarm replaces the previous one. The
-- primary key is the single-slot invariant.
CREATE TABLE IF NOT EXISTS alarms (
    room_code TEXT PRIMARY KEY,
    kind      TEXT NOT NULL,
    target_id TEXT NOT NULL DEFAULT '',
    due_at    INTEGER NOT NULL
);
`

// AlarmKind identifies what a pending alarm should do when it fires.
type AlarmKind string

const (
	AlarmGameStart   AlarmKind = "game_start"
	AlarmAFKWarning  AlarmKind = "afk_warning"
	AlarmAFKTimeout  AlarmKind = "afk_timeout"
	AlarmRoomCleanup AlarmKind = "room_cleanup"
)

// Alarm is the single pending-timer descriptor for one room actor.
type Alarm struct {
	RoomCode string
	Kind     AlarmKind
	TargetID string
	DueAt    time.Time
}

// Store is the durable backing for room actors.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at path and applies the schema. WAL keeps
// concurrent room actors from serializing on each other's writes.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveGame persists the full game snapshot for a room.
func (s *Store) SaveGame(ctx context.Context, g *domain.GameState) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal game state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO games (room_code, state, updated_at) VALUES (?, ?, ?)
ON CONFLICT(room_code) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		g.RoomCode, string(data), toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("save game %s: %w", g.RoomCode, err)
	}
	return nil
}

// LoadGame restores the game snapshot for a room.
func (s *Store) LoadGame(ctx context.Context, roomCode string) (*domain.GameState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM games WHERE room_code = ?`, roomCode).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", roomCode, err)
	}

	var g domain.GameState
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, fmt.Errorf("unmarshal game state %s: %w", roomCode, err)
	}
	return &g, nil
}

// DeleteGame removes the game snapshot for a room.
func (s *Store) DeleteGame(ctx context.Context, roomCode string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE room_code = ?`, roomCode); err != nil {
		return fmt.Errorf("delete game %s: %w", roomCode, err)
	}
	return nil
}

// SaveRoom persists the roster snapshot for a room.
func (s *Store) SaveRoom(ctx context.Context, r *domain.RoomState) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal room state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO rooms (room_code, state, updated_at) VALUES (?, ?, ?)
ON CONFLICT(room_code) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		r.Code, string(data), toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("save room %s: %w", r.Code, err)
	}
	return nil
}

// LoadRoom restores the roster snapshot for a room.
func (s *Store) LoadRoom(ctx context.Context, roomCode string) (*domain.RoomState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM rooms WHERE room_code = ?`, roomCode).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomCode, err)
	}

	var r domain.RoomState
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("unmarshal room state %s: %w", roomCode, err)
	}
	return &r, nil
}

// SetAlarm schedules the room's alarm, replacing any pending one.
func (s *Store) SetAlarm(ctx context.Context, a Alarm) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO alarms (room_code, kind, target_id, due_at) VALUES (?, ?, ?, ?)
ON CONFLICT(room_code) DO UPDATE SET kind = excluded.kind, target_id = excluded.target_id, due_at = excluded.due_at`,
		a.RoomCode, string(a.Kind), a.TargetID, toMillis(a.DueAt))
	if err != nil {
		return fmt.Errorf("set alarm %s: %w", a.RoomCode, err)
	}
	return nil
}

// GetAlarm returns the pending alarm for a room, or ErrNotFound.
func (s *Store) GetAlarm(ctx context.Context, roomCode string) (Alarm, error) {
	var (
		kind   string
		target string
		dueAt  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, target_id, due_at FROM alarms WHERE room_code = ?`, roomCode).
		Scan(&kind, &target, &dueAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Alarm{}, ErrNotFound
	}
	if err != nil {
		return Alarm{}, fmt.Errorf("get alarm %s: %w", roomCode, err)
	}
	return Alarm{
		RoomCode: roomCode,
		Kind:     AlarmKind(kind),
		TargetID: target,
		DueAt:    fromMillis(dueAt),
	}, nil
}

// ClearAlarm cancels the room's pending alarm, if any.
func (s *Store) ClearAlarm(ctx context.Context, roomCode string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE room_code = ?`, roomCode); err != nil {
		return fmt.Errorf("clear alarm %s: %w", roomCode, err)
	}
	return nil
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
