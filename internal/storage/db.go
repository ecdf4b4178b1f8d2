package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS wakeup_reasons (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	reason TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_wakeup_ts ON wakeup_reasons(timestamp);

CREATE TABLE IF NOT EXISTS lowpower_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	kind TEXT NOT NULL,
	text TEXT NOT NULL,
	truncated INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_snapshot_ts ON lowpower_snapshots(kind, timestamp);
`

// Snapshot kinds.
const (
	KindPlatform  = "platform"
	KindSubsystem = "subsystem"
)

// WakeupReason is a merged wakeup reason string recorded after a resume.
type WakeupReason struct {
	Timestamp int64  `json:"timestamp"`
	Reason    string `json:"reason"`
}

// Snapshot is a formatted low-power stats buffer captured at Timestamp.
type Snapshot struct {
	Timestamp int64  `json:"timestamp"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
}

// DB wraps a SQLite database for wakeup and low-power history.
type DB struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertWakeupReason inserts a wakeup reason.
func (d *DB) InsertWakeupReason(r WakeupReason) error {
	_, err := d.db.Exec(
		"INSERT INTO wakeup_reasons (timestamp, reason) VALUES (?, ?)",
		r.Timestamp, r.Reason,
	)
	return err
}

// LatestWakeupReason returns the most recent wakeup reason, or nil if none.
func (d *DB) LatestWakeupReason() (*WakeupReason, error) {
	row := d.db.QueryRow("SELECT timestamp, reason FROM wakeup_reasons ORDER BY timestamp DESC, id DESC LIMIT 1")
	var r WakeupReason
	err := row.Scan(&r.Timestamp, &r.Reason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// WakeupReasonsInRange returns wakeup reasons within the given time range.
func (d *DB) WakeupReasonsInRange(from, to int64) ([]WakeupReason, error) {
	rows, err := d.db.Query(
		"SELECT timestamp, reason FROM wakeup_reasons WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp, id",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reasons []WakeupReason
	for rows.Next() {
		var r WakeupReason
		if err := rows.Scan(&r.Timestamp, &r.Reason); err != nil {
			return nil, err
		}
		reasons = append(reasons, r)
	}
	return reasons, rows.Err()
}

// InsertSnapshot inserts a low-power stats snapshot.
func (d *DB) InsertSnapshot(s Snapshot) error {
	truncated := 0
	if s.Truncated {
		truncated = 1
	}
	_, err := d.db.Exec(
		"INSERT INTO lowpower_snapshots (timestamp, kind, text, truncated) VALUES (?, ?, ?, ?)",
		s.Timestamp, s.Kind, s.Text, truncated,
	)
	return err
}

// LatestSnapshot returns the most recent snapshot of the given kind, or nil if none.
func (d *DB) LatestSnapshot(kind string) (*Snapshot, error) {
	row := d.db.QueryRow(
		"SELECT timestamp, kind, text, truncated FROM lowpower_snapshots WHERE kind = ? ORDER BY timestamp DESC, id DESC LIMIT 1",
		kind,
	)
	var s Snapshot
	var truncated int
	err := row.Scan(&s.Timestamp, &s.Kind, &s.Text, &truncated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Truncated = truncated != 0
	return &s, nil
}

// SnapshotsInRange returns snapshots of the given kind within the time range.
func (d *DB) SnapshotsInRange(kind string, from, to int64) ([]Snapshot, error) {
	rows, err := d.db.Query(
		"SELECT timestamp, kind, text, truncated FROM lowpower_snapshots WHERE kind = ? AND timestamp >= ? AND timestamp <= ? ORDER BY timestamp, id",
		kind, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		var truncated int
		if err := rows.Scan(&s.Timestamp, &s.Kind, &s.Text, &truncated); err != nil {
			return nil, err
		}
		s.Truncated = truncated != 0
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}
