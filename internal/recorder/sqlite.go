package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT NOT NULL,
			timestamp  INTEGER NOT NULL,
			lt_balance REAL,
			ac_balance REAL,
			low        INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(timestamp)`,

		`CREATE TABLE IF NOT EXISTS deliveries (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id    TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			channel   TEXT NOT NULL,
			status    TEXT NOT NULL,
			attempts  INTEGER,
			detail    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_run ON deliveries(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordReading(evt *ReadingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO readings
		(run_id, timestamp, lt_balance, ac_balance, low)
		VALUES (?,?,?,?,?)`,
		evt.RunID, unixOrNow(evt.At), evt.Light, evt.AC, evt.Low,
	)
	return err
}

func (r *SQLiteRecorder) RecordDelivery(evt *DeliveryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO deliveries
		(run_id, timestamp, channel, status, attempts, detail)
		VALUES (?,?,?,?,?,?)`,
		evt.RunID, unixOrNow(evt.At), evt.Channel, evt.Status, evt.Attempts, evt.Detail,
	)
	return err
}

// Readings returns up to limit readings, newest first.
func (r *SQLiteRecorder) Readings(limit int) ([]ReadingEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT run_id, timestamp, lt_balance, ac_balance, low
		FROM readings ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReadingEvent
	for rows.Next() {
		var (
			evt ReadingEvent
			ts  int64
		)
		if err := rows.Scan(&evt.RunID, &ts, &evt.Light, &evt.AC, &evt.Low); err != nil {
			return nil, err
		}
		evt.At = time.Unix(ts, 0)
		out = append(out, evt)
	}
	return out, rows.Err()
}

// Deliveries returns every delivery recorded for runID in insertion order.
func (r *SQLiteRecorder) Deliveries(runID string) ([]DeliveryEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT run_id, timestamp, channel, status, attempts, detail
		FROM deliveries WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveryEvent
	for rows.Next() {
		var (
			evt DeliveryEvent
			ts  int64
		)
		if err := rows.Scan(&evt.RunID, &ts, &evt.Channel, &evt.Status, &evt.Attempts, &evt.Detail); err != nil {
			return nil, err
		}
		evt.At = time.Unix(ts, 0)
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func unixOrNow(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}
