// Package history keeps the totals of every monitor cycle in a sqlite database.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/user/conn-monitor/internal/connmon"
)

// Store persists cycle reports.
type Store struct {
	db        *sql.DB
	retention time.Duration
}

// TotalRecord is one persisted process/port total.
type TotalRecord struct {
	RecordedAt time.Time
	Protocol   connmon.Protocol
	Process    string
	Port       uint16
	Count      int
}

// Open opens or creates the history database. Rows older than retention are
// pruned on every write; zero keeps everything.
func Open(path string, retention time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// One writer; the monitor never records concurrently.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &Store{db: db, retention: retention}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cycles (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at  INTEGER NOT NULL,
		protocol     TEXT NOT NULL,
		processes    INTEGER NOT NULL,
		connections  INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS totals (
		cycle_id     INTEGER NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
		process      TEXT NOT NULL,
		port         INTEGER NOT NULL,
		count        INTEGER NOT NULL
	);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_cycles_recorded_at ON cycles(recorded_at);",
		"CREATE INDEX IF NOT EXISTS idx_totals_cycle ON totals(cycle_id);",
		"CREATE INDEX IF NOT EXISTS idx_totals_process ON totals(process, port);",
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Record stores one report. It implements connmon.ReportSink.
func (s *Store) Record(at time.Time, proto connmon.Protocol, report connmon.Report) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback()

	connections := 0
	for _, g := range report.Groups {
		connections += len(g.Conns)
	}

	res, err := tx.Exec(`INSERT INTO cycles (recorded_at, protocol, processes, connections) VALUES (?, ?, ?, ?)`,
		at.Unix(), string(proto), len(report.Groups), connections)
	if err != nil {
		return fmt.Errorf("failed to insert cycle: %w", err)
	}
	cycleID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read cycle id: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO totals (cycle_id, process, port, count) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare totals insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range report.Totals {
		for _, pc := range t.Ports {
			if _, err := stmt.Exec(cycleID, t.Process, pc.Port, pc.Count); err != nil {
				return fmt.Errorf("failed to insert total: %w", err)
			}
		}
	}

	if s.retention > 0 {
		cutoff := at.Add(-s.retention).Unix()
		if _, err := tx.Exec(`DELETE FROM totals WHERE cycle_id IN (SELECT id FROM cycles WHERE recorded_at < ?)`, cutoff); err != nil {
			return fmt.Errorf("failed to prune totals: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM cycles WHERE recorded_at < ?`, cutoff); err != nil {
			return fmt.Errorf("failed to prune cycles: %w", err)
		}
	}

	return tx.Commit()
}

// Totals returns the totals recorded at or after since, oldest first.
func (s *Store) Totals(since time.Time) ([]TotalRecord, error) {
	rows, err := s.db.Query(`
		SELECT c.recorded_at, c.protocol, t.process, t.port, t.count
		FROM totals t JOIN cycles c ON c.id = t.cycle_id
		WHERE c.recorded_at >= ?
		ORDER BY c.recorded_at, c.id, t.rowid`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer rows.Close()

	var out []TotalRecord
	for rows.Next() {
		var (
			recordedAt int64
			proto      string
			rec        TotalRecord
		)
		if err := rows.Scan(&recordedAt, &proto, &rec.Process, &rec.Port, &rec.Count); err != nil {
			return nil, fmt.Errorf("failed to scan total: %w", err)
		}
		rec.RecordedAt = time.Unix(recordedAt, 0)
		rec.Protocol = connmon.Protocol(proto)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Cycles returns the number of cycles currently stored.
func (s *Store) Cycles() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM cycles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cycles: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
