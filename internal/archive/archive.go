// Package archive keeps a local sqlite record of everything the session
// saw: timeline entries, submitted results and connection transitions.
// It exists for post-incident review; the live session never reads it.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/warboard/warboard/internal/api"
)

type Service struct {
	db *sql.DB
}

// NewService opens (or creates) the archive database at dbPath.
func NewService(dbPath string) (*Service, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Service{db: db}, nil
}

// Close closes the underlying database.
func (s *Service) Close() error {
	return s.db.Close()
}

// SaveEntry records one timeline entry. Re-archiving the same row for the
// same incident is a no-op.
func (s *Service) SaveEntry(incidentID string, entry api.TimelineEntry) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO timeline_entries
			(incident_id, db_id, business_id, origin, kind, round_id, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		incidentID, entry.DBID, entry.BusinessID, entry.Origin, entry.Kind,
		entry.RoundID, string(entry.RawPayload), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to archive entry: %w", err)
	}
	return nil
}

// SaveResult records a submitted execution result.
func (s *Service) SaveResult(incidentID, taskKey, result, status string) error {
	_, err := s.db.Exec(`
		INSERT INTO execution_results (incident_id, task_key, result, status)
		VALUES (?, ?, ?, ?)`,
		incidentID, taskKey, result, status,
	)
	if err != nil {
		return fmt.Errorf("failed to archive execution result: %w", err)
	}
	return nil
}

// SaveTransition records one connection state change.
func (s *Service) SaveTransition(incidentID, from, to string) error {
	_, err := s.db.Exec(`
		INSERT INTO connection_events (incident_id, from_state, to_state)
		VALUES (?, ?, ?)`,
		incidentID, from, to,
	)
	if err != nil {
		return fmt.Errorf("failed to archive connection event: %w", err)
	}
	return nil
}

// ArchivedEntry is one row from the timeline archive.
type ArchivedEntry struct {
	DBID       int64
	BusinessID string
	Origin     string
	Kind       string
	RoundID    int
	Content    string
	CreatedAt  time.Time
}

// Entries returns the archived timeline for one incident in row-id order.
func (s *Service) Entries(incidentID string) ([]ArchivedEntry, error) {
	rows, err := s.db.Query(`
		SELECT db_id, COALESCE(business_id, ''), COALESCE(origin, ''), kind,
		       round_id, COALESCE(content, ''), COALESCE(created_at, CURRENT_TIMESTAMP)
		FROM timeline_entries
		WHERE incident_id = ?
		ORDER BY db_id ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	var out []ArchivedEntry
	for rows.Next() {
		var e ArchivedEntry
		if err := rows.Scan(&e.DBID, &e.BusinessID, &e.Origin, &e.Kind, &e.RoundID, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archive row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResultCount returns how many results were submitted for one incident.
func (s *Service) ResultCount(incidentID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM execution_results WHERE incident_id = ?`, incidentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}

// Transitions returns the connection history for one incident, oldest first.
func (s *Service) Transitions(incidentID string) ([][2]string, error) {
	rows, err := s.db.Query(`
		SELECT from_state, to_state FROM connection_events
		WHERE incident_id = ? ORDER BY id ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		out = append(out, [2]string{from, to})
	}
	return out, rows.Err()
}
