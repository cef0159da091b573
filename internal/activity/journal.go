// Package activity keeps a DuckDB journal of review actions.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog/log"

	"github.com/rosy-tax/reviewer/internal/models"
)

var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS event_seq`,
	`CREATE TABLE IF NOT EXISTS events (
		seq        BIGINT DEFAULT nextval('event_seq'),
		session_id VARCHAR NOT NULL,
		kind       VARCHAR NOT NULL,
		ok         BOOLEAN NOT NULL,
		status     VARCHAR,
		created_at TIMESTAMP NOT NULL
	)`,
}

// Journal appends events to a DuckDB table. An empty path keeps the journal
// in memory.
type Journal struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the journal database at dbPath.
func Open(dbPath string) (*Journal, error) {
	connector, err := duckdb.NewConnector(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create events table: %w", err)
		}
	}

	log.Debug().Str("path", dbPath).Msg("activity journal opened")
	return &Journal{db: db, dbPath: dbPath}, nil
}

// Record appends one event.
func (j *Journal) Record(ctx context.Context, ev models.Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (session_id, kind, ok, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.SessionID, string(ev.Kind), ev.OK, ev.Status, ev.At.UTC())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.Event, error) {
	return j.query(ctx,
		`SELECT session_id, kind, ok, status, created_at FROM events ORDER BY seq DESC LIMIT ?`, limit)
}

// ForSession returns up to limit events of one session, newest first.
func (j *Journal) ForSession(ctx context.Context, sessionID string, limit int) ([]models.Event, error) {
	return j.query(ctx,
		`SELECT session_id, kind, ok, status, created_at FROM events WHERE session_id = ? ORDER BY seq DESC LIMIT ?`,
		sessionID, limit)
}

func (j *Journal) query(ctx context.Context, q string, args ...any) ([]models.Event, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]models.Event, 0)
	for rows.Next() {
		var (
			ev     models.Event
			kind   string
			status sql.NullString
		)
		if err := rows.Scan(&ev.SessionID, &kind, &ev.OK, &status, &ev.At); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = models.EventKind(kind)
		ev.Status = status.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
