/**
 * PostgreSQL Client for the MRZ Worker
 *
 * Persists one row per dispatched scan outcome in mrz.scan_results.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/adverant/nexus/mrz-worker/internal/mrz"
)

// ErrNotFound is returned when no outcome exists for a frame
var ErrNotFound = errors.New("scan outcome not found")

// Outcome kinds as stored
const (
	OutcomeMatch   = "match"
	OutcomeNoMatch = "no_match"
	OutcomeError   = "error"
)

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS mrz;

CREATE TABLE IF NOT EXISTS mrz.scan_results (
	id              UUID PRIMARY KEY,
	frame_id        TEXT NOT NULL UNIQUE,
	session_id      TEXT,
	outcome         TEXT NOT NULL CHECK (outcome IN ('match', 'no_match', 'error')),
	format          TEXT,
	record          JSONB,
	derived_fields  TEXT[],
	error_code      TEXT,
	error_message   TEXT,
	error_details   JSONB,
	elapsed_ms      BIGINT NOT NULL,
	width           INTEGER,
	height          INTEGER,
	rotation        INTEGER,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS scan_results_session_idx ON mrz.scan_results (session_id, created_at);
`

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// ScanOutcome is one persisted scan outcome
type ScanOutcome struct {
	ID           string
	FrameID      string
	SessionID    string
	Outcome      string
	Format       string
	Record       *mrz.Record
	ErrorCode    string
	ErrorMessage string
	ErrorDetails map[string]interface{}
	ElapsedMs    int64
	Width        int
	Height       int
	Rotation     int
	CreatedAt    time.Time
}

// NewPostgresClient creates a new PostgreSQL client and makes sure the
// schema exists
func NewPostgresClient(ctx context.Context, databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &PostgresClient{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresClient) ensureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveOutcome stores an outcome. A second outcome for the same frame (a
// retried still-image job) replaces the first.
func (p *PostgresClient) SaveOutcome(ctx context.Context, o *ScanOutcome) (string, error) {
	if o.FrameID == "" {
		return "", fmt.Errorf("frame ID is required")
	}
	switch o.Outcome {
	case OutcomeMatch, OutcomeNoMatch, OutcomeError:
	default:
		return "", fmt.Errorf("unknown outcome %q", o.Outcome)
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}

	var recordJSON, detailsJSON []byte
	var derived []string
	var err error
	if o.Record != nil {
		if recordJSON, err = json.Marshal(o.Record); err != nil {
			return "", fmt.Errorf("failed to marshal record: %w", err)
		}
		derived = o.Record.DerivedFields()
	}
	if o.ErrorDetails != nil {
		if detailsJSON, err = json.Marshal(o.ErrorDetails); err != nil {
			return "", fmt.Errorf("failed to marshal error details: %w", err)
		}
	}

	query := `
		INSERT INTO mrz.scan_results (
			id, frame_id, session_id, outcome, format,
			record, derived_fields, error_code, error_message, error_details,
			elapsed_ms, width, height, rotation, created_at
		) VALUES (
			$1::uuid, $2, NULLIF($3, ''), $4, NULLIF($5, ''),
			$6::jsonb, $7, NULLIF($8, ''), NULLIF($9, ''), $10::jsonb,
			$11, $12, $13, $14, NOW()
		)
		ON CONFLICT (frame_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			format = EXCLUDED.format,
			record = EXCLUDED.record,
			derived_fields = EXCLUDED.derived_fields,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			error_details = EXCLUDED.error_details,
			elapsed_ms = EXCLUDED.elapsed_ms,
			created_at = NOW()
		RETURNING id
	`

	var id string
	err = p.db.QueryRowContext(ctx, query,
		o.ID,
		o.FrameID,
		o.SessionID,
		o.Outcome,
		o.Format,
		nullJSON(recordJSON),
		pq.Array(derived),
		o.ErrorCode,
		o.ErrorMessage,
		nullJSON(detailsJSON),
		o.ElapsedMs,
		o.Width,
		o.Height,
		o.Rotation,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to save outcome (frame=%s, outcome=%s): %w", o.FrameID, o.Outcome, err)
	}

	o.ID = id
	return id, nil
}

// GetOutcome retrieves the outcome for a frame
func (p *PostgresClient) GetOutcome(ctx context.Context, frameID string) (*ScanOutcome, error) {
	if frameID == "" {
		return nil, fmt.Errorf("frame ID is required")
	}

	outcomes, err := p.query(ctx, `WHERE frame_id = $1`, frameID)
	if err != nil {
		return nil, err
	}
	if len(outcomes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, frameID)
	}
	return outcomes[0], nil
}

// GetOutcomes retrieves the outcomes of several frames, oldest first.
// Unknown frame IDs are skipped.
func (p *PostgresClient) GetOutcomes(ctx context.Context, frameIDs []string) ([]*ScanOutcome, error) {
	if len(frameIDs) == 0 {
		return nil, nil
	}
	return p.query(ctx, `WHERE frame_id = ANY($1) ORDER BY created_at`, pq.Array(frameIDs))
}

// SessionMatches lists the matches of a capture session, oldest first
func (p *PostgresClient) SessionMatches(ctx context.Context, sessionID string) ([]*ScanOutcome, error) {
	return p.query(ctx, `WHERE session_id = $1 AND outcome = 'match' ORDER BY created_at`, sessionID)
}

// CountByOutcome returns the number of stored outcomes per kind
func (p *PostgresClient) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM mrz.scan_results GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{OutcomeMatch: 0, OutcomeNoMatch: 0, OutcomeError: 0}
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func (p *PostgresClient) query(ctx context.Context, where string, args ...interface{}) ([]*ScanOutcome, error) {
	query := `
		SELECT
			id, frame_id, session_id, outcome, format,
			record, error_code, error_message, error_details,
			elapsed_ms, width, height, rotation, created_at
		FROM mrz.scan_results ` + where

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*ScanOutcome
	for rows.Next() {
		var (
			o                       ScanOutcome
			sessionID, format       sql.NullString
			errorCode, errorMessage sql.NullString
			recordJSON, detailsJSON []byte
			width, height, rotation sql.NullInt64
		)
		if err := rows.Scan(
			&o.ID, &o.FrameID, &sessionID, &o.Outcome, &format,
			&recordJSON, &errorCode, &errorMessage, &detailsJSON,
			&o.ElapsedMs, &width, &height, &rotation, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}

		o.SessionID = sessionID.String
		o.Format = format.String
		o.ErrorCode = errorCode.String
		o.ErrorMessage = errorMessage.String
		o.Width = int(width.Int64)
		o.Height = int(height.Int64)
		o.Rotation = int(rotation.Int64)

		if len(recordJSON) > 0 {
			var record mrz.Record
			if err := json.Unmarshal(recordJSON, &record); err != nil {
				return nil, fmt.Errorf("failed to unmarshal record: %w", err)
			}
			o.Record = &record
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &o.ErrorDetails); err != nil {
				return nil, fmt.Errorf("failed to unmarshal error details: %w", err)
			}
		}
		outcomes = append(outcomes, &o)
	}
	return outcomes, rows.Err()
}

// nullJSON maps an empty document to SQL NULL
func nullJSON(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
