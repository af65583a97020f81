// Package persistence keeps an SQLite journal of transition workflow sessions: state
// changes, failed side effects and how each notification step was resolved.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"stageflow/pkg/logx"
)

// ErrSessionNotFound is returned when a requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Session status values.
const (
	SessionStatusOpen      = "open"
	SessionStatusCommitted = "committed"
	SessionStatusAbandoned = "abandoned"
)

// Session is one opened transition workflow.
type Session struct {
	SessionID string     `json:"session_id"`
	ProjectID string     `json:"project_id"`
	FromStage string     `json:"from_stage"`
	ToStage   string     `json:"to_stage,omitempty"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// TransitionRecord is one recorded workflow state change.
type TransitionRecord struct {
	SessionID string         `json:"session_id"`
	FromState string         `json:"from_state"`
	ToState   string         `json:"to_state"`
	At        time.Time      `json:"at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SideEffectFailure is one post-commit side effect that failed.
type SideEffectFailure struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Item      string    `json:"item"`
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}

// NotificationResolution records how a notification step ended.
type NotificationResolution struct {
	SessionID string    `json:"session_id"`
	DedupeKey string    `json:"dedupe_key"`
	Audience  string    `json:"audience"`
	Outcome   string    `json:"outcome"`
	At        time.Time `json:"at"`
}

// Journal is an SQLite-backed workflow journal.
type Journal struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	j := &Journal{db: db, logger: logx.NewLogger("journal")}
	j.logger.Info("journal opened: %s", path)
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// StartSession records a newly opened workflow.
func (j *Journal) StartSession(ctx context.Context, s Session) error {
	if s.Status == "" {
		s.Status = SessionStatusOpen
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, project_id, from_stage, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		s.SessionID, s.ProjectID, s.FromStage, s.Status, s.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.SessionID, err)
	}
	return nil
}

// EndSession marks a session finished. toStage is empty when nothing was committed.
func (j *Journal) EndSession(ctx context.Context, sessionID, status, toStage string, at time.Time) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, to_stage = ?, ended_at = ? WHERE session_id = ?`,
		status, toStage, at.UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// GetSession loads one session.
func (j *Journal) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var (
		s                Session
		toStage, endedAt sql.NullString
		startedAt        string
	)
	err := j.db.QueryRowContext(ctx,
		`SELECT session_id, project_id, from_stage, to_stage, status, started_at, ended_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&s.SessionID, &s.ProjectID, &s.FromStage, &toStage, &s.Status, &startedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	s.ToStage = toStage.String
	s.StartedAt = parseTime(startedAt)
	if endedAt.Valid && endedAt.String != "" {
		t := parseTime(endedAt.String)
		s.EndedAt = &t
	}
	return s, nil
}

// RecordTransition appends a state change.
func (j *Journal) RecordTransition(ctx context.Context, rec TransitionRecord) error {
	var meta []byte
	if len(rec.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(rec.Metadata); err != nil {
			return fmt.Errorf("failed to encode transition metadata: %w", err)
		}
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO transitions (session_id, from_state, to_state, at, metadata_json) VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, rec.FromState, rec.ToState, rec.At.UTC().Format(time.RFC3339Nano), nullable(meta))
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

// ListTransitions returns a session's state changes in insertion order.
func (j *Journal) ListTransitions(ctx context.Context, sessionID string) ([]TransitionRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT session_id, from_state, to_state, at, metadata_json FROM transitions WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var (
			rec  TransitionRecord
			at   string
			meta sql.NullString
		)
		if err := rows.Scan(&rec.SessionID, &rec.FromState, &rec.ToState, &at, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		rec.At = parseTime(at)
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode transition metadata: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordSideEffectFailure appends a failed side effect.
func (j *Journal) RecordSideEffectFailure(ctx context.Context, f SideEffectFailure) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO side_effect_failures (session_id, kind, item, error, at) VALUES (?, ?, ?, ?, ?)`,
		f.SessionID, f.Kind, f.Item, f.Error, f.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert side effect failure: %w", err)
	}
	return nil
}

// ListSideEffectFailures returns a session's failed side effects.
func (j *Journal) ListSideEffectFailures(ctx context.Context, sessionID string) ([]SideEffectFailure, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT session_id, kind, item, error, at FROM side_effect_failures WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query side effect failures: %w", err)
	}
	defer rows.Close()

	var out []SideEffectFailure
	for rows.Next() {
		var (
			f  SideEffectFailure
			at string
		)
		if err := rows.Scan(&f.SessionID, &f.Kind, &f.Item, &f.Error, &at); err != nil {
			return nil, fmt.Errorf("failed to scan side effect failure: %w", err)
		}
		f.At = parseTime(at)
		out = append(out, f)
	}
	return out, rows.Err()
}

// RecordNotification records how a notification step was resolved.
func (j *Journal) RecordNotification(ctx context.Context, n NotificationResolution) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO notification_resolutions (session_id, dedupe_key, audience, outcome, at) VALUES (?, ?, ?, ?, ?)`,
		n.SessionID, n.DedupeKey, n.Audience, n.Outcome, n.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert notification resolution: %w", err)
	}
	return nil
}

// NotificationsByDedupeKey returns every resolution recorded for a dedupe key.
func (j *Journal) NotificationsByDedupeKey(ctx context.Context, dedupeKey string) ([]NotificationResolution, error) {
	return j.queryNotifications(ctx, "dedupe_key", dedupeKey)
}

// ListNotifications returns the resolutions recorded by one session.
func (j *Journal) ListNotifications(ctx context.Context, sessionID string) ([]NotificationResolution, error) {
	return j.queryNotifications(ctx, "session_id", sessionID)
}

func (j *Journal) queryNotifications(ctx context.Context, column, value string) ([]NotificationResolution, error) {
	rows, err := j.db.QueryContext(ctx, //nolint:gosec // column is not user input
		`SELECT session_id, dedupe_key, audience, outcome, at FROM notification_resolutions WHERE `+column+` = ? ORDER BY id`,
		value)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification resolutions: %w", err)
	}
	defer rows.Close()

	var out []NotificationResolution
	for rows.Next() {
		var (
			n  NotificationResolution
			at string
		)
		if err := rows.Scan(&n.SessionID, &n.DedupeKey, &n.Audience, &n.Outcome, &at); err != nil {
			return nil, fmt.Errorf("failed to scan notification resolution: %w", err)
		}
		n.At = parseTime(at)
		out = append(out, n)
	}
	return out, rows.Err()
}

// RecentSessions returns the latest sessions, newest first.
func (j *Journal) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to close session rows: %w", err)
	}

	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		s, err := j.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
