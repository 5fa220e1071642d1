package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/flowlabs/flowd/internal/domain"
	"github.com/flowlabs/flowd/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	patternMu sync.Mutex // Mutex for pattern upserts/merges to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS flow_sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		task_context TEXT,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		quality INTEGER NOT NULL DEFAULT 0,
		triggers_json TEXT,
		breakers_json TEXT NOT NULL DEFAULT '[]',
		interruption_count INTEGER NOT NULL DEFAULT 0,
		time_of_day TEXT NOT NULL,
		day_of_week TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user_started ON flow_sessions(user_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_active ON flow_sessions(updated_at) WHERE ended_at IS NULL;

	CREATE TABLE IF NOT EXISTS flow_patterns (
		user_id TEXT PRIMARY KEY,
		aggregate_json TEXT NOT NULL DEFAULT '{}',
		sample_count INTEGER NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 0,
		last_session_json TEXT,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// InsertSession persists a new active flow session.
func (s *SQLiteStore) InsertSession(ctx context.Context, session *domain.FlowSession) error {
	breakers, triggers, err := marshalSessionLists(session)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO flow_sessions (
		session_id, user_id, task_context, started_at, ended_at,
		duration_minutes, quality, triggers_json, breakers_json,
		interruption_count, time_of_day, day_of_week, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		session.ID, session.UserID, nullableString(session.TaskContext),
		session.StartedAt.Unix(), nullableUnix(session.EndedAt),
		session.DurationMinutes, session.Quality, triggers, breakers,
		session.InterruptionCount, session.TimeOfDay, session.DayOfWeek,
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.FlowSession, error) {
	row := s.db.QueryRowContext(ctx, sessionSelect+` WHERE session_id = ?`, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// UpdateSession writes back mutable session fields.
func (s *SQLiteStore) UpdateSession(ctx context.Context, session *domain.FlowSession) error {
	breakers, triggers, err := marshalSessionLists(session)
	if err != nil {
		return err
	}

	query := `
	UPDATE flow_sessions SET
		ended_at = ?, duration_minutes = ?, quality = ?,
		triggers_json = ?, breakers_json = ?, interruption_count = ?,
		updated_at = ?
	WHERE session_id = ?`

	return shared.RetrySQLite(ctx, "update session", func() error {
		result, execErr := s.db.ExecContext(ctx, query,
			nullableUnix(session.EndedAt), session.DurationMinutes, session.Quality,
			triggers, breakers, session.InterruptionCount,
			session.UpdatedAt.Unix(), session.ID,
		)
		if execErr != nil {
			return fmt.Errorf("update session: %w", execErr)
		}
		rows, raErr := result.RowsAffected()
		if raErr != nil {
			return fmt.Errorf("get rows affected: %w", raErr)
		}
		if rows == 0 {
			return fmt.Errorf("update session %s: %w", session.ID, domain.ErrNotFound)
		}
		return nil
	})
}

// ListEndedSessions retrieves finalized sessions for a user that started at
// or after the given instant, newest first.
func (s *SQLiteStore) ListEndedSessions(ctx context.Context, userID string, since time.Time) ([]*domain.FlowSession, error) {
	query := sessionSelect + `
		WHERE user_id = ? AND ended_at IS NOT NULL AND started_at >= ?
		ORDER BY started_at DESC`
	return s.querySessions(ctx, query, userID, since.Unix())
}

// ListStaleActiveSessions retrieves active sessions whose last update is
// older than the threshold.
func (s *SQLiteStore) ListStaleActiveSessions(ctx context.Context, updatedBefore time.Time) ([]*domain.FlowSession, error) {
	query := sessionSelect + `
		WHERE ended_at IS NULL AND updated_at < ?
		ORDER BY updated_at ASC`
	return s.querySessions(ctx, query, updatedBefore.Unix())
}

func (s *SQLiteStore) querySessions(ctx context.Context, query string, args ...interface{}) ([]*domain.FlowSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.FlowSession
	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan session row: %w", scanErr)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// GetPattern retrieves the flow pattern for a user.
func (s *SQLiteStore) GetPattern(ctx context.Context, userID string) (*domain.FlowPattern, error) {
	query := `
		SELECT user_id, aggregate_json, sample_count, confidence, last_session_json, updated_at
		FROM flow_patterns WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var pattern domain.FlowPattern
	var aggregateJSON string
	var lastSessionJSON sql.NullString
	var updatedAt int64

	err := row.Scan(&pattern.UserID, &aggregateJSON, &pattern.SampleCount,
		&pattern.Confidence, &lastSessionJSON, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan pattern row: %w", err)
	}

	pattern.Aggregate = domain.ParseAggregate([]byte(aggregateJSON))
	pattern.UpdatedAt = time.Unix(updatedAt, 0)

	if lastSessionJSON.Valid {
		var snap domain.SessionSnapshot
		if err := json.Unmarshal([]byte(lastSessionJSON.String), &snap); err == nil {
			pattern.LastSession = &snap
		}
	}

	return &pattern, nil
}

// UpsertPattern creates or overwrites the user's flow pattern wholesale.
func (s *SQLiteStore) UpsertPattern(ctx context.Context, pattern *domain.FlowPattern) error {
	s.patternMu.Lock()
	defer s.patternMu.Unlock()

	aggregateJSON, err := json.Marshal(pattern.Aggregate)
	if err != nil {
		return fmt.Errorf("marshal aggregate: %w", err)
	}

	var lastSessionJSON interface{}
	if pattern.LastSession != nil {
		data, err := json.Marshal(pattern.LastSession)
		if err != nil {
			return fmt.Errorf("marshal last session: %w", err)
		}
		lastSessionJSON = string(data)
	}

	query := `
	INSERT INTO flow_patterns (user_id, aggregate_json, sample_count, confidence, last_session_json, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		aggregate_json = excluded.aggregate_json,
		sample_count = excluded.sample_count,
		confidence = excluded.confidence,
		last_session_json = COALESCE(excluded.last_session_json, flow_patterns.last_session_json),
		updated_at = excluded.updated_at`

	return shared.RetrySQLite(ctx, "upsert pattern", func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			pattern.UserID, string(aggregateJSON), pattern.SampleCount,
			pattern.Confidence, lastSessionJSON, pattern.UpdatedAt.Unix(),
		)
		if execErr != nil {
			return fmt.Errorf("upsert pattern: %w", execErr)
		}
		return nil
	})
}

// MergeLastSession merges the last-session snippet into the user's pattern
// row, creating an empty pattern if none exists.
func (s *SQLiteStore) MergeLastSession(ctx context.Context, userID string, snap *domain.SessionSnapshot) error {
	s.patternMu.Lock()
	defer s.patternMu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal last session: %w", err)
	}

	query := `
	INSERT INTO flow_patterns (user_id, last_session_json, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		last_session_json = excluded.last_session_json,
		updated_at = excluded.updated_at`

	return shared.RetrySQLite(ctx, "merge last session", func() error {
		_, execErr := s.db.ExecContext(ctx, query, userID, string(data), snap.EndedAt.Unix())
		if execErr != nil {
			return fmt.Errorf("merge last session: %w", execErr)
		}
		return nil
	})
}

const sessionSelect = `
	SELECT session_id, user_id, task_context, started_at, ended_at,
	       duration_minutes, quality, triggers_json, breakers_json,
	       interruption_count, time_of_day, day_of_week, created_at, updated_at
	FROM flow_sessions`

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*domain.FlowSession, error) {
	var session domain.FlowSession
	var taskContext, triggersJSON sql.NullString
	var breakersJSON string
	var endedAt sql.NullInt64
	var startedAt, createdAt, updatedAt int64

	err := row.Scan(
		&session.ID, &session.UserID, &taskContext, &startedAt, &endedAt,
		&session.DurationMinutes, &session.Quality, &triggersJSON, &breakersJSON,
		&session.InterruptionCount, &session.TimeOfDay, &session.DayOfWeek,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.TaskContext = taskContext.String
	session.StartedAt = time.Unix(startedAt, 0)
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)

	if endedAt.Valid {
		ts := time.Unix(endedAt.Int64, 0)
		session.EndedAt = &ts
	}
	if triggersJSON.Valid {
		if err := json.Unmarshal([]byte(triggersJSON.String), &session.Triggers); err != nil {
			return nil, fmt.Errorf("unmarshal triggers: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(breakersJSON), &session.Breakers); err != nil {
		return nil, fmt.Errorf("unmarshal breakers: %w", err)
	}

	return &session, nil
}

func marshalSessionLists(session *domain.FlowSession) (breakers string, triggers interface{}, err error) {
	if session.Breakers == nil {
		breakers = "[]"
	} else {
		data, marshalErr := json.Marshal(session.Breakers)
		if marshalErr != nil {
			return "", nil, fmt.Errorf("marshal breakers: %w", marshalErr)
		}
		breakers = string(data)
	}

	if session.Triggers != nil {
		data, marshalErr := json.Marshal(session.Triggers)
		if marshalErr != nil {
			return "", nil, fmt.Errorf("marshal triggers: %w", marshalErr)
		}
		triggers = string(data)
	}

	return breakers, triggers, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
