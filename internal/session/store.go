// Package session persists sessions and their tasks in SQLite.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/berth-dev/todoagent/internal/lifecycle"
)

// Store provides SQLite-backed persistence for sessions and tasks.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens the SQLite database at dbPath and creates tables if they don't exist.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serializes writers inside this process; other
	// processes are handled by the busy timeout.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		objective TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		sequence_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		status TEXT NOT NULL,
		result TEXT,
		reflection TEXT,
		started_at DATETIME,
		completed_at DATETIME,
		UNIQUE (session_id, sequence_id),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS session_leases (
		session_id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		expires_at DATETIME NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// FindSession loads a session and its tasks ordered by sequence id.
// It returns nil, nil when no session has the given id.
func (s *Store) FindSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, objective, status, created_at, updated_at
		 FROM sessions WHERE id = ?`,
		id,
	)

	var (
		sess   Session
		status string
	)
	err := row.Scan(&sess.ID, &sess.Objective, &status, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if sess.Status, err = lifecycle.ParseSessionStatus(status); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}

	tasks, err := s.queryTasks(ctx, `WHERE session_id = ?`, id)
	if err != nil {
		return nil, err
	}
	sess.Tasks = tasks

	return &sess, nil
}

// CreateSession atomically inserts a session and all of its tasks as
// pending. It returns ErrConflict if the id is already taken.
func (s *Store) CreateSession(ctx context.Context, id, objective string, tasks []NewTask) (*Session, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, objective, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, objective, string(lifecycle.Active), now, now,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}

	sess := &Session{
		ID:        id,
		Objective: objective,
		Status:    lifecycle.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, t := range tasks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (session_id, sequence_id, title, content, status)
			 VALUES (?, ?, ?, ?, ?)`,
			id, t.SequenceID, t.Title, t.Content, string(lifecycle.Pending),
		)
		if err != nil {
			return nil, fmt.Errorf("insert task %d: %w", t.SequenceID, err)
		}
		sess.Tasks = append(sess.Tasks, Task{
			SequenceID: t.SequenceID,
			Title:      t.Title,
			Content:    t.Content,
			Status:     lifecycle.Pending,
		})
	}

	if err := tx.Commit(); err != nil {
		if isConstraintViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("commit session: %w", err)
	}
	return sess, nil
}

// UpdateTask applies a status change to one task in a single transaction.
// Updating a task that does not exist is a no-op.
func (s *Store) UpdateTask(ctx context.Context, sessionID string, u TaskUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		result, reflection     sql.NullString
		startedAt, completedAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		`SELECT result, reflection, started_at, completed_at
		 FROM tasks WHERE session_id = ? AND sequence_id = ?`,
		sessionID, u.SequenceID,
	).Scan(&result, &reflection, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load task %d: %w", u.SequenceID, err)
	}

	now := s.now()
	if u.Result != "" {
		result = sql.NullString{String: u.Result, Valid: true}
	}
	if u.Reflection != "" {
		reflection = sql.NullString{String: u.Reflection, Valid: true}
	}
	switch u.Status {
	case lifecycle.InProgress:
		if !startedAt.Valid {
			startedAt = sql.NullTime{Time: now, Valid: true}
		}
	case lifecycle.Completed, lifecycle.Failed:
		completedAt = sql.NullTime{Time: now, Valid: true}
	case lifecycle.Pending:
		result = sql.NullString{}
		reflection = sql.NullString{}
		startedAt = sql.NullTime{}
		completedAt = sql.NullTime{}
	default:
		return fmt.Errorf("update task %d: unknown status %q", u.SequenceID, u.Status)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET status = ?, result = ?, reflection = ?, started_at = ?, completed_at = ?
		 WHERE session_id = ? AND sequence_id = ?`,
		string(u.Status), result, reflection, startedAt, completedAt, sessionID, u.SequenceID,
	)
	if err != nil {
		return fmt.Errorf("update task %d: %w", u.SequenceID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, now, sessionID,
	); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return tx.Commit()
}

// ListCompleted returns the completed tasks of a session in execution order.
func (s *Store) ListCompleted(ctx context.Context, sessionID string) ([]Task, error) {
	return s.queryTasks(ctx, `WHERE session_id = ? AND status = ?`, sessionID, string(lifecycle.Completed))
}

// ListPending returns the pending tasks of a session in execution order.
func (s *Store) ListPending(ctx context.Context, sessionID string) ([]Task, error) {
	return s.queryTasks(ctx, `WHERE session_id = ? AND status = ?`, sessionID, string(lifecycle.Pending))
}

// MarkSessionCompleted sets the session status to completed.
func (s *Store) MarkSessionCompleted(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(lifecycle.SessionComplete), s.now(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("mark session completed: %w", err)
	}
	return nil
}

// ListSessions returns up to limit sessions, most recently updated first.
// A limit of zero or less returns all sessions.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Summary, error) {
	query := `SELECT s.id, s.objective, s.status, s.created_at, s.updated_at,
		COUNT(t.id),
		COALESCE(SUM(CASE WHEN t.status = 'completed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN t.status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM sessions s LEFT JOIN tasks t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var (
			sum    Summary
			status string
		)
		if err := rows.Scan(&sum.ID, &sum.Objective, &status, &sum.CreatedAt, &sum.UpdatedAt,
			&sum.Total, &sum.Completed, &sum.Failed); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sum.Status, err = lifecycle.ParseSessionStatus(status); err != nil {
			return nil, fmt.Errorf("session %s: %w", sum.ID, err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteSession removes a session, its tasks and any lease it holds.
// It reports whether a session was deleted.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_leases WHERE session_id = ?`, sessionID); err != nil {
		return false, fmt.Errorf("delete lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return n > 0, tx.Commit()
}

func (s *Store) queryTasks(ctx context.Context, where string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence_id, title, content, status, result, reflection, started_at, completed_at
		 FROM tasks `+where+` ORDER BY sequence_id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []Task
	for rows.Next() {
		var (
			t                      Task
			status                 string
			result, reflection     sql.NullString
			startedAt, completedAt sql.NullTime
		)
		if err := rows.Scan(&t.SequenceID, &t.Title, &t.Content, &status,
			&result, &reflection, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if t.Status, err = lifecycle.ParseTaskStatus(status); err != nil {
			return nil, fmt.Errorf("task %d: %w", t.SequenceID, err)
		}
		t.Result = result.String
		t.Reflection = reflection.String
		if startedAt.Valid {
			ts := startedAt.Time
			t.StartedAt = &ts
		}
		if completedAt.Valid {
			ts := completedAt.Time
			t.CompletedAt = &ts
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
