package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Lease is an advisory, time-limited claim on a session. Only the holder of
// a live lease mutates the session's tasks.
type Lease struct {
	store     *Store
	SessionID string
	Owner     string
	TTL       time.Duration

	mu        sync.Mutex
	expiresAt time.Time
}

// ExpiresAt reports when the lease lapses unless refreshed.
func (l *Lease) ExpiresAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expiresAt
}

// AcquireLease claims the session for owner. An expired lease held by someone
// else is taken over; a live one yields ErrLocked. Re-acquiring a lease the
// owner already holds extends it.
func (s *Store) AcquireLease(ctx context.Context, sessionID, owner string, ttl time.Duration) (*Lease, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	var (
		holder    string
		expiresAt time.Time
	)
	err = tx.QueryRowContext(ctx,
		`SELECT owner, expires_at FROM session_leases WHERE session_id = ?`, sessionID,
	).Scan(&holder, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("load lease: %w", err)
	case holder != owner && expiresAt.After(now):
		return nil, fmt.Errorf("%w (owner %s until %s)", ErrLocked, holder, expiresAt.Format(time.RFC3339))
	}

	lease := &Lease{store: s, SessionID: sessionID, Owner: owner, TTL: ttl, expiresAt: now.Add(ttl)}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_leases (session_id, owner, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at`,
		sessionID, owner, lease.expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("write lease: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lease: %w", err)
	}
	return lease, nil
}

// Refresh extends the lease by its TTL. It fails with ErrLocked if the lease
// was lost to another owner. Safe for concurrent use.
func (l *Lease) Refresh(ctx context.Context) error {
	expires := l.store.now().Add(l.TTL)
	res, err := l.store.db.ExecContext(ctx,
		`UPDATE session_leases SET expires_at = ? WHERE session_id = ? AND owner = ?`,
		expires, l.SessionID, l.Owner,
	)
	if err != nil {
		return fmt.Errorf("refresh lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("refresh lease: %w", err)
	}
	if n == 0 {
		return ErrLocked
	}
	l.mu.Lock()
	if expires.After(l.expiresAt) {
		l.expiresAt = expires
	}
	l.mu.Unlock()
	return nil
}

// Release drops the lease if it is still held by this owner.
func (l *Lease) Release(ctx context.Context) error {
	_, err := l.store.db.ExecContext(ctx,
		`DELETE FROM session_leases WHERE session_id = ? AND owner = ?`,
		l.SessionID, l.Owner,
	)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
