package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/govoice/internal/store"
)

// SessionStore implements store.SessionStore.
type SessionStore struct {
	db *DB
}

func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `id, session_id, user_id, user_email, status, context, start_time, end_time, updated_at`

func (s *SessionStore) FindOrCreate(ctx context.Context, sessionID, userID, userEmail string, sctx store.SessionContext) (*store.Session, error) {
	sess, err := s.BySessionID(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	ctxJSON, _ := json.Marshal(sctx)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, session_id, user_id, user_email, status, context, engagement, start_time, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (session_id) DO NOTHING`,
		newID(), sessionID, userID, userEmail, store.SessionActive, ctxJSON, sctx.Engagement, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s.BySessionID(ctx, sessionID)
}

func (s *SessionStore) BySessionID(ctx context.Context, sessionID string) (*store.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, sessionID)
	return scanSession(row)
}

func (s *SessionStore) SetStatus(ctx context.Context, sessionID, status string, endTime *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = $1, end_time = $2, updated_at = $3 WHERE session_id = $4`,
		status, endTime, time.Now(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdateContext replaces the session context document. Engagement is also
// written to its own column so averages work without JSON functions.
func (s *SessionStore) UpdateContext(ctx context.Context, sessionID string, sc store.SessionContext) error {
	ctxJSON, _ := json.Marshal(sc)
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET context = $1, engagement = $2, updated_at = $3 WHERE session_id = $4`,
		ctxJSON, sc.Engagement, time.Now(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session context: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SessionStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (s *SessionStore) LastByUser(ctx context.Context, userID string) (*store.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY start_time DESC LIMIT 1`, userID)
	return scanSession(row)
}

// AverageEngagement averages the recorded engagement over sessions that
// scored one. Returns 0 when the user has none.
func (s *SessionStore) AverageEngagement(ctx context.Context, userID string) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(engagement) FROM sessions WHERE user_id = $1 AND engagement > 0`, userID).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average engagement: %w", err)
	}
	return avg.Float64, nil
}

// AbandonStale marks active sessions idle since before cutoff as abandoned.
// The end time is set to the session's last activity.
func (s *SessionStore) AbandonStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = $1, end_time = updated_at
		 WHERE status = $2 AND updated_at < $3`,
		store.SessionAbandoned, store.SessionActive, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("abandon stale sessions: %w", err)
	}
	return res.RowsAffected()
}

func scanSession(row *sql.Row) (*store.Session, error) {
	var sess store.Session
	var ctxJSON []byte
	var endTime sql.NullTime
	err := row.Scan(&sess.ID, &sess.SessionID, &sess.UserID, &sess.UserEmail,
		&sess.Status, &ctxJSON, &sess.StartTime, &endTime, &sess.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if endTime.Valid {
		t := endTime.Time
		sess.EndTime = &t
	}
	json.Unmarshal(ctxJSON, &sess.Context)
	return &sess, nil
}
