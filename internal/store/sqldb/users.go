package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/govoice/internal/store"
)

// UserStore implements store.UserStore.
type UserStore struct {
	db *DB
}

func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, email, first_name, last_name, preferences, stats, created_at, updated_at`

func (s *UserStore) FindOrCreateByEmail(ctx context.Context, email string) (*store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("find or create user: %w", store.ErrNotFound)
	}

	u, err := s.byEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	prefsJSON, _ := json.Marshal(store.Preferences{})
	statsJSON, _ := json.Marshal(store.Stats{})
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, preferences, stats, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (email) DO NOTHING`,
		newID(), email, nilStr(FirstNameFromEmail(email)), nil, prefsJSON, statsJSON, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	// Read back whichever row won the insert race.
	return s.byEmail(ctx, email)
}

func (s *UserStore) Get(ctx context.Context, userID string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

func (s *UserStore) byEmail(ctx context.Context, email string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// UpdateActivity records an interaction at now and maintains the daily
// streak: consecutive calendar days extend it, a gap resets it to 1.
func (s *UserStore) UpdateActivity(ctx context.Context, userID string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update activity: %w", err)
	}
	defer tx.Rollback()

	var statsJSON []byte
	err = tx.QueryRowContext(ctx,
		`SELECT stats FROM users WHERE id = $1`+s.db.Dialect.forUpdate(), userID,
	).Scan(&statsJSON)
	if err != nil {
		return notFound(err)
	}

	var stats store.Stats
	json.Unmarshal(statsJSON, &stats)

	today := dayOf(now)
	switch {
	case stats.LastActive == nil:
		stats.StreakDays = 1
	case dayOf(*stats.LastActive).Equal(today):
		// Same day, streak unchanged.
	case today.Sub(dayOf(*stats.LastActive)) == 24*time.Hour:
		stats.StreakDays++
	default:
		stats.StreakDays = 1
	}
	ts := now
	stats.LastActive = &ts

	out, _ := json.Marshal(stats)
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET stats = $1, updated_at = $2 WHERE id = $3`, out, now, userID,
	); err != nil {
		return fmt.Errorf("update user activity: %w", err)
	}
	return tx.Commit()
}

// IncrementStats adds to the lifetime session and meal counters.
func (s *UserStore) IncrementStats(ctx context.Context, userID string, sessions, meals int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin increment stats: %w", err)
	}
	defer tx.Rollback()

	var statsJSON []byte
	err = tx.QueryRowContext(ctx,
		`SELECT stats FROM users WHERE id = $1`+s.db.Dialect.forUpdate(), userID,
	).Scan(&statsJSON)
	if err != nil {
		return notFound(err)
	}

	var stats store.Stats
	json.Unmarshal(statsJSON, &stats)
	stats.TotalSessions += sessions
	stats.TotalMeals += meals

	out, _ := json.Marshal(stats)
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET stats = $1, updated_at = $2 WHERE id = $3`, out, time.Now(), userID,
	); err != nil {
		return fmt.Errorf("update user stats: %w", err)
	}
	return tx.Commit()
}

func scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	var firstName, lastName *string
	var prefsJSON, statsJSON []byte
	err := row.Scan(&u.ID, &u.Email, &firstName, &lastName, &prefsJSON, &statsJSON, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	u.FirstName = derefStr(firstName)
	u.LastName = derefStr(lastName)
	json.Unmarshal(prefsJSON, &u.Preferences)
	json.Unmarshal(statsJSON, &u.Stats)
	return &u, nil
}

// FirstNameFromEmail derives a display name from the email local part:
// "john.doe@example.com" becomes "John".
func FirstNameFromEmail(email string) string {
	local := email
	if i := strings.Index(email, "@"); i >= 0 {
		local = email[:i]
	}
	if i := strings.IndexAny(local, "._-+"); i >= 0 {
		local = local[:i]
	}
	if local == "" {
		return ""
	}
	r := []rune(local)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// dayOf truncates to the UTC calendar day, so streaks count days the same
// way on every host.
func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
