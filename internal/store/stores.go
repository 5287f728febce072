package store

import (
	"context"
	"time"
)

// UserStore manages user identities keyed by lowercased email.
type UserStore interface {
	// FindOrCreateByEmail lowercases the email and creates the user with a
	// first name derived from the local part when absent. Never errors on a
	// concurrent duplicate create.
	FindOrCreateByEmail(ctx context.Context, email string) (*User, error)
	Get(ctx context.Context, userID string) (*User, error)
	// UpdateActivity bumps LastActive and maintains StreakDays: consecutive
	// calendar days extend the streak, gaps reset it to 1.
	UpdateActivity(ctx context.Context, userID string, now time.Time) error
	// IncrementStats adds to the persistent counters.
	IncrementStats(ctx context.Context, userID string, sessions, meals int) error
}

// SessionStore manages persisted sessions, unique by client session id.
type SessionStore interface {
	// FindOrCreate returns the existing session for sessionID or inserts a
	// new active one. Duplicate-key races resolve to the winner's row.
	FindOrCreate(ctx context.Context, sessionID, userID, email string, sctx SessionContext) (*Session, error)
	BySessionID(ctx context.Context, sessionID string) (*Session, error)
	SetStatus(ctx context.Context, sessionID, status string, endTime *time.Time) error
	UpdateContext(ctx context.Context, sessionID string, sctx SessionContext) error
	CountByUser(ctx context.Context, userID string) (int, error)
	LastByUser(ctx context.Context, userID string) (*Session, error)
	// AverageEngagement averages the engagement column over sessions that
	// recorded one (engagement > 0).
	AverageEngagement(ctx context.Context, userID string) (float64, error)
	// AbandonStale marks active sessions untouched since cutoff as abandoned
	// and returns how many rows changed. Crash recovery, run by maintenance.
	AbandonStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// ConversationStore manages the 1:1 per-session message log.
type ConversationStore interface {
	// Ensure creates the empty conversation for the session if missing.
	// Idempotent; background writers call it so their effects commute.
	Ensure(ctx context.Context, sessionID, userID string) error
	// AppendMessage creates the conversation on first write and appends msg.
	// The returned bool reports whether the conversation was created.
	AppendMessage(ctx context.Context, sessionID, userID string, msg Message) (bool, error)
	Get(ctx context.Context, sessionID string) (*Conversation, error)
	UpdateSummary(ctx context.Context, sessionID string, summary ConversationSummary) error
	CountByUser(ctx context.Context, userID string) (int, error)
}

// FoodEntryStore manages the derived meal ledger.
type FoodEntryStore interface {
	// Create validates the meal type and fills Foods from logged names when
	// no structured foods are present. Entries with invalid meal types fail
	// with ErrInvalidMealType.
	Create(ctx context.Context, entry *FoodEntry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]FoodEntry, error)
	LastByUser(ctx context.Context, userID string) (*FoodEntry, error)
}

// AgentStore reads the three agent source collections and accepts seed writes.
type AgentStore interface {
	Get(ctx context.Context, agentID string) (*AgentRecord, error)
	List(ctx context.Context) ([]AgentRecord, error)
	// SectionsByAgent returns sections ordered by their sort order.
	SectionsByAgent(ctx context.Context, agentID string) ([]SectionRecord, error)
	// IntentsBySection returns intents ordered by (sort order, intent id).
	IntentsBySection(ctx context.Context, sectionID string) ([]IntentRecord, error)
	// Put* insert rows if absent; used by the seeder.
	PutAgent(ctx context.Context, a *AgentRecord) error
	PutSection(ctx context.Context, s *SectionRecord) error
	PutIntent(ctx context.Context, it *IntentRecord) error
}

// IntentResponseStore manages the structured extraction log.
type IntentResponseStore interface {
	// CreateOrAppend upserts by (SessionID, ConversationRef, SectionID,
	// IntentID): new non-empty field values overwrite per field, older values
	// are preserved, and IsCompleted only transitions false→true.
	CreateOrAppend(ctx context.Context, rec *IntentResponseRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]IntentResponseRecord, error)
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Users           UserStore
	Sessions        SessionStore
	Conversations   ConversationStore
	FoodEntries     FoodEntryStore
	Agents          AgentStore
	IntentResponses IntentResponseStore
}
