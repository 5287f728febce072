package sqldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/govoice/internal/store"
)

// ConversationStore implements store.ConversationStore. A conversation is a
// header row keyed by session plus an append-only message table ordered by
// its rowid, so insertion order survives identical timestamps.
type ConversationStore struct {
	db *DB
}

func NewConversationStore(db *DB) *ConversationStore {
	return &ConversationStore{db: db}
}

type convHeader struct {
	ID        string
	SessionID string
	UserID    string
	Summary   store.ConversationSummary
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ensure creates the empty conversation for the session if missing.
func (s *ConversationStore) Ensure(ctx context.Context, sessionID, userID string) error {
	_, _, err := s.ensure(ctx, sessionID, userID, time.Now())
	return err
}

// AppendMessage appends msg to the session's conversation, creating the
// conversation on first use. Reports whether this call created it.
func (s *ConversationStore) AppendMessage(ctx context.Context, sessionID, userID string, msg store.Message) (bool, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	hdr, created, err := s.ensure(ctx, sessionID, userID, msg.Timestamp)
	if err != nil {
		return created, err
	}

	metaJSON, _ := json.Marshal(msg.Metadata)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_messages (conversation_id, msg_type, content, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		hdr.ID, msg.Type, msg.Content, metaJSON, msg.Timestamp,
	); err != nil {
		return created, fmt.Errorf("insert message: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2`, msg.Timestamp, hdr.ID,
	); err != nil {
		return created, fmt.Errorf("touch conversation: %w", err)
	}
	return created, nil
}

func (s *ConversationStore) Get(ctx context.Context, sessionID string) (*store.Conversation, error) {
	hdr, err := s.header(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT msg_type, content, metadata, created_at
		 FROM conversation_messages WHERE conversation_id = $1 ORDER BY id`, hdr.ID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var msgs []store.Message
	for rows.Next() {
		var m store.Message
		var metaJSON []byte
		if err := rows.Scan(&m.Type, &m.Content, &metaJSON, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(metaJSON) > 0 {
			json.Unmarshal(metaJSON, &m.Metadata)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return &store.Conversation{
		ID:        hdr.ID,
		SessionID: hdr.SessionID,
		UserID:    hdr.UserID,
		Messages:  msgs,
		Summary:   hdr.Summary,
		CreatedAt: hdr.CreatedAt,
		UpdatedAt: hdr.UpdatedAt,
	}, nil
}

// UpdateSummary replaces the conversation summary. A complete status forces
// the complete-meal flag so the two never disagree.
func (s *ConversationStore) UpdateSummary(ctx context.Context, sessionID string, sum store.ConversationSummary) error {
	if sum.CompletionStatus == store.CompletionComplete {
		sum.IsCompleteMeal = true
	}
	sumJSON, _ := json.Marshal(sum)
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET summary = $1, updated_at = $2 WHERE session_id = $3`,
		sumJSON, time.Now(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *ConversationStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

// ensure loads the header, inserting it first when absent. ON CONFLICT
// keeps concurrent first writers from racing each other.
func (s *ConversationStore) ensure(ctx context.Context, sessionID, userID string, at time.Time) (*convHeader, bool, error) {
	hdr, err := s.header(ctx, sessionID)
	if err == nil {
		return hdr, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	sumJSON, _ := json.Marshal(store.ConversationSummary{CompletionStatus: store.CompletionIncomplete})
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, session_id, user_id, summary, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (session_id) DO NOTHING`,
		newID(), sessionID, userID, sumJSON, at, at,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}
	created := false
	if n, _ := res.RowsAffected(); n > 0 {
		created = true
	}
	hdr, err = s.header(ctx, sessionID)
	return hdr, created, err
}

func (s *ConversationStore) header(ctx context.Context, sessionID string) (*convHeader, error) {
	var hdr convHeader
	var sumJSON []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, user_id, summary, created_at, updated_at
		 FROM conversations WHERE session_id = $1`, sessionID,
	).Scan(&hdr.ID, &hdr.SessionID, &hdr.UserID, &sumJSON, &hdr.CreatedAt, &hdr.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	json.Unmarshal(sumJSON, &hdr.Summary)
	return &hdr, nil
}
