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

// IntentResponseStore implements store.IntentResponseStore. One row per
// (session, conversation scope, section, intent); repeated turns for the
// same intent merge into that row.
type IntentResponseStore struct {
	db *DB
}

func NewIntentResponseStore(db *DB) *IntentResponseStore {
	return &IntentResponseStore{db: db}
}

const intentResponseColumns = `id, user_id, session_id, conversation_ref, section_id, intent_id,
	user_transcript, intent_prompt, fields, is_completed, created_at, updated_at`

// CreateOrAppend upserts the response row for rec's scope. Non-empty field
// values overwrite, empty ones never erase, and the completed flag only
// moves from false to true.
func (s *IntentResponseStore) CreateOrAppend(ctx context.Context, rec *store.IntentResponseRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin intent response: %w", err)
	}
	defer tx.Rollback()

	selectQ := `SELECT id, fields, is_completed, user_transcript, intent_prompt FROM intent_responses
		 WHERE session_id = $1 AND conversation_ref = $2 AND section_id = $3 AND intent_id = $4` +
		s.db.Dialect.forUpdate()

	var id string
	var fieldsJSON []byte
	var isCompleted bool
	var transcript, prompt *string
	err = tx.QueryRowContext(ctx, selectQ,
		rec.SessionID, rec.ConversationRef, rec.SectionID, rec.IntentID,
	).Scan(&id, &fieldsJSON, &isCompleted, &transcript, &prompt)

	now := time.Now()
	if errors.Is(err, sql.ErrNoRows) {
		fieldsOut, _ := json.Marshal(nonEmptyFields(rec.Fields))
		res, insErr := tx.ExecContext(ctx,
			`INSERT INTO intent_responses (`+intentResponseColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (session_id, conversation_ref, section_id, intent_id) DO NOTHING`,
			newID(), rec.UserID, rec.SessionID, rec.ConversationRef, rec.SectionID, rec.IntentID,
			nilStr(rec.UserTranscript), nilStr(rec.IntentPrompt), fieldsOut, rec.IsCompleted, now, now,
		)
		if insErr != nil {
			return fmt.Errorf("insert intent response: %w", insErr)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return tx.Commit()
		}
		// Lost the insert race; fall through to merge into the winner.
		err = tx.QueryRowContext(ctx, selectQ,
			rec.SessionID, rec.ConversationRef, rec.SectionID, rec.IntentID,
		).Scan(&id, &fieldsJSON, &isCompleted, &transcript, &prompt)
	}
	if err != nil {
		return notFound(err)
	}

	merged := map[string]string{}
	json.Unmarshal(fieldsJSON, &merged)
	for k, v := range rec.Fields {
		if v != "" {
			merged[k] = v
		}
	}
	newTranscript := derefStr(transcript)
	if rec.UserTranscript != "" {
		newTranscript = rec.UserTranscript
	}
	newPrompt := derefStr(prompt)
	if rec.IntentPrompt != "" {
		newPrompt = rec.IntentPrompt
	}

	out, _ := json.Marshal(merged)
	if _, err := tx.ExecContext(ctx,
		`UPDATE intent_responses SET fields = $1, is_completed = $2, user_transcript = $3, intent_prompt = $4, updated_at = $5
		 WHERE id = $6`,
		out, isCompleted || rec.IsCompleted, nilStr(newTranscript), nilStr(newPrompt), now, id,
	); err != nil {
		return fmt.Errorf("update intent response: %w", err)
	}
	return tx.Commit()
}

func (s *IntentResponseStore) ListBySession(ctx context.Context, sessionID string) ([]store.IntentResponseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+intentResponseColumns+`
		 FROM intent_responses WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list intent responses: %w", err)
	}
	defer rows.Close()

	var out []store.IntentResponseRecord
	for rows.Next() {
		var rec store.IntentResponseRecord
		var transcript, prompt *string
		var fieldsJSON []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &rec.ConversationRef,
			&rec.SectionID, &rec.IntentID, &transcript, &prompt, &fieldsJSON,
			&rec.IsCompleted, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan intent response: %w", err)
		}
		rec.UserTranscript = derefStr(transcript)
		rec.IntentPrompt = derefStr(prompt)
		json.Unmarshal(fieldsJSON, &rec.Fields)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// nonEmptyFields drops empty values so a blank extraction can never mask an
// earlier answer.
func nonEmptyFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
