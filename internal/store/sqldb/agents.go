package sqldb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/govoice/internal/store"
)

// AgentStore implements store.AgentStore over the three catalog tables.
type AgentStore struct {
	db *DB
}

func NewAgentStore(db *DB) *AgentStore {
	return &AgentStore{db: db}
}

func (s *AgentStore) Get(ctx context.Context, agentID string) (*store.AgentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, about, mode, created_at, updated_at FROM agents WHERE id = $1`, agentID)

	var a store.AgentRecord
	var about *string
	var modeJSON []byte
	if err := row.Scan(&a.ID, &a.Name, &about, &modeJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	a.About = derefStr(about)
	json.Unmarshal(modeJSON, &a.Mode)
	return &a, nil
}

func (s *AgentStore) List(ctx context.Context) ([]store.AgentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, about, mode, created_at, updated_at FROM agents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []store.AgentRecord
	for rows.Next() {
		var a store.AgentRecord
		var about *string
		var modeJSON []byte
		if err := rows.Scan(&a.ID, &a.Name, &about, &modeJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.About = derefStr(about)
		json.Unmarshal(modeJSON, &a.Mode)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AgentStore) SectionsByAgent(ctx context.Context, agentID string) ([]store.SectionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, name, about, guidelines, sort_order
		 FROM agent_sections WHERE agent_id = $1 ORDER BY sort_order, id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var out []store.SectionRecord
	for rows.Next() {
		var sec store.SectionRecord
		var about, guidelines *string
		if err := rows.Scan(&sec.ID, &sec.AgentID, &sec.Name, &about, &guidelines, &sec.Order); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sec.About = derefStr(about)
		sec.Guidelines = derefStr(guidelines)
		out = append(out, sec)
	}
	return out, rows.Err()
}

func (s *AgentStore) IntentsBySection(ctx context.Context, sectionID string) ([]store.IntentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT section_id, intent_id, prompt, is_mandatory, retry_limit, sort_order, fields_to_extract, context
		 FROM section_intents WHERE section_id = $1 ORDER BY sort_order, intent_id`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	var out []store.IntentRecord
	for rows.Next() {
		var in store.IntentRecord
		var fieldsRaw, intentCtx *string
		if err := rows.Scan(&in.SectionID, &in.IntentID, &in.Prompt, &in.IsMandatory,
			&in.RetryLimit, &in.Order, &fieldsRaw, &intentCtx); err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		if fieldsRaw != nil {
			in.FieldsRaw = json.RawMessage(*fieldsRaw)
		}
		in.Context = derefStr(intentCtx)
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *AgentStore) PutAgent(ctx context.Context, a *store.AgentRecord) error {
	if a.ID == "" {
		a.ID = newID()
	}
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	modeJSON, _ := json.Marshal(a.Mode)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, about, mode, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		a.ID, a.Name, nilStr(a.About), modeJSON, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (s *AgentStore) PutSection(ctx context.Context, sec *store.SectionRecord) error {
	if sec.ID == "" {
		sec.ID = newID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_sections (id, agent_id, name, about, guidelines, sort_order)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		sec.ID, sec.AgentID, sec.Name, nilStr(sec.About), nilStr(sec.Guidelines), sec.Order,
	)
	if err != nil {
		return fmt.Errorf("insert section: %w", err)
	}
	return nil
}

func (s *AgentStore) PutIntent(ctx context.Context, in *store.IntentRecord) error {
	var fieldsRaw *string
	if len(in.FieldsRaw) > 0 {
		raw := string(in.FieldsRaw)
		fieldsRaw = &raw
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO section_intents (section_id, intent_id, prompt, is_mandatory, retry_limit, sort_order, fields_to_extract, context)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (section_id, intent_id) DO NOTHING`,
		in.SectionID, in.IntentID, in.Prompt, in.IsMandatory, in.RetryLimit, in.Order, fieldsRaw, nilStr(in.Context),
	)
	if err != nil {
		return fmt.Errorf("insert intent: %w", err)
	}
	return nil
}
