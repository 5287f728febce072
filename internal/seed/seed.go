// Package seed ships the built-in demo agent so a standalone gateway answers
// client_ready_request out of the box. Definitions are embedded; applying
// them is idempotent and never overwrites rows an operator has edited.
package seed

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/nextlevelbuilder/govoice/internal/store"
)

//go:embed agents/*.json
var agentFS embed.FS

// Definition is one embedded agent script: the agent row plus its sections
// and their intents, in presentation order.
type Definition struct {
	Agent    Agent     `json:"agent"`
	Sections []Section `json:"sections"`
}

type Agent struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	About string   `json:"about"`
	Mode  []string `json:"mode"`
}

type Section struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	About      string   `json:"about"`
	Guidelines string   `json:"guidelines,omitempty"`
	Intents    []Intent `json:"intents"`
}

type Intent struct {
	ID              int64           `json:"id"`
	Prompt          string          `json:"prompt"`
	IsMandatory     bool            `json:"isMandatory,omitempty"`
	RetryLimit      int             `json:"retryLimit,omitempty"`
	FieldsToExtract json.RawMessage `json:"fieldsToExtract,omitempty"`
	Context         string          `json:"context,omitempty"`
}

// Load parses every embedded agent definition.
func Load() ([]Definition, error) {
	entries, err := agentFS.ReadDir("agents")
	if err != nil {
		return nil, fmt.Errorf("seed: read embedded agents: %w", err)
	}

	var defs []Definition
	for _, e := range entries {
		data, err := agentFS.ReadFile(path.Join("agents", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("seed: read %s: %w", e.Name(), err)
		}
		var def Definition
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("seed: parse %s: %w", e.Name(), err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Apply writes the embedded agents that do not exist yet and returns the ids
// it created. Agents already present are left untouched, including their
// sections and intents, so operator edits survive restarts.
func Apply(ctx context.Context, agents store.AgentStore, log *slog.Logger) ([]string, error) {
	if log == nil {
		log = slog.Default()
	}

	defs, err := Load()
	if err != nil {
		return nil, err
	}

	var created []string
	for _, def := range defs {
		_, err := agents.Get(ctx, def.Agent.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return created, fmt.Errorf("seed: check agent %s: %w", def.Agent.ID, err)
		}

		if err := apply(ctx, agents, def); err != nil {
			log.Warn("seed.agent_failed", "agent_id", def.Agent.ID, "error", err)
			continue
		}
		created = append(created, def.Agent.ID)
		log.Info("seed.agent_created", "agent_id", def.Agent.ID, "sections", len(def.Sections))
	}
	return created, nil
}

func apply(ctx context.Context, agents store.AgentStore, def Definition) error {
	if err := agents.PutAgent(ctx, &store.AgentRecord{
		ID:    def.Agent.ID,
		Name:  def.Agent.Name,
		About: def.Agent.About,
		Mode:  def.Agent.Mode,
	}); err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	for si, sec := range def.Sections {
		if err := agents.PutSection(ctx, &store.SectionRecord{
			ID:         sec.ID,
			AgentID:    def.Agent.ID,
			Name:       sec.Name,
			About:      sec.About,
			Guidelines: sec.Guidelines,
			Order:      si + 1,
		}); err != nil {
			return fmt.Errorf("section %s: %w", sec.ID, err)
		}
		for ii, in := range sec.Intents {
			if err := agents.PutIntent(ctx, &store.IntentRecord{
				SectionID:   sec.ID,
				IntentID:    in.ID,
				Prompt:      in.Prompt,
				IsMandatory: in.IsMandatory,
				RetryLimit:  in.RetryLimit,
				Order:       ii + 1,
				FieldsRaw:   in.FieldsToExtract,
				Context:     in.Context,
			}); err != nil {
				return fmt.Errorf("intent %d: %w", in.ID, err)
			}
		}
	}
	return nil
}
