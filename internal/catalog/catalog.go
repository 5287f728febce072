// Package catalog compiles the three agent collections (agents, sections,
// intents) into the single traversable document that clients and the
// dialogue loop consume.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/govoice/internal/store"
	"github.com/nextlevelbuilder/govoice/pkg/protocol"
)

// introIntentID designates an introduction by numbering: intent 0 of a
// section greets rather than extracts.
const introIntentID = 0

// Catalog compiles and memoizes agent documents. Entries are invalidated
// explicitly when agent sources change.
type Catalog struct {
	agents store.AgentStore

	mu    sync.RWMutex
	cache map[string]*protocol.CompiledAgent
}

func New(agents store.AgentStore) *Catalog {
	return &Catalog{
		agents: agents,
		cache:  make(map[string]*protocol.CompiledAgent),
	}
}

// GetCompiledAgent returns the compiled document for agentID, or (nil, nil)
// when no such agent exists. Storage errors propagate.
func (c *Catalog) GetCompiledAgent(ctx context.Context, agentID string) (*protocol.CompiledAgent, error) {
	c.mu.RLock()
	if doc, ok := c.cache[agentID]; ok {
		c.mu.RUnlock()
		return doc, nil
	}
	c.mu.RUnlock()

	agent, err := c.agents.Get(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sections, err := c.agents.SectionsByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	doc := &protocol.CompiledAgent{
		ID:    agent.ID,
		Name:  agent.Name,
		About: agent.About,
		Mode:  agent.Mode,
	}
	for _, sec := range sections {
		intents, err := c.agents.IntentsBySection(ctx, sec.ID)
		if err != nil {
			return nil, err
		}
		doc.Sections = append(doc.Sections, compileSection(sec, intents))
	}

	c.mu.Lock()
	c.cache[agentID] = doc
	c.mu.Unlock()
	return doc, nil
}

// Invalidate drops the memoized document for agentID, forcing the next read
// to recompile.
func (c *Catalog) Invalidate(agentID string) {
	c.mu.Lock()
	delete(c.cache, agentID)
	c.mu.Unlock()
}

func compileSection(sec store.SectionRecord, intents []store.IntentRecord) protocol.Section {
	out := protocol.Section{
		ID:         sec.ID,
		Name:       sec.Name,
		About:      sec.About,
		Guidelines: sec.Guidelines,
	}

	introTaken := false
	for _, rec := range intents {
		in := compileIntent(sec, rec)
		if !introTaken && isIntroIntent(rec) {
			out.Introduction = append(out.Introduction, in)
			introTaken = true
			continue
		}
		out.Intents = append(out.Intents, in)
	}
	return out
}

// isIntroIntent matches the first greeting intent of a section: either the
// designated intro id or a prompt that announces itself as an introduction.
func isIntroIntent(rec store.IntentRecord) bool {
	if rec.IntentID == introIntentID {
		return true
	}
	return strings.Contains(strings.ToLower(rec.Prompt), "introduction")
}

func compileIntent(sec store.SectionRecord, rec store.IntentRecord) protocol.Intent {
	intentCtx := rec.Context
	if intentCtx == "" {
		intentCtx = sec.About
	}
	return protocol.Intent{
		ID:              strconv.FormatInt(rec.IntentID, 10),
		Intent:          rec.Prompt,
		IsMandatory:     rec.IsMandatory,
		RetryLimit:      rec.RetryLimit,
		FieldsToExtract: NormalizeFields(rec.FieldsRaw),
		Context:         intentCtx,
	}
}

// NormalizeFields coerces the stored fieldsToExtract value into the
// canonical field list. Sources disagree on shape: an array of field
// objects, an array of names, a single object, a JSON string, or bare text.
func NormalizeFields(raw json.RawMessage) []protocol.Field {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var fields []protocol.Field
	if err := json.Unmarshal(raw, &fields); err == nil {
		return compactFields(fields)
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				fields = append(fields, protocol.Field{Name: n})
			}
		}
		return fields
	}

	var single protocol.Field
	if err := json.Unmarshal(raw, &single); err == nil && (single.Name != "" || single.Description != "") {
		return []protocol.Field{single}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return fieldsFromText(s)
	}
	// Not JSON at all; legacy rows store the value as plain text.
	return fieldsFromText(trimmed)
}

// fieldsFromText maps a legacy plain-string definition to the canonical
// shape: a single bare token is a field name, anything longer is guidance.
func fieldsFromText(s string) []protocol.Field {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if !strings.ContainsAny(s, " \t\n") {
		return []protocol.Field{{Name: s}}
	}
	return []protocol.Field{{Description: s}}
}

func compactFields(fields []protocol.Field) []protocol.Field {
	out := fields[:0]
	for _, f := range fields {
		if f.Name == "" && f.Description == "" {
			continue
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
