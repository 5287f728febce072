package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/nextlevelbuilder/govoice/internal/store"
	"github.com/nextlevelbuilder/govoice/pkg/protocol"
)

// stubAgents is an in-memory AgentStore for compiler tests. getCalls counts
// header reads so memoization can be asserted.
type stubAgents struct {
	agents   map[string]*store.AgentRecord
	sections map[string][]store.SectionRecord
	intents  map[string][]store.IntentRecord
	err      error
	getCalls int
}

func (s *stubAgents) Get(ctx context.Context, agentID string) (*store.AgentRecord, error) {
	s.getCalls++
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.agents[agentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (s *stubAgents) List(ctx context.Context) ([]store.AgentRecord, error) { return nil, nil }

func (s *stubAgents) SectionsByAgent(ctx context.Context, agentID string) ([]store.SectionRecord, error) {
	return s.sections[agentID], nil
}

func (s *stubAgents) IntentsBySection(ctx context.Context, sectionID string) ([]store.IntentRecord, error) {
	return s.intents[sectionID], nil
}

func (s *stubAgents) PutAgent(ctx context.Context, a *store.AgentRecord) error    { return nil }
func (s *stubAgents) PutSection(ctx context.Context, r *store.SectionRecord) error { return nil }
func (s *stubAgents) PutIntent(ctx context.Context, it *store.IntentRecord) error  { return nil }

func coachFixture() *stubAgents {
	return &stubAgents{
		agents: map[string]*store.AgentRecord{
			"coach": {ID: "coach", Name: "Nutrition Coach", About: "Logs meals", Mode: []string{"voice"}},
		},
		sections: map[string][]store.SectionRecord{
			"coach": {
				{ID: "sec-onboarding", AgentID: "coach", Name: "Onboarding", About: "Get to know the user", Guidelines: "Be warm", Order: 1},
				{ID: "sec-meals", AgentID: "coach", Name: "Meals", About: "Log what the user ate", Order: 2},
			},
		},
		intents: map[string][]store.IntentRecord{
			"sec-onboarding": {
				{SectionID: "sec-onboarding", IntentID: 0, Prompt: "Greet the user and say what you do", Order: 1},
				{SectionID: "sec-onboarding", IntentID: 1, Prompt: "Ask for the user's name", IsMandatory: true, RetryLimit: 2, Order: 2,
					FieldsRaw: json.RawMessage(`[{"name":"firstName","description":"Given name"}]`)},
				{SectionID: "sec-onboarding", IntentID: 2, Prompt: "Ask about goals", Order: 3, Context: "Keep it to one sentence"},
			},
			"sec-meals": {
				{SectionID: "sec-meals", IntentID: 5, Prompt: "This is the introduction to meal logging", Order: 1},
				{SectionID: "sec-meals", IntentID: 6, Prompt: "Ask what the user ate", IsMandatory: true, RetryLimit: 3, Order: 2,
					FieldsRaw: json.RawMessage(`"foodsLogged"`)},
			},
		},
	}
}

// TestGetCompiledAgent_MissingAgent verifies that an unknown agent id
// compiles to (nil, nil) rather than an error.
func TestGetCompiledAgent_MissingAgent(t *testing.T) {
	c := New(&stubAgents{agents: map[string]*store.AgentRecord{}})

	doc, err := c.GetCompiledAgent(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetCompiledAgent: %v", err)
	}
	if doc != nil {
		t.Fatalf("expected nil document for missing agent, got %+v", doc)
	}
}

// TestGetCompiledAgent_Compile verifies the full compile: header fields,
// section order, intro split, context attachment and field normalization.
func TestGetCompiledAgent_Compile(t *testing.T) {
	c := New(coachFixture())

	doc, err := c.GetCompiledAgent(context.Background(), "coach")
	if err != nil {
		t.Fatalf("GetCompiledAgent: %v", err)
	}
	if doc == nil {
		t.Fatal("expected a compiled document")
	}
	if doc.ID != "coach" || doc.Name != "Nutrition Coach" {
		t.Fatalf("header mismatch: %+v", doc)
	}
	if len(doc.Mode) != 1 || doc.Mode[0] != "voice" {
		t.Fatalf("mode = %v", doc.Mode)
	}
	if len(doc.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(doc.Sections))
	}

	onb := doc.Sections[0]
	if onb.ID != "sec-onboarding" || onb.Guidelines != "Be warm" {
		t.Fatalf("first section = %+v", onb)
	}
	if len(onb.Introduction) != 1 || onb.Introduction[0].ID != "0" {
		t.Fatalf("intent 0 should be the introduction, got %+v", onb.Introduction)
	}
	if got := intentIDs(onb.Intents); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("onboarding intents = %v", got)
	}

	ask := onb.Intents[0]
	if ask.Intent != "Ask for the user's name" || !ask.IsMandatory || ask.RetryLimit != 2 {
		t.Fatalf("intent 1 = %+v", ask)
	}
	// No local context, so the section's about text is attached.
	if ask.Context != "Get to know the user" {
		t.Fatalf("intent 1 context = %q", ask.Context)
	}
	want := []protocol.Field{{Name: "firstName", Description: "Given name"}}
	if !reflect.DeepEqual(ask.FieldsToExtract, want) {
		t.Fatalf("intent 1 fields = %+v", ask.FieldsToExtract)
	}
	// A local context is kept as is.
	if onb.Intents[1].Context != "Keep it to one sentence" {
		t.Fatalf("intent 2 context = %q", onb.Intents[1].Context)
	}

	meals := doc.Sections[1]
	if len(meals.Introduction) != 1 || meals.Introduction[0].ID != "5" {
		t.Fatalf("prompt heuristic should split intent 5, got %+v", meals.Introduction)
	}
	if len(meals.Intents) != 1 || meals.Intents[0].ID != "6" {
		t.Fatalf("meals intents = %+v", meals.Intents)
	}
	// Legacy string definition compiles to a single named field.
	if got := meals.Intents[0].FieldsToExtract; !reflect.DeepEqual(got, []protocol.Field{{Name: "foodsLogged"}}) {
		t.Fatalf("legacy fields = %+v", got)
	}
}

// TestGetCompiledAgent_IntroOnlyFirst verifies that only the first matching
// intent is treated as the introduction even when several prompts mention one.
func TestGetCompiledAgent_IntroOnlyFirst(t *testing.T) {
	st := &stubAgents{
		agents: map[string]*store.AgentRecord{"a": {ID: "a", Name: "A"}},
		sections: map[string][]store.SectionRecord{
			"a": {{ID: "s", AgentID: "a", Name: "S", Order: 1}},
		},
		intents: map[string][]store.IntentRecord{
			"s": {
				{SectionID: "s", IntentID: 3, Prompt: "Introduction to logging", Order: 1},
				{SectionID: "s", IntentID: 4, Prompt: "Another INTRODUCTION here", Order: 2},
			},
		},
	}
	doc, err := New(st).GetCompiledAgent(context.Background(), "a")
	if err != nil {
		t.Fatalf("GetCompiledAgent: %v", err)
	}
	sec := doc.Sections[0]
	if len(sec.Introduction) != 1 || sec.Introduction[0].ID != "3" {
		t.Fatalf("introduction = %+v", sec.Introduction)
	}
	if len(sec.Intents) != 1 || sec.Intents[0].ID != "4" {
		t.Fatalf("intents = %+v", sec.Intents)
	}
}

// TestGetCompiledAgent_Memoized verifies that a compiled agent is served
// from cache until invalidated.
func TestGetCompiledAgent_Memoized(t *testing.T) {
	st := coachFixture()
	c := New(st)
	ctx := context.Background()

	if _, err := c.GetCompiledAgent(ctx, "coach"); err != nil {
		t.Fatalf("first compile: %v", err)
	}
	if _, err := c.GetCompiledAgent(ctx, "coach"); err != nil {
		t.Fatalf("second compile: %v", err)
	}
	if st.getCalls != 1 {
		t.Fatalf("expected 1 store read, got %d", st.getCalls)
	}

	c.Invalidate("coach")
	if _, err := c.GetCompiledAgent(ctx, "coach"); err != nil {
		t.Fatalf("recompile: %v", err)
	}
	if st.getCalls != 2 {
		t.Fatalf("expected recompile after Invalidate, got %d reads", st.getCalls)
	}
}

// TestGetCompiledAgent_StorageError verifies that store failures propagate
// instead of being swallowed into a nil document.
func TestGetCompiledAgent_StorageError(t *testing.T) {
	boom := errors.New("connection reset")
	c := New(&stubAgents{err: boom})

	_, err := c.GetCompiledAgent(context.Background(), "coach")
	if !errors.Is(err, boom) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

// TestNormalizeFields verifies every stored shape collapses to the canonical
// field list.
func TestNormalizeFields(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []protocol.Field
	}{
		{
			name: "object array",
			raw:  `[{"name":"mealType","type":"string","description":"breakfast, lunch or dinner"}]`,
			want: []protocol.Field{{Name: "mealType", Type: "string", Description: "breakfast, lunch or dinner"}},
		},
		{
			name: "name array",
			raw:  `["mealType","foodsLogged"]`,
			want: []protocol.Field{{Name: "mealType"}, {Name: "foodsLogged"}},
		},
		{
			name: "single object",
			raw:  `{"name":"notes","example":"felt great"}`,
			want: []protocol.Field{{Name: "notes", Example: "felt great"}},
		},
		{
			name: "json string token",
			raw:  `"foodsLogged"`,
			want: []protocol.Field{{Name: "foodsLogged"}},
		},
		{
			name: "json string sentence",
			raw:  `"capture the foods eaten"`,
			want: []protocol.Field{{Description: "capture the foods eaten"}},
		},
		{
			name: "bare text",
			raw:  `capture the foods eaten`,
			want: []protocol.Field{{Description: "capture the foods eaten"}},
		},
		{name: "null", raw: `null`, want: nil},
		{name: "empty", raw: ``, want: nil},
		{
			name: "blank entries dropped",
			raw:  `[{"name":""},{"name":"kept"}]`,
			want: []protocol.Field{{Name: "kept"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeFields(json.RawMessage(tc.raw))
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("NormalizeFields(%q) = %+v, want %+v", tc.raw, got, tc.want)
			}
		})
	}
}

func intentIDs(ins []protocol.Intent) []string {
	ids := make([]string, 0, len(ins))
	for _, in := range ins {
		ids = append(ids, in.ID)
	}
	return ids
}
