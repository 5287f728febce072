// Package sessions tracks live dialogue sessions in memory: identity,
// lifecycle phase, the intent cursor and per-user greeting limits. The
// persisted session row is the durable counterpart; the registry only
// covers the attached lifetime.
package sessions

import (
	"sync"
	"time"
)

// Phase is the lifecycle position of a live session.
type Phase string

const (
	PhaseConnecting    Phase = "connecting"
	PhaseAuthenticated Phase = "authenticated"
	PhaseIdle          Phase = "idle"
	PhaseAwaitingAgent Phase = "awaiting_agent"
	PhaseInIntent      Phase = "in_intent"
	PhaseCompleted     Phase = "completed"
	PhaseAbandoned     Phase = "abandoned"
)

// Terminal reports whether the phase admits no further transitions.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseAbandoned
}

// Cursor is the per-session position within the compiled agent.
type Cursor struct {
	SectionIdx      int
	IntentIdx       int
	CompletedFields map[string]string
	RetryCount      int
}

// State is one live session. All mutation goes through methods so handler
// goroutines for the same session serialize; use Registry.Attach to create.
type State struct {
	SessionID string
	UserID    string
	Email     string

	// turn serializes whole intent turns across this session's sockets;
	// mu guards the fields below and is never held across blocking calls.
	turn sync.Mutex

	mu             sync.Mutex
	phase          Phase
	agentID        string
	conversationID string
	processing     bool
	lastActivity   time.Time
	cursor         Cursor
}

func newState(sessionID, userID, email string, now time.Time) *State {
	return &State{
		SessionID:    sessionID,
		UserID:       userID,
		Email:        email,
		phase:        PhaseAuthenticated,
		lastActivity: now,
	}
}

// Phase returns the current lifecycle phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SetPhase transitions the session and reports whether the transition was
// applied. Terminal phases are sticky.
func (s *State) SetPhase(p Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Terminal() {
		return false
	}
	s.phase = p
	return true
}

// Touch records activity at the given instant.
func (s *State) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// LastActivity returns the instant of the most recent Touch.
func (s *State) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// TurnLock serializes intent turns: handlers for one session run one at a
// time even when several sockets share the session. Sessions stay parallel
// to each other.
func (s *State) TurnLock() {
	s.turn.Lock()
}

func (s *State) TurnUnlock() {
	s.turn.Unlock()
}

// BeginProcessing marks the session busy with a turn. It returns false when
// a turn is already in flight, so overlapping user messages on one session
// are handled one at a time.
func (s *State) BeginProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return false
	}
	s.processing = true
	return true
}

// EndProcessing clears the busy flag.
func (s *State) EndProcessing() {
	s.mu.Lock()
	s.processing = false
	s.mu.Unlock()
}

// Processing reports whether a turn is currently in flight.
func (s *State) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// BindAgent records which compiled agent drives this session.
func (s *State) BindAgent(agentID string) {
	s.mu.Lock()
	s.agentID = agentID
	s.mu.Unlock()
}

// AgentID returns the bound agent id, empty before client_ready.
func (s *State) AgentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentID
}

// SetConversationID records the client-supplied conversation id.
func (s *State) SetConversationID(id string) {
	s.mu.Lock()
	s.conversationID = id
	s.mu.Unlock()
}

// ConversationID returns the recorded conversation id, if any.
func (s *State) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// CursorValue returns a copy of the intent cursor.
func (s *State) CursorValue() Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cursor
	if s.cursor.CompletedFields != nil {
		c.CompletedFields = make(map[string]string, len(s.cursor.CompletedFields))
		for k, v := range s.cursor.CompletedFields {
			c.CompletedFields[k] = v
		}
	}
	return c
}

// MergeFields folds extracted values into the cursor. Empty values are
// skipped so a blank extraction never erases an earlier answer.
func (s *State) MergeFields(fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor.CompletedFields == nil {
		s.cursor.CompletedFields = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		if k == "" || v == "" {
			continue
		}
		s.cursor.CompletedFields[k] = v
	}
}

// AdvanceIntent moves the cursor to the next intent, rolling into the next
// non-empty section when the current one is exhausted. intentCounts holds
// the number of intents per section. The retry counter resets. Returns true
// when the whole agent has been traversed.
func (s *State) AdvanceIntent(intentCounts []int) (done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursor.RetryCount = 0
	s.cursor.IntentIdx++
	for s.cursor.SectionIdx < len(intentCounts) && s.cursor.IntentIdx >= intentCounts[s.cursor.SectionIdx] {
		s.cursor.SectionIdx++
		s.cursor.IntentIdx = 0
	}
	return s.cursor.SectionIdx >= len(intentCounts)
}

// BumpRetry increments the retry counter for the current intent and returns
// the new count.
func (s *State) BumpRetry() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor.RetryCount++
	return s.cursor.RetryCount
}
