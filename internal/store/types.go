// Package store defines the persistence contracts and entity types for the
// govoice gateway. Implementations live in subpackages (sqldb for Postgres
// and SQLite).
package store

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrInvalidMealType is returned by FoodEntries.Create for meal types outside
// the fixed set.
var ErrInvalidMealType = errors.New("store: invalid meal type")

// Preferences is the per-user settings block, stored as JSON.
type Preferences struct {
	GreetingStyle string   `json:"greetingStyle,omitempty"`
	Timezone      string   `json:"timezone,omitempty"`
	Restrictions  []string `json:"restrictions,omitempty"`
	Goals         []string `json:"goals,omitempty"`
}

// Stats is the per-user counters block, stored as JSON.
type Stats struct {
	TotalSessions int        `json:"totalSessions"`
	TotalMeals    int        `json:"totalMeals"`
	StreakDays    int        `json:"streakDays"`
	LastActive    *time.Time `json:"lastActive,omitempty"`
}

// User is created lazily on first contact and never deleted.
type User struct {
	ID          string
	Email       string // unique, lowercased
	FirstName   string
	LastName    string
	Preferences Preferences
	Stats       Stats
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session status values.
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
	SessionAbandoned = "abandoned"
)

// Mood values tracked in the session context.
const (
	MoodPositive = "positive"
	MoodNeutral  = "neutral"
	MoodNegative = "negative"
)

// SessionContext is the opaque-ish per-session context map. Completion holds
// the payload of conversation_completed verbatim.
type SessionContext struct {
	LastMealType string         `json:"lastMealType,omitempty"`
	LastMealDate *time.Time     `json:"lastMealDate,omitempty"`
	Engagement   int            `json:"engagement,omitempty"` // 0–10
	Mood         string         `json:"mood,omitempty"`
	Completion   map[string]any `json:"completion,omitempty"`
}

// Session is unique by the client-supplied SessionID. Concurrent creations
// converge on one row via FindOrCreate.
type Session struct {
	ID        string
	SessionID string
	UserID    string
	UserEmail string
	Status    string
	Context   SessionContext
	StartTime time.Time
	EndTime   *time.Time
	UpdatedAt time.Time
}

// Message types within a conversation.
const (
	MessageUser = "user"
	MessageAI   = "ai"
)

// MessageMetadata annotates one conversation message.
type MessageMetadata struct {
	MealContext    string  `json:"mealContext,omitempty"`
	Sentiment      string  `json:"sentiment,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	ProcessingTime int64   `json:"processingTime,omitempty"` // milliseconds
}

// Message is one entry of the append-only conversation log.
type Message struct {
	Type      string          `json:"type"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Metadata  MessageMetadata `json:"metadata,omitempty"`
}

// Conversation completion status values.
const (
	CompletionIncomplete = "incomplete"
	CompletionComplete   = "complete"
	CompletionAbandoned  = "abandoned"
)

// ConversationSummary is the rollup sub-document on a conversation.
// CompletionStatus "complete" implies IsCompleteMeal.
type ConversationSummary struct {
	MealType         string   `json:"mealType,omitempty"`
	FoodsLogged      []string `json:"foodsLogged,omitempty"`
	TotalCalories    float64  `json:"totalCalories,omitempty"`
	CompletionStatus string   `json:"completionStatus,omitempty"`
	IsCompleteMeal   bool     `json:"isCompleteMeal,omitempty"`
}

// Conversation is 1:1 with a session and outlives it for history.
type Conversation struct {
	ID        string
	SessionID string
	UserID    string
	Messages  []Message
	Summary   ConversationSummary
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Meal types accepted for food entries.
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
	MealSnack     = "snack"
)

// ValidMealType reports whether s (after trimming and lowercasing) is one of
// the four accepted meal types.
func ValidMealType(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case MealBreakfast, MealLunch, MealDinner, MealSnack:
		return true
	}
	return false
}

// NormalizeMealType returns the canonical lowercase meal type.
func NormalizeMealType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FoodItem is one food within an entry. Macros are optional.
type FoodItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Calories float64 `json:"calories,omitempty"`
	Protein  float64 `json:"protein,omitempty"`
	Carbs    float64 `json:"carbs,omitempty"`
	Fat      float64 `json:"fat,omitempty"`
}

// FoodsFromLogged normalizes plain logged-food names into structured items
// with quantity 1 and no unit. Empty names are dropped.
func FoodsFromLogged(names []string) []FoodItem {
	items := make([]FoodItem, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		items = append(items, FoodItem{Name: n, Quantity: 1, Unit: ""})
	}
	return items
}

// SplitFoodsLogged splits a comma-separated foods string ("eggs, toast") into
// trimmed names.
func SplitFoodsLogged(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FoodEntry is the derived per-user meal ledger row, projected from completed
// intents. Not a source of truth.
type FoodEntry struct {
	ID            string
	UserID        string
	SessionID     string
	MealType      string
	Foods         []FoodItem
	TotalCalories float64
	TotalProtein  float64
	TotalCarbs    float64
	TotalFat      float64
	Date          time.Time
	CreatedAt     time.Time

	// FoodsLogged carries the raw logged names into Create, which normalizes
	// them into Foods when no structured items were provided. Not persisted.
	FoodsLogged []string
}

// AgentRecord is the agent header row. Sections and intents live in their own
// tables; the catalog composes the three into a compiled document.
type AgentRecord struct {
	ID        string
	Name      string
	About     string
	Mode      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SectionRecord groups intents under an agent, sorted by Order.
type SectionRecord struct {
	ID         string
	AgentID    string
	Name       string
	About      string
	Guidelines string
	Order      int
}

// IntentRecord is one conversational objective within a section. IntentID is
// numeric within the section and globally referenceable. FieldsRaw holds the
// stored fieldsToExtract value, which is either a JSON array of field objects
// or a legacy plain string; the catalog normalizes it.
type IntentRecord struct {
	SectionID   string
	IntentID    int64
	Prompt      string
	IsMandatory bool
	RetryLimit  int
	Order       int
	FieldsRaw   json.RawMessage
	Context     string
}

// IntentResponseRecord is the append log of structured extractions, keyed by
// (SessionID, ConversationRef, SectionID, IntentID). ConversationRef is the
// conversationId when the client supplies one, else the agentId.
type IntentResponseRecord struct {
	ID              string
	UserID          string
	SessionID       string
	ConversationRef string
	SectionID       string
	IntentID        string
	UserTranscript  string
	IntentPrompt    string
	Fields          map[string]string
	IsCompleted     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
