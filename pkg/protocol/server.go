package protocol

import "time"

// ClientSecret is the ephemeral credential handed to the browser for its
// direct connection to the realtime voice API.
type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

// RealtimeSessionResponse answers a realtime_session_request.
type RealtimeSessionResponse struct {
	ClientSecret ClientSecret `json:"client_secret"`
	Model        string       `json:"model"`
	Voice        string       `json:"voice"`
}

// IntentResponse is the strict JSON contract the LLM must honor for every
// intent turn. Fields maps extracted field names to string values.
type IntentResponse struct {
	ID          string            `json:"id"`
	IsCompleted bool              `json:"isCompleted"`
	Fields      map[string]string `json:"fields"`
	NextPrompt  string            `json:"nextPrompt"`
}

// AIResponse answers a user_message turn.
type AIResponse struct {
	IntentResponse IntentResponse `json:"intentResponse"`
}

// TTSResponse carries synthesized speech. Audio is base64; Duration is an
// estimate in milliseconds when the provider reports none.
type TTSResponse struct {
	Text     string `json:"text"`
	Audio    string `json:"audio"`
	Duration int    `json:"duration"`
}

// ConversationSummaryResponse answers a conversation_summary_request.
type ConversationSummaryResponse struct {
	Summary string `json:"summary"`
}

// StatusPayload is an informational server notice.
type StatusPayload struct {
	Message string `json:"message"`
}

// ErrorPayload reports a per-message failure without dropping the connection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Field describes one value an intent extracts from the user's answer.
type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Example     string `json:"example,omitempty"`
	Validation  string `json:"validation,omitempty"`
}

// Intent is a single conversational objective inside a section.
type Intent struct {
	ID              string  `json:"id"`
	Intent          string  `json:"intent"`
	IsMandatory     bool    `json:"isMandatory"`
	RetryLimit      int     `json:"retryLimit"`
	FieldsToExtract []Field `json:"fieldsToExtract,omitempty"`
	Context         string  `json:"context,omitempty"`
}

// Section groups ordered intents under a shared topic. Introduction intents
// are split out of Intents so the client can play them once up front.
type Section struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	About        string   `json:"about,omitempty"`
	Guidelines   string   `json:"guidelines,omitempty"`
	Introduction []Intent `json:"introduction"`
	Intents      []Intent `json:"intents"`
}

// CompiledAgent is the denormalized traversable agent document. The _id key
// matches what deployed clients already parse.
type CompiledAgent struct {
	ID       string    `json:"_id"`
	Name     string    `json:"name"`
	About    string    `json:"about,omitempty"`
	Mode     []string  `json:"mode,omitempty"`
	Sections []Section `json:"sections"`
}

// UserStats is the persistent per-user counters block.
type UserStats struct {
	TotalMeals    int `json:"totalMeals"`
	TotalSessions int `json:"totalSessions"`
}

// UserInfo is the recent-activity snapshot returned with client_ready_response.
type UserInfo struct {
	HasInteractedBefore bool       `json:"hasInteractedBefore"`
	TotalConversations  int        `json:"totalConversations"`
	TotalSessions       int        `json:"totalSessions"`
	LastInteractionDate *time.Time `json:"lastInteractionDate,omitempty"`
	LastSessionDate     *time.Time `json:"lastSessionDate,omitempty"`
	AverageEngagement   float64    `json:"averageEngagement"`
	LastMealType        string     `json:"lastMealType,omitempty"`
	LastMealDate        *time.Time `json:"lastMealDate,omitempty"`
	UserStats           UserStats  `json:"userStats"`
}

// ClientReadyResponse answers client_ready_request with the compiled agent
// and the user snapshot.
type ClientReadyResponse struct {
	Agent    *CompiledAgent `json:"agent"`
	UserInfo UserInfo       `json:"userInfo"`
}
