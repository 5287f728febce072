package protocol

import "encoding/json"

// RealtimeSessionRequest asks the server to mint an ephemeral credential for
// the upstream realtime voice API.
type RealtimeSessionRequest struct {
	UserEmail string `json:"userEmail"`
}

// ClientReadyRequest signals that the client finished its local setup and
// wants the compiled agent plus the user history snapshot.
type ClientReadyRequest struct {
	AgentID   string `json:"agentId"`
	UserEmail string `json:"userEmail,omitempty"`
}

// UserMessage carries one intent turn. The data field accepts either a bare
// JSON string (legacy clients) or this structured form.
type UserMessage struct {
	Prompt          string     `json:"prompt"`
	UserTranscript  string     `json:"userTranscript,omitempty"`
	ConversationID  string     `json:"conversationId,omitempty"`
	AgentID         string     `json:"agentId,omitempty"`
	SectionID       FlexString `json:"sectionId,omitempty"`
	IntentID        FlexString `json:"intentId,omitempty"`
	IntentPrompt    string     `json:"intentPrompt,omitempty"`
	STTConfidence   float64    `json:"sttConfidence,omitempty"`
	STTAlternatives []string   `json:"sttAlternatives,omitempty"`
}

// DecodeUserMessage accepts the bare-string and structured user_message forms.
func DecodeUserMessage(raw json.RawMessage) (UserMessage, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return UserMessage{Prompt: s}, nil
	}
	var m UserMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return UserMessage{}, err
	}
	return m, nil
}

// TTSRequest asks for standalone speech synthesis.
type TTSRequest struct {
	Text string `json:"text"`
}

// DecodeTTSRequest accepts {"text": "..."} or a bare string.
func DecodeTTSRequest(raw json.RawMessage) (TTSRequest, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return TTSRequest{Text: s}, nil
	}
	var r TTSRequest
	if err := json.Unmarshal(raw, &r); err != nil {
		return TTSRequest{}, err
	}
	return r, nil
}

// SummaryTurn is one line of client-provided conversation history.
type SummaryTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// ConversationSummaryRequest asks for a bullet digest of the provided turns.
type ConversationSummaryRequest struct {
	ConversationHistory []SummaryTurn `json:"conversationHistory"`
	AgentID             string        `json:"agentId,omitempty"`
}

// ConversationCompleted finalizes the session. CompletedFields is the
// client-accumulated extraction result and is stored opaquely on the session.
type ConversationCompleted struct {
	CompletedFields     map[string]any `json:"completedFields"`
	ConversationHistory []SummaryTurn  `json:"conversationHistory,omitempty"`
	AgentID             string         `json:"agentId,omitempty"`
}
