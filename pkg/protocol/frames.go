// Package protocol defines the WebSocket wire contract between voice clients
// and the govoice gateway.
//
// Every message in both directions is a JSON frame envelope:
//
//	{"type": "user_message", "sessionId": "s1", "data": {...}, "timestamp": 1712345678901}
//
// The type field discriminates the payload carried in data. Unknown types are
// ignored by both sides so that either end can ship new frames first.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProtocolVersion is bumped on breaking changes to the frame contract.
const ProtocolVersion = 1

// Client→server frame types.
const (
	TypeRealtimeSessionRequest     = "realtime_session_request"
	TypeClientReadyRequest         = "client_ready_request"
	TypeUserMessage                = "user_message"
	TypeTTSRequest                 = "tts_request"
	TypeConversationSummaryRequest = "conversation_summary_request"
	TypeConversationCompleted      = "conversation_completed"
	TypeTest                       = "test"
)

// Server→client frame types.
const (
	TypeRealtimeSessionResponse     = "realtime_session_response"
	TypeClientReadyResponse         = "client_ready_response"
	TypeAIResponse                  = "ai_response"
	TypeTTSResponse                 = "tts_response"
	TypeConversationSummaryResponse = "conversation_summary_response"
	TypeStatus                      = "status"
	TypeError                       = "error"
)

// GreetingCommand is the in-band user_message text that requests a spoken
// greeting instead of an intent turn. Rate limited per user.
const GreetingCommand = "!request_greeting"

// Frame is the envelope for all WebSocket traffic.
type Frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"` // unix milliseconds
}

// NewFrame marshals payload into a frame envelope stamped with ts.
func NewFrame(frameType, sessionID string, payload any, ts time.Time) (*Frame, error) {
	f := &Frame{Type: frameType, SessionID: sessionID, Timestamp: ts.UnixMilli()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", frameType, err)
		}
		f.Data = data
	}
	return f, nil
}

// FlexString decodes a JSON string or number into a string. Client frames
// carry intent and section ids both ways depending on the caller.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }
