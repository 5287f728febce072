package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// TestFlexString_Decode verifies ids land as strings no matter whether the
// client sent a JSON string, a number, or null.
func TestFlexString_Decode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want FlexString
	}{
		{"string", `"42"`, "42"},
		{"integer", `7`, "7"},
		{"float", `3.5`, "3.5"},
		{"null", `null`, ""},
		{"empty string", `""`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexString
			if err := f.UnmarshalJSON([]byte(tt.raw)); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.raw, err)
			}
			if f != tt.want {
				t.Errorf("got %q, want %q", f, tt.want)
			}
		})
	}

	var f FlexString
	if err := f.UnmarshalJSON([]byte(`true`)); err == nil {
		t.Error("expected error for a boolean id")
	}
}

// TestDecodeUserMessage verifies both accepted data shapes: the bare string
// legacy clients send and the structured form with numeric ids.
func TestDecodeUserMessage(t *testing.T) {
	m, err := DecodeUserMessage(json.RawMessage(`"I had eggs for breakfast"`))
	if err != nil {
		t.Fatalf("bare string: %v", err)
	}
	if m.Prompt != "I had eggs for breakfast" {
		t.Errorf("prompt = %q", m.Prompt)
	}

	raw := json.RawMessage(`{
		"prompt": "two eggs and toast",
		"conversationId": "conv-1",
		"sectionId": "sec-1",
		"intentId": 2,
		"sttConfidence": 0.93
	}`)
	m, err = DecodeUserMessage(raw)
	if err != nil {
		t.Fatalf("structured: %v", err)
	}
	if m.Prompt != "two eggs and toast" || m.ConversationID != "conv-1" {
		t.Errorf("decoded %+v", m)
	}
	if m.SectionID.String() != "sec-1" || m.IntentID.String() != "2" {
		t.Errorf("ids = %q / %q, want sec-1 / 2", m.SectionID, m.IntentID)
	}
	if m.STTConfidence != 0.93 {
		t.Errorf("confidence = %v, want 0.93", m.STTConfidence)
	}

	if _, err := DecodeUserMessage(json.RawMessage(`[1,2]`)); err == nil {
		t.Error("expected error for an array payload")
	}
}

// TestDecodeTTSRequest verifies the bare-string and object forms.
func TestDecodeTTSRequest(t *testing.T) {
	r, err := DecodeTTSRequest(json.RawMessage(`"speak this"`))
	if err != nil {
		t.Fatalf("bare string: %v", err)
	}
	if r.Text != "speak this" {
		t.Errorf("text = %q", r.Text)
	}

	r, err = DecodeTTSRequest(json.RawMessage(`{"text": "and this"}`))
	if err != nil {
		t.Fatalf("object: %v", err)
	}
	if r.Text != "and this" {
		t.Errorf("text = %q", r.Text)
	}

	if _, err := DecodeTTSRequest(json.RawMessage(`42`)); err == nil {
		t.Error("expected error for a numeric payload")
	}
}

func TestNewFrame(t *testing.T) {
	ts := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	f, err := NewFrame(TypeAIResponse, "sess-1", AIResponse{
		IntentResponse: IntentResponse{ID: "2", NextPrompt: "What size was the portion?"},
	}, ts)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	if f.Type != TypeAIResponse || f.SessionID != "sess-1" {
		t.Errorf("envelope = %+v", f)
	}
	if f.Timestamp != ts.UnixMilli() {
		t.Errorf("timestamp = %d, want %d", f.Timestamp, ts.UnixMilli())
	}

	var p AIResponse
	if err := json.Unmarshal(f.Data, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.IntentResponse.NextPrompt != "What size was the portion?" {
		t.Errorf("payload lost the prompt: %+v", p)
	}
}

// TestNewFrame_NilPayload verifies data-less frames omit the data key rather
// than sending "data": null.
func TestNewFrame_NilPayload(t *testing.T) {
	f, err := NewFrame(TypeStatus, "sess-1", nil, time.Now())
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	if f.Data != nil {
		t.Errorf("data = %s, want none", f.Data)
	}
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), `"data"`) {
		t.Errorf("nil payload must omit the data key: %s", b)
	}
}

func TestNewFrame_UnmarshalablePayload(t *testing.T) {
	if _, err := NewFrame(TypeTest, "sess-1", make(chan int), time.Now()); err == nil {
		t.Error("expected marshal error")
	}
}

// TestFrame_WireRoundTrip walks one frame through the full wire path: build,
// marshal, decode the envelope, decode the payload.
func TestFrame_WireRoundTrip(t *testing.T) {
	f, err := NewFrame(TypeUserMessage, "sess-wire", UserMessage{Prompt: "hi", IntentID: "3"}, time.Now())
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Frame
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if back.Type != TypeUserMessage || back.SessionID != "sess-wire" {
		t.Errorf("envelope = %+v", back)
	}

	m, err := DecodeUserMessage(back.Data)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if m.Prompt != "hi" || m.IntentID != "3" {
		t.Errorf("payload = %+v", m)
	}
}
