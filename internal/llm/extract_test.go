package llm

import (
	"testing"
)

// TestExtract_CleanJSON verifies a plain envelope parses as-is.
func TestExtract_CleanJSON(t *testing.T) {
	resp := ExtractIntentResponse(`{"id":"2","isCompleted":true,"fields":{"mealType":"lunch"},"nextPrompt":"Anything else?"}`)
	if resp.ID != "2" {
		t.Errorf("id = %q, want 2", resp.ID)
	}
	if !resp.IsCompleted {
		t.Error("expected isCompleted true")
	}
	if resp.Fields["mealType"] != "lunch" {
		t.Errorf("mealType = %q, want lunch", resp.Fields["mealType"])
	}
	if resp.NextPrompt != "Anything else?" {
		t.Errorf("nextPrompt = %q", resp.NextPrompt)
	}
}

// TestExtract_FencedJSON verifies markdown code fences are stripped, with
// and without a language tag.
func TestExtract_FencedJSON(t *testing.T) {
	for _, raw := range []string{
		"```json\n{\"id\":\"1\",\"isCompleted\":false,\"fields\":{},\"nextPrompt\":\"hi\"}\n```",
		"```\n{\"id\":\"1\",\"isCompleted\":false,\"fields\":{},\"nextPrompt\":\"hi\"}\n```",
	} {
		resp := ExtractIntentResponse(raw)
		if resp.ID != "1" || resp.NextPrompt != "hi" {
			t.Errorf("fenced parse failed for %q: %+v", raw, resp)
		}
	}
}

// TestExtract_ProseAroundJSON verifies the brace slice rescues JSON wrapped
// in explanation text.
func TestExtract_ProseAroundJSON(t *testing.T) {
	raw := `Sure! Here is the result you asked for:
{"id":"3","isCompleted":true,"fields":{"foodsLogged":"rice"},"nextPrompt":""}
Let me know if you need anything else.`
	resp := ExtractIntentResponse(raw)
	if resp.ID != "3" || !resp.IsCompleted {
		t.Errorf("prose-wrapped parse failed: %+v", resp)
	}
	if resp.Fields["foodsLogged"] != "rice" {
		t.Errorf("foodsLogged = %q", resp.Fields["foodsLogged"])
	}
}

// TestExtract_TrailingComma verifies the repair pass removes trailing
// commas before closing braces.
func TestExtract_TrailingComma(t *testing.T) {
	resp := ExtractIntentResponse(`{"id":"4","isCompleted":false,"fields":{"a":"1",},"nextPrompt":"go on",}`)
	if resp.ID != "4" || resp.Fields["a"] != "1" {
		t.Errorf("trailing comma repair failed: %+v", resp)
	}
}

// TestExtract_SmartQuotes verifies typographic quotes are normalized before
// parsing.
func TestExtract_SmartQuotes(t *testing.T) {
	resp := ExtractIntentResponse("{\u201cid\u201d:\u201c5\u201d,\u201cisCompleted\u201d:true,\u201cfields\u201d:{},\u201cnextPrompt\u201d:\u201cok\u201d}")
	if resp.ID != "5" || !resp.IsCompleted || resp.NextPrompt != "ok" {
		t.Errorf("smart quote repair failed: %+v", resp)
	}
}

// TestExtract_LooseTypes verifies numeric ids, string booleans and
// non-string field values are coerced rather than rejected.
func TestExtract_LooseTypes(t *testing.T) {
	resp := ExtractIntentResponse(`{"id":7,"isCompleted":"true","fields":{"count":3,"done":false,"note":null},"nextPrompt":""}`)
	if resp.ID != "7" {
		t.Errorf("numeric id = %q, want 7", resp.ID)
	}
	if !resp.IsCompleted {
		t.Error("string boolean not coerced")
	}
	if resp.Fields["count"] != "3" || resp.Fields["done"] != "false" || resp.Fields["note"] != "" {
		t.Errorf("field coercion: %+v", resp.Fields)
	}
}

// TestExtract_Garbage verifies unreadable output degrades to the default
// envelope instead of an error.
func TestExtract_Garbage(t *testing.T) {
	for _, raw := range []string{
		"I could not produce JSON, sorry.",
		"",
		"{broken: [}",
	} {
		resp := ExtractIntentResponse(raw)
		if resp == nil {
			t.Fatalf("nil response for %q", raw)
		}
		if resp.ID != "" || resp.IsCompleted || len(resp.Fields) != 0 || resp.NextPrompt != "" {
			t.Errorf("expected default envelope for %q, got %+v", raw, resp)
		}
	}
}

// TestExtract_IntentIDHeader verifies the id header is honored on its own
// line and inline, and that a JSON-supplied id wins over the header.
func TestExtract_IntentIDHeader(t *testing.T) {
	resp := ExtractIntentResponse("Intent ID:\n6\n{\"isCompleted\":false,\"fields\":{},\"nextPrompt\":\"next\"}")
	if resp.ID != "6" {
		t.Errorf("next-line header id = %q, want 6", resp.ID)
	}

	resp = ExtractIntentResponse("Intent ID: 8\n{\"isCompleted\":false,\"fields\":{},\"nextPrompt\":\"\"}")
	if resp.ID != "8" {
		t.Errorf("inline header id = %q, want 8", resp.ID)
	}

	resp = ExtractIntentResponse("Intent ID: 8\n{\"id\":\"9\",\"isCompleted\":false,\"fields\":{},\"nextPrompt\":\"\"}")
	if resp.ID != "9" {
		t.Errorf("JSON id should win over header, got %q", resp.ID)
	}

	// Header with garbage after it still yields the id.
	resp = ExtractIntentResponse("Intent ID:\n12\nnot json at all")
	if resp.ID != "12" || resp.IsCompleted {
		t.Errorf("header with garbage body: %+v", resp)
	}
}

// TestParseIntentIDHeader_NotAHeader verifies text that merely mentions the
// marker mid-body is left alone.
func TestParseIntentIDHeader_NotAHeader(t *testing.T) {
	raw := `{"id":"1","isCompleted":false,"fields":{"note":"Intent ID: 99"},"nextPrompt":""}`
	id, rest := ParseIntentIDHeader(raw)
	if id != "" {
		t.Errorf("id = %q, want empty", id)
	}
	if rest != raw {
		t.Errorf("rest was altered: %q", rest)
	}
}

// TestFindIntentIDHeader verifies header extraction from composed client
// prompts, where the marker sits among other instructions.
func TestFindIntentIDHeader(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"next line", "You are collecting data.\nIntent ID:\n3221\nAsk for the user's name.", "3221"},
		{"inline", "Context here. Intent ID: 42 and then more text", "42"},
		{"trailing punctuation", "Intent ID:\n3221.\nmore", "3221"},
		{"no marker", "just a prompt with no header", ""},
		{"marker then payload", "Intent ID:\n{\"id\":\"7\"}", ""},
		{"blank after marker", "Intent ID:\n\n  \n88", "88"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FindIntentIDHeader(tc.in); got != tc.want {
				t.Fatalf("FindIntentIDHeader(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
