package llm

import (
	"strings"
	"testing"
)

func TestFoldForAPIExtractsSystemAndMerges(t *testing.T) {
	system, turns, err := foldForAPI([]MessagePart{
		{Role: RoleSystem, Content: "you are the log analyst"},
		{Role: RoleUser, Content: "incident summary"},
		{Role: RoleUser, Content: "log excerpt"},
		{Role: RoleAssistant, Content: "first finding"},
		{Role: RoleSystem, Content: "stay factual"},
		{Role: RoleUser, Content: "follow-up question"},
	})
	if err != nil {
		t.Fatalf("foldForAPI() error = %v", err)
	}

	if system != "you are the log analyst\n\nstay factual" {
		t.Errorf("system = %q", system)
	}
	if len(turns) != 3 {
		t.Fatalf("len(turns) = %d, want 3", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Content != "incident summary\n\nlog excerpt" {
		t.Errorf("turns[0] = %+v, want merged user part", turns[0])
	}
	if turns[1].Role != RoleAssistant {
		t.Errorf("turns[1].Role = %s, want assistant", turns[1].Role)
	}
	if turns[2].Role != RoleUser {
		t.Errorf("turns[2].Role = %s, want user", turns[2].Role)
	}
}

func TestFoldForAPIRejectsBadSequences(t *testing.T) {
	tests := []struct {
		name  string
		parts []MessagePart
	}{
		{"empty", nil},
		{"system only", []MessagePart{{Role: RoleSystem, Content: "x"}}},
		{"opens with assistant", []MessagePart{{Role: RoleAssistant, Content: "x"}}},
		{"consecutive assistants", []MessagePart{
			{Role: RoleUser, Content: "a"},
			{Role: RoleAssistant, Content: "b"},
			{Role: RoleAssistant, Content: "c"},
			{Role: RoleUser, Content: "d"},
		}},
		{"ends with assistant", []MessagePart{
			{Role: RoleUser, Content: "a"},
			{Role: RoleAssistant, Content: "b"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := foldForAPI(tt.parts); err == nil {
				t.Errorf("foldForAPI(%s) expected error", tt.name)
			}
		})
	}
}

func TestFlattenLabelsRoles(t *testing.T) {
	got := flatten([]MessagePart{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "what broke?"},
		{Role: RoleAssistant, Content: "the cache"},
		{Role: RoleUser, Content: "evidence?"},
	})

	want := "System: be terse\n\nwhat broke?\n\nAssistant: the cache\n\nevidence?"
	if got != want {
		t.Errorf("flatten() = %q, want %q", got, want)
	}
}

func TestWithSchemaHintAppendsToFinalPart(t *testing.T) {
	parts := []MessagePart{
		{Role: RoleUser, Content: "analyze this"},
	}
	hinted := withSchemaHint(parts, `{"conclusion": "...", "confidence": 0.0}`)

	if !strings.Contains(hinted[0].Content, `{"conclusion"`) {
		t.Error("hint not appended to final part")
	}
	if parts[0].Content != "analyze this" {
		t.Error("withSchemaHint mutated the caller's slice")
	}
}

func TestWithSchemaHintNoHintNoCopy(t *testing.T) {
	parts := []MessagePart{{Role: RoleUser, Content: "x"}}
	if got := withSchemaHint(parts, ""); &got[0] != &parts[0] {
		t.Error("empty hint should return the input unchanged")
	}
}

func TestCapOutput(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		requested int
		want      int
	}{
		{"within limit", "claude-sonnet-4-5", 4000, 4000},
		{"above limit", "claude-sonnet-4-5", 100000, 8192},
		{"zero uses model max", "claude-sonnet-4-5", 0, 8192},
		{"unknown model default", "mystery-model", 100000, 4096},
		{"unknown model within default", "mystery-model", 1000, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := capOutput(tt.model, tt.requested); got != tt.want {
				t.Errorf("capOutput(%s, %d) = %d, want %d", tt.model, tt.requested, got, tt.want)
			}
		})
	}
}

func TestParseObject(t *testing.T) {
	if got := parseObject(` {"conclusion": "disk full", "confidence": 0.8} `); got == nil {
		t.Error("parseObject() = nil for valid object")
	} else if got["conclusion"] != "disk full" {
		t.Errorf("parseObject()[conclusion] = %v", got["conclusion"])
	}

	for _, text := range []string{
		"plain prose answer",
		`["array", "not", "object"]`,
		"```json\n{\"fenced\": true}\n```",
		`{"truncated": "obj`,
		"",
	} {
		if got := parseObject(text); got != nil {
			t.Errorf("parseObject(%q) = %v, want nil", text, got)
		}
	}
}
