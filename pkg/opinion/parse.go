package opinion

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// knownKeys are the field names the keyed-substring scan looks for when a
// reply is not parseable as a whole. Aliases accepted by the extraction
// helpers are listed alongside their primary names so the scan can recover
// either spelling.
var knownKeys = []string{
	"summary", "analysis_summary",
	"conclusion", "final_conclusion",
	"evidence", "evidence_list",
	"confidence", "confidence_score",
	"root_cause",
	"evidence_chain",
	"fix_recommendation", "fix",
	"impact_analysis", "impact",
	"risk_assessment", "risk_level", "risk_factors",
	"decision_rationale", "rationale",
	"action_items", "actions",
	"assignments", "responsible_parties",
	"dissenting_opinions", "dissents",
	"next_step", "next_action",
	"should_stop", "stop",
	"stop_reason",
	"reason", "routing_reason",
	"commands", "agent_commands",
	"unresolved_questions", "open_questions",
}

// parseLoose recovers a JSON object from raw model text through a bounded
// fallback chain: strict parse, repaired parse, keyed-substring scan,
// largest balanced object. Returns false when nothing object-shaped can be
// recovered; the caller then builds an empty record.
func parseLoose(text string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	if m, ok := parseStrict(trimmed); ok {
		return m, true
	}
	if m, ok := parseRepaired(trimmed); ok {
		return m, true
	}
	if m, ok := scanKeyed(trimmed); ok {
		return m, true
	}
	return largestObject(trimmed)
}

func parseStrict(text string) (map[string]any, bool) {
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, false
	}
	return m, true
}

// parseRepaired lets jsonrepair fix the usual model damage: trailing
// commas, single quotes, unquoted keys, unclosed braces. Repair output
// that is not a non-empty object does not count as a recovery.
func parseRepaired(text string) (map[string]any, bool) {
	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(repaired), &m); err != nil {
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	return m, true
}

// scanKeyed pulls `"key": value` pairs for known keys straight out of
// mixed prose, for replies that quote their fields without forming a
// complete object. Only quoted keys followed by a colon are honored.
func scanKeyed(text string) (map[string]any, bool) {
	m := make(map[string]any)
	for _, key := range knownKeys {
		needle := `"` + key + `"`
		idx := strings.Index(text, needle)
		if idx < 0 {
			continue
		}
		rest := strings.TrimLeft(text[idx+len(needle):], " \t\r\n")
		if !strings.HasPrefix(rest, ":") {
			continue
		}
		if v, ok := decodeOne(strings.TrimLeft(rest[1:], " \t\r\n")); ok {
			m[key] = v
		}
	}
	if len(m) == 0 {
		return nil, false
	}
	return m, true
}

// decodeOne decodes the first JSON value at the head of s, ignoring
// whatever trails it.
func decodeOne(s string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// largestObject finds balanced {...} spans in the text and returns the
// largest one that parses as a non-empty object, repairing candidates
// that fail the strict pass.
func largestObject(text string) (map[string]any, bool) {
	var best map[string]any
	bestLen := 0
	for _, span := range balancedSpans(text) {
		if len(span) <= bestLen {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(span), &m); err != nil {
			repaired, rerr := jsonrepair.JSONRepair(span)
			if rerr != nil {
				continue
			}
			if err := json.Unmarshal([]byte(repaired), &m); err != nil {
				continue
			}
		}
		if len(m) == 0 {
			continue
		}
		best = m
		bestLen = len(span)
	}
	return best, best != nil
}

// balancedSpans returns every top-level balanced {...} substring of text,
// honoring string literals and escapes so braces inside values do not
// split a span.
func balancedSpans(text string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				spans = append(spans, text[start:i+1])
				start = -1
			}
		}
	}
	return spans
}
