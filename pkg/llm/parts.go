package llm

import (
	"fmt"
	"strings"

	"inquest/pkg/config"
)

// foldForAPI prepares parts for providers that want a separate system prompt
// and strict user/assistant alternation ending on a user turn. System parts
// are extracted and joined, consecutive user parts are merged, and the
// resulting sequence is validated.
func foldForAPI(parts []MessagePart) (string, []MessagePart, error) {
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("prompt must contain at least one part")
	}

	var systemParts []string
	var turns []MessagePart
	var pendingUser []string

	flush := func() {
		if len(pendingUser) > 0 {
			turns = append(turns, MessagePart{Role: RoleUser, Content: strings.Join(pendingUser, "\n\n")})
			pendingUser = nil
		}
	}

	for i := range parts {
		part := &parts[i]
		switch part.Role {
		case RoleSystem:
			systemParts = append(systemParts, part.Content)
		case RoleAssistant:
			flush()
			if len(turns) == 0 {
				return "", nil, fmt.Errorf("conversation cannot open with an assistant part")
			}
			if turns[len(turns)-1].Role == RoleAssistant {
				return "", nil, fmt.Errorf("consecutive assistant parts at index %d", i)
			}
			turns = append(turns, MessagePart{Role: RoleAssistant, Content: part.Content})
		default:
			pendingUser = append(pendingUser, part.Content)
		}
	}
	flush()

	if len(turns) == 0 {
		return "", nil, fmt.Errorf("prompt must contain at least one user part")
	}
	if turns[len(turns)-1].Role != RoleUser {
		return "", nil, fmt.Errorf("conversation must end with a user part")
	}
	return strings.Join(systemParts, "\n\n"), turns, nil
}

// flatten renders parts into a single labelled transcript for providers
// that take one input blob.
func flatten(parts []MessagePart) string {
	var sb strings.Builder
	for i := range parts {
		part := &parts[i]
		switch part.Role {
		case RoleSystem:
			fmt.Fprintf(&sb, "System: %s\n\n", part.Content)
		case RoleAssistant:
			fmt.Fprintf(&sb, "Assistant: %s\n\n", part.Content)
		default:
			sb.WriteString(part.Content)
			sb.WriteString("\n\n")
		}
	}
	return strings.TrimSuffix(sb.String(), "\n\n")
}

// withSchemaHint appends the JSON shape instruction to the final part.
// The hint travels with the outgoing payload only; it is never committed
// to session history.
func withSchemaHint(parts []MessagePart, hint string) []MessagePart {
	if hint == "" || len(parts) == 0 {
		return parts
	}
	out := make([]MessagePart, len(parts))
	copy(out, parts)
	last := &out[len(out)-1]
	last.Content = last.Content + "\n\nRespond with a single JSON object of this shape:\n" + hint
	return out
}

// capOutput clamps the requested output budget to the model's documented
// limit so providers do not reject the call outright.
func capOutput(model string, requested int) int {
	info, _ := config.GetModelInfo(model)
	if requested <= 0 {
		return info.MaxOutputTokens
	}
	if info.MaxOutputTokens > 0 && requested > info.MaxOutputTokens {
		return info.MaxOutputTokens
	}
	return requested
}
