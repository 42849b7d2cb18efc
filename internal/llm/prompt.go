package llm

import (
	"strings"

	"aiplatform/internal/models"
)

// ContextPolicy bounds how much conversation history is folded into a
// prompt. MaxTurns keeps the most recent N turns; MaxChars caps the
// rendered history text. Zero values disable the respective bound.
type ContextPolicy struct {
	MaxTurns int
	MaxChars int
}

// DefaultContextPolicy mirrors the production default of ten prior turns
func DefaultContextPolicy() ContextPolicy {
	return ContextPolicy{MaxTurns: 10}
}

// BuildPrompt renders conversation history plus the new user message into
// a single prompt string:
//
//	User: earlier question
//	Assistant: earlier answer
//	User: new message
//	Assistant:
//
// Assistant turns that are fallback responses are excluded so degraded
// output never pollutes future context. History may be empty; the result
// then degrades to just the new message and the assistant cue.
func BuildPrompt(history []models.Message, newMessage string, policy ContextPolicy) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		if m.Role == models.RoleMsgAssistant && IsFallbackContent(m.Content) {
			continue
		}
		lines = append(lines, roleLabel(m.Role)+": "+m.Content)
	}

	if policy.MaxTurns > 0 && len(lines) > policy.MaxTurns {
		lines = lines[len(lines)-policy.MaxTurns:]
	}

	if policy.MaxChars > 0 {
		lines = trimToBudget(lines, policy.MaxChars)
	}

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(newMessage)
	b.WriteString("\nAssistant:")
	return b.String()
}

// trimToBudget drops the oldest lines until the rendered history fits
// the character budget. Newest context survives first.
func trimToBudget(lines []string, budget int) []string {
	total := 0
	keepFrom := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		cost := len(lines[i]) + 1 // newline
		if total+cost > budget {
			break
		}
		total += cost
		keepFrom = i
	}
	return lines[keepFrom:]
}

func roleLabel(role string) string {
	switch role {
	case models.RoleMsgAssistant:
		return "Assistant"
	case models.RoleMsgSystem:
		return "System"
	default:
		return "User"
	}
}
