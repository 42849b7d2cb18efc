package llm

import (
	"fmt"
	"strings"
	"testing"

	"aiplatform/internal/models"
)

func msg(role, content string) models.Message {
	return models.Message{Role: role, Content: content}
}

func TestBuildPromptEmptyHistory(t *testing.T) {
	got := BuildPrompt(nil, "hello there", DefaultContextPolicy())
	want := "User: hello there\nAssistant:"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildPromptWithHistory(t *testing.T) {
	history := []models.Message{
		msg(models.RoleMsgUser, "what is Go?"),
		msg(models.RoleMsgAssistant, "A programming language."),
	}

	got := BuildPrompt(history, "who made it?", DefaultContextPolicy())
	want := "User: what is Go?\nAssistant: A programming language.\nUser: who made it?\nAssistant:"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildPromptExcludesFallbackTurns(t *testing.T) {
	history := []models.Message{
		msg(models.RoleMsgUser, "first question"),
		msg(models.RoleMsgAssistant, "sorry "+FallbackMarker),
		msg(models.RoleMsgUser, "second question"),
		msg(models.RoleMsgAssistant, "real answer"),
		msg(models.RoleMsgAssistant, "old style "+LegacyFallbackMarker),
	}

	got := BuildPrompt(history, "third question", DefaultContextPolicy())
	if strings.Contains(got, FallbackMarker) || strings.Contains(got, LegacyFallbackMarker) {
		t.Errorf("fallback turns leaked into prompt: %q", got)
	}
	if !strings.Contains(got, "real answer") {
		t.Errorf("real turns must survive: %q", got)
	}
	// User turns around the fallback are kept
	if !strings.Contains(got, "first question") {
		t.Errorf("user turn dropped: %q", got)
	}
}

func TestBuildPromptTurnLimit(t *testing.T) {
	var history []models.Message
	for i := 0; i < 50; i++ {
		history = append(history, msg(models.RoleMsgUser, fmt.Sprintf("turn-%d", i)))
	}

	got := BuildPrompt(history, "now", ContextPolicy{MaxTurns: 10})

	if strings.Contains(got, "turn-39\n") {
		t.Error("turns beyond the limit were kept")
	}
	for i := 40; i < 50; i++ {
		if !strings.Contains(got, fmt.Sprintf("turn-%d", i)) {
			t.Errorf("recent turn-%d missing", i)
		}
	}
}

func TestBuildPromptCharBudget(t *testing.T) {
	long := strings.Repeat("x", 400)
	var history []models.Message
	for i := 0; i < 20; i++ {
		history = append(history, msg(models.RoleMsgUser, long))
	}

	policy := ContextPolicy{MaxChars: 1000}
	got := BuildPrompt(history, "q", policy)

	tail := "User: q\nAssistant:"
	historyLen := len(got) - len(tail)
	if historyLen > policy.MaxChars {
		t.Errorf("history portion %d exceeds budget %d", historyLen, policy.MaxChars)
	}
	if !strings.HasSuffix(got, tail) {
		t.Errorf("prompt must end with the new turn cue, got %q", got[len(got)-40:])
	}
	// Newest history survives trimming
	if historyLen == 0 {
		t.Error("budget large enough for at least one line, but all history dropped")
	}
}

func TestBuildPromptBudgetDropsOldestFirst(t *testing.T) {
	history := []models.Message{
		msg(models.RoleMsgUser, "oldest"),
		msg(models.RoleMsgUser, "middle"),
		msg(models.RoleMsgUser, "newest"),
	}

	// Budget fits two lines ("User: middle\n" and "User: newest\n")
	got := BuildPrompt(history, "q", ContextPolicy{MaxChars: 27})
	if strings.Contains(got, "oldest") {
		t.Errorf("oldest line should be trimmed first: %q", got)
	}
	if !strings.Contains(got, "newest") {
		t.Errorf("newest line must survive: %q", got)
	}
}

func TestBuildPromptSystemRole(t *testing.T) {
	history := []models.Message{
		msg(models.RoleMsgSystem, "be brief"),
	}
	got := BuildPrompt(history, "hi", DefaultContextPolicy())
	if !strings.Contains(got, "System: be brief") {
		t.Errorf("system turn mislabeled: %q", got)
	}
}
