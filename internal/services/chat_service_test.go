package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"aiplatform/internal/llm"
	"aiplatform/internal/models"
)

func TestRespondRoutesCodeToCodingModel(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, false, 10)
	userID := insertUser(t, db, "dev@test.io", models.RoleUser, models.TierFree, nil)

	result, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{
		Message: "please debug this python function",
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	if result.Model != "codellama" {
		t.Errorf("model = %s, want codellama", result.Model)
	}
	if result.Response != "coding answer" {
		t.Errorf("response = %q", result.Response)
	}
	if result.MessageID == 0 || result.SessionID == 0 {
		t.Error("persisted IDs missing from result")
	}

	// Both turns persisted, assistant turn tagged with the model
	history, err := stack.sessions.History(userID, 1, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if history.Total != 2 {
		t.Fatalf("persisted %d messages, want 2", history.Total)
	}
	newest := history.Messages[0]
	if newest.Role != models.RoleMsgAssistant || newest.Model != "codellama" {
		t.Errorf("assistant turn = %+v", newest)
	}
}

func TestRespondGeneralGoesToDefault(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, false, 10)
	userID := insertUser(t, db, "u@test.io", models.RoleUser, models.TierFree, nil)

	result, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{
		Message: "how was your weekend?",
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if result.Model != "mistral" {
		t.Errorf("model = %s, want mistral", result.Model)
	}
}

func TestRespondPremiumGateBlocksFreeTier(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, false, 10)
	userID := insertUser(t, db, "free@test.io", models.RoleUser, models.TierFree, nil)

	// PDF content routes to the premium document model
	_, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{
		Message: "extract text from this pdf please",
	})
	if !errors.Is(err, ErrUpgradeRequired) {
		t.Fatalf("err = %v, want ErrUpgradeRequired", err)
	}

	// Nothing persisted for a blocked request
	history, _ := stack.sessions.History(userID, 1, 10)
	if history.Total != 0 {
		t.Errorf("blocked request persisted %d messages", history.Total)
	}
}

func TestRespondPremiumUserGetsDocumentModelFallback(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, false, 10)
	userID := insertUser(t, db, "prem@test.io", models.RoleUser, models.TierPremium, premiumExpiry(24*time.Hour))

	result, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{
		Message: "extract text from this pdf please",
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	if result.Model != "llama-3" {
		t.Errorf("model = %s, want llama-3", result.Model)
	}
	// llama-3 has no backend in the test stack, so the turn degrades
	if !llm.IsFallbackContent(result.Response) {
		t.Errorf("expected fallback response, got %q", result.Response)
	}
}

func TestRespondAdminBypassesPremiumGate(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, false, 10)
	userID := insertUser(t, db, "admin@test.io", models.RoleAdmin, models.TierFree, nil)

	result, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{
		Message: "analyze image contents",
	})
	if err != nil {
		t.Fatalf("admin blocked from premium model: %v", err)
	}
	if result.Model != "hermes" {
		t.Errorf("model = %s, want hermes", result.Model)
	}
}

func TestRespondExpiredPremiumIsBlocked(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, false, 10)
	userID := insertUser(t, db, "lapsed@test.io", models.RoleUser, models.TierPremium, premiumExpiry(-time.Hour))

	_, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{
		Message: "read pdf for me",
	})
	if !errors.Is(err, ErrUpgradeRequired) {
		t.Fatalf("err = %v, want ErrUpgradeRequired for lapsed premium", err)
	}
}

func TestRespondExplicitAliasSelection(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, false, 10)
	userID := insertUser(t, db, "alias@test.io", models.RoleUser, models.TierFree, nil)

	result, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{
		Message: "hello there",
		Model:   "deepseek",
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if result.Model != "codellama" {
		t.Errorf("alias resolved to %s, want codellama", result.Model)
	}
}

func TestRespondUnknownModelUsesDefault(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, false, 10)
	userID := insertUser(t, db, "unknown@test.io", models.RoleUser, models.TierFree, nil)

	// Unregistered model names never fail the request
	result, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{
		Message: "hello there",
		Model:   "nonexistent-model",
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	if result.Model != "mistral" {
		t.Errorf("model = %s, want default mistral", result.Model)
	}
	if strings.TrimSpace(result.Response) == "" {
		t.Error("response is empty")
	}

	// Both turns persisted like any other successful request
	history, _ := stack.sessions.History(userID, 1, 10)
	if history.Total != 2 {
		t.Errorf("persisted %d messages, want 2", history.Total)
	}
}

func TestRespondEmptyMessage(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, false, 10)
	userID := insertUser(t, db, "e@test.io", models.RoleUser, models.TierFree, nil)

	for _, msg := range []string{"", "   ", "\n\t"} {
		if _, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{Message: msg}); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("message %q: err = %v, want ErrEmptyMessage", msg, err)
		}
	}
}

func TestRespondRateLimitEnforced(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, true, 2)
	userID := insertUser(t, db, "busy@test.io", models.RoleUser, models.TierFree, nil)

	for i := 0; i < 2; i++ {
		if _, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{Message: "hi again"}); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}

	_, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{Message: "one more"})
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if rle.Limit != 2 {
		t.Errorf("limit = %d, want 2", rle.Limit)
	}
}

func TestRespondRateLimitSoftMode(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, false, 1)
	userID := insertUser(t, db, "soft@test.io", models.RoleUser, models.TierFree, nil)

	// Over the allowance but enforcement is off
	for i := 0; i < 3; i++ {
		if _, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{Message: "hello"}); err != nil {
			t.Fatalf("soft mode blocked request %d: %v", i+1, err)
		}
	}
}

func TestRespondContextCarriesHistoryButNotFallbacks(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, false, 20)
	userID := insertUser(t, db, "ctx@test.io", models.RoleAdmin, models.TierFree, nil)

	// Turn 1: real answer from the general model
	if _, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{Message: "remember the word pineapple"}); err != nil {
		t.Fatalf("turn 1: %v", err)
	}

	// Turn 2: document model degrades to fallback
	if _, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{Message: "read pdf now"}); err != nil {
		t.Fatalf("turn 2: %v", err)
	}

	// Turn 3: prompt must carry turn 1 but not the fallback turn
	if _, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{Message: "what word was it?"}); err != nil {
		t.Fatalf("turn 3: %v", err)
	}

	prompt := stack.general.lastPrompt
	if !strings.Contains(prompt, "pineapple") {
		t.Errorf("history missing from prompt: %q", prompt)
	}
	if strings.Contains(prompt, llm.FallbackMarker) {
		t.Errorf("fallback turn leaked into prompt: %q", prompt)
	}
	if !strings.HasSuffix(prompt, "User: what word was it?\nAssistant:") {
		t.Errorf("prompt missing new turn cue: %q", prompt)
	}
}

func TestRespondReusesActiveSession(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, false, 10)
	userID := insertUser(t, db, "sess@test.io", models.RoleUser, models.TierFree, nil)

	first, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{Message: "again"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.SessionID != second.SessionID {
		t.Errorf("sessions differ: %d vs %d", first.SessionID, second.SessionID)
	}
}

func TestRespondStream(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, false, 10)
	userID := insertUser(t, db, "stream@test.io", models.RoleUser, models.TierFree, nil)
	stack.general.frags = []string{"str", "eam", "ed"}

	stream, err := stack.chat.RespondStream(context.Background(), userID, models.SendMessageRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("RespondStream: %v", err)
	}

	var b strings.Builder
	for {
		frag, ok := stream.Next(context.Background())
		if !ok {
			break
		}
		b.WriteString(frag)
	}
	if b.String() != "streamed" {
		t.Errorf("streamed = %q", b.String())
	}

	msgID, err := stream.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if msgID == 0 {
		t.Error("Finish returned no message ID")
	}

	history, _ := stack.sessions.History(userID, 1, 10)
	if history.Total != 2 {
		t.Fatalf("persisted %d messages, want 2", history.Total)
	}
	if history.Messages[0].Content != "streamed" {
		t.Errorf("persisted stream content = %q", history.Messages[0].Content)
	}
}

func TestUsageStats(t *testing.T) {
	db := newTestDB(t)
	stack := newChatStack(t, db, false, 10)
	userID := insertUser(t, db, "stats@test.io", models.RoleUser, models.TierFree, nil)

	for i := 0; i < 3; i++ {
		if _, err := stack.chat.Respond(context.Background(), userID, models.SendMessageRequest{Message: "hello"}); err != nil {
			t.Fatalf("Respond: %v", err)
		}
	}

	stats, err := stack.chat.UsageStats(context.Background(), userID)
	if err != nil {
		t.Fatalf("UsageStats: %v", err)
	}
	if stats.MessagesToday != 3 || stats.MessagesTotal != 3 {
		t.Errorf("stats = %+v, want 3 today / 3 total", stats)
	}
	if stats.Tier != models.TierFree || stats.RateLimit != 10 {
		t.Errorf("tier/limit = %s/%d", stats.Tier, stats.RateLimit)
	}
}
