package services

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"aiplatform/internal/database"
	"aiplatform/internal/llm"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New("sqlite://file:" + name + "?mode=memory")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Initialize(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// insertUser creates a user row directly, skipping password hashing
func insertUser(t *testing.T, db *database.DB, email, role, tier string, tierExpires *time.Time) int64 {
	t.Helper()
	now := time.Now().UTC()
	res, err := db.Exec(
		`INSERT INTO users (email, username, password_hash, role, tier, tier_expires_at, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		email, email, "argon2id$c2FsdA$aGFzaA", role, tier, tierExpires, true, now, now,
	)
	if err != nil {
		t.Fatalf("failed to insert user: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

// scriptedBackend implements llm.Backend with fixed output
type scriptedBackend struct {
	out        string
	frags      []string
	lastPrompt string
}

func (b *scriptedBackend) Complete(ctx context.Context, prompt string, params llm.GenParams) (string, error) {
	b.lastPrompt = prompt
	return b.out, nil
}

func (b *scriptedBackend) Stream(ctx context.Context, prompt string, params llm.GenParams) (llm.FragmentSource, error) {
	b.lastPrompt = prompt
	frags := b.frags
	if frags == nil {
		frags = []string{b.out}
	}
	return &sliceSource{frags: frags}, nil
}

type sliceSource struct {
	frags []string
	pos   int
}

func (s *sliceSource) Next(ctx context.Context) (string, error) {
	if s.pos >= len(s.frags) {
		return "", io.EOF
	}
	f := s.frags[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceSource) Close() error { return nil }

// testChatStack wires a full chat service over scripted backends.
// llama-3 and hermes are left unloaded so premium flows exercise
// fallback behavior.
type testChatStack struct {
	chat     *ChatService
	sessions *SessionService
	users    *UserService
	tiers    *TierService
	general  *scriptedBackend
	coding   *scriptedBackend
}

func newChatStack(t *testing.T, db *database.DB, enforce bool, freeLimit int) *testChatStack {
	t.Helper()

	general := &scriptedBackend{out: "general answer"}
	coding := &scriptedBackend{out: "coding answer"}

	adapters := map[string]llm.Adapter{
		"mistral":   llm.NewGeneralModel(llm.AdapterConfig{Name: "mistral", Backend: general}),
		"codellama": llm.NewCodingModel(llm.AdapterConfig{Name: "codellama", Backend: coding}),
		"llama-3":   llm.NewDocumentModel(llm.AdapterConfig{Name: "llama-3"}),
		"hermes":    llm.NewCreativeModel(llm.AdapterConfig{Name: "hermes"}),
	}
	kinds := map[string]string{
		"mistral": llm.KindGeneral, "codellama": llm.KindCoding,
		"llama-3": llm.KindDocument, "hermes": llm.KindCreative,
	}
	aliases := map[string]string{"deepseek": "codellama", "gpt4all": "mistral", "llama": "llama-3", "vicuna": "hermes"}
	premium := map[string]bool{"llama-3": true, "hermes": true}
	registry := llm.NewRegistryWithAdapters(adapters, kinds, aliases, premium, "mistral")

	users := NewUserService(db)
	tiers := NewTierService(db)
	sessions := NewSessionService(db)
	limiter := NewUsageLimiter(nil, sessions, freeLimit, 100, 1000, enforce)

	return &testChatStack{
		chat:     NewChatService(registry, sessions, users, tiers, limiter),
		sessions: sessions,
		users:    users,
		tiers:    tiers,
		general:  general,
		coding:   coding,
	}
}

func premiumExpiry(d time.Duration) *time.Time {
	t := time.Now().UTC().Add(d)
	return &t
}
