package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aiplatform/internal/classifier"
	"aiplatform/internal/llm"
	"aiplatform/internal/logging"
	"aiplatform/internal/models"
)

var (
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrUpgradeRequired = errors.New("this model requires a premium subscription")
)

// RateLimitError reports an exceeded daily allowance
type RateLimitError struct {
	Count int64
	Limit int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("daily message limit reached (%d/%d)", e.Count, e.Limit)
}

// ChatService orchestrates one chat turn: classify, resolve a model,
// gate by tier, assemble context, generate, persist.
type ChatService struct {
	registry *llm.Registry
	sessions *SessionService
	users    *UserService
	tiers    *TierService
	limiter  *UsageLimiter
	policy   llm.ContextPolicy
}

func NewChatService(registry *llm.Registry, sessions *SessionService, users *UserService, tiers *TierService, limiter *UsageLimiter) *ChatService {
	return &ChatService{
		registry: registry,
		sessions: sessions,
		users:    users,
		tiers:    tiers,
		limiter:  limiter,
		policy:   llm.DefaultContextPolicy(),
	}
}

// ChatResult is a completed non-streaming chat turn
type ChatResult struct {
	Response  string
	Model     string
	MessageID int64
	SessionID int64
}

// preparedTurn is the shared front half of a chat turn, up to and
// including persisting the user's message.
type preparedTurn struct {
	model   string
	adapter llm.Adapter
	session *models.ConversationSession
	prompt  string
}

func (s *ChatService) prepare(ctx context.Context, userID int64, req models.SendMessageRequest) (*preparedTurn, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}

	ct := classifier.Detect(message)
	model, adapter := s.registry.Resolve(req.Model, ct)
	logger := logging.WithRequest(userID, model, string(ct))

	if s.registry.Premium(model) && !user.CanUsePremiumModels() {
		logger.Info("premium model blocked for free tier")
		return nil, ErrUpgradeRequired
	}

	tier, err := s.tiers.GetTier(userID)
	if err != nil {
		return nil, err
	}
	if user.IsAdmin() {
		tier = models.RoleAdmin
	}

	decision, err := s.limiter.Check(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	if decision.Exceeded {
		rateLimitExceededTotal.WithLabelValues(tier).Inc()
	}
	if !decision.Allowed {
		return nil, &RateLimitError{Count: decision.Count, Limit: decision.Limit}
	}

	session, err := s.sessions.GetOrCreateActiveSession(userID)
	if err != nil {
		return nil, err
	}

	// Context is read before the new message is appended so the prompt
	// carries history plus exactly one copy of the new turn.
	history, err := s.sessions.GetContextMessages(session.ID, s.policy.MaxTurns)
	if err != nil {
		return nil, err
	}
	prompt := llm.BuildPrompt(history, message, s.policy)

	if _, err := s.sessions.AppendMessage(&models.Message{
		UserID:    userID,
		SessionID: session.ID,
		Role:      models.RoleMsgUser,
		Content:   message,
	}); err != nil {
		return nil, err
	}

	chatMessagesTotal.WithLabelValues(model, string(ct)).Inc()
	logger.Debug("chat turn prepared", "session_id", session.ID)

	return &preparedTurn{
		model:   model,
		adapter: adapter,
		session: session,
		prompt:  prompt,
	}, nil
}

// Respond runs one non-streaming chat turn. Generation never fails: an
// unavailable model yields its fallback response, which is persisted
// like any other assistant turn.
func (s *ChatService) Respond(ctx context.Context, userID int64, req models.SendMessageRequest) (*ChatResult, error) {
	turn, err := s.prepare(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	response := turn.adapter.Generate(ctx, turn.prompt)
	chatGenerationSeconds.WithLabelValues(turn.model).Observe(time.Since(start).Seconds())

	if llm.IsFallbackContent(response) {
		chatFallbacksTotal.WithLabelValues(turn.model).Inc()
	}

	msgID, err := s.sessions.AppendMessage(&models.Message{
		UserID:    userID,
		SessionID: turn.session.ID,
		Role:      models.RoleMsgAssistant,
		Content:   response,
		Model:     turn.model,
	})
	if err != nil {
		return nil, err
	}

	return &ChatResult{
		Response:  response,
		Model:     turn.model,
		MessageID: msgID,
		SessionID: turn.session.ID,
	}, nil
}

// ChatStream is a streaming chat turn in flight. Consumers pull
// fragments with Next and must call Finish to persist the assistant
// turn once the stream is drained.
type ChatStream struct {
	Model     string
	SessionID int64

	svc    *ChatService
	stream *llm.Stream
	userID int64
	buf    strings.Builder
	start  time.Time
}

// RespondStream runs one streaming chat turn
func (s *ChatService) RespondStream(ctx context.Context, userID int64, req models.SendMessageRequest) (*ChatStream, error) {
	turn, err := s.prepare(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	return &ChatStream{
		Model:     turn.model,
		SessionID: turn.session.ID,
		svc:       s,
		stream:    turn.adapter.GenerateStream(ctx, turn.prompt),
		userID:    userID,
		start:     time.Now(),
	}, nil
}

// Next returns the next response fragment; ok is false when the stream
// is exhausted.
func (cs *ChatStream) Next(ctx context.Context) (string, bool) {
	frag, ok := cs.stream.Next(ctx)
	if ok {
		cs.buf.WriteString(frag)
	}
	return frag, ok
}

// Finish persists the accumulated response as the assistant turn and
// returns its message ID. An empty accumulation persists the adapter's
// fallback text so the stored conversation never has hollow turns.
func (cs *ChatStream) Finish() (int64, error) {
	defer cs.stream.Close()

	chatGenerationSeconds.WithLabelValues(cs.Model).Observe(time.Since(cs.start).Seconds())

	response := cs.buf.String()
	if strings.TrimSpace(response) == "" {
		if a := cs.svc.registry.Get(cs.Model); a != nil {
			response = a.Fallback()
		}
	}
	if llm.IsFallbackContent(response) {
		chatFallbacksTotal.WithLabelValues(cs.Model).Inc()
	}

	return cs.svc.sessions.AppendMessage(&models.Message{
		UserID:    cs.userID,
		SessionID: cs.SessionID,
		Role:      models.RoleMsgAssistant,
		Content:   response,
		Model:     cs.Model,
	})
}

// Close abandons the stream without persisting
func (cs *ChatStream) Close() {
	cs.stream.Close()
}

// UsageStats assembles the usage report for the authenticated user
func (s *ChatService) UsageStats(ctx context.Context, userID int64) (*models.UsageStats, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}

	tier, err := s.tiers.GetTier(userID)
	if err != nil {
		return nil, err
	}
	limitTier := tier
	if user.IsAdmin() {
		limitTier = models.RoleAdmin
	}

	today, err := s.limiter.Usage(ctx, userID)
	if err != nil {
		return nil, err
	}
	total, err := s.sessions.CountMessagesTotal(userID)
	if err != nil {
		return nil, err
	}

	return &models.UsageStats{
		MessagesToday: today,
		MessagesTotal: total,
		RateLimit:     s.limiter.LimitFor(limitTier),
		Tier:          tier,
	}, nil
}
