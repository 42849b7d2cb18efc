package models

import "time"

// Message roles
const (
	RoleMsgUser      = "user"
	RoleMsgAssistant = "assistant"
	RoleMsgSystem    = "system"
)

// SessionRetention is how long a conversation session stays usable after
// creation. Sessions older than this are excluded from resolution and
// eventually purged by the retention job.
const SessionRetention = 24 * time.Hour

// ConversationSession groups messages into one conversation thread.
// At most one session is treated as current per user: the most recently
// updated active session within the retention window.
type ConversationSession struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired reports whether the session is past the retention window
func (s *ConversationSession) IsExpired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > SessionRetention
}

// Message is a single turn in a conversation session. Messages are
// immutable once created and append-only per session.
type Message struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	SessionID int64     `json:"session_id"`
	Role      string    `json:"role"` // "user", "assistant", "system"
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"` // model that produced an assistant turn
	CreatedAt time.Time `json:"created_at"`
}
