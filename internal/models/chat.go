package models

import "time"

// SendMessageRequest is the request body for sending a chat message
type SendMessageRequest struct {
	Message string `json:"message"`
	Model   string `json:"model,omitempty"` // model name, alias, or "auto"
	Stream  bool   `json:"stream,omitempty"`
}

// SendMessageResponse is the non-streaming chat reply
type SendMessageResponse struct {
	Response  string `json:"response"`
	Model     string `json:"model"`
	MessageID int64  `json:"message_id"`
	SessionID int64  `json:"session_id"`
}

// StreamChunk is one event on the chat event stream. Chunks carry text
// fragments; the final event has Done set and carries the persisted IDs.
type StreamChunk struct {
	Chunk     string `json:"chunk,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Model     string `json:"model,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	SessionID int64  `json:"session_id,omitempty"`
}

// ModelInfo is one entry in the /api/models listing
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	UseCase     string `json:"use_case,omitempty"`
	Loaded      bool   `json:"loaded"`
	Premium     bool   `json:"premium,omitempty"`
	Alias       bool   `json:"alias,omitempty"`
	AliasFor    string `json:"alias_for,omitempty"`
	Recommended bool   `json:"recommended,omitempty"`
}

// MessageItem is one message in a history listing
type MessageItem struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	SessionID int64     `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse is the paginated history listing
type HistoryResponse struct {
	Messages    []MessageItem `json:"messages"`
	Total       int64         `json:"total"`
	Pages       int           `json:"pages"`
	CurrentPage int           `json:"current_page"`
}

// UsageStats reports message usage for the authenticated user
type UsageStats struct {
	MessagesToday int64  `json:"messages_today"`
	MessagesTotal int64  `json:"messages_total"`
	RateLimit     int64  `json:"rate_limit"`
	Tier          string `json:"tier"`
}
