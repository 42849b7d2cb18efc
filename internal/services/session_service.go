package services

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"aiplatform/internal/database"
	"aiplatform/internal/models"
)

// SessionService owns conversation sessions and their messages
type SessionService struct {
	db *database.DB
}

func NewSessionService(db *database.DB) *SessionService {
	return &SessionService{db: db}
}

// GetOrCreateActiveSession resolves the user's current conversation: the
// most recently updated active session inside the retention window. A
// new session is created when none qualifies. Expired sessions are
// deactivated on the way.
func (s *SessionService) GetOrCreateActiveSession(userID int64) (*models.ConversationSession, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-models.SessionRetention)

	// Expired sessions stop being candidates immediately
	if _, err := s.db.Exec(
		`UPDATE conversation_sessions SET is_active = ? WHERE user_id = ? AND is_active = ? AND created_at < ?`,
		false, userID, true, cutoff,
	); err != nil {
		return nil, fmt.Errorf("failed to deactivate expired sessions: %w", err)
	}

	var sess models.ConversationSession
	err := s.db.QueryRow(
		`SELECT id, user_id, is_active, created_at, updated_at
		 FROM conversation_sessions
		 WHERE user_id = ? AND is_active = ? AND created_at >= ?
		 ORDER BY updated_at DESC LIMIT 1`,
		userID, true, cutoff,
	).Scan(&sess.ID, &sess.UserID, &sess.IsActive, &sess.CreatedAt, &sess.UpdatedAt)

	if err == nil {
		return &sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve active session: %w", err)
	}

	res, err := s.db.Exec(
		`INSERT INTO conversation_sessions (user_id, is_active, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID, true, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new session ID: %w", err)
	}

	return &models.ConversationSession{
		ID: id, UserID: userID, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// AppendMessage stores one message and touches the session's updated_at
// in the same transaction, so session recency always tracks its latest
// message.
func (s *SessionService) AppendMessage(msg *models.Message) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.Exec(
		`INSERT INTO messages (user_id, session_id, role, content, model, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.UserID, msg.SessionID, msg.Role, msg.Content, msg.Model, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new message ID: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE conversation_sessions SET updated_at = ? WHERE id = ?`, now, msg.SessionID,
	); err != nil {
		return 0, fmt.Errorf("failed to touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit message: %w", err)
	}

	msg.ID = id
	msg.CreatedAt = now
	return id, nil
}

// GetContextMessages returns the session's messages in chronological
// order, capped at limit most recent turns. Used by the context
// assembler.
func (s *SessionService) GetContextMessages(sessionID int64, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, session_id, role, content, COALESCE(model, ''), created_at
		 FROM messages WHERE session_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load context messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.SessionID, &m.Role, &m.Content, &m.Model, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse newest-first into chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// History returns the user's messages across all sessions, newest first,
// paginated.
func (s *SessionService) History(userID int64, page, perPage int) (*models.HistoryResponse, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var total int64
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE user_id = ?`, userID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT id, role, content, COALESCE(model, ''), session_id, created_at
		 FROM messages WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	items := make([]models.MessageItem, 0, perPage)
	for rows.Next() {
		var it models.MessageItem
		if err := rows.Scan(&it.ID, &it.Role, &it.Content, &it.Model, &it.SessionID, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pages := int((total + int64(perPage) - 1) / int64(perPage))
	return &models.HistoryResponse{
		Messages:    items,
		Total:       total,
		Pages:       pages,
		CurrentPage: page,
	}, nil
}

// ClearHistory deletes all of the user's messages and sessions
func (s *SessionService) ClearHistory(userID int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM messages WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if _, err := tx.Exec(`DELETE FROM conversation_sessions WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit history clear: %w", err)
	}
	return deleted, nil
}

// PurgeExpiredSessions deletes sessions past the retention window along
// with their messages. Run periodically by the scheduler.
func (s *SessionService) PurgeExpiredSessions() (int64, error) {
	cutoff := time.Now().UTC().Add(-models.SessionRetention)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM messages WHERE session_id IN (SELECT id FROM conversation_sessions WHERE created_at < ?)`,
		cutoff,
	); err != nil {
		return 0, fmt.Errorf("failed to purge expired messages: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM conversation_sessions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	purged, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit session purge: %w", err)
	}

	if purged > 0 {
		log.Printf("🧹 Purged %d expired conversation sessions", purged)
	}
	return purged, nil
}

// CountMessagesToday returns how many user-role messages the user sent
// since local midnight UTC.
func (s *SessionService) CountMessagesToday(userID int64) (int64, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	var n int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE user_id = ? AND role = ? AND created_at >= ?`,
		userID, models.RoleMsgUser, midnight,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's messages: %w", err)
	}
	return n, nil
}

// CountMessagesTotal returns the user's lifetime user-role message count
func (s *SessionService) CountMessagesTotal(userID int64) (int64, error) {
	var n int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE user_id = ? AND role = ?`,
		userID, models.RoleMsgUser,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}
