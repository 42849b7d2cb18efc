package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"aiplatform/internal/middleware"
	"aiplatform/internal/models"
	"aiplatform/internal/services"
)

// ChatHandler serves the chat endpoints
type ChatHandler struct {
	chat     *services.ChatService
	sessions *services.SessionService
}

func NewChatHandler(chat *services.ChatService, sessions *services.SessionService) *ChatHandler {
	return &ChatHandler{chat: chat, sessions: sessions}
}

// Send handles POST /api/chat/send. With "stream": true the response is
// a server-sent event stream of fragments ending in a done event.
func (h *ChatHandler) Send(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Stream {
		return h.sendStreaming(c, userID, req)
	}
	return h.sendSync(c, userID, req)
}

func (h *ChatHandler) sendSync(c *fiber.Ctx, userID int64, req models.SendMessageRequest) error {
	result, err := h.chat.Respond(c.UserContext(), userID, req)
	if err != nil {
		return chatError(c, err)
	}

	return c.JSON(models.SendMessageResponse{
		Response:  result.Response,
		Model:     result.Model,
		MessageID: result.MessageID,
		SessionID: result.SessionID,
	})
}

func (h *ChatHandler) sendStreaming(c *fiber.Ctx, userID int64, req models.SendMessageRequest) error {
	// Generation outlives the handler, so it gets its own context
	ctx := context.Background()

	stream, err := h.chat.RespondStream(ctx, userID, req)
	if err != nil {
		return chatError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer stream.Close()

		for {
			frag, ok := stream.Next(ctx)
			if !ok {
				break
			}
			if writeEvent(w, models.StreamChunk{Chunk: frag}) != nil {
				// Client went away; Finish still persists what was generated
				break
			}
		}

		msgID, err := stream.Finish()
		if err != nil {
			log.Printf("❌ Failed to persist streamed response: %v", err)
			writeEvent(w, models.StreamChunk{Done: true, Model: stream.Model, SessionID: stream.SessionID})
			return
		}

		writeEvent(w, models.StreamChunk{
			Done:      true,
			Model:     stream.Model,
			MessageID: msgID,
			SessionID: stream.SessionID,
		})
	})

	return nil
}

func writeEvent(w *bufio.Writer, chunk models.StreamChunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

// History handles GET /api/chat/history?page=1&per_page=20
func (h *ChatHandler) History(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", 20)

	resp, err := h.sessions.History(userID, page, perPage)
	if err != nil {
		log.Printf("❌ Failed to load history for user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load history"})
	}
	return c.JSON(resp)
}

// Clear handles DELETE /api/chat/history
func (h *ChatHandler) Clear(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	deleted, err := h.sessions.ClearHistory(userID)
	if err != nil {
		log.Printf("❌ Failed to clear history for user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to clear history"})
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}

// Usage handles GET /api/chat/usage
func (h *ChatHandler) Usage(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	stats, err := h.chat.UsageStats(c.UserContext(), userID)
	if err != nil {
		log.Printf("❌ Failed to load usage for user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load usage"})
	}
	return c.JSON(stats)
}

// chatError maps service errors to HTTP responses
func chatError(c *fiber.Ctx, err error) error {
	var rle *services.RateLimitError
	switch {
	case errors.Is(err, services.ErrEmptyMessage):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrUpgradeRequired):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":            err.Error(),
			"upgrade_required": true,
		})
	case errors.As(err, &rle):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": rle.Error(),
			"count": rle.Count,
			"limit": rle.Limit,
		})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unknown user"})
	default:
		log.Printf("❌ Chat request failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process message"})
	}
}
