// Package handlers contains the HTTP layer: request parsing, auth
// context, and response shaping over the services.
package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"aiplatform/internal/middleware"
	"aiplatform/internal/services"
	"aiplatform/pkg/auth"
)

// AuthHandler serves registration, login and token refresh
type AuthHandler struct {
	users   *services.UserService
	jwtAuth *auth.LocalJWTAuth
}

func NewAuthHandler(users *services.UserService, jwtAuth *auth.LocalJWTAuth) *AuthHandler {
	return &AuthHandler{users: users, jwtAuth: jwtAuth}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Register creates a new account and returns a token pair
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	user, err := h.users.Register(req.Email, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) || errors.Is(err, services.ErrUsernameTaken) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	access, refresh, err := h.jwtAuth.GenerateTokens(user.ID, user.Email, user.Role)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to issue tokens"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":          user.ToResponse(),
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// Login verifies credentials and returns a token pair
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	user, err := h.users.Authenticate(req.Email, req.Password)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid email or password"})
	}

	access, refresh, err := h.jwtAuth.GenerateTokens(user.ID, user.Email, user.Role)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to issue tokens"})
	}

	return c.JSON(fiber.Map{
		"user":          user.ToResponse(),
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// Refresh exchanges a refresh token for a new token pair
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Refresh token required"})
	}

	claims, err := h.jwtAuth.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired refresh token"})
	}

	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid refresh token subject"})
	}

	access, refresh, err := h.jwtAuth.GenerateTokens(userID, claims.Email, claims.Role)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to issue tokens"})
	}

	return c.JSON(fiber.Map{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// Me returns the authenticated user's profile
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := h.users.GetByID(middleware.UserID(c))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}
	return c.JSON(user.ToResponse())
}
