package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"aiplatform/pkg/auth"
)

// AuthMiddleware verifies JWT tokens and stores the authenticated user
// identity in the request context. Tokens are accepted from the
// Authorization header or, for EventSource clients, a query parameter.
func AuthMiddleware(jwtAuth *auth.LocalJWTAuth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var token string

		authHeader := c.Get("Authorization")
		if authHeader != "" {
			if extracted, err := auth.ExtractToken(authHeader); err == nil {
				token = extracted
			}
		}

		// EventSource cannot set headers
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid authorization token",
			})
		}

		user, err := jwtAuth.VerifyAccessToken(token)
		if err != nil {
			log.Printf("❌ Auth failed: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user_id", user.ID)
		c.Locals("user_email", user.Email)
		c.Locals("user_role", user.Role)

		return c.Next()
	}
}

// AdminMiddleware checks if the authenticated user has the admin role.
// Must run after AuthMiddleware.
func AdminMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals("user_id").(int64)
		if !ok || userID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		if role, ok := c.Locals("user_role").(string); !ok || role != "admin" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}

		return c.Next()
	}
}

// UserID returns the authenticated user ID from the request context
func UserID(c *fiber.Ctx) int64 {
	if id, ok := c.Locals("user_id").(int64); ok {
		return id
	}
	return 0
}
