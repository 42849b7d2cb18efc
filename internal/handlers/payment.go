package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"aiplatform/internal/middleware"
	"aiplatform/internal/models"
	"aiplatform/internal/services"
)

// PaymentHandler serves payment creation, status and the gateway webhook
type PaymentHandler struct {
	payments  *services.PaymentService
	verifySig bool
}

func NewPaymentHandler(payments *services.PaymentService, verifySig bool) *PaymentHandler {
	return &PaymentHandler{payments: payments, verifySig: verifySig}
}

// Create handles POST /api/payment/create
func (h *PaymentHandler) Create(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	resp, err := h.payments.CreatePayment(c.UserContext(), userID, req)
	if err != nil {
		log.Printf("❌ Payment creation failed for user %d: %v", userID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Failed to create payment"})
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Status handles GET /api/payment/status/:order_id
func (h *PaymentHandler) Status(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	orderID := c.Params("order_id")

	txn, err := h.payments.GetTransaction(userID, orderID)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Transaction not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load transaction"})
	}
	return c.JSON(txn)
}

// Webhook handles POST /api/payment/webhook, called by the gateway.
// Unknown transactions return 404 so the gateway retries later.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	var n models.PaymentNotification
	if err := c.BodyParser(&n); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid notification body"})
	}

	if h.verifySig && !h.payments.VerifySignature(n) {
		log.Printf("⚠️  Webhook signature verification failed for %s", n.OrderID)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Invalid signature"})
	}

	if err := h.payments.HandleNotification(n); err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Transaction not found"})
		}
		log.Printf("❌ Webhook processing failed for %s: %v", n.OrderID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process notification"})
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
