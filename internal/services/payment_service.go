package services

import (
	"bytes"
	"context"
	"crypto/sha512"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"aiplatform/internal/database"
	"aiplatform/internal/models"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
)

// PaymentService creates subscription charges with the payment gateway
// and processes its webhook notifications.
type PaymentService struct {
	db        *database.DB
	tiers     *TierService
	client    *http.Client
	baseURL   string
	serverKey string
	price     float64
	days      int
}

func NewPaymentService(db *database.DB, tiers *TierService, baseURL, serverKey string, price float64, days int) *PaymentService {
	return &PaymentService{
		db:        db,
		tiers:     tiers,
		client:    &http.Client{Timeout: 30 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		serverKey: serverKey,
		price:     price,
		days:      days,
	}
}

type snapRequest struct {
	TransactionDetails struct {
		OrderID     string  `json:"order_id"`
		GrossAmount float64 `json:"gross_amount"`
	} `json:"transaction_details"`
	ItemDetails []snapItem `json:"item_details"`
}

type snapItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type snapResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// CreatePayment registers a premium subscription charge with the gateway
// and records the pending transaction.
func (s *PaymentService) CreatePayment(ctx context.Context, userID int64, req models.CreatePaymentRequest) (*models.CreatePaymentResponse, error) {
	amount := req.Amount
	if amount <= 0 {
		amount = s.price
	}
	tier := req.Tier
	if tier == "" {
		tier = models.TierPremium
	}
	days := req.DurationDays
	if days <= 0 {
		days = s.days
	}

	orderID := fmt.Sprintf("TXN-%d-%s", userID, strings.ToUpper(uuid.NewString()[:8]))

	var sreq snapRequest
	sreq.TransactionDetails.OrderID = orderID
	sreq.TransactionDetails.GrossAmount = amount
	sreq.ItemDetails = []snapItem{{
		ID:       "premium-" + fmt.Sprint(days),
		Name:     fmt.Sprintf("Premium subscription (%d days)", days),
		Price:    amount,
		Quantity: 1,
	}}

	sresp, err := s.createSnapTransaction(ctx, sreq)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := s.db.Exec(
		`INSERT INTO transactions (user_id, transaction_id, amount, currency, status, tier, duration_days, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, orderID, amount, "IDR", models.TxnPending, tier, days, now, now,
	); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	log.Printf("✅ Payment %s created for user %d (%.0f IDR)", orderID, userID, amount)
	return &models.CreatePaymentResponse{
		TransactionID: orderID,
		Status:        models.TxnPending,
		PaymentURL:    sresp.RedirectURL,
		Amount:        amount,
		Currency:      "IDR",
	}, nil
}

func (s *PaymentService) createSnapTransaction(ctx context.Context, sreq snapRequest) (*snapResponse, error) {
	payload, err := json.Marshal(sreq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/snap/v1/transactions", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(s.serverKey+":")))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read payment gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var sresp snapResponse
	if err := json.Unmarshal(body, &sresp); err != nil {
		return nil, fmt.Errorf("failed to parse payment gateway response: %w", err)
	}
	return &sresp, nil
}

// VerifySignature checks the webhook's SHA-512 signature
// (order_id + status_code + gross_amount + server key).
func (s *PaymentService) VerifySignature(n models.PaymentNotification) bool {
	if n.SignatureKey == "" {
		return false
	}
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + s.serverKey))
	return hex.EncodeToString(sum[:]) == n.SignatureKey
}

// HandleNotification processes a gateway webhook: map the transaction
// status, update the stored transaction, and upgrade the user's tier on
// success. Repeated notifications for a settled transaction are
// idempotent.
func (s *PaymentService) HandleNotification(n models.PaymentNotification) error {
	var txn models.Transaction
	err := s.db.QueryRow(
		`SELECT id, user_id, transaction_id, amount, status, tier, duration_days FROM transactions WHERE transaction_id = ?`,
		n.OrderID,
	).Scan(&txn.ID, &txn.UserID, &txn.TransactionID, &txn.Amount, &txn.Status, &txn.Tier, &txn.DurationDays)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load transaction %s: %w", n.OrderID, err)
	}

	status := mapGatewayStatus(n)
	if status == "" || status == txn.Status {
		return nil
	}
	if txn.Status == models.TxnSuccess {
		// Settled transactions never regress
		return nil
	}

	if _, err := s.db.Exec(
		`UPDATE transactions SET status = ?, payment_method = ?, updated_at = ? WHERE id = ?`,
		status, n.PaymentType, time.Now().UTC(), txn.ID,
	); err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", n.OrderID, err)
	}

	if status == models.TxnSuccess {
		if err := s.tiers.Upgrade(txn.UserID, txn.DurationDays); err != nil {
			return fmt.Errorf("failed to upgrade user %d after payment: %w", txn.UserID, err)
		}
		log.Printf("✅ Payment %s settled, user %d upgraded", n.OrderID, txn.UserID)
	} else {
		log.Printf("⚠️  Payment %s marked %s (%s)", n.OrderID, status, n.TransactionStatus)
	}
	return nil
}

// mapGatewayStatus maps gateway transaction statuses to internal ones.
// capture only counts as success when fraud screening accepted it.
func mapGatewayStatus(n models.PaymentNotification) string {
	switch n.TransactionStatus {
	case "capture":
		if n.FraudStatus == "" || n.FraudStatus == "accept" {
			return models.TxnSuccess
		}
		return models.TxnFailed
	case "settlement":
		return models.TxnSuccess
	case "deny", "cancel", "expire":
		return models.TxnFailed
	case "pending":
		return models.TxnPending
	default:
		return ""
	}
}

// GetTransaction returns one of the user's transactions by gateway ID
func (s *PaymentService) GetTransaction(userID int64, orderID string) (*models.Transaction, error) {
	var t models.Transaction
	var method sql.NullString
	err := s.db.QueryRow(
		`SELECT id, user_id, transaction_id, amount, currency, status, payment_method, tier, duration_days, created_at, updated_at
		 FROM transactions WHERE transaction_id = ? AND user_id = ?`,
		orderID, userID,
	).Scan(&t.ID, &t.UserID, &t.TransactionID, &t.Amount, &t.Currency, &t.Status, &method,
		&t.Tier, &t.DurationDays, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	t.PaymentMethod = method.String
	return &t, nil
}

// ExpirePendingTransactions marks pending transactions older than 24h as
// failed. Run periodically by the scheduler.
func (s *PaymentService) ExpirePendingTransactions() (int64, error) {
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	res, err := s.db.Exec(
		`UPDATE transactions SET status = ?, updated_at = ? WHERE status = ? AND created_at < ?`,
		models.TxnFailed, time.Now().UTC(), models.TxnPending, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending transactions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Printf("⏰ Expired %d stale pending transactions", n)
	}
	return n, nil
}
