package services

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aiplatform/internal/models"
)

func newPaymentStack(t *testing.T) (*PaymentService, *TierService, int64) {
	t.Helper()
	db := newTestDB(t)
	tiers := NewTierService(db)
	userID := insertUser(t, db, "payer@test.io", models.RoleUser, models.TierFree, nil)

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/snap/v1/transactions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"token":"snap-token","redirect_url":"https://pay.example/redirect"}`))
	}))
	t.Cleanup(gateway.Close)

	svc := NewPaymentService(db, tiers, gateway.URL, "server-key", 50000, 30)
	return svc, tiers, userID
}

func TestCreatePayment(t *testing.T) {
	svc, _, userID := newPaymentStack(t)

	resp, err := svc.CreatePayment(context.Background(), userID, models.CreatePaymentRequest{})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	if !strings.HasPrefix(resp.TransactionID, "TXN-") {
		t.Errorf("transaction ID = %q", resp.TransactionID)
	}
	if resp.Status != models.TxnPending {
		t.Errorf("status = %q, want pending", resp.Status)
	}
	if resp.PaymentURL != "https://pay.example/redirect" {
		t.Errorf("payment URL = %q", resp.PaymentURL)
	}
	if resp.Amount != 50000 {
		t.Errorf("amount = %v, want configured default", resp.Amount)
	}

	txn, err := svc.GetTransaction(userID, resp.TransactionID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if txn.Status != models.TxnPending || txn.DurationDays != 30 {
		t.Errorf("stored txn = %+v", txn)
	}
}

func TestWebhookSettlementUpgradesUser(t *testing.T) {
	svc, tiers, userID := newPaymentStack(t)

	resp, err := svc.CreatePayment(context.Background(), userID, models.CreatePaymentRequest{})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	if err := svc.HandleNotification(models.PaymentNotification{
		OrderID:           resp.TransactionID,
		TransactionStatus: "settlement",
		PaymentType:       "bank_transfer",
	}); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}

	tier, err := tiers.GetTier(userID)
	if err != nil {
		t.Fatalf("GetTier: %v", err)
	}
	if tier != models.TierPremium {
		t.Errorf("tier after settlement = %s", tier)
	}

	txn, _ := svc.GetTransaction(userID, resp.TransactionID)
	if txn.Status != models.TxnSuccess {
		t.Errorf("txn status = %s", txn.Status)
	}
}

func TestWebhookStatusMapping(t *testing.T) {
	tests := []struct {
		txnStatus   string
		fraudStatus string
		want        string
	}{
		{"capture", "accept", models.TxnSuccess},
		{"capture", "", models.TxnSuccess},
		{"capture", "challenge", models.TxnFailed},
		{"settlement", "", models.TxnSuccess},
		{"deny", "", models.TxnFailed},
		{"cancel", "", models.TxnFailed},
		{"expire", "", models.TxnFailed},
		{"pending", "", models.TxnPending},
		{"refund", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.txnStatus+"/"+tt.fraudStatus, func(t *testing.T) {
			got := mapGatewayStatus(models.PaymentNotification{
				TransactionStatus: tt.txnStatus,
				FraudStatus:       tt.fraudStatus,
			})
			if got != tt.want {
				t.Errorf("mapGatewayStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWebhookIdempotentAfterSuccess(t *testing.T) {
	svc, tiers, userID := newPaymentStack(t)
	resp, _ := svc.CreatePayment(context.Background(), userID, models.CreatePaymentRequest{})

	settle := models.PaymentNotification{OrderID: resp.TransactionID, TransactionStatus: "settlement"}
	if err := svc.HandleNotification(settle); err != nil {
		t.Fatalf("first settlement: %v", err)
	}

	// Late or repeated notifications never regress a settled payment
	for _, status := range []string{"settlement", "expire", "deny"} {
		if err := svc.HandleNotification(models.PaymentNotification{
			OrderID: resp.TransactionID, TransactionStatus: status,
		}); err != nil {
			t.Fatalf("repeat %s: %v", status, err)
		}
	}

	txn, _ := svc.GetTransaction(userID, resp.TransactionID)
	if txn.Status != models.TxnSuccess {
		t.Errorf("status regressed to %s", txn.Status)
	}
	if tier, _ := tiers.GetTier(userID); tier != models.TierPremium {
		t.Errorf("tier regressed to %s", tier)
	}
}

func TestWebhookUnknownTransaction(t *testing.T) {
	svc, _, _ := newPaymentStack(t)

	err := svc.HandleNotification(models.PaymentNotification{
		OrderID: "TXN-999-DEADBEEF", TransactionStatus: "settlement",
	})
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("err = %v, want ErrTransactionNotFound", err)
	}
}

func TestVerifySignature(t *testing.T) {
	svc, _, _ := newPaymentStack(t)

	n := models.PaymentNotification{
		OrderID:     "TXN-1-ABC",
		StatusCode:  "200",
		GrossAmount: "50000.00",
	}
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + "server-key"))
	n.SignatureKey = hex.EncodeToString(sum[:])

	if !svc.VerifySignature(n) {
		t.Error("valid signature rejected")
	}

	n.SignatureKey = "forged"
	if svc.VerifySignature(n) {
		t.Error("forged signature accepted")
	}

	n.SignatureKey = ""
	if svc.VerifySignature(n) {
		t.Error("empty signature accepted")
	}
}

func TestExpirePendingTransactions(t *testing.T) {
	svc, _, userID := newPaymentStack(t)
	resp, _ := svc.CreatePayment(context.Background(), userID, models.CreatePaymentRequest{})

	// Fresh pending transactions are left alone
	if n, _ := svc.ExpirePendingTransactions(); n != 0 {
		t.Errorf("expired %d fresh transactions", n)
	}

	aged := time.Now().UTC().Add(-25 * time.Hour)
	svc.db.Exec(`UPDATE transactions SET created_at = ? WHERE transaction_id = ?`, aged, resp.TransactionID)

	n, err := svc.ExpirePendingTransactions()
	if err != nil {
		t.Fatalf("ExpirePendingTransactions: %v", err)
	}
	if n != 1 {
		t.Errorf("expired %d, want 1", n)
	}

	txn, _ := svc.GetTransaction(userID, resp.TransactionID)
	if txn.Status != models.TxnFailed {
		t.Errorf("stale pending txn status = %s", txn.Status)
	}
}
