package gateway

import (
	"encoding/json"
	"time"
)

// Payment is the gateway's representation of a payment.
type Payment struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	AmountCents   int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Method        string            `json:"payment_method"`
	Installments  int               `json:"installments,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	PixQRCode     string            `json:"pix_qr_code,omitempty"`
	PixExpiresAt  *time.Time        `json:"pix_expires_at,omitempty"`
	BoletoURL     string            `json:"boleto_url,omitempty"`
	BoletoBarcode string            `json:"boleto_barcode,omitempty"`
	BoletoDueAt   *time.Time        `json:"boleto_due_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
}

// Refund is the gateway's representation of a refund.
type Refund struct {
	ID          string    `json:"id"`
	PaymentID   string    `json:"payment_id"`
	Status      string    `json:"status"`
	AmountCents int64     `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

// SplitRule directs a share of a payment to a recipient.
type SplitRule struct {
	RecipientID         string `json:"recipient_id"`
	AmountCents         int64  `json:"amount"`
	Liable              bool   `json:"liable"`
	ChargeProcessingFee bool   `json:"charge_processing_fee"`
}

type apiError struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Message string `json:"message"`
}

func (e *apiError) firstMessage(raw []byte) string {
	if e != nil {
		if len(e.Errors) > 0 && e.Errors[0].Message != "" {
			return e.Errors[0].Message
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return string(raw)
}

func decodeAPIError(raw []byte) *apiError {
	var parsed apiError
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}
	return &parsed
}
