package gateway

import (
	"errors"
	"strings"
)

// CardDetails carries a tokenized card reference. The raw PAN never reaches
// this service.
type CardDetails struct {
	Token        string `json:"card_token"`
	HolderName   string `json:"holder_name,omitempty"`
	Installments int    `json:"installments,omitempty"`
}

// PixDetails carries the dynamic QR configuration for a pix payment.
type PixDetails struct {
	ExpiresInMinutes int `json:"expires_in_minutes,omitempty"`
}

// BoletoDetails carries the slip configuration for a boleto payment.
type BoletoDetails struct {
	ExpiresInDays int    `json:"expires_in_days,omitempty"`
	Instructions  string `json:"instructions,omitempty"`
}

// PaymentCreateParams describes a payment create call. Exactly one of Card,
// Pix, or Boleto must be set, matching Method.
type PaymentCreateParams struct {
	IdempotencyKey string
	AmountCents    int64
	Currency       string
	Method         string
	Card           *CardDetails
	Pix            *PixDetails
	Boleto         *BoletoDetails
	SplitRules     []SplitRule
	Metadata       map[string]string
}

// RefundParams describes a refund call. A zero AmountCents refunds in full.
type RefundParams struct {
	IdempotencyKey string
	PaymentID      string
	AmountCents    int64
}

var (
	errAmountRequired  = errors.New("payment amount must be positive")
	errMethodRequired  = errors.New("payment method is required")
	errVariantMismatch = errors.New("exactly one payment method payload must be set")
)

func (p PaymentCreateParams) validate() error {
	if p.AmountCents <= 0 {
		return errAmountRequired
	}
	if strings.TrimSpace(p.Method) == "" {
		return errMethodRequired
	}
	set := 0
	if p.Card != nil {
		set++
	}
	if p.Pix != nil {
		set++
	}
	if p.Boleto != nil {
		set++
	}
	if set != 1 {
		return errVariantMismatch
	}
	return nil
}

type paymentCreateRequest struct {
	AmountCents int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Method      string            `json:"payment_method"`
	Card        *CardDetails      `json:"card,omitempty"`
	Pix         *PixDetails       `json:"pix,omitempty"`
	Boleto      *BoletoDetails    `json:"boleto,omitempty"`
	SplitRules  []SplitRule       `json:"split_rules,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (p PaymentCreateParams) toRequest() paymentCreateRequest {
	return paymentCreateRequest{
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
		Method:      p.Method,
		Card:        p.Card,
		Pix:         p.Pix,
		Boleto:      p.Boleto,
		SplitRules:  p.SplitRules,
		Metadata:    p.Metadata,
	}
}

type refundRequest struct {
	AmountCents int64 `json:"amount,omitempty"`
}
