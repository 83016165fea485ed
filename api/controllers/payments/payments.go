package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/legalflow/billing-backend/api/controllers/actorcontext"
	"github.com/legalflow/billing-backend/api/controllers/charges"
	"github.com/legalflow/billing-backend/api/responses"
	"github.com/legalflow/billing-backend/api/validators"
	"github.com/legalflow/billing-backend/internal/billing"
	internalpayments "github.com/legalflow/billing-backend/internal/payments"
	"github.com/legalflow/billing-backend/pkg/db/models"
	"github.com/legalflow/billing-backend/pkg/enums"
	pkgerrors "github.com/legalflow/billing-backend/pkg/errors"
	"github.com/legalflow/billing-backend/pkg/logger"
	"github.com/legalflow/billing-backend/pkg/pagination"
)

// PaymentService describes the payment processor methods used by the HTTP controllers.
type PaymentService interface {
	CreatePayment(ctx context.Context, actor billing.Actor, params internalpayments.CreatePaymentParams) (*models.Payment, error)
	AcceptChargeAndCreatePayment(ctx context.Context, actor billing.Actor, params internalpayments.CreatePaymentParams) (*internalpayments.AcceptAndPayResult, error)
	GetPayment(ctx context.Context, actor billing.Actor, paymentID uuid.UUID) (*models.Payment, error)
	ListPayments(ctx context.Context, actor billing.Actor, params internalpayments.ListPaymentsParams) ([]models.Payment, *pagination.Cursor, error)
	RefundPayment(ctx context.Context, actor billing.Actor, paymentID uuid.UUID, amountCents *int64) (*models.Payment, error)
}

// PaymentResponse is the wire shape of a payment.
type PaymentResponse struct {
	ID                string          `json:"id"`
	ChargeID          string          `json:"charge_id"`
	ConversationID    string          `json:"conversation_id"`
	ClientID          string          `json:"client_id"`
	ProviderID        string          `json:"provider_id"`
	AmountCents       int64           `json:"amount_cents"`
	Currency          string          `json:"currency"`
	Method            string          `json:"method"`
	Installments      int             `json:"installments"`
	Description       *string         `json:"description,omitempty"`
	ExternalID        *string         `json:"external_id,omitempty"`
	SplitRules        json.RawMessage `json:"split_rules,omitempty"`
	Status            string          `json:"status"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
	RefundedAt        *time.Time      `json:"refunded_at,omitempty"`
	RefundAmountCents *int64          `json:"refund_amount_cents,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewPaymentResponse maps a payment row onto its wire shape.
func NewPaymentResponse(payment *models.Payment) *PaymentResponse {
	if payment == nil {
		return nil
	}
	return &PaymentResponse{
		ID:                payment.ID.String(),
		ChargeID:          payment.ChargeID.String(),
		ConversationID:    payment.ConversationID.String(),
		ClientID:          payment.ClientID.String(),
		ProviderID:        payment.ProviderID.String(),
		AmountCents:       payment.AmountCents,
		Currency:          payment.Currency.String(),
		Method:            payment.Method.String(),
		Installments:      payment.Installments,
		Description:       payment.Description,
		ExternalID:        payment.ExternalID,
		SplitRules:        payment.SplitRules,
		Status:            payment.Status.String(),
		PaidAt:            payment.PaidAt,
		CancelledAt:       payment.CancelledAt,
		RefundedAt:        payment.RefundedAt,
		RefundAmountCents: payment.RefundAmountCents,
		CreatedAt:         payment.CreatedAt,
		UpdatedAt:         payment.UpdatedAt,
	}
}

type listPaymentsResponse struct {
	Items      []*PaymentResponse `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type acceptAndPayResponse struct {
	Charge  *charges.ChargeResponse `json:"charge"`
	Payment *PaymentResponse        `json:"payment"`
}

type cardRequest struct {
	Token        string `json:"token" validate:"required"`
	HolderName   string `json:"holder_name" validate:"required,max=120"`
	Installments int    `json:"installments" validate:"omitempty,min=1,max=12"`
}

type boletoRequest struct {
	Instructions string `json:"instructions" validate:"omitempty,max=500"`
}

// methodRequest is a tagged union: the method discriminator selects which
// variant block must be present, and the others must be absent.
type methodRequest struct {
	Method string         `json:"method" validate:"required,oneof=credit_card debit_card pix boleto"`
	Card   *cardRequest   `json:"card" validate:"omitempty"`
	Boleto *boletoRequest `json:"boleto" validate:"omitempty"`
}

func (m methodRequest) payload() (internalpayments.MethodPayload, error) {
	method, err := enums.ParsePaymentMethod(m.Method)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}

	switch method {
	case enums.PaymentMethodCreditCard, enums.PaymentMethodDebitCard:
		if m.Card == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "card details required for card payments")
		}
		if m.Boleto != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "boleto details not allowed for card payments")
		}
		return internalpayments.CardPayload{
			Token:        m.Card.Token,
			HolderName:   m.Card.HolderName,
			Installments: m.Card.Installments,
			Debit:        method == enums.PaymentMethodDebitCard,
		}, nil
	case enums.PaymentMethodPix:
		if m.Card != nil || m.Boleto != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "pix payments take no method details")
		}
		return internalpayments.PixPayload{}, nil
	case enums.PaymentMethodBoleto:
		if m.Card != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "card details not allowed for boleto payments")
		}
		payload := internalpayments.BoletoPayload{}
		if m.Boleto != nil {
			payload.Instructions = m.Boleto.Instructions
		}
		return payload, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
}

type createPaymentRequest struct {
	ChargeID    string  `json:"charge_id" validate:"required,uuid"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	methodRequest
}

type acceptAndPayRequest struct {
	Description *string `json:"description" validate:"omitempty,max=500"`
	methodRequest
}

type refundRequest struct {
	AmountCents *int64 `json:"amount_cents" validate:"omitempty,gt=0"`
}

// Create books a payment for an already accepted charge.
func Create(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		chargeID, err := uuid.Parse(req.ChargeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid charge id"))
			return
		}

		payload, err := req.payload()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.CreatePayment(r.Context(), actor, internalpayments.CreatePaymentParams{
			ChargeID:    chargeID,
			Payload:     payload,
			Description: req.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, NewPaymentResponse(payment))
	}
}

// AcceptAndPay accepts a pending charge and immediately books its payment.
// When the gateway call fails the acceptance stands; the client retries the
// payment through POST /payments without accepting again.
func AcceptAndPay(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		chargeID, err := parsePathUUID(r, "chargeId", "invalid charge id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req acceptAndPayRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload, err := req.payload()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AcceptChargeAndCreatePayment(r.Context(), actor, internalpayments.CreatePaymentParams{
			ChargeID:    chargeID,
			Payload:     payload,
			Description: req.Description,
		})
		if err != nil {
			if result != nil && result.Charge != nil && logg != nil {
				ctx := logg.WithChargeID(r.Context(), result.Charge.ID.String())
				logg.Warn(ctx, "charge accepted but payment creation failed")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, acceptAndPayResponse{
			Charge:  charges.NewChargeResponse(result.Charge),
			Payment: NewPaymentResponse(result.Payment),
		})
	}
}

// Get returns one payment visible to the caller.
func Get(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paymentID, err := parsePathUUID(r, "paymentId", "invalid payment id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.GetPayment(r.Context(), actor, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, NewPaymentResponse(payment))
	}
}

// List returns the payment pages for the conversation-, provider- and
// client-scoped routes.
func List(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := internalpayments.ListPaymentsParams{}

		if raw := chi.URLParam(r, "conversationId"); raw != "" {
			conversationID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid conversation id"))
				return
			}
			params.ConversationID = &conversationID
		}

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParsePaymentStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			params.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("method")); raw != "" {
			method, err := enums.ParsePaymentMethod(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid method filter"))
				return
			}
			params.Method = &method
		}

		params.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Cursor = strings.TrimSpace(r.URL.Query().Get("cursor"))

		items, next, err := svc.ListPayments(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := listPaymentsResponse{Items: make([]*PaymentResponse, 0, len(items))}
		for i := range items {
			resp.Items = append(resp.Items, NewPaymentResponse(&items[i]))
		}
		if next != nil {
			resp.NextCursor = pagination.EncodeCursor(*next)
		}

		responses.WriteSuccess(w, resp)
	}
}

// Refund reverses a settled payment, fully or partially.
func Refund(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paymentID, err := parsePathUUID(r, "paymentId", "invalid payment id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req refundRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		payment, err := svc.RefundPayment(r.Context(), actor, paymentID, req.AmountCents)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, NewPaymentResponse(payment))
	}
}

func parsePathUUID(r *http.Request, key, message string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, message)
	}
	return id, nil
}
