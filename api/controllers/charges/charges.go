package charges

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/legalflow/billing-backend/api/controllers/actorcontext"
	"github.com/legalflow/billing-backend/api/responses"
	"github.com/legalflow/billing-backend/api/validators"
	"github.com/legalflow/billing-backend/internal/billing"
	"github.com/legalflow/billing-backend/pkg/db/models"
	"github.com/legalflow/billing-backend/pkg/enums"
	pkgerrors "github.com/legalflow/billing-backend/pkg/errors"
	"github.com/legalflow/billing-backend/pkg/logger"
	"github.com/legalflow/billing-backend/pkg/pagination"
)

// ChargeService describes the charge ledger methods used by the HTTP controllers.
type ChargeService interface {
	CreateCharge(ctx context.Context, actor billing.Actor, params billing.CreateChargeParams) (*models.Charge, error)
	GetCharge(ctx context.Context, actor billing.Actor, chargeID uuid.UUID) (*models.Charge, error)
	RejectCharge(ctx context.Context, actor billing.Actor, chargeID uuid.UUID, reason string) (*models.Charge, error)
	CancelCharge(ctx context.Context, actor billing.Actor, chargeID uuid.UUID, reason string) (*models.Charge, error)
	ListCharges(ctx context.Context, actor billing.Actor, params billing.ListChargesParams) ([]models.Charge, *pagination.Cursor, error)
	Stats(ctx context.Context, actor billing.Actor, params billing.StatsParams) (*billing.Stats, error)
}

// ChargeResponse is the wire shape of a charge.
type ChargeResponse struct {
	ID                 string          `json:"id"`
	ConversationID     string          `json:"conversation_id"`
	ProviderID         string          `json:"provider_id"`
	ClientID           string          `json:"client_id"`
	AmountCents        int64           `json:"amount_cents"`
	Currency           string          `json:"currency"`
	Type               string          `json:"type"`
	Title              string          `json:"title"`
	Description        *string         `json:"description,omitempty"`
	Reason             *string         `json:"reason,omitempty"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`
	ProviderPercentage int             `json:"provider_percentage"`
	PlatformPercentage int             `json:"platform_percentage"`
	PlatformFeeCents   int64           `json:"platform_fee_cents"`
	Status             string          `json:"status"`
	AcceptedAt         *time.Time      `json:"accepted_at,omitempty"`
	RejectedAt         *time.Time      `json:"rejected_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	ExpiresAt          time.Time       `json:"expires_at"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NewChargeResponse maps a charge row onto its wire shape.
func NewChargeResponse(charge *models.Charge) *ChargeResponse {
	if charge == nil {
		return nil
	}
	return &ChargeResponse{
		ID:                 charge.ID.String(),
		ConversationID:     charge.ConversationID.String(),
		ProviderID:         charge.ProviderID.String(),
		ClientID:           charge.ClientID.String(),
		AmountCents:        charge.AmountCents,
		Currency:           charge.Currency.String(),
		Type:               charge.Type.String(),
		Title:              charge.Title,
		Description:        charge.Description,
		Reason:             charge.Reason,
		Metadata:           charge.Metadata,
		ProviderPercentage: charge.ProviderPercentage,
		PlatformPercentage: charge.PlatformPercentage,
		PlatformFeeCents:   charge.PlatformFeeCents,
		Status:             charge.Status.String(),
		AcceptedAt:         charge.AcceptedAt,
		RejectedAt:         charge.RejectedAt,
		CancelledAt:        charge.CancelledAt,
		ExpiresAt:          charge.ExpiresAt,
		CreatedAt:          charge.CreatedAt,
		UpdatedAt:          charge.UpdatedAt,
	}
}

type listChargesResponse struct {
	Items      []*ChargeResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type createChargeRequest struct {
	ConversationID string          `json:"conversation_id" validate:"required,uuid"`
	AmountCents    int64           `json:"amount_cents" validate:"required,gt=0"`
	Type           string          `json:"type" validate:"omitempty,oneof=consultation document_review representation other"`
	Title          string          `json:"title" validate:"required,max=200"`
	Description    *string         `json:"description" validate:"omitempty,max=2000"`
	Metadata       json.RawMessage `json:"metadata"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// Create opens a pending charge inside a conversation.
func Create(svc ChargeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "charge service unavailable"))
			return
		}

		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createChargeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		conversationID, err := uuid.Parse(req.ConversationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid conversation id"))
			return
		}

		var chargeType enums.ChargeType
		if req.Type != "" {
			chargeType, err = enums.ParseChargeType(req.Type)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid charge type"))
				return
			}
		}

		var description *string
		if req.Description != nil {
			sanitized := validators.SanitizeString(*req.Description, 2000)
			description = &sanitized
		}

		charge, err := svc.CreateCharge(r.Context(), actor, billing.CreateChargeParams{
			ConversationID: conversationID,
			AmountCents:    req.AmountCents,
			Type:           chargeType,
			Title:          validators.SanitizeString(req.Title, 200),
			Description:    description,
			Metadata:       req.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, NewChargeResponse(charge))
	}
}

// Get returns one charge visible to the caller.
func Get(svc ChargeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "charge service unavailable"))
			return
		}

		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		chargeID, err := parseChargeID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		charge, err := svc.GetCharge(r.Context(), actor, chargeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, NewChargeResponse(charge))
	}
}

// Reject declines a pending charge on behalf of the client.
func Reject(svc ChargeService, logg *logger.Logger) http.HandlerFunc {
	return decision(svc, logg, func(ctx context.Context, actor billing.Actor, id uuid.UUID, reason string) (*models.Charge, error) {
		return svc.RejectCharge(ctx, actor, id, reason)
	})
}

// Cancel withdraws a charge on behalf of the provider.
func Cancel(svc ChargeService, logg *logger.Logger) http.HandlerFunc {
	return decision(svc, logg, func(ctx context.Context, actor billing.Actor, id uuid.UUID, reason string) (*models.Charge, error) {
		return svc.CancelCharge(ctx, actor, id, reason)
	})
}

func decision(svc ChargeService, logg *logger.Logger, fn func(context.Context, billing.Actor, uuid.UUID, string) (*models.Charge, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "charge service unavailable"))
			return
		}

		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		chargeID, err := parseChargeID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req reasonRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		charge, err := fn(r.Context(), actor, chargeID, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, NewChargeResponse(charge))
	}
}

// List returns the charge pages for the conversation-, provider- and
// client-scoped routes. Scoping beyond the optional conversation path
// parameter is enforced by the service from the actor role.
func List(svc ChargeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "charge service unavailable"))
			return
		}

		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := billing.ListChargesParams{}

		if raw := chi.URLParam(r, "conversationId"); raw != "" {
			conversationID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid conversation id"))
				return
			}
			params.ConversationID = &conversationID
		}

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseChargeStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			params.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			chargeType, err := enums.ParseChargeType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type filter"))
				return
			}
			params.Type = &chargeType
		}

		if actor.Role == enums.ActorRoleAdmin {
			if params.ProviderID, err = parseQueryUUID(r, "provider_id"); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if params.ClientID, err = parseQueryUUID(r, "client_id"); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		params.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Cursor = strings.TrimSpace(r.URL.Query().Get("cursor"))

		items, next, err := svc.ListCharges(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := listChargesResponse{Items: make([]*ChargeResponse, 0, len(items))}
		for i := range items {
			resp.Items = append(resp.Items, NewChargeResponse(&items[i]))
		}
		if next != nil {
			resp.NextCursor = pagination.EncodeCursor(*next)
		}

		responses.WriteSuccess(w, resp)
	}
}

// Stats aggregates the ledger for a provider or an administrator.
func Stats(svc ChargeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "charge service unavailable"))
			return
		}

		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := billing.StatsParams{}
		if params.ProviderID, err = parseQueryUUID(r, "provider_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.ConversationID, err = parseQueryUUID(r, "conversation_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid since timestamp"))
				return
			}
			params.Since = &since
		}

		stats, err := svc.Stats(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, stats)
	}
}

func parseChargeID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "chargeId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid charge id")
	}
	return id, nil
}

func parseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key)
	}
	return &id, nil
}
