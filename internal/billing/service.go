package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/legalflow/billing-backend/internal/conversations"
	"github.com/legalflow/billing-backend/internal/split"
	"github.com/legalflow/billing-backend/pkg/config"
	"github.com/legalflow/billing-backend/pkg/db/models"
	"github.com/legalflow/billing-backend/pkg/enums"
	pkgerrors "github.com/legalflow/billing-backend/pkg/errors"
	"github.com/legalflow/billing-backend/pkg/logger"
	"github.com/legalflow/billing-backend/pkg/outbox"
	"github.com/legalflow/billing-backend/pkg/outbox/payloads"
	"github.com/legalflow/billing-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Actor identifies the authenticated caller for authorization checks.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	DB            txRunner
	Repo          Repository
	Conversations *conversations.Service
	ConvRepo      conversations.Repository
	Split         *split.Calculator
	Outbox        outboxPublisher
	Logger        *logger.Logger
	Config        config.BillingConfig
}

// Service orchestrates the charge ledger.
type Service struct {
	db            txRunner
	repo          Repository
	conversations *conversations.Service
	convRepo      conversations.Repository
	split         *split.Calculator
	outbox        outboxPublisher
	logg          *logger.Logger
	cfg           config.BillingConfig
	now           func() time.Time
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("db is required")
	}
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Conversations == nil {
		return nil, errors.New("conversations service is required")
	}
	if params.ConvRepo == nil {
		return nil, errors.New("conversations repo is required")
	}
	if params.Split == nil {
		return nil, errors.New("split calculator is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		db:            params.DB,
		repo:          params.Repo,
		conversations: params.Conversations,
		convRepo:      params.ConvRepo,
		split:         params.Split,
		outbox:        params.Outbox,
		logg:          params.Logger,
		cfg:           params.Config,
		now:           time.Now,
	}, nil
}

// CreateChargeParams is the input for CreateCharge.
type CreateChargeParams struct {
	ConversationID uuid.UUID
	AmountCents    int64
	Type           enums.ChargeType
	Title          string
	Description    *string
	Metadata       json.RawMessage
}

// CreateCharge opens a pending charge in a conversation. Only the provider
// assigned to the conversation may create charges.
func (s *Service) CreateCharge(ctx context.Context, actor Actor, params CreateChargeParams) (*models.Charge, error) {
	if actor.Role != enums.ActorRoleProvider {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only providers may create charges")
	}
	if params.AmountCents < s.cfg.MinimumAmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("amount must be at least %d cents", s.cfg.MinimumAmountCents))
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	chargeType := params.Type
	if chargeType == "" {
		chargeType = enums.ChargeTypeConsultation
	}
	if !chargeType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid charge type %q", chargeType))
	}

	conversation, err := s.conversations.ResolveBillable(ctx, params.ConversationID, actor.UserID)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.split.Split(params.AmountCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "computing split")
	}

	now := s.now().UTC()
	charge := &models.Charge{
		ID:                 uuid.New(),
		ConversationID:     conversation.ID,
		ProviderID:         conversation.ProviderID,
		ClientID:           conversation.ClientID,
		AmountCents:        params.AmountCents,
		Currency:           enums.Currency(s.cfg.Currency),
		Type:               chargeType,
		Title:              strings.TrimSpace(params.Title),
		Description:        params.Description,
		Metadata:           params.Metadata,
		ProviderPercentage: breakdown.ProviderPercentage,
		PlatformPercentage: breakdown.PlatformPercentage,
		PlatformFeeCents:   breakdown.PlatformFeeCents,
		Status:             enums.ChargeStatusPending,
		ExpiresAt:          now.Add(s.cfg.ChargeTTL),
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateCharge(ctx, charge); err != nil {
			return err
		}
		convRepo := s.convRepo.WithTx(tx)
		if err := convRepo.AppendCharge(ctx, conversation.ID, charge.ID); err != nil {
			return err
		}
		if err := convRepo.IncrementTotalCharged(ctx, conversation.ID, charge.AmountCents); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventChargeCreated,
			AggregateType: enums.AggregateCharge,
			AggregateID:   charge.ID,
			Data: payloads.ChargeCreatedEvent{
				ChargeID:       charge.ID,
				ConversationID: charge.ConversationID,
				ProviderID:     charge.ProviderID,
				ClientID:       charge.ClientID,
				AmountCents:    charge.AmountCents,
				Currency:       charge.Currency,
				Type:           charge.Type,
				Title:          charge.Title,
				ExpiresAt:      charge.ExpiresAt,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating charge")
	}

	logCtx := s.logg.WithChargeID(ctx, charge.ID.String())
	s.logg.Info(logCtx, "charge created")
	return charge, nil
}

// GetCharge loads a charge visible to the actor, expiring it lazily when its
// TTL has passed and it is still pending.
func (s *Service) GetCharge(ctx context.Context, actor Actor, chargeID uuid.UUID) (*models.Charge, error) {
	charge, err := s.loadVisibleCharge(ctx, actor, chargeID)
	if err != nil {
		return nil, err
	}
	return s.expireLazily(ctx, charge)
}

// AcceptCharge moves a pending charge to accepted. Only the billed client may
// accept.
func (s *Service) AcceptCharge(ctx context.Context, actor Actor, chargeID uuid.UUID) (*models.Charge, error) {
	charge, err := s.loadVisibleCharge(ctx, actor, chargeID)
	if err != nil {
		return nil, err
	}
	if actor.Role != enums.ActorRoleClient || charge.ClientID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the billed client may accept a charge")
	}
	charge, err = s.expireLazily(ctx, charge)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	return s.transition(ctx, charge, enums.ChargeStatusAccepted, map[string]any{"accepted_at": now},
		enums.EventChargeAccepted, "")
}

// RejectCharge moves a pending charge to rejected. Only the billed client may
// reject; the reason is kept on the row.
func (s *Service) RejectCharge(ctx context.Context, actor Actor, chargeID uuid.UUID, reason string) (*models.Charge, error) {
	charge, err := s.loadVisibleCharge(ctx, actor, chargeID)
	if err != nil {
		return nil, err
	}
	if actor.Role != enums.ActorRoleClient || charge.ClientID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the billed client may reject a charge")
	}
	charge, err = s.expireLazily(ctx, charge)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	updates := map[string]any{"rejected_at": now}
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		updates["reason"] = trimmed
	}
	return s.transition(ctx, charge, enums.ChargeStatusRejected, updates, enums.EventChargeRejected, reason)
}

// CancelCharge lets the issuing provider withdraw a charge before it is paid.
func (s *Service) CancelCharge(ctx context.Context, actor Actor, chargeID uuid.UUID, reason string) (*models.Charge, error) {
	charge, err := s.loadVisibleCharge(ctx, actor, chargeID)
	if err != nil {
		return nil, err
	}
	if actor.Role != enums.ActorRoleProvider || charge.ProviderID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the issuing provider may cancel a charge")
	}
	charge, err = s.expireLazily(ctx, charge)
	if err != nil {
		return nil, err
	}

	if charge.Status == enums.ChargeStatusAccepted {
		paid, err := s.repo.HasPaidPayment(ctx, charge.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking payments")
		}
		if paid {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "charge already has a settled payment")
		}
	}

	now := s.now().UTC()
	updates := map[string]any{"cancelled_at": now}
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		updates["reason"] = trimmed
	}
	return s.transition(ctx, charge, enums.ChargeStatusCancelled, updates, enums.EventChargeCancelled, reason)
}

// MarkChargePaid settles an accepted charge in its own transaction. The paid
// status is sticky: a charge already paid reports success so webhook replays
// stay idempotent.
func (s *Service) MarkChargePaid(ctx context.Context, chargeID, paymentID uuid.UUID, paidAt time.Time) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.MarkChargePaidTx(ctx, tx, chargeID, paymentID, paidAt)
	})
	if err != nil {
		if domainErr := pkgerrors.As(err); domainErr != nil {
			return domainErr
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking charge paid")
	}
	return nil
}

// MarkChargePaidTx settles an accepted charge inside the caller's transaction
// so a payment settlement and its charge transition commit or fail together.
func (s *Service) MarkChargePaidTx(ctx context.Context, tx *gorm.DB, chargeID, paymentID uuid.UUID, paidAt time.Time) error {
	repo := s.repo.WithTx(tx)
	charge, err := repo.FindChargeByID(ctx, chargeID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading charge")
	}
	if charge == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "charge not found")
	}
	if charge.Status == enums.ChargeStatusPaid {
		return nil
	}
	if !CanTransition(charge.Status, enums.ChargeStatusPaid) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("charge cannot move from %s to %s", charge.Status, enums.ChargeStatusPaid))
	}

	ok, err := repo.TransitionCharge(ctx, charge.ID, charge.Status, enums.ChargeStatusPaid, nil)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "charge state changed concurrently")
	}
	err = s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventChargePaid,
		AggregateType: enums.AggregateCharge,
		AggregateID:   charge.ID,
		Data: payloads.ChargePaidEvent{
			ChargeID:           charge.ID,
			PaymentID:          paymentID,
			ConversationID:     charge.ConversationID,
			ProviderID:         charge.ProviderID,
			ClientID:           charge.ClientID,
			AmountCents:        charge.AmountCents,
			ProviderShareCents: charge.AmountCents - charge.PlatformFeeCents,
			PlatformFeeCents:   charge.PlatformFeeCents,
			PaidAt:             paidAt,
		},
	})
	if err != nil {
		return err
	}

	logCtx := s.logg.WithChargeID(ctx, charge.ID.String())
	s.logg.Info(logCtx, "charge paid")
	return nil
}

// ExpireDueCharges sweeps pending charges past their TTL. Returns the number
// of charges expired.
func (s *Service) ExpireDueCharges(ctx context.Context, limit int) (int, error) {
	now := s.now().UTC()
	due, err := s.repo.ListExpiredPending(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing expired charges")
	}

	expired := 0
	for _, charge := range due {
		if err := s.expireCharge(ctx, charge); err != nil {
			logCtx := s.logg.WithChargeID(ctx, charge.ID.String())
			s.logg.Error(logCtx, "expiring charge", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// ListChargesParams configures charge listings.
type ListChargesParams struct {
	ConversationID *uuid.UUID
	ProviderID     *uuid.UUID
	ClientID       *uuid.UUID
	Status         *enums.ChargeStatus
	Type           *enums.ChargeType
	Limit          int
	Cursor         string
}

// ListCharges returns charges visible to the actor. Non-admin callers are
// pinned to their own provider/client scope.
func (s *Service) ListCharges(ctx context.Context, actor Actor, params ListChargesParams) ([]models.Charge, *pagination.Cursor, error) {
	query := ListChargesQuery{
		ConversationID: params.ConversationID,
		Status:         params.Status,
		Type:           params.Type,
		Limit:          params.Limit,
	}

	switch actor.Role {
	case enums.ActorRoleProvider:
		scoped := actor.UserID
		query.ProviderID = &scoped
	case enums.ActorRoleClient:
		scoped := actor.UserID
		query.ClientID = &scoped
	case enums.ActorRoleAdmin:
		query.ProviderID = params.ProviderID
		query.ClientID = params.ClientID
	default:
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "unknown actor role")
	}

	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	charges, next, err := s.repo.ListCharges(ctx, query)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing charges")
	}
	return charges, next, nil
}

// StatsParams configures billing stats queries.
type StatsParams struct {
	ProviderID     *uuid.UUID
	ConversationID *uuid.UUID
	Since          *time.Time
}

// Stats aggregates the ledger for a provider. Providers only see their own
// numbers; admins may scope freely.
func (s *Service) Stats(ctx context.Context, actor Actor, params StatsParams) (*Stats, error) {
	query := StatsQuery{ConversationID: params.ConversationID, Since: params.Since}

	switch actor.Role {
	case enums.ActorRoleProvider:
		scoped := actor.UserID
		query.ProviderID = &scoped
	case enums.ActorRoleAdmin:
		query.ProviderID = params.ProviderID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "stats are provider-scoped")
	}

	stats, err := s.repo.Stats(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregating stats")
	}
	return stats, nil
}

func (s *Service) loadVisibleCharge(ctx context.Context, actor Actor, chargeID uuid.UUID) (*models.Charge, error) {
	charge, err := s.repo.FindChargeByID(ctx, chargeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading charge")
	}
	if charge == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "charge not found")
	}

	switch actor.Role {
	case enums.ActorRoleAdmin:
	case enums.ActorRoleProvider:
		if charge.ProviderID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "charge belongs to another provider")
		}
	case enums.ActorRoleClient:
		if charge.ClientID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "charge belongs to another client")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "unknown actor role")
	}
	return charge, nil
}

// expireLazily applies the TTL on read so sweeps do not have to win a race
// with the next request.
func (s *Service) expireLazily(ctx context.Context, charge *models.Charge) (*models.Charge, error) {
	if charge.Status != enums.ChargeStatusPending || s.now().UTC().Before(charge.ExpiresAt) {
		return charge, nil
	}
	if err := s.expireCharge(ctx, *charge); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expiring charge")
	}
	charge.Status = enums.ChargeStatusExpired
	return charge, nil
}

func (s *Service) expireCharge(ctx context.Context, charge models.Charge) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).TransitionCharge(ctx, charge.ID, enums.ChargeStatusPending, enums.ChargeStatusExpired, nil)
		if err != nil {
			return err
		}
		if !ok {
			// Someone else moved it first; nothing to emit.
			return nil
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventChargeExpired,
			AggregateType: enums.AggregateCharge,
			AggregateID:   charge.ID,
			Data: payloads.ChargeExpiredEvent{
				ChargeID:       charge.ID,
				ConversationID: charge.ConversationID,
				ProviderID:     charge.ProviderID,
				ClientID:       charge.ClientID,
				ExpiredAt:      s.now().UTC(),
			},
		})
	})
}

func (s *Service) transition(ctx context.Context, charge *models.Charge, to enums.ChargeStatus, updates map[string]any, eventType enums.OutboxEventType, reason string) (*models.Charge, error) {
	from := charge.Status
	if !CanTransition(from, to) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("charge cannot move from %s to %s", from, to))
	}

	decidedAt := s.now().UTC()
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).TransitionCharge(ctx, charge.ID, from, to, updates)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "charge state changed concurrently")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateCharge,
			AggregateID:   charge.ID,
			Data: payloads.ChargeDecisionEvent{
				ChargeID:       charge.ID,
				ConversationID: charge.ConversationID,
				ProviderID:     charge.ProviderID,
				ClientID:       charge.ClientID,
				Status:         to,
				Reason:         strings.TrimSpace(reason),
				DecidedAt:      decidedAt,
			},
		})
	})
	if err != nil {
		if domainErr := pkgerrors.As(err); domainErr != nil {
			return nil, domainErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transitioning charge")
	}

	updated := *charge
	updated.Status = to
	for column, value := range updates {
		switch column {
		case "accepted_at":
			if ts, ok := value.(time.Time); ok {
				updated.AcceptedAt = &ts
			}
		case "rejected_at":
			if ts, ok := value.(time.Time); ok {
				updated.RejectedAt = &ts
			}
		case "cancelled_at":
			if ts, ok := value.(time.Time); ok {
				updated.CancelledAt = &ts
			}
		case "reason":
			if text, ok := value.(string); ok {
				updated.Reason = &text
			}
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"charge_id": charge.ID.String(),
		"from":      from,
		"to":        to,
	})
	s.logg.Info(logCtx, "charge transitioned")
	return &updated, nil
}
