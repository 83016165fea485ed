package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/legalflow/billing-backend/internal/billing"
	"github.com/legalflow/billing-backend/pkg/config"
	"github.com/legalflow/billing-backend/pkg/db/models"
	"github.com/legalflow/billing-backend/pkg/enums"
	pkgerrors "github.com/legalflow/billing-backend/pkg/errors"
	"github.com/legalflow/billing-backend/pkg/gateway"
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

type gatewayClient interface {
	CreatePayment(ctx context.Context, params gateway.PaymentCreateParams) (*gateway.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
	RefundPayment(ctx context.Context, params gateway.RefundParams) (*gateway.Refund, error)
}

type chargeLedger interface {
	GetCharge(ctx context.Context, actor billing.Actor, chargeID uuid.UUID) (*models.Charge, error)
	AcceptCharge(ctx context.Context, actor billing.Actor, chargeID uuid.UUID) (*models.Charge, error)
	MarkChargePaid(ctx context.Context, chargeID, paymentID uuid.UUID, paidAt time.Time) error
	MarkChargePaidTx(ctx context.Context, tx *gorm.DB, chargeID, paymentID uuid.UUID, paidAt time.Time) error
}

// ServiceParams groups dependencies for the payment service.
type ServiceParams struct {
	DB      txRunner
	Repo    Repository
	Billing chargeLedger
	Gateway gatewayClient
	Outbox  outboxPublisher
	Logger  *logger.Logger
	Config  config.GatewayConfig
}

// Service books payments against the external gateway and reconciles their
// asynchronous outcomes back onto the charge ledger.
type Service struct {
	db      txRunner
	repo    Repository
	billing chargeLedger
	gateway gatewayClient
	outbox  outboxPublisher
	logg    *logger.Logger
	cfg     config.GatewayConfig
	now     func() time.Time
}

// NewService builds a payment service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("db is required")
	}
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Billing == nil {
		return nil, errors.New("billing service is required")
	}
	if params.Gateway == nil {
		return nil, errors.New("gateway client is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		db:      params.DB,
		repo:    params.Repo,
		billing: params.Billing,
		gateway: params.Gateway,
		outbox:  params.Outbox,
		logg:    params.Logger,
		cfg:     params.Config,
		now:     time.Now,
	}, nil
}

// CreatePaymentParams is the input for CreatePayment.
type CreatePaymentParams struct {
	ChargeID    uuid.UUID
	Payload     MethodPayload
	Description *string
}

// CreatePayment books a payment for an accepted charge. The attempt is
// persisted as a pending row before the gateway is called, so a gateway
// failure leaves an auditable pending payment for a retry or the reconciler
// instead of vanishing. The gateway call uses an idempotency key derived from
// the charge, so retries after a transport failure land on the same gateway
// payment instead of double-charging.
func (s *Service) CreatePayment(ctx context.Context, actor billing.Actor, params CreatePaymentParams) (*models.Payment, error) {
	if actor.Role != enums.ActorRoleClient {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the billed client may pay a charge")
	}
	if params.Payload == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method payload is required")
	}

	charge, err := s.billing.GetCharge(ctx, actor, params.ChargeID)
	if err != nil {
		return nil, err
	}
	if charge.Status != enums.ChargeStatusAccepted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("charge must be accepted before payment, got %s", charge.Status))
	}

	existing, err := s.repo.FindPaymentByChargeID(ctx, charge.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment")
	}
	if existing != nil {
		rebook, err := s.canRebook(ctx, existing)
		if err != nil {
			return nil, err
		}
		if !rebook {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "charge already has an active payment")
		}
	}

	gatewayParams := gateway.PaymentCreateParams{
		IdempotencyKey: chargeIdempotencyKey(charge.ID),
		AmountCents:    charge.AmountCents,
		Currency:       string(charge.Currency),
		Method:         string(params.Payload.Method()),
		SplitRules:     s.splitRules(charge),
		Metadata: map[string]string{
			"charge_id":       charge.ID.String(),
			"conversation_id": charge.ConversationID.String(),
		},
	}
	params.Payload.apply(s.cfg, &gatewayParams)

	splitJSON, err := json.Marshal(gatewayParams.SplitRules)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding split rules")
	}
	requestMetadata, err := json.Marshal(gatewayParams.Metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding metadata")
	}

	payment := &models.Payment{
		ID:             uuid.New(),
		ChargeID:       charge.ID,
		ConversationID: charge.ConversationID,
		ClientID:       charge.ClientID,
		ProviderID:     charge.ProviderID,
		AmountCents:    charge.AmountCents,
		Currency:       charge.Currency,
		Method:         params.Payload.Method(),
		Installments:   1,
		Description:    params.Description,
		SplitRules:     splitJSON,
		Metadata:       requestMetadata,
		Status:         enums.PaymentStatusPending,
	}

	// Persist the attempt before the gateway sees it.
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if existing != nil {
			// An earlier attempt holds the unique charge_id slot; reset its
			// row for the new booking.
			payment.ID = existing.ID
			return repo.UpdatePayment(ctx, existing.ID, map[string]any{
				"status":       enums.PaymentStatusPending,
				"method":       payment.Method,
				"installments": payment.Installments,
				"description":  payment.Description,
				"split_rules":  splitJSON,
				"metadata":     requestMetadata,
			})
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCreated,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentCreatedEvent{
				PaymentID:      payment.ID,
				ChargeID:       charge.ID,
				ConversationID: charge.ConversationID,
				Method:         payment.Method,
				AmountCents:    payment.AmountCents,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting payment")
	}

	booked, err := s.gateway.CreatePayment(ctx, gatewayParams)
	if err != nil {
		logCtx := s.logg.WithChargeID(ctx, charge.ID.String())
		logCtx = s.logg.WithPaymentID(logCtx, payment.ID.String())
		s.logg.Error(logCtx, "gateway payment create failed", err)
		// The pending row stays behind as the audit trail of the attempt.
		return nil, err
	}

	status := MapGatewayStatus(booked.Status)
	payment.Status = status
	payment.ExternalID = &booked.ID
	if booked.Installments > 0 {
		payment.Installments = booked.Installments
	}
	if booked.TransactionID != "" {
		payment.TransactionID = &booked.TransactionID
	}
	if metadataJSON, err := json.Marshal(booked.Metadata); err == nil && len(booked.Metadata) > 0 {
		payment.Metadata = metadataJSON
	}

	transaction := &models.PaymentTransaction{
		ID:             uuid.New(),
		PaymentID:      payment.ID,
		ExternalID:     booked.ID,
		Type:           enums.TransactionTypePayment,
		Status:         status,
		AmountCents:    charge.AmountCents,
		FeeCents:       charge.PlatformFeeCents,
		NetAmountCents: charge.AmountCents - charge.PlatformFeeCents,
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdatePayment(ctx, payment.ID, map[string]any{
			"status":         status,
			"installments":   payment.Installments,
			"external_id":    booked.ID,
			"transaction_id": payment.TransactionID,
			"metadata":       payment.Metadata,
		}); err != nil {
			return err
		}
		return repo.CreateTransaction(ctx, transaction)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording gateway outcome")
	}

	logCtx := s.logg.WithPaymentID(ctx, payment.ID.String())
	s.logg.Info(logCtx, "payment created")

	// Synchronous settlement (some card flows capture immediately).
	if status == enums.PaymentStatusPaid {
		paidAt := s.now().UTC()
		if booked.PaidAt != nil {
			paidAt = *booked.PaidAt
		}
		if err := s.settle(ctx, payment, paidAt); err != nil {
			s.logg.Error(logCtx, "settling synchronous payment", err)
		}
	}
	return payment, nil
}

// AcceptAndPayResult carries both sides of the accept-and-pay flow.
type AcceptAndPayResult struct {
	Charge  *models.Charge
	Payment *models.Payment
}

// AcceptChargeAndCreatePayment accepts a pending charge and immediately books
// its payment. When the gateway call fails the acceptance is deliberately not
// rolled back: the result still carries the accepted charge alongside the
// error, and a later CreatePayment retry picks up without asking the client
// to accept again.
func (s *Service) AcceptChargeAndCreatePayment(ctx context.Context, actor billing.Actor, params CreatePaymentParams) (*AcceptAndPayResult, error) {
	charge, err := s.billing.AcceptCharge(ctx, actor, params.ChargeID)
	if err != nil {
		return nil, err
	}

	payment, err := s.CreatePayment(ctx, actor, params)
	if err != nil {
		return &AcceptAndPayResult{Charge: charge}, err
	}
	return &AcceptAndPayResult{Charge: charge, Payment: payment}, nil
}

// GetPayment loads a payment visible to the actor.
func (s *Service) GetPayment(ctx context.Context, actor billing.Actor, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}

	switch actor.Role {
	case enums.ActorRoleAdmin:
	case enums.ActorRoleProvider:
		if payment.ProviderID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another provider")
		}
	case enums.ActorRoleClient:
		if payment.ClientID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another client")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "unknown actor role")
	}
	return payment, nil
}

// ListPaymentsParams configures payment listings.
type ListPaymentsParams struct {
	ConversationID *uuid.UUID
	ProviderID     *uuid.UUID
	ClientID       *uuid.UUID
	Status         *enums.PaymentStatus
	Method         *enums.PaymentMethod
	Limit          int
	Cursor         string
}

// ListPayments returns payments visible to the actor.
func (s *Service) ListPayments(ctx context.Context, actor billing.Actor, params ListPaymentsParams) ([]models.Payment, *pagination.Cursor, error) {
	query := ListPaymentsQuery{
		ConversationID: params.ConversationID,
		Status:         params.Status,
		Method:         params.Method,
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

	payments, next, err := s.repo.ListPayments(ctx, query)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing payments")
	}
	return payments, next, nil
}

// RefundPayment refunds a settled payment through the gateway. Partial
// refunds pass an amount below the payment total.
func (s *Service) RefundPayment(ctx context.Context, actor billing.Actor, paymentID uuid.UUID, amountCents *int64) (*models.Payment, error) {
	if actor.Role != enums.ActorRoleProvider && actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the provider or an admin may refund")
	}

	payment, err := s.GetPayment(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("only paid payments can be refunded, got %s", payment.Status))
	}
	if payment.ExternalID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no gateway reference")
	}

	refundAmount := payment.AmountCents
	if amountCents != nil {
		if *amountCents <= 0 || *amountCents > payment.AmountCents {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount out of range")
		}
		refundAmount = *amountCents
	}

	refund, err := s.gateway.RefundPayment(ctx, gateway.RefundParams{
		IdempotencyKey: fmt.Sprintf("refund-%s", payment.ID),
		PaymentID:      *payment.ExternalID,
		AmountCents:    refundAmount,
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	transaction := &models.PaymentTransaction{
		ID:             uuid.New(),
		PaymentID:      payment.ID,
		ExternalID:     refund.ID,
		Type:           enums.TransactionTypeRefund,
		Status:         enums.PaymentStatusRefunded,
		AmountCents:    refundAmount,
		NetAmountCents: refundAmount,
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionPayment(ctx, payment.ID, enums.PaymentStatusPaid, enums.PaymentStatusRefunded, map[string]any{
			"refunded_at":         now,
			"refund_amount_cents": refundAmount,
		})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment state changed concurrently")
		}
		if err := repo.CreateTransaction(ctx, transaction); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentStatusEvent{
				PaymentID:      payment.ID,
				ChargeID:       payment.ChargeID,
				ConversationID: payment.ConversationID,
				Status:         enums.PaymentStatusRefunded,
				OccurredAt:     now,
			},
		})
	})
	if err != nil {
		if domainErr := pkgerrors.As(err); domainErr != nil {
			return nil, domainErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "refunding payment")
	}

	payment.Status = enums.PaymentStatusRefunded
	payment.RefundedAt = &now
	payment.RefundAmountCents = &refundAmount

	logCtx := s.logg.WithPaymentID(ctx, payment.ID.String())
	s.logg.Info(logCtx, "payment refunded")
	return payment, nil
}

// FindByExternalID resolves a payment from the gateway's identifier. Returns
// nil when no payment references it.
func (s *Service) FindByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	payment, err := s.repo.FindPaymentByExternalID(ctx, externalID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving payment")
	}
	return payment, nil
}

// ApplyGatewayStatus reconciles one webhook-reported status onto a payment.
// The raw notification is durably logged before any state change, duplicate
// reports are acknowledged without side effects, and reports that contradict
// a terminal state leave the payment untouched.
func (s *Service) ApplyGatewayStatus(ctx context.Context, payment *models.Payment, rawStatus, eventType string, raw json.RawMessage, occurredAt time.Time) (ReconcileOutcome, error) {
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}

	entry := models.WebhookEventEntry{Event: eventType, Data: raw, ReceivedAt: s.now().UTC()}
	if err := s.repo.SetWebhookData(ctx, payment.ID, raw); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "logging webhook data")
	}
	if payment.ExternalID != nil {
		if err := s.repo.AppendTransactionWebhookEvent(ctx, *payment.ExternalID, entry); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "appending webhook event")
		}
	}

	target := MapGatewayStatus(rawStatus)
	outcome := classifyTransition(payment.Status, target)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"from":       payment.Status,
		"to":         target,
		"event":      eventType,
	})

	switch outcome {
	case OutcomeDuplicate:
		if target == enums.PaymentStatusPaid {
			// A settled payment can be left with a stuck charge if an earlier
			// delivery crashed between the two writes; the sticky charge
			// transition makes this heal a no-op otherwise.
			if err := s.billing.MarkChargePaid(ctx, payment.ChargeID, payment.ID, occurredAt); err != nil {
				return "", err
			}
		}
		s.logg.Info(logCtx, "webhook status already applied")
		return OutcomeDuplicate, nil
	case OutcomeConflict:
		s.logg.Warn(logCtx, "webhook status conflicts with payment state")
		return OutcomeConflict, nil
	}

	updates := map[string]any{}
	var eventName enums.OutboxEventType
	switch target {
	case enums.PaymentStatusPaid:
		updates["paid_at"] = occurredAt
	case enums.PaymentStatusCancelled:
		updates["cancelled_at"] = occurredAt
	case enums.PaymentStatusRefunded:
		updates["refunded_at"] = occurredAt
		eventName = enums.EventPaymentRefunded
	case enums.PaymentStatusFailed:
		eventName = enums.EventPaymentFailed
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).TransitionPayment(ctx, payment.ID, payment.Status, target, updates)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment state changed concurrently")
		}
		if target == enums.PaymentStatusPaid {
			// One transaction for both sides: the payment settlement and the
			// charge transition commit or fail together.
			if err := s.billing.MarkChargePaidTx(ctx, tx, payment.ChargeID, payment.ID, occurredAt); err != nil {
				return err
			}
		}
		if eventName == "" {
			return nil
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     eventName,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentStatusEvent{
				PaymentID:      payment.ID,
				ChargeID:       payment.ChargeID,
				ConversationID: payment.ConversationID,
				Status:         target,
				Reason:         rawStatus,
				OccurredAt:     occurredAt,
			},
		})
	})
	if err != nil {
		if domainErr := pkgerrors.As(err); domainErr != nil {
			return "", domainErr
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "applying webhook status")
	}

	payment.Status = target
	s.logg.Info(logCtx, "webhook status applied")
	return OutcomeApplied, nil
}

// settle marks both sides paid in one transaction after a gateway capture.
func (s *Service) settle(ctx context.Context, payment *models.Payment, paidAt time.Time) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).TransitionPayment(ctx, payment.ID, payment.Status, enums.PaymentStatusPaid, map[string]any{
			"paid_at": paidAt,
		})
		if err != nil {
			return err
		}
		_ = ok // another writer may have settled first; the charge heal below still applies
		return s.billing.MarkChargePaidTx(ctx, tx, payment.ChargeID, payment.ID, paidAt)
	})
}

// canRebook reports whether a new gateway booking may reuse the existing
// payment row. A pending row that already carries a gateway reference is
// checked against the gateway's live state first, so a settlement whose
// webhook we missed is healed instead of rebooked.
func (s *Service) canRebook(ctx context.Context, existing *models.Payment) (bool, error) {
	if isRetryablePaymentStatus(existing.Status) {
		return true, nil
	}
	if existing.Status != enums.PaymentStatusPending {
		return false, nil
	}
	if existing.ExternalID == nil {
		// The gateway never confirmed the earlier attempt.
		return true, nil
	}

	remote, err := s.gateway.GetPayment(ctx, *existing.ExternalID)
	if err != nil {
		// The idempotency key pins retries to the same gateway payment, so
		// booking again while the lookup is down cannot double-charge.
		logCtx := s.logg.WithPaymentID(ctx, existing.ID.String())
		s.logg.Warn(logCtx, "gateway payment lookup failed")
		return true, nil
	}

	switch MapGatewayStatus(remote.Status) {
	case enums.PaymentStatusPaid:
		paidAt := s.now().UTC()
		if remote.PaidAt != nil {
			paidAt = *remote.PaidAt
		}
		if err := s.settle(ctx, existing, paidAt); err != nil {
			return false, err
		}
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "charge already has a settled payment")
	case enums.PaymentStatusFailed, enums.PaymentStatusCancelled:
		return true, nil
	default:
		return false, nil
	}
}

func isRetryablePaymentStatus(status enums.PaymentStatus) bool {
	return status == enums.PaymentStatusFailed || status == enums.PaymentStatusCancelled
}

func chargeIdempotencyKey(chargeID uuid.UUID) string {
	return fmt.Sprintf("charge-%s-payment", chargeID)
}

func (s *Service) splitRules(charge *models.Charge) []gateway.SplitRule {
	providerShare := charge.AmountCents - charge.PlatformFeeCents
	return []gateway.SplitRule{
		{
			RecipientID:         charge.ProviderID.String(),
			AmountCents:         providerShare,
			Liable:              true,
			ChargeProcessingFee: true,
		},
		{
			RecipientID: s.cfg.PlatformRecipient,
			AmountCents: charge.PlatformFeeCents,
		},
	}
}
