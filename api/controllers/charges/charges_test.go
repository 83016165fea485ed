package charges

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/legalflow/billing-backend/api/middleware"
	"github.com/legalflow/billing-backend/internal/billing"
	"github.com/legalflow/billing-backend/pkg/db/models"
	"github.com/legalflow/billing-backend/pkg/enums"
	"github.com/legalflow/billing-backend/pkg/pagination"
)

type stubChargeService struct {
	create func(ctx context.Context, actor billing.Actor, params billing.CreateChargeParams) (*models.Charge, error)
	get    func(ctx context.Context, actor billing.Actor, chargeID uuid.UUID) (*models.Charge, error)
	reject func(ctx context.Context, actor billing.Actor, chargeID uuid.UUID, reason string) (*models.Charge, error)
	cancel func(ctx context.Context, actor billing.Actor, chargeID uuid.UUID, reason string) (*models.Charge, error)
	list   func(ctx context.Context, actor billing.Actor, params billing.ListChargesParams) ([]models.Charge, *pagination.Cursor, error)
	stats  func(ctx context.Context, actor billing.Actor, params billing.StatsParams) (*billing.Stats, error)
}

func (s *stubChargeService) CreateCharge(ctx context.Context, actor billing.Actor, params billing.CreateChargeParams) (*models.Charge, error) {
	if s.create != nil {
		return s.create(ctx, actor, params)
	}
	return nil, nil
}

func (s *stubChargeService) GetCharge(ctx context.Context, actor billing.Actor, chargeID uuid.UUID) (*models.Charge, error) {
	if s.get != nil {
		return s.get(ctx, actor, chargeID)
	}
	return nil, nil
}

func (s *stubChargeService) RejectCharge(ctx context.Context, actor billing.Actor, chargeID uuid.UUID, reason string) (*models.Charge, error) {
	if s.reject != nil {
		return s.reject(ctx, actor, chargeID, reason)
	}
	return nil, nil
}

func (s *stubChargeService) CancelCharge(ctx context.Context, actor billing.Actor, chargeID uuid.UUID, reason string) (*models.Charge, error) {
	if s.cancel != nil {
		return s.cancel(ctx, actor, chargeID, reason)
	}
	return nil, nil
}

func (s *stubChargeService) ListCharges(ctx context.Context, actor billing.Actor, params billing.ListChargesParams) ([]models.Charge, *pagination.Cursor, error) {
	if s.list != nil {
		return s.list(ctx, actor, params)
	}
	return nil, nil, nil
}

func (s *stubChargeService) Stats(ctx context.Context, actor billing.Actor, params billing.StatsParams) (*billing.Stats, error) {
	if s.stats != nil {
		return s.stats(ctx, actor, params)
	}
	return &billing.Stats{}, nil
}

func authedRequest(req *http.Request, userID uuid.UUID, role enums.ActorRole) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, role.String())
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func sampleCharge(providerID, clientID uuid.UUID) *models.Charge {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &models.Charge{
		ID:                 uuid.New(),
		ConversationID:     uuid.New(),
		ProviderID:         providerID,
		ClientID:           clientID,
		AmountCents:        10000,
		Currency:           enums.CurrencyBRL,
		Type:               enums.ChargeTypeConsultation,
		Title:              "Initial consultation",
		ProviderPercentage: 95,
		PlatformPercentage: 5,
		PlatformFeeCents:   500,
		Status:             enums.ChargeStatusPending,
		ExpiresAt:          now.Add(7 * 24 * time.Hour),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestCreateChargeHandler(t *testing.T) {
	providerID := uuid.New()
	conversationID := uuid.New()

	svc := &stubChargeService{
		create: func(ctx context.Context, actor billing.Actor, params billing.CreateChargeParams) (*models.Charge, error) {
			if actor.UserID != providerID || actor.Role != enums.ActorRoleProvider {
				t.Fatalf("unexpected actor %+v", actor)
			}
			if params.ConversationID != conversationID {
				t.Fatalf("unexpected conversation id %s", params.ConversationID)
			}
			if params.AmountCents != 10000 {
				t.Fatalf("unexpected amount %d", params.AmountCents)
			}
			if params.Type != enums.ChargeTypeDocumentReview {
				t.Fatalf("unexpected type %s", params.Type)
			}
			charge := sampleCharge(providerID, uuid.New())
			charge.ConversationID = conversationID
			return charge, nil
		},
	}

	body := `{"conversation_id":"` + conversationID.String() + `","amount_cents":10000,"type":"document_review","title":"Contract review"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/charges", strings.NewReader(body))
	req = authedRequest(req, providerID, enums.ActorRoleProvider)

	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data ChargeResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ConversationID != conversationID.String() {
		t.Fatalf("unexpected conversation id in response")
	}
	if envelope.Data.Status != "pending" {
		t.Fatalf("expected pending status, got %s", envelope.Data.Status)
	}
}

func TestCreateChargeHandlerRejectsBadBody(t *testing.T) {
	svc := &stubChargeService{
		create: func(context.Context, billing.Actor, billing.CreateChargeParams) (*models.Charge, error) {
			t.Fatal("service should not be reached")
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/charges", strings.NewReader(`{"amount_cents":10000}`))
	req = authedRequest(req, uuid.New(), enums.ActorRoleProvider)

	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreateChargeHandlerRequiresAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/charges", strings.NewReader(`{}`))

	resp := httptest.NewRecorder()
	Create(&stubChargeService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestGetChargeHandler(t *testing.T) {
	clientID := uuid.New()
	charge := sampleCharge(uuid.New(), clientID)

	svc := &stubChargeService{
		get: func(ctx context.Context, actor billing.Actor, chargeID uuid.UUID) (*models.Charge, error) {
			if chargeID != charge.ID {
				t.Fatalf("unexpected charge id %s", chargeID)
			}
			return charge, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/charges/"+charge.ID.String(), nil)
	req = authedRequest(req, clientID, enums.ActorRoleClient)
	req = withURLParam(req, "chargeId", charge.ID.String())

	resp := httptest.NewRecorder()
	Get(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestGetChargeHandlerInvalidID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/charges/nope", nil)
	req = authedRequest(req, uuid.New(), enums.ActorRoleClient)
	req = withURLParam(req, "chargeId", "nope")

	resp := httptest.NewRecorder()
	Get(&stubChargeService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRejectChargeHandlerPassesReason(t *testing.T) {
	clientID := uuid.New()
	charge := sampleCharge(uuid.New(), clientID)

	svc := &stubChargeService{
		reject: func(ctx context.Context, actor billing.Actor, chargeID uuid.UUID, reason string) (*models.Charge, error) {
			if reason != "too expensive" {
				t.Fatalf("unexpected reason %q", reason)
			}
			return charge, nil
		},
	}

	body := `{"reason":"too expensive"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/charges/"+charge.ID.String()+"/reject", strings.NewReader(body))
	req = authedRequest(req, clientID, enums.ActorRoleClient)
	req = withURLParam(req, "chargeId", charge.ID.String())

	resp := httptest.NewRecorder()
	Reject(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCancelChargeHandlerEmptyBody(t *testing.T) {
	providerID := uuid.New()
	charge := sampleCharge(providerID, uuid.New())

	svc := &stubChargeService{
		cancel: func(ctx context.Context, actor billing.Actor, chargeID uuid.UUID, reason string) (*models.Charge, error) {
			if reason != "" {
				t.Fatalf("expected empty reason, got %q", reason)
			}
			return charge, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/charges/"+charge.ID.String()+"/cancel", nil)
	req = authedRequest(req, providerID, enums.ActorRoleProvider)
	req = withURLParam(req, "chargeId", charge.ID.String())

	resp := httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestListChargesHandlerFilters(t *testing.T) {
	providerID := uuid.New()
	conversationID := uuid.New()
	next := pagination.Cursor{CreatedAt: time.Now().UTC(), ID: uuid.New()}

	svc := &stubChargeService{
		list: func(ctx context.Context, actor billing.Actor, params billing.ListChargesParams) ([]models.Charge, *pagination.Cursor, error) {
			if params.ConversationID == nil || *params.ConversationID != conversationID {
				t.Fatalf("conversation filter not parsed")
			}
			if params.Status == nil || *params.Status != enums.ChargeStatusPaid {
				t.Fatalf("status filter not parsed")
			}
			if params.Limit != 10 {
				t.Fatalf("unexpected limit %d", params.Limit)
			}
			return []models.Charge{*sampleCharge(providerID, uuid.New())}, &next, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/"+conversationID.String()+"/charges?status=paid&limit=10", nil)
	req = authedRequest(req, providerID, enums.ActorRoleProvider)
	req = withURLParam(req, "conversationId", conversationID.String())

	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data struct {
			Items      []ChargeResponse `json:"items"`
			NextCursor string           `json:"next_cursor"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(envelope.Data.Items))
	}
	if envelope.Data.NextCursor == "" {
		t.Fatal("expected next cursor")
	}
}

func TestListChargesHandlerIgnoresScopeParamsForNonAdmin(t *testing.T) {
	svc := &stubChargeService{
		list: func(ctx context.Context, actor billing.Actor, params billing.ListChargesParams) ([]models.Charge, *pagination.Cursor, error) {
			if params.ProviderID != nil || params.ClientID != nil {
				t.Fatal("scope params must not pass through for non-admin callers")
			}
			return nil, nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clients/me/charges?provider_id="+uuid.NewString(), nil)
	req = authedRequest(req, uuid.New(), enums.ActorRoleClient)

	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestStatsHandlerParsesSince(t *testing.T) {
	providerID := uuid.New()
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	svc := &stubChargeService{
		stats: func(ctx context.Context, actor billing.Actor, params billing.StatsParams) (*billing.Stats, error) {
			if params.Since == nil || !params.Since.Equal(since) {
				t.Fatal("since filter not parsed")
			}
			return &billing.Stats{TotalCharges: 3, PaidCharges: 2}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/stats?since=2026-01-01T00:00:00Z", nil)
	req = authedRequest(req, providerID, enums.ActorRoleProvider)

	resp := httptest.NewRecorder()
	Stats(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data billing.Stats `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.TotalCharges != 3 || envelope.Data.PaidCharges != 2 {
		t.Fatalf("unexpected stats payload %+v", envelope.Data)
	}
}
