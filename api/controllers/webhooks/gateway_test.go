package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gatewaywebhook "github.com/legalflow/billing-backend/internal/webhooks/gateway"
)

type stubGatewayWebhookService struct {
	handled []*gatewaywebhook.Event
	err     error
}

func (s *stubGatewayWebhookService) HandleEvent(ctx context.Context, event *gatewaywebhook.Event, raw json.RawMessage) error {
	s.handled = append(s.handled, event)
	return s.err
}

type stubGatewaySigner struct{ secret string }

func (s stubGatewaySigner) SigningSecret() string { return s.secret }

func signBody(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

const gatewayEventBody = `{
	"id": "evt_123",
	"type": "payment.updated",
	"data": {
		"id": "pay_ext_1",
		"status": "paid",
		"amount": 10000,
		"payment_method": "pix",
		"metadata": {"charge_id": "c-1", "conversation_id": "conv-1"}
	}
}`

func TestGatewayWebhookDispatchesVerifiedEvent(t *testing.T) {
	svc := &stubGatewayWebhookService{}
	signer := stubGatewaySigner{secret: "whsec_test"}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", strings.NewReader(gatewayEventBody))
	req.Header.Set(SignatureHeader, signBody(signer.secret, gatewayEventBody))

	resp := httptest.NewRecorder()
	GatewayWebhook(svc, signer, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.handled) != 1 {
		t.Fatalf("expected one handled event, got %d", len(svc.handled))
	}
	if svc.handled[0].ID != "evt_123" || svc.handled[0].Data.ID != "pay_ext_1" {
		t.Fatalf("event not parsed: %+v", svc.handled[0])
	}
}

func TestGatewayWebhookRejectsMissingSignature(t *testing.T) {
	svc := &stubGatewayWebhookService{}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", strings.NewReader(gatewayEventBody))

	resp := httptest.NewRecorder()
	GatewayWebhook(svc, stubGatewaySigner{secret: "whsec_test"}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if len(svc.handled) != 0 {
		t.Fatal("unverified event must not reach the service")
	}
}

func TestGatewayWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubGatewayWebhookService{}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", strings.NewReader(gatewayEventBody))
	req.Header.Set(SignatureHeader, signBody("wrong-secret", gatewayEventBody))

	resp := httptest.NewRecorder()
	GatewayWebhook(svc, stubGatewaySigner{secret: "whsec_test"}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if len(svc.handled) != 0 {
		t.Fatal("unverified event must not reach the service")
	}
}

func TestGatewayWebhookRejectsUnparsableBody(t *testing.T) {
	body := `{"type":"payment.updated"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", strings.NewReader(body))
	req.Header.Set(SignatureHeader, signBody("whsec_test", body))

	resp := httptest.NewRecorder()
	GatewayWebhook(&stubGatewayWebhookService{}, stubGatewaySigner{secret: "whsec_test"}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", resp.Code, resp.Body.String())
	}
}
