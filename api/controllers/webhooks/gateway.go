package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/legalflow/billing-backend/api/responses"
	gatewaywebhook "github.com/legalflow/billing-backend/internal/webhooks/gateway"
	pkgerrors "github.com/legalflow/billing-backend/pkg/errors"
	"github.com/legalflow/billing-backend/pkg/logger"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Gateway-Signature"

type GatewayWebhookService interface {
	HandleEvent(ctx context.Context, event *gatewaywebhook.Event, raw json.RawMessage) error
}

type gatewaySigner interface {
	SigningSecret() string
}

// GatewayWebhook handles payment lifecycle notifications from the gateway.
// Reconciliation outcomes, including conflicts, are always acknowledged with
// 200 so the gateway stops redelivering; only transport-level failures return
// an error status.
func GatewayWebhook(svc GatewayWebhookService, signer gatewaySigner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if signer == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gateway client unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if err := verifySignature(payload, r.Header.Get(SignatureHeader), signer.SigningSecret()); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		event, err := gatewaywebhook.ParseEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.HandleEvent(ctx, event, payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"received": event.ID})
	}
}

func verifySignature(payload []byte, header, secret string) error {
	if header == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "gateway signature missing")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(header)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "gateway signature mismatch")
	}
	return nil
}
