package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/legalflow/billing-backend/pkg/config"
	pkgerrors "github.com/legalflow/billing-backend/pkg/errors"
	"github.com/legalflow/billing-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "gateway-test", Output: io.Discard})
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), config.GatewayConfig{
		BaseURL:        baseURL,
		APIKey:         "sk_test",
		WebhookSecret:  "whsec_test",
		Env:            "sandbox",
		RequestTimeout: 2 * time.Second,
		MaxRetries:     2,
	}, testLogger())
	require.NoError(t, err)
	return client
}

func TestCreatePayment_Success(t *testing.T) {
	var gotIdempotencyKey, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/payments", r.URL.Path)
		gotIdempotencyKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pay_123","status":"pending","amount":10000,"payment_method":"pix"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	payment, err := client.CreatePayment(context.Background(), PaymentCreateParams{
		AmountCents: 10000,
		Currency:    "brl",
		Method:      "pix",
		Pix:         &PixDetails{ExpiresInMinutes: 30},
	})
	require.NoError(t, err)
	require.Equal(t, "pay_123", payment.ID)
	require.Equal(t, "pending", payment.Status)
	require.NotEmpty(t, gotIdempotencyKey)
	require.Equal(t, "Bearer sk_test", gotAuth)
}

func TestCreatePayment_IdempotencyKeyStableAcrossRetries(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		attempt := len(keys)
		mu.Unlock()
		if attempt == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pay_retry","status":"pending","amount":5000,"payment_method":"boleto"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	payment, err := client.CreatePayment(context.Background(), PaymentCreateParams{
		IdempotencyKey: "charge-abc-payment",
		AmountCents:    5000,
		Currency:       "brl",
		Method:         "boleto",
		Boleto:         &BoletoDetails{ExpiresInDays: 3},
	})
	require.NoError(t, err)
	require.Equal(t, "pay_retry", payment.ID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, keys, 2)
	require.Equal(t, "charge-abc-payment", keys[0])
	require.Equal(t, keys[0], keys[1])
}

func TestCreatePayment_VariantMismatch(t *testing.T) {
	client := testClient(t, "http://localhost:0")

	_, err := client.CreatePayment(context.Background(), PaymentCreateParams{
		AmountCents: 1000,
		Currency:    "brl",
		Method:      "credit_card",
		Card:        &CardDetails{Token: "tok_1"},
		Pix:         &PixDetails{},
	})
	require.Error(t, err)

	var domainErr *pkgerrors.Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, pkgerrors.CodeValidation, domainErr.Code())
}

func TestCreatePayment_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   pkgerrors.Code
	}{
		{"unprocessable", http.StatusUnprocessableEntity, pkgerrors.CodeStateConflict},
		{"conflict", http.StatusConflict, pkgerrors.CodeIdempotency},
		{"bad request", http.StatusBadRequest, pkgerrors.CodeValidation},
		{"unauthorized", http.StatusUnauthorized, pkgerrors.CodeUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"errors":[{"code":"card_declined","message":"declined"}]}`))
			}))
			defer server.Close()

			client := testClient(t, server.URL)
			_, err := client.CreatePayment(context.Background(), PaymentCreateParams{
				AmountCents: 1000,
				Currency:    "brl",
				Method:      "credit_card",
				Card:        &CardDetails{Token: "tok_1"},
			})
			require.Error(t, err)

			var domainErr *pkgerrors.Error
			require.ErrorAs(t, err, &domainErr)
			require.Equal(t, tc.want, domainErr.Code())
		})
	}
}

func TestRefundPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payments/pay_123/refund", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"ref_1","payment_id":"pay_123","status":"refunded","amount":10000}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	refund, err := client.RefundPayment(context.Background(), RefundParams{PaymentID: "pay_123"})
	require.NoError(t, err)
	require.Equal(t, "ref_1", refund.ID)
	require.Equal(t, "refunded", refund.Status)
}

func TestNewClient_Validation(t *testing.T) {
	base := config.GatewayConfig{
		BaseURL:       "https://gateway.test",
		APIKey:        "sk",
		WebhookSecret: "whsec",
	}

	missingKey := base
	missingKey.APIKey = ""
	_, err := NewClient(context.Background(), missingKey, testLogger())
	require.ErrorIs(t, err, errAPIKeyRequired)

	badEnv := base
	badEnv.Env = "staging"
	_, err = NewClient(context.Background(), badEnv, testLogger())
	require.ErrorIs(t, err, errInvalidGatewayEnv)

	_, err = NewClient(context.Background(), base, nil)
	require.ErrorIs(t, err, errLoggerRequired)
}
