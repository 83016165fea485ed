package payments

import (
	"github.com/legalflow/billing-backend/pkg/config"
	"github.com/legalflow/billing-backend/pkg/enums"
	"github.com/legalflow/billing-backend/pkg/gateway"
)

// MethodPayload pins a payment to exactly one settlement method. The variant
// chosen decides both the internal payment method and the gateway payload, so
// a request can never carry card data and a pix expiry at the same time.
type MethodPayload interface {
	Method() enums.PaymentMethod
	apply(cfg config.GatewayConfig, params *gateway.PaymentCreateParams)
}

// CardPayload settles via a tokenized card. Debit selects the debit_card
// method and forces a single installment.
type CardPayload struct {
	Token        string
	HolderName   string
	Installments int
	Debit        bool
}

func (p CardPayload) Method() enums.PaymentMethod {
	if p.Debit {
		return enums.PaymentMethodDebitCard
	}
	return enums.PaymentMethodCreditCard
}

func (p CardPayload) apply(cfg config.GatewayConfig, params *gateway.PaymentCreateParams) {
	installments := p.Installments
	if installments < 1 || p.Debit {
		installments = 1
	}
	params.Card = &gateway.CardDetails{
		Token:        p.Token,
		HolderName:   p.HolderName,
		Installments: installments,
	}
}

// PixPayload settles via a dynamic pix QR code. The expiry window comes from
// gateway configuration.
type PixPayload struct{}

func (PixPayload) Method() enums.PaymentMethod { return enums.PaymentMethodPix }

func (PixPayload) apply(cfg config.GatewayConfig, params *gateway.PaymentCreateParams) {
	params.Pix = &gateway.PixDetails{ExpiresInMinutes: cfg.PixExpiryMinutes}
}

// BoletoPayload settles via a bank slip.
type BoletoPayload struct {
	Instructions string
}

func (BoletoPayload) Method() enums.PaymentMethod { return enums.PaymentMethodBoleto }

func (p BoletoPayload) apply(cfg config.GatewayConfig, params *gateway.PaymentCreateParams) {
	params.Boleto = &gateway.BoletoDetails{
		ExpiresInDays: cfg.BoletoExpiryDays,
		Instructions:  p.Instructions,
	}
}
