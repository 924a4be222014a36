package policies

import (
	"context"
	"errors"

	"staysane/internal/domain/shared/money"
)

var ErrGatewayDisabled = errors.New("payments: gateway is not configured")

type PaymentRequest struct {
	OrderRef   string
	Amount     money.Money
	CustomerID string
}

type PaymentToken struct {
	Token       string
	RedirectURL string
}

// PaymentInitiator opens a payment at the external gateway. It is called only
// after the booking it pays for has been committed.
type PaymentInitiator interface {
	Initiate(ctx context.Context, req PaymentRequest) (PaymentToken, error)
}

// DisabledInitiator is used when no gateway is configured. Every gateway
// booking then falls back to manual transfer.
type DisabledInitiator struct{}

func (DisabledInitiator) Initiate(context.Context, PaymentRequest) (PaymentToken, error) {
	return PaymentToken{}, ErrGatewayDisabled
}
