// Package payments talks to the external payment gateway.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"staysane/internal/app/policies"
)

// GatewayClient opens Snap-style payment transactions. The server key is
// sent as the basic-auth user name.
type GatewayClient struct {
	Client    *http.Client
	BaseURL   string
	ServerKey string
	Logger    *slog.Logger
}

type transactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type customerDetails struct {
	CustomerID string `json:"customer_id,omitempty"`
}

type createTransactionRequest struct {
	TransactionDetails transactionDetails `json:"transaction_details"`
	CustomerDetails    customerDetails    `json:"customer_details"`
	Currency           string             `json:"currency,omitempty"`
}

type createTransactionResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

func NewGatewayClient(baseURL, serverKey string, timeout time.Duration, logger *slog.Logger) *GatewayClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GatewayClient{
		Client:    &http.Client{Timeout: timeout},
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ServerKey: serverKey,
		Logger:    logger,
	}
}

func (g *GatewayClient) Initiate(ctx context.Context, req policies.PaymentRequest) (policies.PaymentToken, error) {
	var zero policies.PaymentToken
	if g == nil || g.Client == nil || g.BaseURL == "" {
		return zero, policies.ErrGatewayDisabled
	}
	body, err := json.Marshal(createTransactionRequest{
		TransactionDetails: transactionDetails{OrderID: req.OrderRef, GrossAmount: req.Amount.Amount},
		CustomerDetails:    customerDetails{CustomerID: req.CustomerID},
		Currency:           req.Amount.Currency,
	})
	if err != nil {
		return zero, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/snap/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return zero, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.SetBasicAuth(g.ServerKey, "")

	resp, err := g.Client.Do(request)
	if err != nil {
		g.logError("gateway request failed", req.OrderRef, err)
		return zero, fmt.Errorf("payments: create transaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("payments: gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		g.logError("gateway returned error", req.OrderRef, err)
		return zero, err
	}
	var out createTransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("payments: decode response: %w", err)
	}
	if out.Token == "" {
		if len(out.ErrorMessages) > 0 {
			return zero, fmt.Errorf("payments: %s", strings.Join(out.ErrorMessages, "; "))
		}
		return zero, errors.New("payments: gateway returned no token")
	}
	return policies.PaymentToken{Token: out.Token, RedirectURL: out.RedirectURL}, nil
}

func (g *GatewayClient) logError(msg, orderRef string, err error) {
	if g.Logger != nil {
		g.Logger.Warn(msg, "order_ref", orderRef, "error", err)
	}
}

var _ policies.PaymentInitiator = (*GatewayClient)(nil)
