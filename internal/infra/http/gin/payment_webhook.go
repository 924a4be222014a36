package ginserver

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	bookingapp "staysane/internal/app/handlers/booking"
)

// gatewayNotification is the transaction status callback sent by the gateway.
type gatewayNotification struct {
	OrderID           string `json:"order_id" binding:"required"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status" binding:"required"`
}

// PaymentWebhookHandler verifies gateway notifications and applies them.
// An empty ServerKey disables signature checks.
type PaymentWebhookHandler struct {
	Commands  commands.Bus
	ServerKey string
	Logger    *slog.Logger
}

func (h PaymentWebhookHandler) Notify(c *gin.Context) {
	var n gatewayNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		badRequest(c, err)
		return
	}
	if h.ServerKey != "" && !ValidGatewaySignature(n.OrderID, n.StatusCode, n.GrossAmount, h.ServerKey, n.SignatureKey) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "invalid_signature", Error: "signature mismatch"})
		return
	}
	result, err := commands.Dispatch[bookingapp.GatewayPaymentCommand, *dto.StatusChange](c.Request.Context(), h.Commands,
		bookingapp.GatewayPaymentCommand{
			OrderRef:      n.OrderID,
			TransactionID: n.TransactionID,
			Status:        n.TransactionStatus,
			EventID:       bookingapp.GatewayEventID(n.OrderID, n.TransactionID, n.TransactionStatus),
		})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ValidGatewaySignature checks sha512(order_id + status_code + gross_amount + server_key).
func ValidGatewaySignature(orderID, statusCode, grossAmount, serverKey, signature string) bool {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

var _ PaymentWebhookHTTP = PaymentWebhookHandler{}
