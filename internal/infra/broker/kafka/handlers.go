package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"

	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	bookingapp "staysane/internal/app/handlers/booking"
	"staysane/internal/app/middleware"
	domainbooking "staysane/internal/domain/booking"
	"staysane/internal/domain/shared/errs"
	"staysane/internal/infra/history"
	"staysane/internal/infra/inbox"
)

// paymentMessage is a gateway status report relayed onto the payments topic.
type paymentMessage struct {
	EventID           string `json:"event_id"`
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
}

// PaymentsHandler applies gateway notifications from the payments topic.
// Messages that can never succeed are logged and skipped.
type PaymentsHandler struct {
	Commands commands.Bus
	Inbox    inbox.Store
	Logger   *slog.Logger
}

func (h PaymentsHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var m paymentMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		h.skip(msg, fmt.Errorf("decode payment message: %w", err))
		return nil
	}
	eventID := strings.TrimSpace(m.EventID)
	if eventID == "" {
		eventID = headerValue(msg, "event_id")
	}
	if eventID == "" {
		eventID = bookingapp.GatewayEventID(m.OrderID, m.TransactionID, m.TransactionStatus)
	}

	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, eventID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}
	_, err := commands.Dispatch[bookingapp.GatewayPaymentCommand, *dto.StatusChange](ctx, h.Commands, bookingapp.GatewayPaymentCommand{
		OrderRef:      m.OrderID,
		TransactionID: m.TransactionID,
		Status:        m.TransactionStatus,
		EventID:       eventID,
	})
	if err == nil {
		return nil
	}
	if Permanent(err) {
		h.skip(msg, err)
		return nil
	}
	if h.Inbox != nil {
		if forgetErr := h.Inbox.Forget(context.WithoutCancel(ctx), eventID); forgetErr != nil {
			return errors.Join(err, forgetErr)
		}
	}
	return err
}

func (h PaymentsHandler) skip(msg *sarama.ConsumerMessage, err error) {
	if h.Logger != nil {
		h.Logger.Warn("payment message skipped", "topic", msg.Topic, "offset", msg.Offset, "error", err)
	}
}

// Permanent reports errors that a redelivery of the same message would hit again.
func Permanent(err error) bool {
	for _, target := range []error{
		errs.ErrNotFound,
		middleware.ErrInvalidInput,
		bookingapp.ErrUnknownGatewayEvent,
		domainbooking.ErrWrongPaymentMethod,
		domainbooking.ErrInvalidState,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// HistoryHandler projects booking events into the history store.
type HistoryHandler struct {
	Projector *history.Projector
	Logger    *slog.Logger
}

func (h HistoryHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if _, _, err := history.Decode(msg.Value); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("history message skipped", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
		return nil
	}
	return h.Projector.Project(ctx, msg.Value)
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

var (
	_ MessageHandler = PaymentsHandler{}
	_ MessageHandler = HistoryHandler{}
)
