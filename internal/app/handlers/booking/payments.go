package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"staysane/internal/app/clock"
	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	"staysane/internal/app/handlers/support"
	"staysane/internal/app/middleware"
	"staysane/internal/app/outbox"
	"staysane/internal/app/policies"
	"staysane/internal/app/uow"
	domainbooking "staysane/internal/domain/booking"
	"staysane/internal/domain/user"
)

const (
	uploadProofKey    = "booking.proof.upload"
	reviewProofKey    = "booking.proof.review"
	gatewayPaymentKey = "booking.gateway.notify"

	MaxProofSize = 5 << 20
)

var (
	ErrProofTooLarge       = errors.New("booking: payment proof exceeds size limit")
	ErrProofType           = errors.New("booking: payment proof must be an image or PDF")
	ErrProofStorageMissing = errors.New("booking: proof storage is not configured")
	ErrUnknownGatewayEvent = errors.New("booking: unknown gateway transaction status")
)

var allowedProofTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// UploadPaymentProofCommand carries a guest's transfer receipt. Body is read
// once and is not retained.
type UploadPaymentProofCommand struct {
	BookingID   string `validate:"required"`
	FileName    string
	ContentType string `validate:"required"`
	Size        int64  `validate:"gt=0"`
	Body        io.Reader
}

func (c UploadPaymentProofCommand) Key() string { return uploadProofKey }

func (c UploadPaymentProofCommand) RequiredRole() user.Role { return user.RoleGuest }

func (c UploadPaymentProofCommand) OwnsTransaction() bool { return true }

type UploadPaymentProofHandler struct {
	UoWFactory uow.Factory
	Storage    policies.ProofStorage
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Clock      clock.Clock
	Logger     *slog.Logger
}

func (h *UploadPaymentProofHandler) Handle(ctx context.Context, cmd UploadPaymentProofCommand) (dto.StatusChange, error) {
	id, err := bookingID(cmd.BookingID)
	if err != nil {
		return dto.StatusChange{}, err
	}
	ext, ok := allowedProofTypes[strings.ToLower(strings.TrimSpace(cmd.ContentType))]
	if !ok {
		return dto.StatusChange{}, ErrProofType
	}
	if cmd.Body == nil {
		return dto.StatusChange{}, domainbooking.ErrProofRequired
	}
	if cmd.Size > MaxProofSize {
		return dto.StatusChange{}, ErrProofTooLarge
	}
	if h.Storage == nil {
		return dto.StatusChange{}, ErrProofStorageMissing
	}
	now := nowFrom(h.Clock)

	// Reject early so nothing is uploaded for a booking that cannot take it.
	if err := h.precheck(ctx, id, now); err != nil {
		return dto.StatusChange{}, err
	}

	key := path.Join("proofs", string(id), uuid.NewString()+ext)
	url, err := h.Storage.Upload(ctx, key, cmd.ContentType, io.LimitReader(cmd.Body, MaxProofSize), cmd.Size)
	if err != nil {
		return dto.StatusChange{}, fmt.Errorf("upload payment proof: %w", err)
	}

	b, changed, err := mutateBooking(ctx, h.UoWFactory, h.Outbox, h.Encoder, id, func(b *domainbooking.Booking) (bool, error) {
		if err := authorizeParty(ctx, b); err != nil {
			return false, err
		}
		return true, b.SubmitPaymentProof(url, now)
	})
	if err != nil {
		return dto.StatusChange{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("payment proof uploaded", "booking_id", b.ID, "object", key)
	}
	return statusChange(b, changed), nil
}

func (h *UploadPaymentProofHandler) precheck(ctx context.Context, id domainbooking.BookingID, now time.Time) error {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	b, err := unit.Bookings().ByID(execCtx, id)
	if err != nil {
		return err
	}
	if err := authorizeParty(ctx, b); err != nil {
		return err
	}
	// Dry run on a throwaway copy.
	probe := *b
	probe.ClearEvents()
	return probe.SubmitPaymentProof("pending", now)
}

// ReviewPaymentProofCommand is the tenant's verdict on an uploaded proof. A
// rejected proof reopens the payment window unless Cancel is set.
type ReviewPaymentProofCommand struct {
	BookingID string `validate:"required"`
	Approve   bool
	Cancel    bool
	Reason    string `validate:"required_if=Approve false,max=500"`
}

func (c ReviewPaymentProofCommand) Key() string { return reviewProofKey }

func (c ReviewPaymentProofCommand) RequiredRole() user.Role { return user.RoleTenant }

type ReviewPaymentProofHandler struct {
	UoWFactory  uow.Factory
	Outbox      outbox.Outbox
	Encoder     outbox.EventEncoder
	Clock       clock.Clock
	RetryWindow time.Duration
	Logger      *slog.Logger
}

func (h *ReviewPaymentProofHandler) Handle(ctx context.Context, cmd ReviewPaymentProofCommand) (dto.StatusChange, error) {
	id, err := bookingID(cmd.BookingID)
	if err != nil {
		return dto.StatusChange{}, err
	}
	now := nowFrom(h.Clock)
	b, changed, err := mutateBooking(ctx, h.UoWFactory, h.Outbox, h.Encoder, id, func(b *domainbooking.Booking) (bool, error) {
		if err := authorizeParty(ctx, b); err != nil {
			return false, err
		}
		if cmd.Approve {
			return true, b.ApprovePaymentProof(now)
		}
		return true, b.RejectPaymentProof(strings.TrimSpace(cmd.Reason), cmd.Cancel, retryWindow(h.RetryWindow), now)
	})
	if err != nil {
		return dto.StatusChange{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("payment proof reviewed", "booking_id", b.ID, "approved", cmd.Approve, "status", b.Status)
	}
	return statusChange(b, changed), nil
}

// GatewayPaymentCommand is a transaction status notification from the
// payment gateway, delivered by webhook or through the payments topic.
type GatewayPaymentCommand struct {
	OrderRef      string `validate:"required"`
	TransactionID string
	Status        string `validate:"required"`
	EventID       string
}

func (c GatewayPaymentCommand) Key() string { return gatewayPaymentKey }

func (c GatewayPaymentCommand) IdempotencyKey() string { return c.EventID }

func (c GatewayPaymentCommand) ResultPrototype() any { return &dto.StatusChange{} }

// GatewayPaymentHandler marks gateway bookings paid, or cancels them when the
// gateway reports the payment failed. Repeated notifications change nothing,
// and failures reported for manual-transfer bookings are ignored.
type GatewayPaymentHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Clock   clock.Clock
	Logger  *slog.Logger
}

func (h *GatewayPaymentHandler) Handle(ctx context.Context, cmd GatewayPaymentCommand) (*dto.StatusChange, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	b, err := unit.Bookings().ByOrderCode(ctx, strings.TrimSpace(cmd.OrderRef))
	if err != nil {
		return nil, err
	}
	now := nowFrom(h.Clock)

	var changed bool
	switch GatewayOutcome(cmd.Status) {
	case OutcomePaid:
		changed, err = b.ConfirmGatewayPayment(cmd.TransactionID, now)
	case OutcomeFailed:
		// A booking downgraded to manual transfer no longer depends on the gateway.
		if b.Method() != domainbooking.MethodPaymentGateway {
			if h.Logger != nil {
				h.Logger.Info("gateway failure ignored", "booking_id", b.ID, "order_ref", cmd.OrderRef, "method", b.Method())
			}
			break
		}
		if b.Status == domainbooking.StatusWaitingPayment {
			changed, err = b.Cancel("gateway payment "+strings.ToLower(cmd.Status), now)
		}
	case OutcomePending:
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownGatewayEvent, cmd.Status)
	}
	if err != nil {
		return nil, err
	}
	if changed {
		if err := unit.Bookings().Save(ctx, b); err != nil {
			return nil, err
		}
		if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, b.DrainEvents()); err != nil {
			return nil, err
		}
		if h.Logger != nil {
			h.Logger.Info("gateway notification applied", "booking_id", b.ID, "order_ref", cmd.OrderRef, "status", b.Status)
		}
	}
	result := statusChange(b, changed)
	return &result, nil
}

// GatewayEventID identifies one gateway status report so redeliveries of it
// are recognised.
func GatewayEventID(orderRef, transactionID, status string) string {
	if transactionID == "" {
		transactionID = orderRef
	}
	return "gateway:" + transactionID + ":" + strings.ToLower(strings.TrimSpace(status))
}

type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomePending
	OutcomePaid
	OutcomeFailed
)

// GatewayOutcome classifies a gateway transaction status string.
func GatewayOutcome(status string) Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "settlement", "capture", "paid", "success":
		return OutcomePaid
	case "pending", "authorize":
		return OutcomePending
	case "deny", "cancel", "expire", "failure", "failed":
		return OutcomeFailed
	default:
		return OutcomeUnknown
	}
}

var (
	_ commands.Handler[UploadPaymentProofCommand, dto.StatusChange] = (*UploadPaymentProofHandler)(nil)
	_ commands.Handler[ReviewPaymentProofCommand, dto.StatusChange] = (*ReviewPaymentProofHandler)(nil)
	_ commands.Handler[GatewayPaymentCommand, *dto.StatusChange]    = (*GatewayPaymentHandler)(nil)
	_ middleware.IdempotentCommand                                  = GatewayPaymentCommand{}
)
