package booking

import (
	"context"
	"errors"
	"strings"

	"staysane/internal/app/authz"
	"staysane/internal/app/dto"
	"staysane/internal/app/handlers/support"
	"staysane/internal/app/policies"
	"staysane/internal/app/queries"
	"staysane/internal/app/uow"
	domainbooking "staysane/internal/domain/booking"
	"staysane/internal/domain/property"
	"staysane/internal/domain/user"
)

const (
	getBookingKey     = "booking.get"
	listGuestKey      = "booking.list.guest"
	listTenantKey     = "booking.list.tenant"
	bookingHistoryKey = "booking.history"

	DefaultHistoryLimit = 100
)

var ErrHistoryUnavailable = errors.New("booking: history is not configured")

type GetBookingQuery struct {
	BookingID string `validate:"required"`
}

func (q GetBookingQuery) Key() string { return getBookingKey }

type GetBookingHandler struct {
	UoWFactory uow.Factory
}

func (h *GetBookingHandler) Handle(ctx context.Context, q GetBookingQuery) (dto.Booking, error) {
	id, err := bookingID(q.BookingID)
	if err != nil {
		return dto.Booking{}, err
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Booking{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	b, err := unit.Bookings().ByID(execCtx, id)
	if err != nil {
		return dto.Booking{}, err
	}
	if err := authorizeParty(ctx, b); err != nil {
		return dto.Booking{}, err
	}
	return dto.MapBooking(b), nil
}

// ListGuestBookingsQuery lists a guest's bookings, newest first. An empty
// GuestID means the calling guest.
type ListGuestBookingsQuery struct {
	GuestID string
}

func (q ListGuestBookingsQuery) Key() string { return listGuestKey }

func (q ListGuestBookingsQuery) RequiredRole() user.Role { return user.RoleGuest }

type ListGuestBookingsHandler struct {
	UoWFactory uow.Factory
}

func (h *ListGuestBookingsHandler) Handle(ctx context.Context, q ListGuestBookingsQuery) (dto.BookingCollection, error) {
	guestID, err := callerScoped(ctx, q.GuestID)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	items, err := unit.Bookings().ListByGuest(execCtx, user.ID(guestID))
	if err != nil {
		return dto.BookingCollection{}, err
	}
	return dto.MapBookings(items), nil
}

// ListTenantBookingsQuery lists bookings across a tenant's properties,
// optionally narrowed to some statuses.
type ListTenantBookingsQuery struct {
	TenantID string
	Statuses []string
}

func (q ListTenantBookingsQuery) Key() string { return listTenantKey }

func (q ListTenantBookingsQuery) RequiredRole() user.Role { return user.RoleTenant }

type ListTenantBookingsHandler struct {
	UoWFactory uow.Factory
}

func (h *ListTenantBookingsHandler) Handle(ctx context.Context, q ListTenantBookingsQuery) (dto.BookingCollection, error) {
	tenantID, err := callerScoped(ctx, q.TenantID)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	statuses := make([]domainbooking.Status, 0, len(q.Statuses))
	for _, raw := range q.Statuses {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		s, err := domainbooking.ParseStatus(raw)
		if err != nil {
			return dto.BookingCollection{}, err
		}
		statuses = append(statuses, s)
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	items, err := unit.Bookings().ListByTenant(execCtx, property.TenantID(tenantID), statuses)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	return dto.MapBookings(items), nil
}

// GetBookingHistoryQuery returns the recorded status changes of a booking,
// oldest first.
type GetBookingHistoryQuery struct {
	BookingID string `validate:"required"`
	Limit     int    `validate:"gte=0,lte=1000"`
}

func (q GetBookingHistoryQuery) Key() string { return bookingHistoryKey }

type GetBookingHistoryHandler struct {
	UoWFactory uow.Factory
	History    policies.HistoryReader
}

func (h *GetBookingHistoryHandler) Handle(ctx context.Context, q GetBookingHistoryQuery) ([]policies.HistoryEntry, error) {
	if h.History == nil {
		return nil, ErrHistoryUnavailable
	}
	// Reuse the booking lookup for its participant check.
	b, err := (&GetBookingHandler{UoWFactory: h.UoWFactory}).Handle(ctx, GetBookingQuery{BookingID: q.BookingID})
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	entries, err := h.History.History(ctx, b.ID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []policies.HistoryEntry{}
	}
	return entries, nil
}

// callerScoped resolves the owner a listing is for. Principals may only list
// their own bookings; trusted callers must name the owner.
func callerScoped(ctx context.Context, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	p, ok := authz.FromContext(ctx)
	if !ok {
		if requested == "" {
			return "", authz.ErrUnauthenticated
		}
		return requested, nil
	}
	if requested != "" && requested != string(p.UserID) {
		return "", authz.ErrForbidden
	}
	return string(p.UserID), nil
}

var (
	_ queries.Handler[GetBookingQuery, dto.Booking]                    = (*GetBookingHandler)(nil)
	_ queries.Handler[ListGuestBookingsQuery, dto.BookingCollection]   = (*ListGuestBookingsHandler)(nil)
	_ queries.Handler[ListTenantBookingsQuery, dto.BookingCollection]  = (*ListTenantBookingsHandler)(nil)
	_ queries.Handler[GetBookingHistoryQuery, []policies.HistoryEntry] = (*GetBookingHistoryHandler)(nil)
)
