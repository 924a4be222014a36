package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/errs"
	"staysane/internal/domain/shared/money"
)

var (
	ErrInvalidKind        = errors.New("pricing: adjustment kind must be PERCENTAGE or NOMINAL")
	ErrInvalidWindow      = errors.New("pricing: adjustment end date must not be before start date")
	ErrDateOutsideWindow  = errors.New("pricing: specific date outside adjustment window")
	ErrDatesRequired      = errors.New("pricing: specific dates required when not applying to all dates")
	ErrRoomRequired       = errors.New("pricing: room id is required")
	ErrAdjustmentNotFound = errs.NotFound("pricing: adjustment")
	ErrAdjustmentNotOwned = errors.New("pricing: adjustment not owned by tenant")
)

type AdjustmentID string

type Kind string

const (
	KindPercentage Kind = "PERCENTAGE"
	KindNominal    Kind = "NOMINAL"
)

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(raw))); k {
	case KindPercentage, KindNominal:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
	}
}

// Adjustment is a time-scoped rule that replaces a room's base price on the
// nights it matches. Start and End are inclusive.
type Adjustment struct {
	ID            AdjustmentID
	RoomID        property.RoomID
	Title         string
	Start         civil.Date
	End           civil.Date
	Kind          Kind
	Value         decimal.Decimal
	ApplyAllDates bool
	Dates         []civil.Date
	Priority      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Repository interface {
	ByID(ctx context.Context, id AdjustmentID) (*Adjustment, error)
	// ListByRoom returns the room's adjustments in precedence order.
	ListByRoom(ctx context.Context, roomID property.RoomID) ([]*Adjustment, error)
	Save(ctx context.Context, a *Adjustment) error
	Delete(ctx context.Context, id AdjustmentID) error
}

type AdjustmentParams struct {
	ID            AdjustmentID
	RoomID        property.RoomID
	Title         string
	Start         civil.Date
	End           civil.Date
	Kind          Kind
	Value         decimal.Decimal
	ApplyAllDates bool
	Dates         []civil.Date
	Priority      int
	Now           time.Time
}

func NewAdjustment(p AdjustmentParams) (*Adjustment, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	now := p.Now.UTC()
	a := &Adjustment{CreatedAt: now}
	a.apply(p)
	return a, nil
}

// Update replaces the rule definition while keeping identity and creation time.
func (a *Adjustment) Update(p AdjustmentParams) error {
	p.ID = a.ID
	p.RoomID = a.RoomID
	if err := p.validate(); err != nil {
		return err
	}
	a.apply(p)
	return nil
}

func (a *Adjustment) apply(p AdjustmentParams) {
	a.ID = p.ID
	a.RoomID = p.RoomID
	a.Title = strings.TrimSpace(p.Title)
	a.Start = p.Start
	a.End = p.End
	a.Kind = p.Kind
	a.Value = p.Value
	a.ApplyAllDates = p.ApplyAllDates
	a.Dates = nil
	if !p.ApplyAllDates {
		a.Dates = uniqueDates(p.Dates)
	}
	a.Priority = p.Priority
	a.UpdatedAt = p.Now.UTC()
}

func (p AdjustmentParams) validate() error {
	if strings.TrimSpace(string(p.RoomID)) == "" {
		return ErrRoomRequired
	}
	if p.Kind != KindPercentage && p.Kind != KindNominal {
		return ErrInvalidKind
	}
	if !p.Start.IsValid() || !p.End.IsValid() || p.End.Before(p.Start) {
		return ErrInvalidWindow
	}
	if p.ApplyAllDates {
		return nil
	}
	if len(p.Dates) == 0 {
		return ErrDatesRequired
	}
	for _, d := range p.Dates {
		if d.Before(p.Start) || d.After(p.End) {
			return fmt.Errorf("%w: %s", ErrDateOutsideWindow, d)
		}
	}
	return nil
}

// Matches reports whether the rule covers the given night.
func (a *Adjustment) Matches(d civil.Date) bool {
	if d.Before(a.Start) || d.After(a.End) {
		return false
	}
	if a.ApplyAllDates {
		return true
	}
	for _, candidate := range a.Dates {
		if candidate == d {
			return true
		}
	}
	return false
}

// Apply computes the adjusted nightly price, rounded half-up and floored at MinNightlyPrice.
func (a *Adjustment) Apply(base money.Money) money.Money {
	var adjusted decimal.Decimal
	switch a.Kind {
	case KindPercentage:
		factor := decimal.NewFromInt(1).Add(a.Value.Div(decimal.NewFromInt(100)))
		adjusted = base.Decimal().Mul(factor)
	case KindNominal:
		adjusted = base.Decimal().Add(a.Value)
	default:
		return base
	}
	return money.FromDecimal(adjusted, base.Currency).AtLeast(MinNightlyPrice)
}

// SortByPrecedence orders rules by priority, then creation time, then id.
func SortByPrecedence(adjustments []*Adjustment) {
	sort.SliceStable(adjustments, func(i, j int) bool {
		a, b := adjustments[i], adjustments[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func uniqueDates(in []civil.Date) []civil.Date {
	seen := make(map[civil.Date]struct{}, len(in))
	out := make([]civil.Date, 0, len(in))
	for _, d := range in {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
