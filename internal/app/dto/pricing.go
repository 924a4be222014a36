package dto

import (
	"time"

	"cloud.google.com/go/civil"

	"staysane/internal/domain/pricing"
)

type Quote struct {
	RoomID         string     `json:"room_id"`
	CheckIn        civil.Date `json:"check_in"`
	CheckOut       civil.Date `json:"check_out"`
	Nights         []NightDTO `json:"nights"`
	PerUnit        MoneyDTO   `json:"per_unit"`
	Quantity       int        `json:"quantity"`
	Total          MoneyDTO   `json:"total"`
	AverageNightly MoneyDTO   `json:"average_nightly"`
}

func MapQuote(roomID string, checkIn, checkOut civil.Date, b pricing.Breakdown) Quote {
	return Quote{
		RoomID:         roomID,
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		Nights:         MapNights(b.Nights),
		PerUnit:        MapMoney(b.PerUnit),
		Quantity:       b.Quantity,
		Total:          MapMoney(b.Total),
		AverageNightly: MapMoney(b.AverageNightly),
	}
}

type Adjustment struct {
	ID            string       `json:"id"`
	RoomID        string       `json:"room_id"`
	Title         string       `json:"title,omitempty"`
	Start         civil.Date   `json:"start"`
	End           civil.Date   `json:"end"`
	Kind          string       `json:"kind"`
	Value         string       `json:"value"`
	ApplyAllDates bool         `json:"apply_all_dates"`
	Dates         []civil.Date `json:"dates,omitempty"`
	Priority      int          `json:"priority"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type AdjustmentCollection struct {
	Items []Adjustment `json:"items"`
}

func MapAdjustment(a *pricing.Adjustment) Adjustment {
	return Adjustment{
		ID:            string(a.ID),
		RoomID:        string(a.RoomID),
		Title:         a.Title,
		Start:         a.Start,
		End:           a.End,
		Kind:          string(a.Kind),
		Value:         a.Value.String(),
		ApplyAllDates: a.ApplyAllDates,
		Dates:         append([]civil.Date(nil), a.Dates...),
		Priority:      a.Priority,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func MapAdjustments(items []*pricing.Adjustment) AdjustmentCollection {
	out := AdjustmentCollection{Items: make([]Adjustment, 0, len(items))}
	for _, a := range items {
		out.Items = append(out.Items, MapAdjustment(a))
	}
	return out
}
