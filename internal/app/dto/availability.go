package dto

import (
	"cloud.google.com/go/civil"

	"staysane/internal/domain/availability"
	"staysane/internal/domain/shared/daterange"
)

type RangeDTO struct {
	CheckIn  civil.Date `json:"check_in"`
	CheckOut civil.Date `json:"check_out"`
}

func MapRange(dr daterange.DateRange) RangeDTO {
	return RangeDTO{CheckIn: dr.CheckIn, CheckOut: dr.CheckOut}
}

type ConflictDTO struct {
	BookingID string   `json:"booking_id"`
	OrderCode string   `json:"order_code"`
	Status    string   `json:"status"`
	Range     RangeDTO `json:"range"`
}

func MapConflicts(items []availability.Conflict) []ConflictDTO {
	out := make([]ConflictDTO, 0, len(items))
	for _, c := range items {
		out = append(out, ConflictDTO{
			BookingID: string(c.BookingID),
			OrderCode: c.OrderCode,
			Status:    string(c.Status),
			Range:     MapRange(c.Range),
		})
	}
	return out
}

type Availability struct {
	RoomID    string        `json:"room_id"`
	CheckIn   civil.Date    `json:"check_in"`
	CheckOut  civil.Date    `json:"check_out"`
	Available bool          `json:"available"`
	Blackouts []civil.Date  `json:"blackouts"`
	Conflicts []ConflictDTO `json:"conflicts"`
}

func MapAvailability(roomID string, stay daterange.DateRange, res availability.Result) Availability {
	blackouts := res.Blackouts
	if blackouts == nil {
		blackouts = []civil.Date{}
	}
	return Availability{
		RoomID:    roomID,
		CheckIn:   stay.CheckIn,
		CheckOut:  stay.CheckOut,
		Available: res.Available,
		Blackouts: blackouts,
		Conflicts: MapConflicts(res.Conflicts),
	}
}

type Calendar struct {
	RoomID       string        `json:"room_id"`
	From         civil.Date    `json:"from"`
	To           civil.Date    `json:"to"`
	Blackouts    []RangeDTO    `json:"blackouts"`
	Reservations []ConflictDTO `json:"reservations"`
}

func MapCalendar(cal availability.Calendar) Calendar {
	blackouts := make([]RangeDTO, 0, len(cal.Blackouts))
	for _, dr := range cal.Blackouts {
		blackouts = append(blackouts, MapRange(dr))
	}
	return Calendar{
		RoomID:       string(cal.RoomID),
		From:         cal.Window.CheckIn,
		To:           cal.Window.CheckOut,
		Blackouts:    blackouts,
		Reservations: MapConflicts(cal.Reservations),
	}
}

type ToggleResult struct {
	RoomID    string     `json:"room_id"`
	Available bool       `json:"available"`
	Ranges    []RangeDTO `json:"ranges"`
}
