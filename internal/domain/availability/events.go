package availability

import (
	"time"

	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/daterange"
)

// DatesToggled is recorded when a host opens or closes dates on a room.
type DatesToggled struct {
	RoomID    property.RoomID       `json:"room_id"`
	Ranges    []daterange.DateRange `json:"ranges"`
	Available bool                  `json:"available"`
	At        time.Time             `json:"at"`
}

func (e DatesToggled) EventName() string {
	if e.Available {
		return "calendar.released"
	}
	return "calendar.blocked"
}
func (e DatesToggled) AggregateID() string   { return string(e.RoomID) }
func (e DatesToggled) OccurredAt() time.Time { return e.At }
