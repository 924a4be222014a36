package daterange

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

var (
	ErrInvalidRange = errors.New("daterange: checkout must be after checkin")
	ErrInvalidDate  = errors.New("daterange: invalid calendar date")
)

// DateRange represents a half-open interval [CheckIn, CheckOut) of calendar dates.
type DateRange struct {
	CheckIn  civil.Date `json:"check_in"`
	CheckOut civil.Date `json:"check_out"`
}

func New(checkIn, checkOut civil.Date) (DateRange, error) {
	dr := DateRange{CheckIn: checkIn, CheckOut: checkOut}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

// Parse builds a range from two YYYY-MM-DD strings.
func Parse(checkIn, checkOut string) (DateRange, error) {
	in, err := ParseDate(checkIn)
	if err != nil {
		return DateRange{}, err
	}
	out, err := ParseDate(checkOut)
	if err != nil {
		return DateRange{}, err
	}
	return New(in, out)
}

// ParseDate accepts a plain date or an RFC3339 timestamp and keeps only the
// calendar part as written, without shifting zones.
func ParseDate(raw string) (civil.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return civil.Date{}, ErrInvalidDate
	}
	if len(raw) > 10 && (raw[10] == 'T' || raw[10] == ' ') {
		raw = raw[:10]
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return d, nil
}

// DateOf converts a wall-clock instant into the calendar date observed in loc.
func DateOf(t time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(t.In(loc))
}

func (dr DateRange) Validate() error {
	if !dr.CheckIn.IsValid() || !dr.CheckOut.IsValid() {
		return ErrInvalidRange
	}
	if !dr.CheckOut.After(dr.CheckIn) {
		return ErrInvalidRange
	}
	return nil
}

func (dr DateRange) Nights() int {
	return dr.CheckOut.DaysSince(dr.CheckIn)
}

// Dates lists every night of the stay, check-in included and check-out excluded.
func (dr DateRange) Dates() []civil.Date {
	n := dr.Nights()
	if n <= 0 {
		return nil
	}
	out := make([]civil.Date, 0, n)
	for d := dr.CheckIn; d.Before(dr.CheckOut); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

func (dr DateRange) Overlaps(other DateRange) bool {
	return dr.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(dr.CheckOut)
}

func (dr DateRange) Contains(other DateRange) bool {
	return !other.CheckIn.Before(dr.CheckIn) && !other.CheckOut.After(dr.CheckOut)
}

func (dr DateRange) ContainsDate(d civil.Date) bool {
	return !d.Before(dr.CheckIn) && d.Before(dr.CheckOut)
}

func (dr DateRange) Adjacent(other DateRange) bool {
	return dr.CheckOut == other.CheckIn || dr.CheckIn == other.CheckOut
}

func (dr DateRange) Merge(other DateRange) (DateRange, bool) {
	if !(dr.Overlaps(other) || dr.Adjacent(other)) {
		return DateRange{}, false
	}
	start := dr.CheckIn
	if other.CheckIn.Before(start) {
		start = other.CheckIn
	}
	end := dr.CheckOut
	if other.CheckOut.After(end) {
		end = other.CheckOut
	}
	return DateRange{CheckIn: start, CheckOut: end}, true
}

// Single returns the one-night range starting at d.
func Single(d civil.Date) DateRange {
	return DateRange{CheckIn: d, CheckOut: d.AddDays(1)}
}

// Coalesce merges single dates into the smallest set of contiguous ranges.
func Coalesce(dates []civil.Date) []DateRange {
	if len(dates) == 0 {
		return nil
	}
	sorted := append([]civil.Date(nil), dates...)
	sortDates(sorted)
	out := []DateRange{Single(sorted[0])}
	for _, d := range sorted[1:] {
		last := &out[len(out)-1]
		if merged, ok := last.Merge(Single(d)); ok {
			*last = merged
			continue
		}
		out = append(out, Single(d))
	}
	return out
}

func (dr DateRange) String() string {
	return dr.CheckIn.String() + "/" + dr.CheckOut.String()
}

func sortDates(ds []civil.Date) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Before(ds[j]) })
}
