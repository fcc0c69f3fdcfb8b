package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO calendar-date layout used by filters and day buckets.
const DateLayout = "2006-01-02"

// Limit bounds accepted by the catalog query.
const (
	MinLimit = 1
	MaxLimit = 500
)

// Filter describes one catalog query: an inclusive calendar-date range, a
// magnitude range, an optional geographic bounding box, and paging controls.
// The bounding box pointers must be all set or all nil.
type Filter struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	MinMagnitude float64   `json:"min_magnitude"`
	MaxMagnitude *float64  `json:"max_magnitude,omitempty"`
	MinLatitude  *float64  `json:"min_latitude,omitempty"`
	MaxLatitude  *float64  `json:"max_latitude,omitempty"`
	MinLongitude *float64  `json:"min_longitude,omitempty"`
	MaxLongitude *float64  `json:"max_longitude,omitempty"`
	Limit        int       `json:"limit"`
	Offset       int       `json:"offset"`
}

// Validate enforces the filter invariants before a query is dispatched.
func (f Filter) Validate() error {
	if f.Start.IsZero() || f.End.IsZero() {
		return fmt.Errorf("start and end dates are required")
	}
	if f.End.Before(f.Start) {
		return fmt.Errorf("start date %s is after end date %s", f.Start.Format(DateLayout), f.End.Format(DateLayout))
	}
	if f.MaxMagnitude != nil && *f.MaxMagnitude < f.MinMagnitude {
		return fmt.Errorf("min magnitude %.2f exceeds max magnitude %.2f", f.MinMagnitude, *f.MaxMagnitude)
	}
	if f.Limit < MinLimit || f.Limit > MaxLimit {
		return fmt.Errorf("limit must be between %d and %d", MinLimit, MaxLimit)
	}
	if f.Offset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	set := 0
	for _, v := range []*float64{f.MinLatitude, f.MaxLatitude, f.MinLongitude, f.MaxLongitude} {
		if v != nil {
			set++
		}
	}
	if set != 0 && set != 4 {
		return fmt.Errorf("bounding box requires all four coordinates")
	}
	if set == 4 {
		if *f.MaxLatitude < *f.MinLatitude {
			return fmt.Errorf("min latitude exceeds max latitude")
		}
		if *f.MaxLongitude < *f.MinLongitude {
			return fmt.Errorf("min longitude exceeds max longitude")
		}
	}
	return nil
}

// HasBounds reports whether a complete bounding box is present.
func (f Filter) HasBounds() bool {
	return f.MinLatitude != nil && f.MaxLatitude != nil && f.MinLongitude != nil && f.MaxLongitude != nil
}

// CacheKey returns a stable serialization of every filter field. Two filters
// with the same values always map to the same key.
func (f Filter) CacheKey() string {
	var b strings.Builder
	b.WriteString("start=")
	b.WriteString(f.Start.Format(DateLayout))
	b.WriteString("|end=")
	b.WriteString(f.End.Format(DateLayout))
	b.WriteString("|minmag=")
	b.WriteString(formatFloat(f.MinMagnitude))
	b.WriteString("|maxmag=")
	b.WriteString(formatOptional(f.MaxMagnitude))
	b.WriteString("|bounds=")
	if f.HasBounds() {
		b.WriteString(formatFloat(*f.MinLatitude))
		b.WriteString(",")
		b.WriteString(formatFloat(*f.MaxLatitude))
		b.WriteString(",")
		b.WriteString(formatFloat(*f.MinLongitude))
		b.WriteString(",")
		b.WriteString(formatFloat(*f.MaxLongitude))
	} else {
		b.WriteString("none")
	}
	b.WriteString("|limit=")
	b.WriteString(strconv.Itoa(f.Limit))
	b.WriteString("|offset=")
	b.WriteString(strconv.Itoa(f.Offset))
	return b.String()
}

// SpanDays returns the number of calendar days covered by the inclusive date
// range, so a single-day filter spans one day.
func (f Filter) SpanDays() int {
	start := f.Start.Truncate(24 * time.Hour)
	end := f.End.Truncate(24 * time.Hour)
	return int(end.Sub(start).Hours()/24) + 1
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "none"
	}
	return formatFloat(*v)
}
