package models

import "time"

// EarthquakeRecord is a single seismic event from the USGS catalog. Coordinates
// follow the GeoJSON convention of longitude, latitude, depth (km). Records are
// immutable once decoded.
type EarthquakeRecord struct {
	ID        string  `json:"id"`
	Magnitude float64 `json:"magnitude"`
	Place     string  `json:"place"`
	Time      int64   `json:"time"` // epoch milliseconds, UTC
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	DepthKm   float64 `json:"depth_km"`
	Status    string  `json:"status"`
	Source    string  `json:"source"`
	DetailURL string  `json:"detail_url"`
}

// OccurredAt converts the epoch-millisecond timestamp into a UTC time.
func (r EarthquakeRecord) OccurredAt() time.Time {
	return time.UnixMilli(r.Time).UTC()
}
