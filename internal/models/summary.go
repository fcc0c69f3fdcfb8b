package models

// HistogramLabels are the fixed magnitude buckets, upper bound exclusive except
// the last, which is unbounded above.
var HistogramLabels = [5]string{"0-2", "2-4", "4-6", "6-8", "8+"}

// DayCount is the number of events attributed to one calendar day.
type DayCount struct {
	Day   string `json:"day"` // ISO date, see DateLayout
	Count int    `json:"count"`
}

// HistogramBucket is one fixed magnitude bucket with its event count.
type HistogramBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary holds the statistics derived from one filtered record set. It is
// recomputed whenever the record set changes.
type Summary struct {
	Count            int               `json:"count"`
	AverageMagnitude float64           `json:"average_magnitude"`
	Strongest        *EarthquakeRecord `json:"strongest,omitempty"`
	DailyCounts      []DayCount        `json:"daily_counts"`
	Histogram        []HistogramBucket `json:"histogram"`
}
