package engine

import (
	"sort"

	"github.com/quakewatch/quakewatch/internal/models"
	"github.com/quakewatch/quakewatch/internal/utils"
)

// maxDayBuckets caps the per-day series; spans beyond it are down-sampled.
const maxDayBuckets = 90

// Summarize derives the dashboard statistics for one filtered record set.
// The per-day series covers every calendar day of the filter span; long spans
// are sampled at the smallest step that fits 90 buckets. Records landing on
// unsampled days are
// attributed to their own exact day key, so the series totals always equal the
// record count.
func Summarize(records []models.EarthquakeRecord, filter models.Filter) models.Summary {
	summary := models.Summary{
		Histogram: emptyHistogram(),
	}
	if len(records) == 0 {
		summary.DailyCounts = []models.DayCount{}
		return summary
	}

	summary.Count = len(records)

	var magnitudeSum float64
	strongest := 0
	for i, record := range records {
		magnitudeSum += record.Magnitude
		// Strict comparison keeps the first occurrence on ties.
		if record.Magnitude > records[strongest].Magnitude {
			strongest = i
		}
		summary.Histogram[bucketIndex(record.Magnitude)].Count++
	}
	summary.AverageMagnitude = magnitudeSum / float64(len(records))
	pick := records[strongest]
	summary.Strongest = &pick

	summary.DailyCounts = dailyCounts(records, filter)
	return summary
}

func emptyHistogram() []models.HistogramBucket {
	buckets := make([]models.HistogramBucket, len(models.HistogramLabels))
	for i, label := range models.HistogramLabels {
		buckets[i] = models.HistogramBucket{Label: label}
	}
	return buckets
}

// bucketIndex maps a magnitude into the fixed histogram: [0,2), [2,4), [4,6),
// [6,8), [8,∞). Sub-zero magnitudes land in the first bucket.
func bucketIndex(magnitude float64) int {
	if magnitude < 0 {
		return 0
	}
	index := int(magnitude / 2)
	if index > len(models.HistogramLabels)-1 {
		return len(models.HistogramLabels) - 1
	}
	return index
}

func dailyCounts(records []models.EarthquakeRecord, filter models.Filter) []models.DayCount {
	span := filter.SpanDays()
	if span < 1 {
		span = 1
	}
	step := 1
	if span > maxDayBuckets {
		step = (span + maxDayBuckets - 1) / maxDayBuckets
	}

	counts := make(map[string]int)
	for offset := 0; offset < span; offset += step {
		counts[utils.DayKey(filter.Start.AddDate(0, 0, offset))] = 0
	}
	for _, record := range records {
		counts[utils.DayKey(record.OccurredAt())]++
	}

	days := make([]string, 0, len(counts))
	for day := range counts {
		days = append(days, day)
	}
	// ISO dates sort chronologically as strings.
	sort.Strings(days)

	series := make([]models.DayCount, 0, len(days))
	for _, day := range days {
		series = append(series, models.DayCount{Day: day, Count: counts[day]})
	}
	return series
}
