package utils

import (
	"fmt"
	"time"

	"github.com/quakewatch/quakewatch/internal/models"
)

// ParseDate returns the UTC midnight for an ISO calendar date.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date value")
	}
	t, err := time.ParseInLocation(models.DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date: %w", err)
	}
	return t, nil
}

// DayKey formats a timestamp as its UTC calendar day.
func DayKey(t time.Time) string {
	return t.UTC().Format(models.DateLayout)
}
