package services

import (
	"fmt"
	"time"

	"ledger/internal/core"
)

// DuenessChecker decides whether a recurring expense should produce an
// expense today, given the day of its last run (zero if never run).
type DuenessChecker interface {
	IsDue(lastRun, today, start core.Date) bool
}

// DailyChecker is due once per calendar day.
type DailyChecker struct{}

func (DailyChecker) IsDue(lastRun, today, _ core.Date) bool {
	return lastRun.IsZero() || lastRun.Before(today)
}

// WeeklyChecker is due when at least 7 days have passed since the last run.
type WeeklyChecker struct{}

func (WeeklyChecker) IsDue(lastRun, today, _ core.Date) bool {
	return lastRun.IsZero() || lastRun.DaysUntil(today) >= 7
}

// MonthlyChecker is due once per month, on or after the start date's day.
// Days past the end of a short month clamp to its last day.
type MonthlyChecker struct{}

func (MonthlyChecker) IsDue(lastRun, today, start core.Date) bool {
	if lastRun.IsZero() {
		return true
	}
	if lastRun.Year() == today.Year() && lastRun.Month() == today.Month() {
		return false
	}
	return today.Day() >= clampDay(today.Year(), today.Month(), start.Day())
}

// YearlyChecker is due once per year, on or after the start date's month and day.
type YearlyChecker struct{}

func (YearlyChecker) IsDue(lastRun, today, start core.Date) bool {
	if lastRun.IsZero() {
		return true
	}
	if lastRun.Year() == today.Year() {
		return false
	}
	switch {
	case today.Month() < start.Month():
		return false
	case today.Month() > start.Month():
		return true
	}
	return today.Day() >= clampDay(today.Year(), today.Month(), start.Day())
}

func clampDay(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return min(day, last)
}

var duenessStrategies = map[core.RepetitionType]DuenessChecker{
	core.Daily:   DailyChecker{},
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
	core.Yearly:  YearlyChecker{},
}

// GetDuenessChecker returns the checker for a repetition type.
func GetDuenessChecker(every core.RepetitionType) (DuenessChecker, error) {
	checker, ok := duenessStrategies[every]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidRepetition, every)
	}
	return checker, nil
}
