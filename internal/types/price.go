package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyPrice is the USD price of one unit of a coin on a UTC calendar day.
type DailyPrice struct {
	Coin string
	Day  time.Time
	USD  decimal.Decimal
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayString formats t's UTC calendar day as YYYY-MM-DD.
func DayString(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
