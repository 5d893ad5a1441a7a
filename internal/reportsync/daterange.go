package reportsync

import (
	"fmt"
	"time"
)

const maxRangeMonths = 24

// ComputeRange returns the window ending on the first day of now's month and
// starting 23 months earlier. The candidate start is "month+1, two years
// back" with December wrapping to January of the same candidate year; a
// window longer than 24 months then has its start moved one year forward.
func ComputeRange(now time.Time) DateRange {
	year, month, _ := now.Date()

	startYear := year - 2
	startMonth := int(month) + 1
	if startMonth == 13 {
		startMonth = 1
	}
	if monthsInclusive(startYear, startMonth, year, int(month)) > maxRangeMonths {
		startYear++
	}

	return DateRange{
		Start: monthStart(startYear, startMonth),
		End:   monthStart(year, int(month)),
	}
}

func monthsInclusive(fromYear, fromMonth, toYear, toMonth int) int {
	return (toYear-fromYear)*12 + (toMonth - fromMonth) + 1
}

func monthStart(year, month int) string {
	return fmt.Sprintf("%04d-%02d-01T00:00:00", year, month)
}
