package reconciler

import (
	"sort"
	"time"

	"FinSite/internal/calendar"
)

// Bucket is the set of missing dates sharing one upstream month fetch.
type Bucket struct {
	Month calendar.Month
	Dates []time.Time
}

// MissingDates returns the business days in [start, end] that are not in
// existing, ascending.
func MissingDates(start, end time.Time, existing map[time.Time]struct{}) []time.Time {
	var missing []time.Time
	for _, d := range calendar.BusinessDays(start, end) {
		if _, ok := existing[d]; !ok {
			missing = append(missing, d)
		}
	}
	return missing
}

// GroupByMonth partitions dates into month buckets ordered by (year, month),
// with dates ascending inside each bucket.
func GroupByMonth(dates []time.Time) []Bucket {
	idx := make(map[calendar.Month]int)
	var buckets []Bucket
	for _, d := range dates {
		m := calendar.MonthOf(d)
		i, ok := idx[m]
		if !ok {
			i = len(buckets)
			idx[m] = i
			buckets = append(buckets, Bucket{Month: m})
		}
		buckets[i].Dates = append(buckets[i].Dates, d)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Month.Before(buckets[j].Month) })
	for _, b := range buckets {
		sort.Slice(b.Dates, func(i, j int) bool { return b.Dates[i].Before(b.Dates[j]) })
	}
	return buckets
}

// Anchor is the date used to request the bucket's month: its first missing
// day, but never after today.
func (b Bucket) Anchor(today time.Time) time.Time {
	first := b.Dates[0]
	if first.After(today) {
		return today
	}
	return first
}
