package retention

import (
	"time"

	"github.com/andresuchdata/backup-mongodb/internal/domain"
)

// Classify files a backup taken at instant t into exactly one bucket, judged on
// the calendar of loc. Checks run from the rarest cadence to the most frequent,
// so Jan 1 is always yearly whatever its weekday.
func Classify(t time.Time, loc *time.Location) domain.Bucket {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)

	switch {
	case local.YearDay() == 1:
		return domain.BucketYearly
	case local.Day() == 1:
		return domain.BucketMonthly
	case local.Weekday() == time.Monday:
		return domain.BucketWeekly
	default:
		return domain.BucketDaily
	}
}
