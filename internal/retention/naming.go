package retention

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/andresuchdata/backup-mongodb/internal/domain"
)

const (
	// TimestampLayout is fixed width and zero padded so names sort by creation time.
	TimestampLayout = "2006-01-02T150405"
	// Extension marks a gzip compressed mongodump archive.
	Extension = ".archive.gz"
)

var (
	timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{6}`)
	// matched against the lower-cased base name
	stampedBucketPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}t\d{6}-(yearly|monthly|weekly|daily)`)
)

// Format builds "{prefix}-{timestamp}-{bucket}.archive.gz". The timestamp is
// rendered in t's own location.
func Format(t time.Time, prefix string, bucket domain.Bucket) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "-")
	stamp := t.Format(TimestampLayout)
	if prefix == "" {
		return fmt.Sprintf("%s-%s%s", stamp, bucket, Extension)
	}
	return fmt.Sprintf("%s-%s-%s%s", prefix, stamp, bucket, Extension)
}

// BucketOf extracts the bucket from a file name or object key. The token right
// before the extension wins, then a bucket right after the timestamp; otherwise
// the name is searched for a bucket name, rarest first. Names matching nothing
// are BucketUnknown and must be left alone.
func BucketOf(identifier string) domain.Bucket {
	base := strings.ToLower(path.Base(strings.ReplaceAll(identifier, "\\", "/")))
	if base == "" || base == "." || base == "/" {
		return domain.BucketUnknown
	}

	// the prefix may contain dots, so only a known extension is stripped whole
	stem := base
	if strings.HasSuffix(stem, Extension) {
		stem = strings.TrimSuffix(stem, Extension)
	} else if i := strings.Index(stem, "."); i >= 0 {
		stem = stem[:i]
	}
	if i := strings.LastIndex(stem, "-"); i >= 0 {
		if b := domain.Bucket(stem[i+1:]); b.Valid() {
			return b
		}
	}

	if m := stampedBucketPattern.FindAllStringSubmatch(base, -1); len(m) > 0 {
		return domain.Bucket(m[len(m)-1][1])
	}

	for _, b := range domain.Buckets {
		if strings.Contains(base, string(b)) {
			return b
		}
	}
	return domain.BucketUnknown
}

// timestampKey returns the embedded sortable timestamp, or "" when absent.
func timestampKey(identifier string) string {
	matches := timestampPattern.FindAllString(path.Base(identifier), -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1]
}

// CreatedAt parses the embedded timestamp in loc.
func CreatedAt(identifier string, loc *time.Location) (time.Time, bool) {
	key := timestampKey(identifier)
	if key == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(TimestampLayout, key, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
