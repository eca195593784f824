package retention

import (
	"context"
	"sort"

	"github.com/andresuchdata/backup-mongodb/internal/domain"
	"github.com/rs/zerolog/log"
)

// DeleteFunc removes one artifact from a backend.
type DeleteFunc func(ctx context.Context, identifier string) error

// Partition groups identifiers by bucket, newest first within each bucket.
// Duplicates collapse and unrecognised identifiers are dropped.
func Partition(existing []string) map[domain.Bucket][]string {
	groups := make(map[domain.Bucket][]string, len(domain.Buckets))
	seen := make(map[string]struct{}, len(existing))

	for _, id := range existing {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		b := BucketOf(id)
		if !b.Valid() {
			continue
		}
		groups[b] = append(groups[b], id)
	}

	for _, ids := range groups {
		SortNewestFirst(ids)
	}
	return groups
}

// SortNewestFirst orders identifiers by embedded timestamp, descending, with the
// full string as tie breaker.
func SortNewestFirst(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		ki, kj := timestampKey(ids[i]), timestampKey(ids[j])
		if ki != kj {
			return ki > kj
		}
		return ids[i] > ids[j]
	})
}

// Surplus returns, per bucket, every identifier beyond the policy's keep count.
func Surplus(existing []string, policy domain.RetentionPolicy) map[domain.Bucket][]string {
	groups := Partition(existing)
	surplus := make(map[domain.Bucket][]string)

	for _, b := range domain.Buckets {
		ids := groups[b]
		keep, ok := policy.Keep(b)
		if !ok || keep < 0 {
			continue
		}
		if len(ids) > keep {
			surplus[b] = append([]string(nil), ids[keep:]...)
		}
	}
	return surplus
}

// Prune deletes the surplus of every bucket and returns the identifiers that
// were actually removed. A failed delete is logged and skipped; the remaining
// surplus is still processed.
func Prune(ctx context.Context, backend string, existing []string, policy domain.RetentionPolicy, del DeleteFunc) domain.PruneResult {
	result := domain.PruneResult{Backend: backend, Deleted: []string{}}
	surplus := Surplus(existing, policy)

	for _, b := range domain.Buckets {
		for _, id := range surplus[b] {
			result.Surplus++
			if err := del(ctx, id); err != nil {
				log.Error().Err(err).
					Str("backend", backend).
					Str("bucket", b.String()).
					Str("artifact", id).
					Msg("retention: delete failed")
				continue
			}
			log.Debug().
				Str("backend", backend).
				Str("bucket", b.String()).
				Str("artifact", id).
				Msg("retention: deleted")
			result.Deleted = append(result.Deleted, id)
		}
	}

	if n := len(result.Deleted); n > 0 {
		log.Info().Str("backend", backend).Int("deleted", n).
			Msgf("retention: deleted %d old %s", n, plural(n, "backup"))
	}
	return result
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}
