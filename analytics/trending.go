package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ming0627/bellyfed-new-sub015/errors"
	"github.com/ming0627/bellyfed-new-sub015/store"
)

// TrendingIndex answers top-K-by-views queries with a read-time scan over
// view counter rows. Entity cardinality per type is bounded, so a full scan
// plus sort stays cheap; a maintained sorted index is the evolution path if
// that assumption breaks.
type TrendingIndex struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewTrendingIndex creates an index over the counters store.
func NewTrendingIndex(st store.Store, logger *slog.Logger) *TrendingIndex {
	return &TrendingIndex{
		store:  st,
		logger: logger.With("component", "trending"),
		now:    time.Now,
	}
}

// TopK returns up to limit entities of the given type ranked by view count
// descending, ties broken by unique viewers descending and then most recent
// update. A non-empty period restricts candidates to entities updated within
// the window before ranking.
func (t *TrendingIndex) TopK(ctx context.Context, entityType string, limit int, period Period) ([]TrendingEntry, error) {
	if limit <= 0 {
		return nil, errors.NewInvalid("trending", "TopK", "limit must be positive")
	}

	var cutoff time.Time
	if period != "" {
		cutoff = t.now().UTC().Add(-time.Duration(period.Days()) * 24 * time.Hour)
	}

	pkPrefix := entityType + "#"
	var entries []TrendingEntry
	err := t.store.Scan(ctx, pkPrefix, store.SortKeyViews, func(pk, sk string, value []byte) error {
		if sk != store.SortKeyViews || !strings.HasPrefix(pk, pkPrefix) {
			return nil
		}
		scannedType, entityID, ok := store.SplitPartitionKey(pk)
		if !ok || scannedType != entityType {
			return nil
		}

		var counter ViewCounter
		if err := json.Unmarshal(value, &counter); err != nil {
			t.logger.Warn("skipping unreadable view counter", "partitionKey", pk, "error", err)
			return nil
		}
		if !cutoff.IsZero() && parseTimestamp(counter.LastUpdated).Before(cutoff) {
			return nil
		}

		entries = append(entries, TrendingEntry{
			EntityID:      entityID,
			ViewCount:     counter.ViewCount,
			UniqueViewers: counter.UniqueViewers,
			LastUpdated:   counter.LastUpdated,
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "trending", "TopK", "scan view counters")
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ViewCount != entries[j].ViewCount {
			return entries[i].ViewCount > entries[j].ViewCount
		}
		if entries[i].UniqueViewers != entries[j].UniqueViewers {
			return entries[i].UniqueViewers > entries[j].UniqueViewers
		}
		return parseTimestamp(entries[i].LastUpdated).After(parseTimestamp(entries[j].LastUpdated))
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
