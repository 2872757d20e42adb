package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ming0627/bellyfed-new-sub015/errors"
	"github.com/ming0627/bellyfed-new-sub015/store"
)

// UniqueSetTracker maintains per-day deduplicated viewer sets and derives
// the exact unique-viewer count for an entity by set union across days.
type UniqueSetTracker struct {
	store  store.Store
	logger *slog.Logger
}

// NewUniqueSetTracker creates a tracker over the counters store.
func NewUniqueSetTracker(st store.Store, logger *slog.Logger) *UniqueSetTracker {
	return &UniqueSetTracker{
		store:  st,
		logger: logger.With("component", "uniqueset"),
	}
}

// RecordViewer adds viewerID to the entity's viewer set for the given
// calendar day. Adding the same id twice has no additional effect.
func (t *UniqueSetTracker) RecordViewer(ctx context.Context, entityType, entityID, viewerID string, date time.Time) error {
	pk := store.PartitionKey(entityType, entityID)
	sk := store.SortKeyViewersPrefix + date.UTC().Format(DateLayout)

	if err := t.store.AddToSet(ctx, pk, sk, "viewers", viewerID); err != nil {
		return errors.Wrap(err, "uniqueset", "RecordViewer", "add viewer")
	}
	return nil
}

// RecomputeUniqueCount reads every daily viewer set for the entity, computes
// the union's cardinality, and writes it into the view counter's
// uniqueViewers field. Cost is proportional to total distinct viewers across
// all days, so callers run this asynchronously rather than inline on every
// event.
func (t *UniqueSetTracker) RecomputeUniqueCount(ctx context.Context, entityType, entityID string) (uint64, error) {
	pk := store.PartitionKey(entityType, entityID)

	union := make(map[string]struct{})
	err := t.store.Scan(ctx, pk, store.SortKeyViewersPrefix, func(scanPK, sk string, value []byte) error {
		if scanPK != pk {
			return nil // Prefix overlap with a longer entity id
		}
		var set DailyViewerSet
		if err := json.Unmarshal(value, &set); err != nil {
			t.logger.Warn("skipping unreadable viewer set", "sortKey", sk, "error", err)
			return nil
		}
		for _, v := range set.Viewers {
			union[v] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "uniqueset", "RecomputeUniqueCount", "scan viewer sets")
	}

	count := uint64(len(union))
	if err := t.store.SetField(ctx, pk, store.SortKeyViews, "uniqueViewers", count); err != nil {
		return 0, errors.Wrap(err, "uniqueset", "RecomputeUniqueCount", "write unique count")
	}

	t.logger.Debug("recomputed unique viewers",
		"entityType", entityType,
		"entityId", entityID,
		"uniqueViewers", count)
	return count, nil
}
