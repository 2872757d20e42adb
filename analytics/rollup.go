package analytics

import (
	"context"
	"log/slog"

	"github.com/ming0627/bellyfed-new-sub015/errors"
	"github.com/ming0627/bellyfed-new-sub015/store"
)

// EntityRollupManager maintains one lifetime aggregate row per entity,
// independent of time bucketing.
type EntityRollupManager struct {
	store  store.Store
	logger *slog.Logger
}

// NewEntityRollupManager creates a manager over the counters store.
func NewEntityRollupManager(st store.Store, logger *slog.Logger) *EntityRollupManager {
	return &EntityRollupManager{
		store:  st,
		logger: logger.With("component", "rollup"),
	}
}

// RecordEntityEvent atomically bumps the entity's lifetime totals for one event.
func (m *EntityRollupManager) RecordEntityEvent(ctx context.Context, entityType, entityID string, eventType EventType) error {
	pk := store.PartitionKey(entityType, entityID)

	if _, err := m.store.Increment(ctx, pk, store.SortKeyLifetime, "totalEvents", 1); err != nil {
		return errors.Wrap(err, "rollup", "RecordEntityEvent", "total events")
	}
	if _, err := m.store.IncrementNested(ctx, pk, store.SortKeyLifetime, "eventsByType", string(eventType), 1); err != nil {
		return errors.Wrap(err, "rollup", "RecordEntityEvent", "events by type")
	}
	return nil
}

// Rollup returns the entity's lifetime aggregate. An entity with no recorded
// events yields a zero rollup, not an error.
func (m *EntityRollupManager) Rollup(ctx context.Context, entityType, entityID string) (Rollup, error) {
	pk := store.PartitionKey(entityType, entityID)

	var bucket TimeBucket
	found, err := m.store.Get(ctx, pk, store.SortKeyLifetime, &bucket)
	if err != nil {
		return Rollup{}, errors.Wrap(err, "rollup", "Rollup", "read lifetime row")
	}
	if !found {
		return Rollup{EventsByType: map[string]uint64{}}, nil
	}

	r := Rollup{
		TotalEvents:  bucket.TotalEvents,
		EventsByType: bucket.EventsByType,
	}
	if r.EventsByType == nil {
		r.EventsByType = map[string]uint64{}
	}
	return r, nil
}
