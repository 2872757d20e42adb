// Package analytics implements the aggregation core: deduplicated viewer
// tracking, time-bucketed rollups, entity lifetime rollups, and trending
// rankings. All components are stateless; coordination happens through the
// atomic primitives of the store layer, so any number of workers can run the
// same component concurrently.
package analytics

import (
	"fmt"
	"strings"
	"time"
)

// EventType is the closed set of engagement event kinds. Free-form strings
// are rejected at the edge so aggregate maps cannot grow unbounded keys.
type EventType string

const (
	EventView    EventType = "view"
	EventLike    EventType = "like"
	EventComment EventType = "comment"
	EventShare   EventType = "share"
)

// ParseEventType validates and normalizes an event type string.
func ParseEventType(s string) (EventType, error) {
	switch et := EventType(strings.ToLower(strings.TrimSpace(s))); et {
	case EventView, EventLike, EventComment, EventShare:
		return et, nil
	default:
		return "", fmt.Errorf("unknown event type %q", s)
	}
}

// DeviceCategory is the closed set of client device classes.
type DeviceCategory string

const (
	DeviceMobile  DeviceCategory = "mobile"
	DeviceDesktop DeviceCategory = "desktop"
	DeviceTablet  DeviceCategory = "tablet"
	DeviceOther   DeviceCategory = "other"
)

// NormalizeDevice maps a raw client-supplied device string onto the closed
// category set. Unknown values fold into DeviceOther.
func NormalizeDevice(s string) DeviceCategory {
	switch dc := DeviceCategory(strings.ToLower(strings.TrimSpace(s))); dc {
	case DeviceMobile, DeviceDesktop, DeviceTablet, DeviceOther:
		return dc
	default:
		return DeviceOther
	}
}

// Period is a query lookback window.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod validates a period string. Empty input means "no window".
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return "", nil
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Days returns the number of calendar days the period spans. Month and year
// use fixed 30/365-day windows rather than calendar-aware arithmetic, which
// keeps window boundaries deterministic across time zones.
func (p Period) Days() int {
	switch p {
	case PeriodDay:
		return 1
	case PeriodWeek:
		return 7
	case PeriodMonth:
		return 30
	case PeriodYear:
		return 365
	default:
		return 0
	}
}

// Range resolves the period to an inclusive [start, end] pair of UTC
// calendar days ending at now.
func (p Period) Range(now time.Time) (start, end time.Time) {
	end = now.UTC().Truncate(24 * time.Hour)
	start = end.AddDate(0, 0, -(p.Days() - 1))
	return start, end
}

// Storage layouts for bucket timestamps. NATS KV keys cannot contain ":",
// so sub-day components use "-" separators.
const (
	DateLayout   = "2006-01-02"
	hourLayout   = "15"
	minuteLayout = "15-04"
)

// ViewCounter is the per-entity primary view row.
type ViewCounter struct {
	PartitionKey  string `json:"partitionKey"`
	SortKey       string `json:"sortKey"`
	EntityType    string `json:"entityType"`
	ViewCount     uint64 `json:"viewCount"`
	UniqueViewers uint64 `json:"uniqueViewers"`
	LastUpdated   string `json:"lastUpdated"`
}

// DailyViewerSet is one calendar day's distinct viewer ids for an entity.
type DailyViewerSet struct {
	PartitionKey string   `json:"partitionKey"`
	SortKey      string   `json:"sortKey"`
	Viewers      []string `json:"viewers"`
	LastUpdated  string   `json:"lastUpdated"`
}

// EngagementRecord is an append-only, immutable engagement event. Retention
// is enforced by the 90-day bucket TTL of the engagements store.
type EngagementRecord struct {
	PartitionKey   string            `json:"partitionKey"`
	SortKey        string            `json:"sortKey"`
	UserID         string            `json:"userId,omitempty"`
	EngagementType string            `json:"engagementType"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Timestamp      string            `json:"timestamp"`
	ExpiresAt      string            `json:"expiresAt,omitempty"`
}

// EngagementCounter is the monotonically incremented per-(entity, type) count.
type EngagementCounter struct {
	PartitionKey string `json:"partitionKey"`
	SortKey      string `json:"sortKey"`
	Count        uint64 `json:"count"`
	LastUpdated  string `json:"lastUpdated"`
}

// TimeBucket is a daily, hourly, or real-time minute aggregate.
type TimeBucket struct {
	PartitionKey string            `json:"partitionKey"`
	SortKey      string            `json:"sortKey"`
	TotalEvents  uint64            `json:"totalEvents"`
	EventsByType map[string]uint64 `json:"eventsByType,omitempty"`
	DeviceTypes  map[string]uint64 `json:"deviceTypes,omitempty"`
	LastUpdated  string            `json:"lastUpdated"`
}

// TimeSeriesPoint is one gap-filled day in a time-series response.
type TimeSeriesPoint struct {
	Date        string            `json:"date"`
	EventCount  uint64            `json:"eventCount"`
	DeviceTypes map[string]uint64 `json:"deviceTypes"`
}

// Rollup is an entity's lifetime aggregate across all time buckets.
type Rollup struct {
	TotalEvents  uint64            `json:"totalEvents"`
	EventsByType map[string]uint64 `json:"eventsByType"`
}

// TrendingEntry is one ranked row in a top-K response.
type TrendingEntry struct {
	EntityID      string `json:"entityId"`
	ViewCount     uint64 `json:"viewCount"`
	UniqueViewers uint64 `json:"uniqueViewers"`
	LastUpdated   string `json:"lastUpdated"`
}

// parseTimestamp reads a stored RFC3339 timestamp, returning the zero time
// for absent or malformed values so comparisons degrade instead of failing.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
