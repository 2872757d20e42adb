package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeKeyRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pk   string
		sk   string
	}{
		{"counter row", "recipe#pizza-123", "VIEWS"},
		{"viewer shard", "recipe#pizza-123", "VIEWERS#2025-06-01"},
		{"engagement", "post#abc", "ENGAGEMENT#2025-06-01T12-00-00Z#9f1c"},
		{"lifetime rollup", "user#u42", "DATE#ALL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeKey(tt.pk, tt.sk)
			assert.NotContains(t, encoded, "#")

			pk, sk, err := DecodeKey(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.pk, pk)
			assert.Equal(t, tt.sk, sk)
		})
	}
}

func TestDecodeKeyRejectsMalformed(t *testing.T) {
	_, _, err := DecodeKey("no-separator")
	assert.Error(t, err)
}

func TestPartitionKey(t *testing.T) {
	pk := PartitionKey("recipe", "pizza-123")
	assert.Equal(t, "recipe#pizza-123", pk)

	entityType, id, ok := SplitPartitionKey(pk)
	require.True(t, ok)
	assert.Equal(t, "recipe", entityType)
	assert.Equal(t, "pizza-123", id)

	_, _, ok = SplitPartitionKey("no-separator")
	assert.False(t, ok)
}

func TestIncrementZeroInitialized(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	v, err := s.Increment(ctx, "recipe#r1", SortKeyViews, "viewCount", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v, "increment on absent record starts from zero")

	v, err = s.Increment(ctx, "recipe#r1", SortKeyViews, "viewCount", 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), v)
}

func TestIncrementStampsIdentityAndTimestamp(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.Increment(ctx, "recipe#r1", SortKeyViews, "viewCount", 1)
	require.NoError(t, err)

	var doc map[string]any
	found, err := s.Get(ctx, "recipe#r1", SortKeyViews, &doc)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "recipe#r1", doc["partitionKey"])
	assert.Equal(t, SortKeyViews, doc["sortKey"])
	assert.NotEmpty(t, doc["lastUpdated"])
}

func TestConcurrentIncrementsConvergeToSum(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	const goroutines = 8
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_, err := s.Increment(ctx, "recipe#hot", SortKeyViews, "viewCount", 1)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	var doc map[string]any
	found, err := s.Get(ctx, "recipe#hot", SortKeyViews, &doc)
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, goroutines*perGoroutine, doc["viewCount"])
}

func TestIncrementNested(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	v, err := s.IncrementNested(ctx, "recipe#r1", SortKeyViews, "deviceBreakdown", "mobile", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	v, err = s.IncrementNested(ctx, "recipe#r1", SortKeyViews, "deviceBreakdown", "mobile", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	v, err = s.IncrementNested(ctx, "recipe#r1", SortKeyViews, "deviceBreakdown", "desktop", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v, "keys within the map are independent")
}

func TestAddToSetIdempotent(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.AddToSet(ctx, "recipe#r1", SortKeyViewersPrefix+"2025-06-01", "viewers", "u1"))
	require.NoError(t, s.AddToSet(ctx, "recipe#r1", SortKeyViewersPrefix+"2025-06-01", "viewers", "u1"))
	require.NoError(t, s.AddToSet(ctx, "recipe#r1", SortKeyViewersPrefix+"2025-06-01", "viewers", "u2", "u1"))

	var doc struct {
		Viewers []string `json:"viewers"`
	}
	found, err := s.Get(ctx, "recipe#r1", SortKeyViewersPrefix+"2025-06-01", &doc)
	require.NoError(t, err)
	require.True(t, found)
	assert.ElementsMatch(t, []string{"u1", "u2"}, doc.Viewers)
}

func TestSetFieldOverwrites(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.SetField(ctx, "recipe#r1", SortKeyViews, "uniqueViewers", 7))
	require.NoError(t, s.SetField(ctx, "recipe#r1", SortKeyViews, "uniqueViewers", 9))

	var doc map[string]any
	found, err := s.Get(ctx, "recipe#r1", SortKeyViews, &doc)
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 9, doc["uniqueViewers"])
}

func TestGetAbsentRecord(t *testing.T) {
	s := NewMemory()

	var doc map[string]any
	found, err := s.Get(context.Background(), "recipe#missing", SortKeyViews, &doc)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutThenGet(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	type record struct {
		PartitionKey string `json:"partitionKey"`
		SortKey      string `json:"sortKey"`
		ViewCount    uint64 `json:"viewCount"`
	}
	in := record{PartitionKey: "recipe#r1", SortKey: SortKeyViews, ViewCount: 12}
	require.NoError(t, s.Put(ctx, in.PartitionKey, in.SortKey, in))

	var out record
	found, err := s.Get(ctx, "recipe#r1", SortKeyViews, &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)
}

func TestScanPrefixFilter(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.Increment(ctx, "recipe#r1", SortKeyViews, "viewCount", 1)
	require.NoError(t, err)
	_, err = s.Increment(ctx, "recipe#r2", SortKeyViews, "viewCount", 2)
	require.NoError(t, err)
	_, err = s.Increment(ctx, "post#p1", SortKeyViews, "viewCount", 3)
	require.NoError(t, err)
	require.NoError(t, s.AddToSet(ctx, "recipe#r1", SortKeyViewersPrefix+"2025-06-01", "viewers", "u1"))

	var visited []string
	err = s.Scan(ctx, "recipe#", SortKeyViews, func(pk, sk string, value []byte) error {
		visited = append(visited, pk+"/"+sk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"recipe#r1/VIEWS", "recipe#r2/VIEWS"}, visited,
		"scan filters both prefixes and visits in deterministic order")
}

func TestScanStopsOnCallbackError(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.Increment(ctx, "recipe#r1", SortKeyViews, "viewCount", 1)
	require.NoError(t, err)
	_, err = s.Increment(ctx, "recipe#r2", SortKeyViews, "viewCount", 1)
	require.NoError(t, err)

	calls := 0
	err = s.Scan(ctx, "recipe#", "", func(pk, sk string, value []byte) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}
