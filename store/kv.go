package store

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/ming0627/bellyfed-new-sub015/errors"
	"github.com/ming0627/bellyfed-new-sub015/natsclient"
)

// kvStore implements Store on a JetStream KV bucket. Every mutation runs
// through the KV layer's CAS loop, giving single-key atomic read-modify-write
// without multi-key transactions. One kvStore wraps one bucket; callers hold
// separate instances for buckets with different retention (counters,
// realtime, engagements).
type kvStore struct {
	kv *natsclient.KVStore
}

// NewKV creates a Store backed by the given JetStream KV wrapper.
func NewKV(kv *natsclient.KVStore) Store {
	return &kvStore{kv: kv}
}

// lastUpdatedField is refreshed on every mutation. Last writer wins: under
// concurrent out-of-order delivery the timestamp may regress, which is an
// accepted trade-off of the commutative counter design.
const lastUpdatedField = "lastUpdated"

// decodeDoc parses a record document preserving integer precision.
func decodeDoc(data []byte) (map[string]any, error) {
	doc := make(map[string]any)
	if len(data) == 0 {
		return doc, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.WrapInvalid(err, "kvStore", "decodeDoc", "unmarshal record")
	}
	return doc, nil
}

// numValue coerces a decoded JSON value to uint64. Unknown shapes read as 0
// so that a corrupt field resets rather than wedging the counter.
func numValue(v any) uint64 {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil && i >= 0 {
			return uint64(i)
		}
	case float64:
		if n >= 0 {
			return uint64(n)
		}
	case uint64:
		return n
	case int64:
		if n >= 0 {
			return uint64(n)
		}
	}
	return 0
}

// mutate runs a CAS read-modify-write of the document at (pk, sk),
// refreshing lastUpdated as part of the same write.
func (s *kvStore) mutate(ctx context.Context, pk, sk string, fn func(doc map[string]any) error) error {
	key := EncodeKey(pk, sk)
	err := s.kv.UpdateWithRetry(ctx, key, func(current []byte) ([]byte, error) {
		doc, err := decodeDoc(current)
		if err != nil {
			return nil, err
		}
		if len(current) == 0 {
			// Lazily created record: stamp identity fields on first write
			doc["partitionKey"] = pk
			doc["sortKey"] = sk
		}
		if err := fn(doc); err != nil {
			return nil, err
		}
		doc[lastUpdatedField] = time.Now().UTC().Format(time.RFC3339Nano)
		return json.Marshal(doc)
	})
	if err != nil {
		return errors.WrapTransient(err, "kvStore", "mutate", "kv update "+key)
	}
	return nil
}

// Increment atomically adds delta to a numeric field, returning the new value.
func (s *kvStore) Increment(ctx context.Context, pk, sk, field string, delta uint64) (uint64, error) {
	var newValue uint64
	err := s.mutate(ctx, pk, sk, func(doc map[string]any) error {
		newValue = numValue(doc[field]) + delta
		doc[field] = newValue
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newValue, nil
}

// IncrementNested atomically adds delta to mapField[mapKey], returning the new value.
func (s *kvStore) IncrementNested(ctx context.Context, pk, sk, mapField, mapKey string, delta uint64) (uint64, error) {
	var newValue uint64
	err := s.mutate(ctx, pk, sk, func(doc map[string]any) error {
		inner, _ := doc[mapField].(map[string]any)
		if inner == nil {
			inner = make(map[string]any)
		}
		newValue = numValue(inner[mapKey]) + delta
		inner[mapKey] = newValue
		doc[mapField] = inner
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newValue, nil
}

// AddToSet atomically unions members into a string-set field.
func (s *kvStore) AddToSet(ctx context.Context, pk, sk, field string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return s.mutate(ctx, pk, sk, func(doc map[string]any) error {
		existing, _ := doc[field].([]any)
		seen := make(map[string]bool, len(existing)+len(members))
		set := make([]string, 0, len(existing)+len(members))
		for _, v := range existing {
			if str, ok := v.(string); ok && !seen[str] {
				seen[str] = true
				set = append(set, str)
			}
		}
		for _, m := range members {
			if !seen[m] {
				seen[m] = true
				set = append(set, m)
			}
		}
		doc[field] = set
		return nil
	})
}

// SetField atomically overwrites a single field.
func (s *kvStore) SetField(ctx context.Context, pk, sk, field string, value any) error {
	return s.mutate(ctx, pk, sk, func(doc map[string]any) error {
		doc[field] = value
		return nil
	})
}

// Get reads the record at (pk, sk) into out.
func (s *kvStore) Get(ctx context.Context, pk, sk string, out any) (bool, error) {
	entry, err := s.kv.Get(ctx, EncodeKey(pk, sk))
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return false, nil
		}
		return false, errors.WrapTransient(err, "kvStore", "Get", "kv read")
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		return false, errors.WrapInvalid(err, "kvStore", "Get", "unmarshal record")
	}
	return true, nil
}

// Put writes a full record at (pk, sk).
func (s *kvStore) Put(ctx context.Context, pk, sk string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.WrapInvalid(err, "kvStore", "Put", "marshal record")
	}
	if _, err := s.kv.Put(ctx, EncodeKey(pk, sk), data); err != nil {
		return errors.WrapTransient(err, "kvStore", "Put", "kv write")
	}
	return nil
}

// Scan visits all records matching the given key prefixes. Implemented as a
// key listing plus point reads; acceptable at bounded entity cardinality,
// with a maintained index as the documented evolution path.
func (s *kvStore) Scan(ctx context.Context, pkPrefix, skPrefix string, fn func(pk, sk string, value []byte) error) error {
	keys, err := s.kv.ListKeys(ctx)
	if err != nil {
		return errors.WrapTransient(err, "kvStore", "Scan", "list keys")
	}

	for _, key := range keys {
		pk, sk, err := DecodeKey(key)
		if err != nil {
			continue // Foreign key shape in the bucket, skip
		}
		if !hasPrefix(pk, pkPrefix) || !hasPrefix(sk, skPrefix) {
			continue
		}

		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			if natsclient.IsKVNotFoundError(err) {
				continue // Deleted between listing and read
			}
			return errors.WrapTransient(err, "kvStore", "Scan", "kv read "+key)
		}
		if err := fn(pk, sk, entry.Value); err != nil {
			return err
		}
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return prefix == "" || (len(s) >= len(prefix) && s[:len(prefix)] == prefix)
}
