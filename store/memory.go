package store

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ming0627/bellyfed-new-sub015/errors"
)

// memStore is a mutex-guarded in-memory Store with the same single-record
// atomicity as the KV-backed implementation. Used for the "memory" storage
// mode and in tests.
type memStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemory creates an in-memory Store.
func NewMemory() Store {
	return &memStore{docs: make(map[string][]byte)}
}

func (s *memStore) mutate(pk, sk string, fn func(doc map[string]any) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := EncodeKey(pk, sk)
	current := s.docs[key]
	doc, err := decodeDoc(current)
	if err != nil {
		return err
	}
	if len(current) == 0 {
		doc["partitionKey"] = pk
		doc["sortKey"] = sk
	}
	if err := fn(doc); err != nil {
		return err
	}
	doc[lastUpdatedField] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(doc)
	if err != nil {
		return errors.WrapInvalid(err, "memStore", "mutate", "marshal record")
	}
	s.docs[key] = data
	return nil
}

func (s *memStore) Increment(_ context.Context, pk, sk, field string, delta uint64) (uint64, error) {
	var newValue uint64
	err := s.mutate(pk, sk, func(doc map[string]any) error {
		newValue = numValue(doc[field]) + delta
		doc[field] = newValue
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newValue, nil
}

func (s *memStore) IncrementNested(_ context.Context, pk, sk, mapField, mapKey string, delta uint64) (uint64, error) {
	var newValue uint64
	err := s.mutate(pk, sk, func(doc map[string]any) error {
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

func (s *memStore) AddToSet(_ context.Context, pk, sk, field string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return s.mutate(pk, sk, func(doc map[string]any) error {
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

func (s *memStore) SetField(_ context.Context, pk, sk, field string, value any) error {
	return s.mutate(pk, sk, func(doc map[string]any) error {
		doc[field] = value
		return nil
	})
}

func (s *memStore) Get(_ context.Context, pk, sk string, out any) (bool, error) {
	s.mu.RLock()
	data, ok := s.docs[EncodeKey(pk, sk)]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, errors.WrapInvalid(err, "memStore", "Get", "unmarshal record")
	}
	return true, nil
}

func (s *memStore) Put(_ context.Context, pk, sk string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.WrapInvalid(err, "memStore", "Put", "marshal record")
	}
	s.mu.Lock()
	s.docs[EncodeKey(pk, sk)] = data
	s.mu.Unlock()
	return nil
}

func (s *memStore) Scan(_ context.Context, pkPrefix, skPrefix string, fn func(pk, sk string, value []byte) error) error {
	s.mu.RLock()
	type rec struct {
		pk, sk string
		data   []byte
	}
	matched := make([]rec, 0)
	for key, data := range s.docs {
		pk, sk, err := DecodeKey(key)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(pk, pkPrefix) || !strings.HasPrefix(sk, skPrefix) {
			continue
		}
		matched = append(matched, rec{pk: pk, sk: sk, data: bytes.Clone(data)})
	}
	s.mu.RUnlock()

	// Deterministic visit order keeps scans reproducible across runs.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].pk != matched[j].pk {
			return matched[i].pk < matched[j].pk
		}
		return matched[i].sk < matched[j].sk
	})

	for _, r := range matched {
		if err := fn(r.pk, r.sk, r.data); err != nil {
			return err
		}
	}
	return nil
}
