// Package kv – in-memory Store.
//
// MemoryStore keeps everything in process maps guarded by a single mutex.
// It honors TTLs lazily: expired keys are purged on access. The clock is a
// settable field so tests can step time deterministically.
package kv

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

type zMember struct {
	member string
	score  float64
}

// MemoryStore is a process-local Store implementation.
type MemoryStore struct {
	mu      sync.Mutex
	strings map[string]memEntry
	lists   map[string][]string
	zsets   map[string][]zMember
	sets    map[string]map[string]struct{}
	expiry  map[string]time.Time // for lists/zsets/sets

	// Now supplies the current time; tests override it to exercise TTLs.
	Now func() time.Time
}

// NewMemory constructs an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]memEntry),
		lists:   make(map[string][]string),
		zsets:   make(map[string][]zMember),
		sets:    make(map[string]map[string]struct{}),
		expiry:  make(map[string]time.Time),
		Now:     time.Now,
	}
}

// now is nil-safe so zero-value copies do not panic.
func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// purge drops key from every structure when its TTL has passed.
// Caller must hold the mutex.
func (m *MemoryStore) purge(key string) {
	now := m.now()
	if e, ok := m.strings[key]; ok && !e.expiresAt.IsZero() && now.After(e.expiresAt) {
		delete(m.strings, key)
	}
	if exp, ok := m.expiry[key]; ok && !exp.IsZero() && now.After(exp) {
		delete(m.lists, key)
		delete(m.zsets, key)
		delete(m.sets, key)
		delete(m.expiry, key)
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	e, ok := m.strings[key]
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.strings[key] = e
	return nil
}

func (m *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	if _, ok := m.strings[key]; ok {
		return false, nil
	}
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.strings[key] = e
	return true, nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.strings, key)
		delete(m.lists, key)
		delete(m.zsets, key)
		delete(m.sets, key)
		delete(m.expiry, key)
	}
	return nil
}

func (m *MemoryStore) MGet(_ context.Context, keys ...string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		m.purge(key)
		if e, ok := m.strings[key]; ok {
			out[key] = e.value
		}
	}
	return out, nil
}

func (m *MemoryStore) LPush(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	list := m.lists[key]
	for _, v := range values {
		list = append([]string{v}, list...)
	}
	m.lists[key] = list
	return nil
}

func (m *MemoryStore) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	list := m.lists[key]
	n := int64(len(list))
	start, stop = normalizeRange(start, stop, n)
	if start > stop {
		return []string{}, nil
	}
	out := make([]string, 0, stop-start+1)
	out = append(out, list[start:stop+1]...)
	return out, nil
}

func (m *MemoryStore) LTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	list := m.lists[key]
	n := int64(len(list))
	start, stop = normalizeRange(start, stop, n)
	if start > stop {
		delete(m.lists, key)
		return nil
	}
	m.lists[key] = list[start : stop+1]
	return nil
}

func (m *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	zs := m.zsets[key]
	for i := range zs {
		if zs[i].member == member {
			zs[i].score = score
			m.zsets[key] = zs
			return nil
		}
	}
	m.zsets[key] = append(zs, zMember{member: member, score: score})
	return nil
}

func (m *MemoryStore) ZRevRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	zs := append([]zMember(nil), m.zsets[key]...)
	sort.SliceStable(zs, func(i, j int) bool { return zs[i].score > zs[j].score })
	n := int64(len(zs))
	start, stop = normalizeRange(start, stop, n)
	if start > stop {
		return []string{}, nil
	}
	out := make([]string, 0, stop-start+1)
	for _, z := range zs[start : stop+1] {
		out = append(out, z.member)
	}
	return out, nil
}

func (m *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	set := m.sets[key]
	if set == nil {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	set := m.sets[key]
	for _, member := range members {
		delete(set, member)
	}
	return nil
}

func (m *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	set := m.sets[key]
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	e := m.strings[key]
	n, _ := strconv.ParseInt(e.value, 10, 64)
	n++
	e.value = strconv.FormatInt(n, 10)
	m.strings[key] = e
	return n, nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	deadline := m.now().Add(ttl)
	if e, ok := m.strings[key]; ok {
		e.expiresAt = deadline
		m.strings[key] = e
		return nil
	}
	if _, ok := m.lists[key]; ok {
		m.expiry[key] = deadline
		return nil
	}
	if _, ok := m.zsets[key]; ok {
		m.expiry[key] = deadline
		return nil
	}
	if _, ok := m.sets[key]; ok {
		m.expiry[key] = deadline
	}
	return nil
}

// normalizeRange converts Redis-style inclusive list indexes (negatives count
// from the end) into concrete slice bounds for a collection of length n.
func normalizeRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}
