// Package carttest provides an in-memory key value store for cart tests.
package carttest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Memory implements cart.KeyValueStore with maps. Fail* hooks inject errors.
type Memory struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	strings map[string]string

	FailHIncrBy error
	FailHDel    error
	FailSRem    error
	FailSetNX   error
}

func NewMemory() *Memory {
	return &Memory{
		hashes:  map[string]map[string]string{},
		sets:    map[string]map[string]struct{}{},
		strings: map[string]string{},
	}
}

func (m *Memory) CartKey(userID int64) string {
	return fmt.Sprintf("mall:cart:%d", userID)
}

func (m *Memory) CartSelectedKey(userID int64) string {
	return fmt.Sprintf("mall:cart_selected:%d", userID)
}

func (m *Memory) CartMergeKey(tokenID string) string {
	return "mall:cart_merge:" + tokenID
}

func (m *Memory) HIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailHIncrBy != nil {
		return 0, m.FailHIncrBy
	}
	h := m.hash(key)
	current, _ := strconv.ParseInt(h[field], 10, 64)
	current += delta
	h[field] = strconv.FormatInt(current, 10)
	return current, nil
}

func (m *Memory) HSet(_ context.Context, key, field string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hash(key)[field] = fmt.Sprint(value)
	return nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailHDel != nil {
		return m.FailHDel
	}
	for _, f := range fields {
		delete(m.hashes[key], f)
	}
	return nil
}

func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = map[string]struct{}{}
		m.sets[key] = s
	}
	for _, member := range members {
		s[member] = struct{}{}
	}
	return nil
}

func (m *Memory) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSRem != nil {
		return m.FailSRem
	}
	for _, member := range members {
		delete(m.sets[key], member)
	}
	return nil
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (m *Memory) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSetNX != nil {
		return false, m.FailSetNX
	}
	if _, exists := m.strings[key]; exists {
		return false, nil
	}
	m.strings[key] = fmt.Sprint(value)
	return true, nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.hashes, key)
		delete(m.sets, key)
		delete(m.strings, key)
	}
	return nil
}

// Count returns the stored quantity for a user's sku, or 0.
func (m *Memory) Count(userID, skuID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := strconv.Atoi(m.hashes[m.CartKey(userID)][strconv.FormatInt(skuID, 10)])
	return n
}

// Selected reports whether the sku is in the user's selection set.
func (m *Memory) Selected(userID, skuID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sets[m.CartSelectedKey(userID)][strconv.FormatInt(skuID, 10)]
	return ok
}

func (m *Memory) hash(key string) map[string]string {
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	return h
}
