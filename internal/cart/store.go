package cart

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/multierr"
)

// KeyValueStore is the slice of the redis client the server-side cart uses.
type KeyValueStore interface {
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HSet(ctx context.Context, key, field string, value any) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	CartKey(userID int64) string
	CartSelectedKey(userID int64) string
	CartMergeKey(tokenID string) string
}

// userStore keeps quantities in a per-user hash (sku -> count) and the
// selection in a separate per-user set. The two writes are not atomic; a
// selected id without a hash field is ignored on read and disappears on the
// next selection write.
type userStore struct {
	kv KeyValueStore
}

func (s userStore) entries(ctx context.Context, userID int64) (map[int64]Entry, error) {
	counts, err := s.kv.HGetAll(ctx, s.kv.CartKey(userID))
	if err != nil {
		return nil, err
	}
	selected, err := s.kv.SMembers(ctx, s.kv.CartSelectedKey(userID))
	if err != nil {
		return nil, err
	}
	selectedSet := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		selectedSet[id] = struct{}{}
	}

	out := make(map[int64]Entry, len(counts))
	for field, raw := range counts {
		skuID, err := strconv.ParseInt(field, 10, 64)
		if err != nil || skuID <= 0 {
			continue
		}
		count, err := strconv.Atoi(raw)
		if err != nil || count <= 0 {
			continue
		}
		_, isSelected := selectedSet[field]
		out[skuID] = Entry{SKUID: skuID, Count: count, Selected: isSelected}
	}
	return out, nil
}

// increment adds count to the line and clamps the result to MaxEntryCount.
func (s userStore) increment(ctx context.Context, userID, skuID int64, count int, selected bool) error {
	field := skuField(skuID)
	total, err := s.kv.HIncrBy(ctx, s.kv.CartKey(userID), field, int64(count))
	if err != nil {
		return err
	}
	if total > MaxEntryCount {
		if err := s.kv.HSet(ctx, s.kv.CartKey(userID), field, MaxEntryCount); err != nil {
			return err
		}
	}
	return s.mark(ctx, userID, field, selected)
}

func (s userStore) set(ctx context.Context, userID int64, e Entry) error {
	field := skuField(e.SKUID)
	if err := s.kv.HSet(ctx, s.kv.CartKey(userID), field, e.Count); err != nil {
		return err
	}
	return s.mark(ctx, userID, field, e.Selected)
}

func (s userStore) remove(ctx context.Context, userID int64, skuIDs ...int64) error {
	fields := make([]string, 0, len(skuIDs))
	for _, id := range skuIDs {
		fields = append(fields, skuField(id))
	}
	var err error
	err = multierr.Append(err, s.kv.HDel(ctx, s.kv.CartKey(userID), fields...))
	err = multierr.Append(err, s.kv.SRem(ctx, s.kv.CartSelectedKey(userID), fields...))
	return err
}

func (s userStore) selectAll(ctx context.Context, userID int64, selected bool) error {
	if !selected {
		return s.kv.Del(ctx, s.kv.CartSelectedKey(userID))
	}
	counts, err := s.kv.HGetAll(ctx, s.kv.CartKey(userID))
	if err != nil {
		return err
	}
	fields := make([]string, 0, len(counts))
	for field := range counts {
		fields = append(fields, field)
	}
	return s.kv.SAdd(ctx, s.kv.CartSelectedKey(userID), fields...)
}

func (s userStore) mark(ctx context.Context, userID int64, field string, selected bool) error {
	if selected {
		return s.kv.SAdd(ctx, s.kv.CartSelectedKey(userID), field)
	}
	return s.kv.SRem(ctx, s.kv.CartSelectedKey(userID), field)
}

func skuField(skuID int64) string {
	return strconv.FormatInt(skuID, 10)
}
