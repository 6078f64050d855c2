package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

type cachedOverride struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Granted  bool   `json:"is_granted"`
}

// CachedOverrideStore caches override rows in Redis with a short TTL so the
// resolver does not hit postgres on every guard evaluation. Concurrent cache
// misses for the same role collapse into one backing query.
type CachedOverrideStore struct {
	next   OverrideStore
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

var _ OverrideStore = (*CachedOverrideStore)(nil)

// NewCachedOverrideStore wraps next with a Redis cache.
func NewCachedOverrideStore(next OverrideStore, client *redis.Client, ttl time.Duration) *CachedOverrideStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedOverrideStore{next: next, client: client, ttl: ttl}
}

// Overrides returns cached rows when present, otherwise loads from the
// backing store and populates the cache. Redis being down degrades to a
// plain pass-through.
func (s *CachedOverrideStore) Overrides(ctx context.Context, role Role) ([]Override, error) {
	if s.client == nil {
		return s.next.Overrides(ctx, role)
	}
	key := "rbac:overrides:" + string(role)
	payload, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		return decodeOverrides(payload)
	}
	if !errors.Is(err, redis.Nil) {
		return s.next.Overrides(ctx, role)
	}
	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		rows, err := s.next.Overrides(ctx, role)
		if err != nil {
			return nil, err
		}
		raw, err := encodeOverrides(rows)
		if err != nil {
			return nil, err
		}
		if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
			return rows, nil
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	rows, _ := value.([]Override)
	return rows, nil
}

// Invalidate drops the cached rows for a role after an override change.
func (s *CachedOverrideStore) Invalidate(ctx context.Context, role Role) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, "rbac:overrides:"+string(role)).Err()
}

func encodeOverrides(rows []Override) ([]byte, error) {
	wire := make([]cachedOverride, 0, len(rows))
	for _, o := range rows {
		wire = append(wire, cachedOverride{Resource: o.Resource, Action: o.Action, Granted: o.Granted})
	}
	return json.Marshal(wire)
}

func decodeOverrides(payload []byte) ([]Override, error) {
	var wire []cachedOverride
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}
	rows := make([]Override, 0, len(wire))
	for _, o := range wire {
		rows = append(rows, Override{
			Capability: Capability{Resource: o.Resource, Action: o.Action},
			Granted:    o.Granted,
		})
	}
	return rows, nil
}
