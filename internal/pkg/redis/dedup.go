package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "miracore:msgid:"

// DedupCache remembers inbound MsgIds for a TTL so a replayed envelope
// is acknowledged without re-running its handler.
type DedupCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDedupCache(client *redis.Client, ttl time.Duration) *DedupCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &DedupCache{client: client, ttl: ttl}
}

// Seen atomically marks msgID and reports whether it was already
// marked. The SetNX doubles as the mark and the check so two racing
// duplicates cannot both pass.
func (d *DedupCache) Seen(ctx context.Context, msgID string) (bool, error) {
	if d == nil || d.client == nil || msgID == "" {
		return false, nil
	}
	set, err := d.client.SetNX(ctx, dedupKeyPrefix+msgID, 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}
