package reconciler

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// changed reports whether a notification should be published for an object
// whose derived state vector is now value (or "DELETED" if deleted is
// true), against whatever was last cached under key. The first observation
// of a key is never a change — it only seeds the cache — matching
// send_pod_status_update/process_nodes_event's "if not prev_state: just
// cache it" first-sight behavior.
func changed(ctx context.Context, rdb *redis.Client, key, value string, deleted bool) (bool, error) {
	prev, err := rdb.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}

	stored := value
	if deleted {
		stored = "DELETED"
	}

	if errors.Is(err, redis.Nil) {
		return false, rdb.Set(ctx, key, stored, 0).Err()
	}

	if prev == value && !deleted {
		return false, nil
	}
	return true, rdb.Set(ctx, key, stored, 0).Err()
}
