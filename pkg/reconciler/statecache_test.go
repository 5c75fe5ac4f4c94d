package reconciler

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestChangedFirstSightNeverNotifies(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	isChange, err := changed(ctx, rdb, "pod_state_a", `["Running",true]`, false)
	if err != nil {
		t.Fatalf("changed() error: %v", err)
	}
	if isChange {
		t.Error("changed() = true on first sight, want false")
	}

	got, err := rdb.Get(ctx, "pod_state_a").Result()
	if err != nil || got != `["Running",true]` {
		t.Errorf("cache after first sight = %q, %v, want the seeded value with no error", got, err)
	}
}

func TestChangedSameValueNoNotify(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	if _, err := changed(ctx, rdb, "pod_state_a", `["Running",true]`, false); err != nil {
		t.Fatalf("changed() error: %v", err)
	}
	isChange, err := changed(ctx, rdb, "pod_state_a", `["Running",true]`, false)
	if err != nil {
		t.Fatalf("changed() error: %v", err)
	}
	if isChange {
		t.Error("changed() = true for an unchanged state vector, want false")
	}
}

func TestChangedDifferentValueNotifies(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	if _, err := changed(ctx, rdb, "pod_state_a", `["Pending",false]`, false); err != nil {
		t.Fatalf("changed() error: %v", err)
	}
	isChange, err := changed(ctx, rdb, "pod_state_a", `["Running",true]`, false)
	if err != nil {
		t.Fatalf("changed() error: %v", err)
	}
	if !isChange {
		t.Error("changed() = false for a differing state vector, want true")
	}

	got, _ := rdb.Get(ctx, "pod_state_a").Result()
	if got != `["Running",true]` {
		t.Errorf("cache after change = %q, want the new value", got)
	}
}

func TestChangedDeleteAlwaysNotifiesAfterFirstSight(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	if _, err := changed(ctx, rdb, "pod_state_a", `["Running",true]`, false); err != nil {
		t.Fatalf("changed() error: %v", err)
	}
	isChange, err := changed(ctx, rdb, "pod_state_a", `["Running",true]`, true)
	if err != nil {
		t.Fatalf("changed() error: %v", err)
	}
	if !isChange {
		t.Error("changed() = false on delete, want true")
	}

	got, _ := rdb.Get(ctx, "pod_state_a").Result()
	if got != "DELETED" {
		t.Errorf("cache after delete = %q, want DELETED", got)
	}
}

func TestChangedDeleteOnFirstSightOnlySeeds(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	isChange, err := changed(ctx, rdb, "pod_state_a", `["Running",true]`, true)
	if err != nil {
		t.Fatalf("changed() error: %v", err)
	}
	if isChange {
		t.Error("changed() = true for a delete on first sight, want false")
	}
}
