package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ContainerState is an immutable timeline row: one (pod, container, docker
// container) run, open-ended until finishedAt is known.
type ContainerState struct {
	PodID         string
	ContainerName string
	DockerID      string
	Kubes         int
	StartTime     time.Time
	EndTime       *time.Time
}

type stateStore struct {
	pool *pgxpool.Pool
}

func newStateStore(pool *pgxpool.Pool) *stateStore {
	return &stateStore{pool: pool}
}

// find returns the row matching the exact identity tuple the pods watcher
// derives from a containerStatuses entry, or ok=false if none exists yet.
func (s *stateStore) find(ctx context.Context, cs ContainerState) (id int64, ok bool, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT id FROM container_state
		WHERE pod_id = $1 AND container_name = $2 AND docker_id = $3
			AND kubes = $4 AND start_time = $5
	`, cs.PodID, cs.ContainerName, cs.DockerID, cs.Kubes, cs.StartTime).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("finding container state row: %w", err)
	}
	return id, true, nil
}

// upsert inserts cs, or if an identical (pod, container, docker-id, kubes,
// start) row already exists, updates its end_time — the idempotence the
// event reconciler's at-least-once delivery requires.
func (s *stateStore) upsert(ctx context.Context, cs ContainerState) error {
	id, ok, err := s.find(ctx, cs)
	if err != nil {
		return err
	}
	if ok {
		_, err := s.pool.Exec(ctx, `UPDATE container_state SET end_time = $1 WHERE id = $2`, cs.EndTime, id)
		if err != nil {
			return fmt.Errorf("updating container state row %d: %w", id, err)
		}
		return nil
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO container_state (pod_id, container_name, docker_id, kubes, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, cs.PodID, cs.ContainerName, cs.DockerID, cs.Kubes, cs.StartTime, cs.EndTime)
	if err != nil {
		return fmt.Errorf("inserting container state row: %w", err)
	}
	return nil
}

// closeOverlapping looks for the at-most-one open row that should have
// ended when start began — a prior run of the same (pod, container) that is
// still open or whose recorded end is after start. Exactly one match closes
// it at start; more than one means the timeline is already corrupt and the
// caller should schedule fixPodsTimelineHeavy instead of guessing which to
// close.
func (s *stateStore) closeOverlapping(ctx context.Context, podID, containerName string, start time.Time) (matched int, err error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM container_state
		WHERE pod_id = $1 AND container_name = $2 AND start_time < $3
			AND (end_time IS NULL OR end_time > $3)
	`, podID, containerName, start)
	if err != nil {
		return 0, fmt.Errorf("finding overlapping container state rows: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning overlapping container state row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(ids) != 1 {
		return len(ids), nil
	}
	if _, err := s.pool.Exec(ctx, `UPDATE container_state SET end_time = $1 WHERE id = $2`, start, ids[0]); err != nil {
		return 0, fmt.Errorf("closing overlapping container state row %d: %w", ids[0], err)
	}
	return 1, nil
}

// fixPodsTimelineHeavy repairs (pod, container) groups left with more than
// one open row by closing every open row except the latest-started one at
// the start time of the row immediately after it. It is the Go counterpart
// of the original's celery task of the same name, run inline in a goroutine
// rather than queued, since this deployment has no task broker.
func (s *stateStore) fixPodsTimelineHeavy(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		WITH ranked AS (
			SELECT id, start_time,
				LEAD(start_time) OVER (PARTITION BY pod_id, container_name ORDER BY start_time) AS next_start,
				ROW_NUMBER() OVER (PARTITION BY pod_id, container_name ORDER BY start_time DESC) AS rank_desc
			FROM container_state
			WHERE end_time IS NULL
		)
		UPDATE container_state cs
		SET end_time = ranked.next_start
		FROM ranked
		WHERE cs.id = ranked.id AND ranked.rank_desc > 1 AND ranked.next_start IS NOT NULL
	`)
	if err != nil {
		return fmt.Errorf("fixing pods timeline: %w", err)
	}
	return nil
}
