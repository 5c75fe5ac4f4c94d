package pd

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kuberdock/kuberdock/internal/apierr"
)

// Store persists PersistentDisk rows.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func driveID(driveName string) string {
	sum := md5.Sum([]byte(driveName))
	return hex.EncodeToString(sum[:])
}

const diskColumns = "id, drive_name, name, owner_id, size, pod_id, node_id, state"

func scanDisk(row pgx.Row) (Disk, error) {
	var d Disk
	var state int
	if err := row.Scan(&d.ID, &d.DriveName, &d.Name, &d.OwnerID, &d.Size, &d.PodID, &d.NodeID, &state); err != nil {
		return Disk{}, err
	}
	d.State = State(state)
	return d, nil
}

// GetByID fetches a disk by its id.
func (s *Store) GetByID(ctx context.Context, id string) (Disk, error) {
	d, err := scanDisk(s.pool.QueryRow(ctx, `SELECT `+diskColumns+` FROM persistent_disk WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Disk{}, apierr.NotFound("persistent disk", id)
	}
	if err != nil {
		return Disk{}, fmt.Errorf("fetching pd %s: %w", id, err)
	}
	return d, nil
}

// GetByNameOwner fetches the non-DELETED disk for (name, ownerID), if any.
func (s *Store) GetByNameOwner(ctx context.Context, name string, ownerID int) (Disk, bool, error) {
	d, err := scanDisk(s.pool.QueryRow(ctx, `
		SELECT `+diskColumns+` FROM persistent_disk
		WHERE name = $1 AND owner_id = $2 AND state != $3
	`, name, ownerID, ToDelete))
	if errors.Is(err, pgx.ErrNoRows) {
		return Disk{}, false, nil
	}
	if err != nil {
		return Disk{}, false, fmt.Errorf("fetching pd by name/owner: %w", err)
	}
	return d, true, nil
}

// Create inserts a new PENDING disk row. Fails with a Conflict error if a
// non-DELETED disk already owns (name, ownerID).
func (s *Store) Create(ctx context.Context, driveName, name string, ownerID, sizeGB int) (Disk, error) {
	if _, exists, err := s.GetByNameOwner(ctx, name, ownerID); err != nil {
		return Disk{}, err
	} else if exists {
		return Disk{}, apierr.New(apierr.KindConflict, fmt.Sprintf("persistent disk %q already exists", name))
	}

	d := Disk{
		ID:        driveID(driveName),
		DriveName: driveName,
		Name:      name,
		OwnerID:   ownerID,
		Size:      sizeGB,
		State:     Pending,
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO persistent_disk (id, drive_name, name, owner_id, size, state)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.DriveName, d.Name, d.OwnerID, d.Size, int(d.State))
	if err != nil {
		return Disk{}, fmt.Errorf("inserting pd: %w", err)
	}
	return d, nil
}

// Delete hard-deletes a row — used to roll back a failed physical create
// and by GC once a TODELETE disk's physical drive is gone, never directly
// for user-initiated deletion (see MarkToDelete).
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM persistent_disk WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting pd %s: %w", id, err)
	}
	return nil
}

// SetState updates a disk's lifecycle state.
func (s *Store) SetState(ctx context.Context, id string, state State) error {
	_, err := s.pool.Exec(ctx, `UPDATE persistent_disk SET state = $1 WHERE id = $2`, int(state), id)
	if err != nil {
		return fmt.Errorf("setting pd %s state: %w", id, err)
	}
	return nil
}

// Attach binds a disk to a pod iff it is currently unbound.
func (s *Store) Attach(ctx context.Context, id, podID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE persistent_disk SET pod_id = $1 WHERE id = $2 AND pod_id IS NULL
	`, podID, id)
	if err != nil {
		return fmt.Errorf("attaching pd %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apierr.New(apierr.KindConflict, "persistent disk is already in use")
	}
	return nil
}

// DetachAll clears pod_id on every disk bound to podID.
func (s *Store) DetachAll(ctx context.Context, podID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE persistent_disk SET pod_id = NULL WHERE pod_id = $1`, podID)
	if err != nil {
		return fmt.Errorf("detaching pd for pod %s: %w", podID, err)
	}
	return nil
}

// Take locks every row named in driveNames with SELECT ... FOR UPDATE and
// binds the free ones to podID only if none of them are bound to another
// pod — transactional all-or-nothing, mirroring the original's
// PersistentDisk.take.
func (s *Store) Take(ctx context.Context, podID string, driveNames []string) (taken []string, takenByAnother []string, err error) {
	if len(driveNames) == 0 {
		return nil, nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning take tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, drive_name, pod_id FROM persistent_disk
		WHERE drive_name = ANY($1)
		FOR UPDATE
	`, driveNames)
	if err != nil {
		return nil, nil, fmt.Errorf("locking pd rows: %w", err)
	}

	type row struct {
		id, drive string
		podID     *string
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.drive, &r.podID); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scanning locked pd row: %w", err)
		}
		all = append(all, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating locked pd rows: %w", err)
	}

	var free []row
	for _, r := range all {
		if r.podID == nil {
			free = append(free, r)
		} else if *r.podID != podID {
			takenByAnother = append(takenByAnother, r.drive)
		}
	}

	if len(takenByAnother) == 0 {
		for _, r := range free {
			if _, err := tx.Exec(ctx, `UPDATE persistent_disk SET pod_id = $1 WHERE id = $2`, podID, r.id); err != nil {
				return nil, nil, fmt.Errorf("binding pd %s: %w", r.id, err)
			}
			taken = append(taken, r.drive)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("committing take tx: %w", err)
	}
	return taken, takenByAnother, nil
}

// IncrementDriveName returns "<base>_<n>" with n one past the highest
// numeric suffix already used by a non-Deleted row for the same (name,
// owner), for a disk name that's being recreated while the old physical
// drive is still pending deletion. Gaps below that highest suffix are not
// reused.
func (s *Store) IncrementDriveName(ctx context.Context, base, name string, ownerID int) (string, error) {
	escaped := strings.NewReplacer("\\", "\\\\", "_", "\\_", "%", "\\%").Replace(base)
	rows, err := s.pool.Query(ctx, `
		SELECT drive_name FROM persistent_disk
		WHERE drive_name LIKE $1 || '\_%' AND name = $2 AND owner_id = $3 AND state != $4
	`, escaped, name, ownerID, Deleted)
	if err != nil {
		return "", fmt.Errorf("scanning existing drive names: %w", err)
	}
	defer rows.Close()

	maxN := 0
	for rows.Next() {
		var existing string
		if err := rows.Scan(&existing); err != nil {
			return "", fmt.Errorf("scanning drive name: %w", err)
		}
		parts := strings.Split(existing, "_")
		if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil && n > maxN {
			maxN = n
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating drive names: %w", err)
	}
	return fmt.Sprintf("%s_%d", base, maxN+1), nil
}

// ListToDelete returns every disk awaiting physical deletion.
func (s *Store) ListToDelete(ctx context.Context) ([]Disk, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+diskColumns+` FROM persistent_disk WHERE state = $1`, ToDelete)
	if err != nil {
		return nil, fmt.Errorf("listing todelete pds: %w", err)
	}
	defer rows.Close()

	var out []Disk
	for rows.Next() {
		d, err := scanDisk(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning todelete pd: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// BindToNode pins every disk bound to podID and not yet node-bound to
// nodeID (used by node-local storage).
func (s *Store) BindToNode(ctx context.Context, podID string, nodeID int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE persistent_disk SET node_id = $1 WHERE pod_id = $2 AND node_id IS NULL
	`, nodeID, podID)
	if err != nil {
		return fmt.Errorf("binding pd to node %d: %w", nodeID, err)
	}
	return nil
}

// ListByNodeID returns every disk bound to the given node.
func (s *Store) ListByNodeID(ctx context.Context, nodeID int) ([]Disk, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+diskColumns+` FROM persistent_disk WHERE node_id = $1`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("listing pd by node %d: %w", nodeID, err)
	}
	defer rows.Close()

	var out []Disk
	for rows.Next() {
		d, err := scanDisk(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pd for node: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
