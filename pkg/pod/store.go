package pod

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kuberdock/kuberdock/internal/apierr"
)

// Store persists Pod rows.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const podColumns = `id, sid, name, owner_id, kube_type, config, status, unpaid,
	node_hostname, public_ip, credentials_username, credentials_hash,
	post_description, template_id, template_version, plan_name`

func scanPod(row pgx.Row) (Pod, error) {
	var p Pod
	var status string
	var credUser, credHash *string
	if err := row.Scan(
		&p.ID, &p.SID, &p.Name, &p.OwnerID, &p.KubeType, &p.ConfigJSON, &status, &p.Unpaid,
		&p.NodeHostname, &p.PublicIP, &credUser, &credHash,
		&p.PostDescription, &p.TemplateID, &p.TemplateVersion, &p.PlanName,
	); err != nil {
		return Pod{}, err
	}
	p.Status = Status(status)
	if credUser != nil && credHash != nil {
		p.Credentials = &Credentials{Username: *credUser, PasswordHash: *credHash}
	}
	return p, nil
}

func newID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	buf[6] = (buf[6] & 0x0f) | 0x40
	buf[8] = (buf[8] & 0x3f) | 0x80
	hexStr := hex.EncodeToString(buf)
	return fmt.Sprintf("%s-%s-%s-%s-%s", hexStr[0:8], hexStr[8:12], hexStr[12:16], hexStr[16:20], hexStr[20:32]), nil
}

// Create inserts a new pod row with freshly generated id and sid (distinct
// random UUIDs), in StatusStopped, matching Pod.create's default status.
func (s *Store) Create(ctx context.Context, ownerID int, name string, kubeType int, configJSON []byte) (Pod, error) {
	id, err := newID()
	if err != nil {
		return Pod{}, fmt.Errorf("generating pod id: %w", err)
	}
	sid, err := newID()
	if err != nil {
		return Pod{}, fmt.Errorf("generating pod sid: %w", err)
	}

	p := Pod{ID: id, SID: sid, Name: name, OwnerID: ownerID, KubeType: kubeType, ConfigJSON: configJSON, Status: StatusStopped}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pod (id, sid, name, owner_id, kube_type, config, status, unpaid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)
	`, p.ID, p.SID, p.Name, p.OwnerID, p.KubeType, p.ConfigJSON, string(p.Status))
	if err != nil {
		return Pod{}, fmt.Errorf("inserting pod: %w", err)
	}
	return p, nil
}

// GetByID fetches a pod by id.
func (s *Store) GetByID(ctx context.Context, id string) (Pod, error) {
	p, err := scanPod(s.pool.QueryRow(ctx, `SELECT `+podColumns+` FROM pod WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Pod{}, apierr.NotFound("pod", id)
	}
	if err != nil {
		return Pod{}, fmt.Errorf("fetching pod %s: %w", id, err)
	}
	return p, nil
}

// GetByOwnerName fetches a non-deleted pod by (owner, name), the
// per-owner-unique name invariant.
func (s *Store) GetByOwnerName(ctx context.Context, ownerID int, name string) (Pod, bool, error) {
	p, err := scanPod(s.pool.QueryRow(ctx, `
		SELECT `+podColumns+` FROM pod WHERE owner_id = $1 AND name = $2 AND status != $3
	`, ownerID, name, string(StatusDeleted)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Pod{}, false, nil
	}
	if err != nil {
		return Pod{}, false, fmt.Errorf("fetching pod by owner/name: %w", err)
	}
	return p, true, nil
}

// ListByOwner returns every non-deleted pod owned by ownerID.
func (s *Store) ListByOwner(ctx context.Context, ownerID int) ([]Pod, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+podColumns+` FROM pod WHERE owner_id = $1 AND status != $2 ORDER BY name
	`, ownerID, string(StatusDeleted))
	if err != nil {
		return nil, fmt.Errorf("listing pods for owner %d: %w", ownerID, err)
	}
	defer rows.Close()

	var out []Pod
	for rows.Next() {
		p, err := scanPod(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pod: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetStatus updates a pod's status.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	_, err := s.pool.Exec(ctx, `UPDATE pod SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("setting pod %s status: %w", id, err)
	}
	return nil
}

// SetConfig overwrites a pod's stored configuration blob (used by
// redeploy's applyEdit and by resize's recomputed kube counts).
func (s *Store) SetConfig(ctx context.Context, id string, configJSON []byte) error {
	_, err := s.pool.Exec(ctx, `UPDATE pod SET config = $1 WHERE id = $2`, configJSON, id)
	if err != nil {
		return fmt.Errorf("setting pod %s config: %w", id, err)
	}
	return nil
}

// SetMeta applies a "set" command's in-place metadata change.
func (s *Store) SetMeta(ctx context.Context, id string, name *string, postDescription *string) error {
	if name != nil {
		if _, err := s.pool.Exec(ctx, `UPDATE pod SET name = $1 WHERE id = $2`, *name, id); err != nil {
			return fmt.Errorf("renaming pod %s: %w", id, err)
		}
	}
	if postDescription != nil {
		if _, err := s.pool.Exec(ctx, `UPDATE pod SET post_description = $1 WHERE id = $2`, *postDescription, id); err != nil {
			return fmt.Errorf("setting pod %s post_description: %w", id, err)
		}
	}
	return nil
}

// SetUnpaid flips the unpaid flag.
func (s *Store) SetUnpaid(ctx context.Context, id string, unpaid bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE pod SET unpaid = $1 WHERE id = $2`, unpaid, id)
	if err != nil {
		return fmt.Errorf("setting pod %s unpaid: %w", id, err)
	}
	return nil
}

// SetNodeHostname pins (or unpins) a pod to a node — internal change_config
// command.
func (s *Store) SetNodeHostname(ctx context.Context, id string, hostname *string) error {
	_, err := s.pool.Exec(ctx, `UPDATE pod SET node_hostname = $1 WHERE id = $2`, hostname, id)
	if err != nil {
		return fmt.Errorf("setting pod %s node: %w", id, err)
	}
	return nil
}

// SetPublicIP binds (or releases) a pod's public IP — internal
// change_config command.
func (s *Store) SetPublicIP(ctx context.Context, id string, ip *string) error {
	_, err := s.pool.Exec(ctx, `UPDATE pod SET public_ip = $1 WHERE id = $2`, ip, id)
	if err != nil {
		return fmt.Errorf("setting pod %s public ip: %w", id, err)
	}
	return nil
}

// SetCredentials stores the direct-access login for a pod.
func (s *Store) SetCredentials(ctx context.Context, id string, c *Credentials) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pod SET credentials_username = $1, credentials_hash = $2 WHERE id = $3
	`, c.Username, c.PasswordHash, id)
	if err != nil {
		return fmt.Errorf("setting pod %s credentials: %w", id, err)
	}
	return nil
}

// Tombstone renames the pod with a random suffix and marks it deleted,
// per spec.md's "salted with a random suffix, never hard-deleted" rule.
func (s *Store) Tombstone(ctx context.Context, id string) error {
	suffix, err := newID()
	if err != nil {
		return fmt.Errorf("generating tombstone suffix: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE pod SET name = name || '_' || $1, status = $2 WHERE id = $3
	`, suffix[:8], string(StatusDeleted), id)
	if err != nil {
		return fmt.Errorf("tombstoning pod %s: %w", id, err)
	}
	return nil
}

// SumKubesForOwner sums the kube count across every non-deleted pod owned
// by ownerID, for the per-package quota check, excluding excludePodID (the
// pod currently being resized, so its own prior count isn't double-counted).
func (s *Store) SumKubesForOwner(ctx context.Context, ownerID int, excludePodID string) (int, error) {
	pods, err := s.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, p := range pods {
		if p.ID == excludePodID {
			continue
		}
		spec, err := p.Spec()
		if err != nil {
			continue
		}
		total += spec.KubeCount()
	}
	return total, nil
}
