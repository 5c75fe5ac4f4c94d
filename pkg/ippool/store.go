package ippool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kuberdock/kuberdock/internal/apierr"
)

// Store persists IP pools and their per-pod IP bindings.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an ippool Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanPool(row pgx.Row) (Pool, error) {
	var p Pool
	var blockedRaw []byte
	if err := row.Scan(&p.Network, &p.IPv6, &blockedRaw, &p.NodeHostname); err != nil {
		return Pool{}, err
	}
	if len(blockedRaw) > 0 {
		if err := json.Unmarshal(blockedRaw, &p.BlockedList); err != nil {
			return Pool{}, fmt.Errorf("decoding blocked_list: %w", err)
		}
	}
	return p, nil
}

// List returns every configured pool.
func (s *Store) List(ctx context.Context) ([]Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT network, ipv6, blocked_list, node_hostname FROM ippool ORDER BY network`)
	if err != nil {
		return nil, fmt.Errorf("listing ip pools: %w", err)
	}
	defer rows.Close()

	var out []Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ip pool: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get fetches a pool by CIDR.
func (s *Store) Get(ctx context.Context, network string) (Pool, error) {
	p, err := scanPool(s.pool.QueryRow(ctx, `
		SELECT network, ipv6, blocked_list, node_hostname FROM ippool WHERE network = $1
	`, network))
	if errors.Is(err, pgx.ErrNoRows) {
		return Pool{}, apierr.NotFound("network", network)
	}
	if err != nil {
		return Pool{}, fmt.Errorf("fetching ip pool %s: %w", network, err)
	}
	return p, nil
}

// ListForNode returns every pool bound to the given node (fixed-pool mode).
func (s *Store) ListForNode(ctx context.Context, hostname string) ([]Pool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT network, ipv6, blocked_list, node_hostname FROM ippool WHERE node_hostname = $1 ORDER BY network
	`, hostname)
	if err != nil {
		return nil, fmt.Errorf("listing ip pools for node %s: %w", hostname, err)
	}
	defer rows.Close()

	var out []Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ip pool: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create inserts a new pool row.
func (s *Store) Create(ctx context.Context, p Pool) error {
	blockedRaw, err := json.Marshal(p.BlockedList)
	if err != nil {
		return fmt.Errorf("encoding blocked_list: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ippool (network, ipv6, blocked_list, node_hostname) VALUES ($1, $2, $3, $4)
	`, p.Network, p.IPv6, blockedRaw, p.NodeHostname)
	if err != nil {
		return fmt.Errorf("inserting ip pool %s: %w", p.Network, err)
	}
	return nil
}

// SetBlockedList overwrites a pool's blocked host list.
func (s *Store) SetBlockedList(ctx context.Context, network string, blocked []uint32) error {
	raw, err := json.Marshal(blocked)
	if err != nil {
		return fmt.Errorf("encoding blocked_list: %w", err)
	}
	_, err = s.pool.Exec(ctx, `UPDATE ippool SET blocked_list = $1 WHERE network = $2`, raw, network)
	if err != nil {
		return fmt.Errorf("updating blocked_list for %s: %w", network, err)
	}
	return nil
}

// SetNode rebinds a pool to a different node (or none, if hostname is nil).
func (s *Store) SetNode(ctx context.Context, network string, hostname *string) error {
	_, err := s.pool.Exec(ctx, `UPDATE ippool SET node_hostname = $1 WHERE network = $2`, hostname, network)
	if err != nil {
		return fmt.Errorf("rebinding pool %s: %w", network, err)
	}
	return nil
}

// Delete removes a pool row.
func (s *Store) Delete(ctx context.Context, network string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ippool WHERE network = $1`, network)
	if err != nil {
		return fmt.Errorf("deleting ip pool %s: %w", network, err)
	}
	return nil
}

// AllocatedIPs returns every host integer already bound to a pod on network.
func (s *Store) AllocatedIPs(ctx context.Context, network string) (map[uint32]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT pod_id, ip_address FROM podip WHERE network = $1`, network)
	if err != nil {
		return nil, fmt.Errorf("listing allocated ips for %s: %w", network, err)
	}
	defer rows.Close()

	out := make(map[uint32]string)
	for rows.Next() {
		var podID string
		var ip int64
		if err := rows.Scan(&podID, &ip); err != nil {
			return nil, fmt.Errorf("scanning podip: %w", err)
		}
		out[uint32(ip)] = podID
	}
	return out, rows.Err()
}

// CountPodIPs reports how many PodIP rows reference network — used by
// Service.Delete to refuse deleting a pool still in use. SetNode does not
// consult it.
func (s *Store) CountPodIPs(ctx context.Context, network string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM podip WHERE network = $1`, network).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting podip rows for %s: %w", network, err)
	}
	return n, nil
}

// GetPodIP returns the IP bound to podID, if any.
func (s *Store) GetPodIP(ctx context.Context, podID string) (network string, ip uint32, ok bool, err error) {
	var ipInt int64
	err = s.pool.QueryRow(ctx, `SELECT network, ip_address FROM podip WHERE pod_id = $1`, podID).Scan(&network, &ipInt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("fetching podip for %s: %w", podID, err)
	}
	return network, uint32(ipInt), true, nil
}

// AllocateInTx locks the pool row FOR UPDATE, picks the first free host
// (optionally preferring preferredIP), inserts the PodIP binding, and
// returns the chosen host — all inside one transaction so concurrent
// callers serialize on the pool row.
func (s *Store) AllocateInTx(ctx context.Context, network, podID string, preferredIP uint32, hasPreferred bool) (uint32, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning ip allocation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := scanPool(tx.QueryRow(ctx, `
		SELECT network, ipv6, blocked_list, node_hostname FROM ippool WHERE network = $1 FOR UPDATE
	`, network))
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apierr.NotFound("network", network)
	}
	if err != nil {
		return 0, fmt.Errorf("locking ip pool %s: %w", network, err)
	}

	cidr, err := p.net()
	if err != nil {
		return 0, err
	}

	rows, err := tx.Query(ctx, `SELECT ip_address FROM podip WHERE network = $1`, network)
	if err != nil {
		return 0, fmt.Errorf("listing allocated ips: %w", err)
	}
	taken := map[uint32]struct{}{}
	for rows.Next() {
		var ip int64
		if err := rows.Scan(&ip); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning allocated ip: %w", err)
		}
		taken[uint32(ip)] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating allocated ips: %w", err)
	}
	blocked := p.BlockedSet()

	chosen, ok := firstFree(cidr, taken, blocked, preferredIP, hasPreferred)
	if !ok {
		return 0, apierr.New(apierr.KindNoFreeIPs, "no free ip addresses in "+network)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO podip (pod_id, network, ip_address) VALUES ($1, $2, $3)
	`, podID, network, int64(chosen)); err != nil {
		return 0, fmt.Errorf("inserting podip: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing ip allocation tx: %w", err)
	}
	return chosen, nil
}

// firstFree mirrors get_free_host's preferred-ip-then-scan order: if a
// preferred ip is given and it's free, it wins outright; otherwise pages
// are scanned in order and the first free host of the first non-empty
// page is returned.
func firstFree(network *net.IPNet, taken, blocked map[uint32]struct{}, preferred uint32, hasPreferred bool) (uint32, bool) {
	if hasPreferred && ipAvailable(network, taken, blocked, preferred) {
		return preferred, true
	}
	for page := 1; page <= PageCount(network); page++ {
		for _, ip := range HostsPage(network, page) {
			if ipAvailable(network, taken, blocked, ip) {
				return ip, true
			}
		}
	}
	return 0, false
}

func ipAvailable(network *net.IPNet, taken, blocked map[uint32]struct{}, ip uint32) bool {
	if !network.Contains(intToIP(ip)) {
		return false
	}
	if _, busy := taken[ip]; busy {
		return false
	}
	if _, blockedIP := blocked[ip]; blockedIP {
		return false
	}
	return true
}

// DeletePodIP releases the IP bound to podID.
func (s *Store) DeletePodIP(ctx context.Context, podID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM podip WHERE pod_id = $1`, podID)
	if err != nil {
		return fmt.Errorf("releasing podip for %s: %w", podID, err)
	}
	return nil
}

// DeletePodIPByAddress releases a specific allocated IP (used by unbind).
func (s *Store) DeletePodIPByAddress(ctx context.Context, network string, ip uint32) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM podip WHERE network = $1 AND ip_address = $2`, network, int64(ip))
	if err != nil {
		return fmt.Errorf("releasing podip %d on %s: %w", ip, network, err)
	}
	return nil
}
