package ippool

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/kuberdock/kuberdock/internal/apierr"
	"github.com/kuberdock/kuberdock/pkg/k8s"
)

const freeIPCountAnnotation = "kuberdock-free-public-ip-count"

// Service implements the IP-Pool Manager's public operations.
type Service struct {
	store     *Store
	k8sClient *k8s.Client
	logger    *slog.Logger
	mode      Mode
}

// NewService creates an IP-Pool Manager service. mode is fixed at process
// start from configuration, per spec.md §4.C.
func NewService(store *Store, k8sClient *k8s.Client, logger *slog.Logger, mode Mode) *Service {
	return &Service{store: store, k8sClient: k8sClient, logger: logger, mode: mode}
}

// Mode reports the configured allocation mode.
func (s *Service) Mode() Mode { return s.mode }

// Create validates that network doesn't overlap any existing pool, inserts
// it, applies the parsed autoblock list, and — in fixed mode with a node —
// maintains the node's free-public-ip-count annotation.
func (s *Service) Create(ctx context.Context, network string, ipv6 bool, nodeHostname *string, autoblock string) (Pool, error) {
	cidr, err := ParseCIDR(network)
	if err != nil {
		return Pool{}, apierr.Wrap(apierr.KindValidationError, "invalid network", err)
	}

	existing, err := s.store.List(ctx)
	if err != nil {
		return Pool{}, err
	}
	for _, p := range existing {
		if p.Network == network {
			return Pool{}, apierr.New(apierr.KindConflict, fmt.Sprintf("network %s already exists", network))
		}
		existingCIDR, err := ParseCIDR(p.Network)
		if err != nil {
			continue
		}
		if Overlaps(cidr, existingCIDR) {
			return Pool{}, apierr.New(apierr.KindConflict, fmt.Sprintf("new network %s overlaps %s", network, p.Network))
		}
	}

	var blocked []uint32
	if autoblock != "" {
		set, err := ParseAutoblock(autoblock)
		if err != nil {
			return Pool{}, err
		}
		for ip := range set {
			blocked = append(blocked, ip)
		}
	}

	p := Pool{Network: network, IPv6: ipv6, NodeHostname: nodeHostname, BlockedList: blocked}
	if err := s.store.Create(ctx, p); err != nil {
		return Pool{}, err
	}

	if nodeHostname != nil && s.mode == ModeFixed {
		free, err := s.freeHostCount(ctx, p)
		if err != nil {
			s.logger.Warn("ippool: failed to compute free host count after create", "node", *nodeHostname, "error", err)
		} else if err := s.adjustNodeFreeIPCount(ctx, *nodeHostname, free); err != nil {
			s.logger.Warn("ippool: failed to sync node free-ip annotation after create", "node", *nodeHostname, "error", err)
		}
	}

	return p, nil
}

// Block adds ip to the pool's blocked set. Blocking an allocated ip is a
// no-op on the allocation itself.
func (s *Service) Block(ctx context.Context, network string, ip uint32) error {
	p, err := s.store.Get(ctx, network)
	if err != nil {
		return err
	}
	set := p.BlockedSet()
	if _, already := set[ip]; already {
		return apierr.New(apierr.KindConflict, "ip is already blocked")
	}
	set[ip] = struct{}{}
	if err := s.store.SetBlockedList(ctx, network, setToSlice(set)); err != nil {
		return err
	}
	return s.adjustFreeIPCount(ctx, p, -1)
}

// Unblock removes ip from the pool's blocked set.
func (s *Service) Unblock(ctx context.Context, network string, ip uint32) error {
	p, err := s.store.Get(ctx, network)
	if err != nil {
		return err
	}
	set := p.BlockedSet()
	if _, blocked := set[ip]; !blocked {
		return apierr.New(apierr.KindConflict, "ip is already unblocked")
	}
	delete(set, ip)
	if err := s.store.SetBlockedList(ctx, network, setToSlice(set)); err != nil {
		return err
	}
	return s.adjustFreeIPCount(ctx, p, 1)
}

// Unbind releases a previously assigned ip, without touching the blocked
// set.
func (s *Service) Unbind(ctx context.Context, network string, ip uint32) error {
	if err := s.store.DeletePodIPByAddress(ctx, network, ip); err != nil {
		return err
	}
	p, err := s.store.Get(ctx, network)
	if err != nil {
		return err
	}
	return s.adjustFreeIPCount(ctx, p, 1)
}

// Delete removes a pool, failing if any PodIP still references it.
func (s *Service) Delete(ctx context.Context, network string) error {
	p, err := s.store.Get(ctx, network)
	if err != nil {
		return err
	}
	n, err := s.store.CountPodIPs(ctx, network)
	if err != nil {
		return err
	}
	if n > 0 {
		return apierr.New(apierr.KindConflict, fmt.Sprintf(
			"cannot delete network %s while some of its ip addresses are assigned to pods", network))
	}

	freeCount, err := s.freeHostCount(ctx, p)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, network); err != nil {
		return err
	}

	if p.NodeHostname != nil && s.mode == ModeFixed {
		if err := s.adjustNodeFreeIPCount(ctx, *p.NodeHostname, -freeCount); err != nil {
			s.logger.Warn("ippool: failed to decrement node free-ip annotation after delete", "node", *p.NodeHostname, "error", err)
		}
	}
	return nil
}

// GetFree returns a free host, preferring preferredIP if it's available
// and respecting the fixed-pool node constraint, or otherwise scanning pools
// in ascending order of their network string (pools carry no numeric id).
func (s *Service) GetFree(ctx context.Context, nodeHostname *string, preferredIP string) (string, error) {
	pools, err := s.listCandidatePools(ctx, nodeHostname)
	if err != nil {
		return "", err
	}

	preferred, hasPreferred := parsePreferred(preferredIP)

	for _, p := range pools {
		cidr, err := ParseCIDR(p.Network)
		if err != nil {
			continue
		}
		taken, err := s.store.AllocatedIPs(ctx, p.Network)
		if err != nil {
			return "", err
		}
		if ip, ok := firstFree(cidr, toSet(taken), p.BlockedSet(), preferred, hasPreferred); ok {
			return FormatIP(ip), nil
		}
	}
	return "", apierr.New(apierr.KindNoFreeIPs, "no free ip addresses available")
}

// AssignToPod atomically selects and binds a free ip to podID, then
// re-issues the pod's Service with the chosen address as an externalIP.
func (s *Service) AssignToPod(ctx context.Context, podID string, nodeHostname *string, preferredIP string) (string, error) {
	pools, err := s.listCandidatePools(ctx, nodeHostname)
	if err != nil {
		return "", err
	}
	if len(pools) == 0 {
		return "", apierr.New(apierr.KindNoFreeIPs, "no ip pools available")
	}

	preferred, hasPreferred := parsePreferred(preferredIP)

	var lastErr error
	for _, p := range pools {
		ip, err := s.store.AllocateInTx(ctx, p.Network, podID, preferred, hasPreferred)
		if err != nil {
			lastErr = err
			continue
		}
		assigned := FormatIP(ip)
		if err := s.updatePodServiceExternalIP(ctx, podID, assigned); err != nil {
			s.logger.Error("ippool: assigned ip but failed to update service", "pod_id", podID, "ip", assigned, "error", err)
		}
		if p.NodeHostname != nil && s.mode == ModeFixed {
			if err := s.adjustNodeFreeIPCount(ctx, *p.NodeHostname, -1); err != nil {
				s.logger.Warn("ippool: failed to sync node free-ip annotation after assign", "node", *p.NodeHostname, "error", err)
			}
		}
		return assigned, nil
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", apierr.New(apierr.KindNoFreeIPs, "no free ip addresses available")
}

func parsePreferred(preferredIP string) (uint32, bool) {
	if preferredIP == "" {
		return 0, false
	}
	ip, err := ParseIP(preferredIP)
	if err != nil {
		return 0, false
	}
	return ip, true
}

func (s *Service) listCandidatePools(ctx context.Context, nodeHostname *string) ([]Pool, error) {
	if nodeHostname != nil && s.mode == ModeFixed {
		return s.store.ListForNode(ctx, *nodeHostname)
	}
	return s.store.List(ctx)
}

// updatePodServiceExternalIP sets ip as the externalIP of every Service in
// the pod's namespace (the pod id); the Service is named after the pod's
// ReplicationController, which this package does not know.
func (s *Service) updatePodServiceExternalIP(ctx context.Context, podID, ip string) error {
	var list struct {
		Items []k8s.Service `json:"items"`
	}
	if err := s.k8sClient.List(ctx, "services", podID, &list); err != nil {
		if k8s.NotFound(err) {
			return nil
		}
		return fmt.Errorf("listing services for pod %s: %w", podID, err)
	}
	for _, svc := range list.Items {
		svc.Spec.ExternalIPs = []string{ip}
		if err := s.k8sClient.Update(ctx, "services", podID, svc.Metadata.Name, svc, nil); err != nil {
			return fmt.Errorf("updating service %s for pod %s: %w", svc.Metadata.Name, podID, err)
		}
	}
	return nil
}

func (s *Service) freeHostCount(ctx context.Context, p Pool) (int, error) {
	cidr, err := ParseCIDR(p.Network)
	if err != nil {
		return 0, err
	}
	taken, err := s.store.AllocatedIPs(ctx, p.Network)
	if err != nil {
		return 0, err
	}
	blocked := p.BlockedSet()
	return HostCount(cidr) - len(taken) - len(blocked), nil
}

func (s *Service) adjustFreeIPCount(ctx context.Context, p Pool, delta int) error {
	if p.NodeHostname == nil || s.mode != ModeFixed {
		return nil
	}
	return s.adjustNodeFreeIPCount(ctx, *p.NodeHostname, delta)
}

// adjustNodeFreeIPCount reads the node's current free-public-ip-count
// annotation, adds delta, and writes it back — the fixed-pool mode
// counterpart of Node.increment_free_public_ip_count.
func (s *Service) adjustNodeFreeIPCount(ctx context.Context, hostname string, delta int) error {
	var node k8s.Node
	if err := s.k8sClient.Get(ctx, "nodes", "", hostname, &node); err != nil {
		if k8s.NotFound(err) {
			return nil
		}
		return fmt.Errorf("fetching node %s: %w", hostname, err)
	}

	current := 0
	if v, ok := node.Metadata.Annotations[freeIPCountAnnotation]; ok {
		current, _ = strconv.Atoi(v)
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	if node.Metadata.Annotations == nil {
		node.Metadata.Annotations = map[string]string{}
	}
	node.Metadata.Annotations[freeIPCountAnnotation] = strconv.Itoa(next)

	return s.k8sClient.Update(ctx, "nodes", "", hostname, node, nil)
}

func setToSlice(set map[uint32]struct{}) []uint32 {
	out := make([]uint32, 0, len(set))
	for ip := range set {
		out = append(out, ip)
	}
	return out
}

func toSet(m map[uint32]string) map[uint32]struct{} {
	out := make(map[uint32]struct{}, len(m))
	for ip := range m {
		out[ip] = struct{}{}
	}
	return out
}
