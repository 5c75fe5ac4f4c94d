// Package catalog holds the billing-shape catalog (Kube / Package /
// PackageKube) the Pod Controller consults to resolve a container's
// kube count into CPU/memory limits and to enforce per-package quotas.
package catalog

import (
	"context"
	"fmt"

	"github.com/kuberdock/kuberdock/internal/platform"
)

// InternalKubeID is the reserved kube-type id for internal-service pods.
// It is excluded from public kube listings and is exempt from node
// pinning by kube type.
const InternalKubeID = -1

// Kube is a unit of compute billed as a single item: a container
// requests an integer number of kubes, each contributing CPUFraction
// cores and MemoryMB of memory.
type Kube struct {
	ID           int
	Name         string
	CPUFraction  float64 // fraction of a core, e.g. 0.25
	MemoryMB     int
	DiskSpaceGB  int
	TrafficGB    int
	IsPublic     bool
}

// Package is a commercial bundle enumerating which kubes a user may
// request and at what price. KubesLimit caps the total kube-count a
// single pod under this package may request; zero means unlimited.
type Package struct {
	ID         int
	Name       string
	IsDefault  bool
	KubesLimit int
}

// PackageKube is the per-package price for a kube type.
type PackageKube struct {
	PackageID  int
	KubeID     int
	KubePrice  float64
	Shareable  bool
}

// Store reads the billing catalog.
type Store struct {
	db platform.DBTX
}

// NewStore creates a catalog Store.
func NewStore(db platform.DBTX) *Store {
	return &Store{db: db}
}

// GetKube fetches a kube type by id.
func (s *Store) GetKube(ctx context.Context, id int) (Kube, error) {
	var k Kube
	err := s.db.QueryRow(ctx, `
		SELECT id, name, cpu_fraction, memory_mb, disk_space_gb, traffic_gb, is_public
		FROM kubes WHERE id = $1
	`, id).Scan(&k.ID, &k.Name, &k.CPUFraction, &k.MemoryMB, &k.DiskSpaceGB, &k.TrafficGB, &k.IsPublic)
	if err != nil {
		return Kube{}, fmt.Errorf("fetching kube %d: %w", id, err)
	}
	return k, nil
}

// GetPackage fetches a billing package by id.
func (s *Store) GetPackage(ctx context.Context, id int) (Package, error) {
	var p Package
	err := s.db.QueryRow(ctx, `
		SELECT id, name, is_default, kubes_limit FROM packages WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.IsDefault, &p.KubesLimit)
	if err != nil {
		return Package{}, fmt.Errorf("fetching package %d: %w", id, err)
	}
	return p, nil
}

// AllowedKube reports whether packageID permits kubeID, returning the
// configured per-kube price when it does.
func (s *Store) AllowedKube(ctx context.Context, packageID, kubeID int) (PackageKube, bool, error) {
	var pk PackageKube
	err := s.db.QueryRow(ctx, `
		SELECT package_id, kube_id, kube_price, shareable
		FROM package_kubes WHERE package_id = $1 AND kube_id = $2
	`, packageID, kubeID).Scan(&pk.PackageID, &pk.KubeID, &pk.KubePrice, &pk.Shareable)
	if err != nil {
		return PackageKube{}, false, nil
	}
	return pk, true, nil
}

// CPULimit returns the CPU resource-limit string (e.g. "250m") for n kubes
// of the given type, in the shape Kubernetes resource quantities expect.
func (k Kube) CPULimit(kubes int) string {
	millicores := int(k.CPUFraction * 1000 * float64(kubes))
	return fmt.Sprintf("%dm", millicores)
}

// MemoryLimit returns the memory resource-limit string (e.g. "256Mi") for
// n kubes of the given type.
func (k Kube) MemoryLimit(kubes int) string {
	return fmt.Sprintf("%dMi", k.MemoryMB*kubes)
}
