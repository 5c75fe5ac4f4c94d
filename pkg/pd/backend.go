package pd

import (
	"context"
	"fmt"
	"sync"

	"github.com/kuberdock/kuberdock/pkg/k8s"
)

// Backend is a storage driver capable of materializing and destroying
// physical drives, and of describing how a drive is mounted into a pod's
// Kubernetes volume spec.
type Backend interface {
	// Name identifies the backend, e.g. "ceph", "aws", "local".
	Name() string
	// CreatePhysical provisions a drive of the given size (GB).
	CreatePhysical(ctx context.Context, driveName string, sizeGB int) error
	// DeletePhysical destroys a drive. Called from gc(); errors leave the
	// row in ToDelete for the next cycle.
	DeletePhysical(ctx context.Context, driveName string) error
	// EnrichVolume fills in the volume-source stanza (rbd/awsElasticBlockStore/
	// hostPath) for a drive bound to the given pod/node.
	EnrichVolume(driveName string, podID string, nodeID *int) (k8s.Volume, error)
	// NodeBound reports whether disks on this backend are pinned to a
	// single node (true for node-local storage).
	NodeBound() bool
}

// Registry holds the configured set of storage backends, keyed by name —
// the same "one registry, several interchangeable providers" shape used
// for notification channels elsewhere in this codebase.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend under its own name, overwriting any previous
// registration with the same name.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get returns the named backend.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("pd: no storage backend registered for %q", name)
	}
	return b, nil
}

// All returns every registered backend.
func (r *Registry) All() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Backend, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b)
	}
	return out
}
