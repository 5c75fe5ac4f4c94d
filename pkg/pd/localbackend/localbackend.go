// Package localbackend implements pd.Backend over node-local storage: a
// drive is a host directory under a configured prefix, pinned to the node
// it was created on and referenced into a pod's volume spec as a
// {hostPath: {...}} stanza.
package localbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kuberdock/kuberdock/pkg/k8s"
)

// Backend is the node-local persistent-disk backend. It runs on the node
// itself (or a collaborator with access to it) — CreatePhysical/
// DeletePhysical operate on the local filesystem directly.
type Backend struct {
	prefix string
}

// New creates a local-storage backend rooted at prefix.
func New(prefix string) *Backend {
	return &Backend{prefix: prefix}
}

// Name implements pd.Backend.
func (b *Backend) Name() string { return "local" }

// NodeBound implements pd.Backend — local-storage disks live on exactly
// one node's disk and can never migrate.
func (b *Backend) NodeBound() bool { return true }

func (b *Backend) hostPath(podID, driveName string) string {
	return filepath.Join(b.prefix, podID, driveName)
}

// CreatePhysical creates the backing directory. podID is embedded in
// driveName's caller-supplied path via EnrichVolume, not here — the
// directory itself is keyed by drive name alone until a pod claims it.
func (b *Backend) CreatePhysical(ctx context.Context, driveName string, sizeGB int) error {
	if err := os.MkdirAll(filepath.Join(b.prefix, driveName), 0o750); err != nil {
		return fmt.Errorf("localbackend: creating drive directory: %w", err)
	}
	return nil
}

// DeletePhysical removes the backing directory and its contents.
func (b *Backend) DeletePhysical(ctx context.Context, driveName string) error {
	if err := os.RemoveAll(filepath.Join(b.prefix, driveName)); err != nil {
		return fmt.Errorf("localbackend: removing drive directory: %w", err)
	}
	return nil
}

// EnrichVolume builds the {hostPath: {...}} volume-source stanza, rooted at
// <prefix>/<pod_id>/<drive_name>.
func (b *Backend) EnrichVolume(driveName string, podID string, nodeID *int) (k8s.Volume, error) {
	spec := struct {
		HostPath struct {
			Path string `json:"path"`
		} `json:"hostPath"`
	}{}
	spec.HostPath.Path = b.hostPath(podID, driveName)

	raw, err := json.Marshal(spec)
	if err != nil {
		return k8s.Volume{}, fmt.Errorf("localbackend: marshaling volume spec: %w", err)
	}
	return k8s.Volume{Name: driveName, Spec: raw}, nil
}
