package pd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/kuberdock/kuberdock/internal/apierr"
	"github.com/kuberdock/kuberdock/pkg/k8s"
)

// Service implements the PD Manager's public operations.
type Service struct {
	store     *Store
	backends  *Registry
	logger    *slog.Logger
	sepUserID string
	maxSizeGB int
}

// NewService creates a PD Manager service.
func NewService(store *Store, backends *Registry, logger *slog.Logger, sepUserID string, maxSizeGB int) *Service {
	return &Service{store: store, backends: backends, logger: logger, sepUserID: sepUserID, maxSizeGB: maxSizeGB}
}

// Create allocates drive_name = name + sep + ownerID, inserts a PENDING
// row, then dispatches to the named backend's CreatePhysical. On backend
// success the row flips to CREATED; on failure it is deleted so no
// orphaned row survives a failed provision.
func (s *Service) Create(ctx context.Context, backendName, name string, ownerID, sizeGB int) (Disk, error) {
	if sizeGB > s.maxSizeGB {
		return Disk{}, apierr.New(apierr.KindPDSizeLimit, fmt.Sprintf("persistent disk size %dGB exceeds the limit of %dGB", sizeGB, s.maxSizeGB))
	}

	backend, err := s.backends.Get(backendName)
	if err != nil {
		return Disk{}, apierr.Wrap(apierr.KindInternalAPIError, "no storage backend available", err)
	}

	driveName := ComposeName(s.sepUserID, name, ownerID)
	disk, err := s.store.Create(ctx, driveName, name, ownerID, sizeGB)
	if err != nil {
		return Disk{}, err
	}

	if err := backend.CreatePhysical(ctx, driveName, sizeGB); err != nil {
		if delErr := s.store.Delete(ctx, disk.ID); delErr != nil {
			s.logger.Error("pd: rolling back failed physical create", "drive_name", driveName, "error", delErr)
		}
		return Disk{}, apierr.Wrap(apierr.KindInternalAPIError, "failed to provision persistent disk", err)
	}

	if err := s.store.SetState(ctx, disk.ID, Created); err != nil {
		return Disk{}, err
	}
	disk.State = Created
	return disk, nil
}

// Attach binds a disk to a pod iff it is currently unbound.
func (s *Service) Attach(ctx context.Context, diskID, podID string) error {
	return s.store.Attach(ctx, diskID, podID)
}

// FindByNameOwner returns the caller's existing non-DELETED disk for
// (name, ownerID), if any — used by volume synthesis to reuse a disk
// already created for this (name, owner) slot instead of provisioning a
// new one.
func (s *Service) FindByNameOwner(ctx context.Context, name string, ownerID int) (Disk, bool, error) {
	return s.store.GetByNameOwner(ctx, name, ownerID)
}

// DetachAll clears pod_id on every disk bound to podID.
func (s *Service) DetachAll(ctx context.Context, podID string) error {
	return s.store.DetachAll(ctx, podID)
}

// Take locks the named drives and binds the free ones to podID, all or
// nothing: if any named drive is already bound to a different pod, none
// of the free ones are bound either.
func (s *Service) Take(ctx context.Context, podID string, driveNames []string) (taken, takenByAnother []string, err error) {
	return s.store.Take(ctx, podID, driveNames)
}

// MarkToDelete renames the disk being removed to a random internal token
// and flips it to TODELETE, then creates a companion row with the
// original (name, owner) and an incremented drive_name in state DELETED,
// so the slot is immediately reusable while the physical drive is still
// torn down by gc().
func (s *Service) MarkToDelete(ctx context.Context, diskID string) (*Disk, error) {
	disk, err := s.store.GetByID(ctx, diskID)
	if err != nil {
		return nil, err
	}
	if disk.InUse() {
		return nil, apierr.New(apierr.KindConflict, "persistent disk is attached to a pod")
	}
	if disk.State == ToDelete {
		return nil, nil
	}

	newDriveName, err := s.store.IncrementDriveName(ctx, disk.DriveName, disk.Name, disk.OwnerID)
	if err != nil {
		return nil, err
	}

	token, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generating tombstone token: %w", err)
	}
	if _, err := s.store.pool.Exec(ctx, `
		UPDATE persistent_disk SET name = $1, state = $2 WHERE id = $3
	`, token, int(ToDelete), disk.ID); err != nil {
		return nil, fmt.Errorf("marking pd %s todelete: %w", disk.ID, err)
	}

	companion, err := s.store.Create(ctx, newDriveName, disk.Name, disk.OwnerID, disk.Size)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetState(ctx, companion.ID, Deleted); err != nil {
		return nil, err
	}
	companion.State = Deleted
	return &companion, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// GC destroys the physical drive for every TODELETE disk, removing the row
// on success and leaving it for the next cycle on failure.
func (s *Service) GC(ctx context.Context, backendName string) {
	backend, err := s.backends.Get(backendName)
	if err != nil {
		s.logger.Error("pd: gc: no backend", "backend", backendName, "error", err)
		return
	}

	disks, err := s.store.ListToDelete(ctx)
	if err != nil {
		s.logger.Error("pd: gc: listing todelete disks", "error", err)
		return
	}

	for _, d := range disks {
		if err := backend.DeletePhysical(ctx, d.DriveName); err != nil {
			s.logger.Warn("pd: gc: physical delete failed, retrying next cycle", "drive_name", d.DriveName, "error", err)
			continue
		}
		if err := s.store.Delete(ctx, d.ID); err != nil {
			s.logger.Error("pd: gc: removing deleted row", "drive_name", d.DriveName, "error", err)
		}
	}
}

// EnrichVolume resolves a disk's volume-source stanza via its backend.
func (s *Service) EnrichVolume(backendName string, disk Disk) (k8s.Volume, error) {
	backend, err := s.backends.Get(backendName)
	if err != nil {
		return k8s.Volume{}, err
	}
	podID := ""
	if disk.PodID != nil {
		podID = *disk.PodID
	}
	return backend.EnrichVolume(disk.DriveName, podID, disk.NodeID)
}
