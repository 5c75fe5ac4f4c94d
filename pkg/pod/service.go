package pod

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kuberdock/kuberdock/internal/apierr"
	"github.com/kuberdock/kuberdock/internal/lock"
	"github.com/kuberdock/kuberdock/internal/sse"
	"github.com/kuberdock/kuberdock/pkg/catalog"
	"github.com/kuberdock/kuberdock/pkg/imageprobe"
	"github.com/kuberdock/kuberdock/pkg/ippool"
	"github.com/kuberdock/kuberdock/pkg/k8s"
	"github.com/kuberdock/kuberdock/pkg/pd"
)

// lockTTL bounds how long a pod command may hold its exclusive lock.
const lockTTL = 2 * time.Minute

// ServiceConfig collects every collaborator the Pod Controller needs.
type ServiceConfig struct {
	Store                *Store
	Catalog              *catalog.Store
	PD                   *pd.Service
	IPPool               *ippool.Service
	ImageProbe           *imageprobe.Service
	K8s                  *k8s.Client
	Lock                 *lock.Manager
	Events               *sse.Hub
	Logger               *slog.Logger
	InternalUser         string
	MaxKubesPerContainer int
	PDBackend            string
	NodeLocalPrefix      string
}

// Service implements the Pod Controller's public operations: spec
// synthesis, the command protocol, and permission/quota gates.
type Service struct {
	store                *Store
	catalog              *catalog.Store
	pd                   *pd.Service
	ipPool               *ippool.Service
	imageProbe           *imageprobe.Service
	k8s                  *k8s.Client
	lock                 *lock.Manager
	events               *sse.Hub
	logger               *slog.Logger
	internalUser         string
	maxKubesPerContainer int
	defaultPDBackend     string
	nodeLocalPrefix      string
}

// NewService builds a Pod Controller service from cfg.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:                cfg.Store,
		catalog:              cfg.Catalog,
		pd:                   cfg.PD,
		ipPool:               cfg.IPPool,
		imageProbe:           cfg.ImageProbe,
		k8s:                  cfg.K8s,
		lock:                 cfg.Lock,
		events:               cfg.Events,
		logger:               cfg.Logger,
		internalUser:         cfg.InternalUser,
		maxKubesPerContainer: cfg.MaxKubesPerContainer,
		defaultPDBackend:     cfg.PDBackend,
		nodeLocalPrefix:      cfg.NodeLocalPrefix,
	}
}

func podLockName(podID string) string { return "pod." + podID }

// withPodLock runs fn while holding podID's exclusive lock, per §4.D
// "every command acquires an exclusive per-pod lock for its duration".
func (s *Service) withPodLock(ctx context.Context, podID string, fn func() error) error {
	h, err := s.lock.Acquire(ctx, podLockName(podID), lockTTL, true)
	if err != nil {
		return fmt.Errorf("acquiring lock for pod %s: %w", podID, err)
	}
	defer func() {
		if err := s.lock.Release(ctx, h); err != nil {
			s.logger.Warn("pod: releasing lock failed", "pod_id", podID, "error", err)
		}
	}()
	return fn()
}

// Get fetches a pod by id.
func (s *Service) Get(ctx context.Context, id string) (Pod, error) {
	return s.store.GetByID(ctx, id)
}

// List returns every pod owned by ownerID.
func (s *Service) List(ctx context.Context, ownerID int) ([]Pod, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// Create validates spec, checks quota and CommandIsMissing, and inserts
// the pod row in StatusStopped — submission does not itself start the
// pod; the caller issues a subsequent start command, matching
// PodCollection.add's separation of "create" from "run".
func (s *Service) Create(ctx context.Context, ownerID, packageID int, spec Spec) (Pod, error) {
	if err := s.validateSpec(ctx, ownerID, packageID, "", spec); err != nil {
		return Pod{}, err
	}

	if _, exists, err := s.store.GetByOwnerName(ctx, ownerID, spec.Name); err != nil {
		return Pod{}, err
	} else if exists {
		return Pod{}, apierr.New(apierr.KindConflict, fmt.Sprintf("pod %q already exists", spec.Name))
	}

	configJSON, err := json.Marshal(spec)
	if err != nil {
		return Pod{}, fmt.Errorf("encoding pod spec: %w", err)
	}

	p, err := s.store.Create(ctx, ownerID, spec.Name, spec.KubeType, configJSON)
	if err != nil {
		return Pod{}, err
	}
	p.TemplateID = spec.TemplateID
	p.TemplateVersion = spec.TemplateVer
	p.PlanName = spec.PlanName
	return p, nil
}

// validateSpec enforces the CommandIsMissing and per-container kube
// invariants shared by Create, Redeploy and Resize, and the package quota
// when packageID is non-zero. Only Create passes a package id; Redeploy and
// Resize pass 0, so the package quota is not checked for them.
func (s *Service) validateSpec(ctx context.Context, ownerID, packageID int, excludePodID string, spec Spec) error {
	for _, c := range spec.Containers {
		if c.Kubes > s.maxKubesPerContainer {
			return apierr.New(apierr.KindValidationError, fmt.Sprintf(
				"container %s requests %d kubes, exceeding the limit of %d per container", c.Name, c.Kubes, s.maxKubesPerContainer))
		}
	}

	if s.imageProbe != nil {
		var specs []imageprobe.ContainerSpec
		for _, c := range spec.Containers {
			specs = append(specs, imageprobe.ContainerSpec{Image: c.Image, Command: c.Command, Args: c.Args})
		}
		if err := s.imageProbe.CheckContainers(ctx, strconv.Itoa(ownerID), specs, nil); err != nil {
			return err
		}
	}

	if packageID != 0 && s.catalog != nil {
		pkg, err := s.catalog.GetPackage(ctx, packageID)
		if err != nil {
			return fmt.Errorf("fetching package %d: %w", packageID, err)
		}
		if pkg.KubesLimit > 0 {
			used, err := s.store.SumKubesForOwner(ctx, ownerID, excludePodID)
			if err != nil {
				return err
			}
			if used+spec.KubeCount() > pkg.KubesLimit {
				return apierr.New(apierr.KindValidationError, fmt.Sprintf(
					"requested %d kubes would exceed package limit of %d", used+spec.KubeCount(), pkg.KubesLimit))
			}
		}
	}
	return nil
}

// Start creates the pod's namespace if absent, takes its persistent disks,
// posts the ReplicationController (and Service, if any container exposes a
// port), and transitions pending -> running on the first READY event (left
// to the Event Reconciler; Start itself only moves preparing -> running's
// precondition, matching §4.D's command table).
func (s *Service) Start(ctx context.Context, podID string, ownerID int, isAdmin, fixedPrice bool) error {
	if fixedPrice {
		return apierr.New(apierr.KindBillingError, "fixed-price accounts cannot start pods directly")
	}
	return s.withPodLock(ctx, podID, func() error {
		p, err := s.store.GetByID(ctx, podID)
		if err != nil {
			return err
		}
		if !isAdmin && p.OwnerID != ownerID {
			return apierr.New(apierr.KindPermissionDenied, "not your pod")
		}

		spec, err := p.Spec()
		if err != nil {
			return fmt.Errorf("decoding pod %s spec: %w", podID, err)
		}

		if err := s.ensureNamespace(ctx, p.Namespace()); err != nil {
			return err
		}

		volumes, rbdNames, err := s.resolveVolumes(ctx, p.ID, p.OwnerID, spec)
		if err != nil {
			return err
		}

		kube, err := s.catalog.GetKube(ctx, spec.KubeType)
		if err != nil {
			return fmt.Errorf("fetching kube type %d: %w", spec.KubeType, err)
		}
		containers := BuildContainers(spec.Containers, kube, s.isInternalOwnerID(p.OwnerID), rbdNames)

		var volAnnotations []json.RawMessage
		rc := BuildReplicationController(p, spec, p.OwnerID, containers, volumes, volAnnotations)
		if err := s.k8s.Create(ctx, "replicationcontrollers", p.Namespace(), rc, nil); err != nil {
			return fmt.Errorf("creating replicationcontroller for pod %s: %w", podID, err)
		}

		if svc, ok := BuildService(p, spec, containers, s.serviceMode(), ""); ok {
			if err := s.k8s.Create(ctx, "services", p.Namespace(), svc, nil); err != nil {
				return fmt.Errorf("creating service for pod %s: %w", podID, err)
			}
		}

		return s.store.SetStatus(ctx, podID, StatusPreparing)
	})
}

// Stop deletes the pod's ReplicationController, releases its persistent
// disks, and marks the DB row stopped while keeping it (the pod is not
// deleted, only its running materialization).
func (s *Service) Stop(ctx context.Context, podID string, ownerID int, isAdmin bool) error {
	return s.withPodLock(ctx, podID, func() error {
		p, err := s.store.GetByID(ctx, podID)
		if err != nil {
			return err
		}
		if !isAdmin && p.OwnerID != ownerID {
			return apierr.New(apierr.KindPermissionDenied, "not your pod")
		}

		if err := s.k8s.Delete(ctx, "replicationcontrollers", p.Namespace(), p.SID); err != nil && !k8s.NotFound(err) {
			return fmt.Errorf("deleting replicationcontroller for pod %s: %w", podID, err)
		}
		if err := s.pd.DetachAll(ctx, podID); err != nil {
			s.logger.Warn("pod: detaching disks on stop failed", "pod_id", podID, "error", err)
		}
		return s.store.SetStatus(ctx, podID, StatusStopped)
	})
}

// Redeploy stops then starts the pod, optionally applying a pending edited
// configuration first.
func (s *Service) Redeploy(ctx context.Context, podID string, ownerID int, isAdmin, fixedPrice bool, applyEdit bool, edited *Spec) error {
	if fixedPrice {
		return apierr.New(apierr.KindBillingError, "fixed-price accounts cannot redeploy pods directly")
	}
	if applyEdit && edited != nil {
		p, err := s.store.GetByID(ctx, podID)
		if err != nil {
			return err
		}
		if !isAdmin && p.OwnerID != ownerID {
			return apierr.New(apierr.KindPermissionDenied, "not your pod")
		}
		if err := s.validateSpec(ctx, p.OwnerID, 0, podID, *edited); err != nil {
			return err
		}
		raw, err := json.Marshal(edited)
		if err != nil {
			return fmt.Errorf("encoding edited pod spec: %w", err)
		}
		if err := s.store.SetConfig(ctx, podID, raw); err != nil {
			return err
		}
	}

	if err := s.Stop(ctx, podID, ownerID, isAdmin); err != nil {
		return err
	}
	return s.Start(ctx, podID, ownerID, isAdmin, fixedPrice)
}

// Set applies an in-place metadata change: rename, description, or a
// status transition restricted to {unpaid, stopped}.
func (s *Service) Set(ctx context.Context, podID string, ownerID int, isAdmin bool, name, postDescription *string, status *Status) error {
	return s.withPodLock(ctx, podID, func() error {
		p, err := s.store.GetByID(ctx, podID)
		if err != nil {
			return err
		}
		if !isAdmin && p.OwnerID != ownerID {
			return apierr.New(apierr.KindPermissionDenied, "not your pod")
		}
		if err := s.store.SetMeta(ctx, podID, name, postDescription); err != nil {
			return err
		}
		if status != nil {
			if *status != StatusUnpaid && *status != StatusStopped {
				return apierr.New(apierr.KindValidationError, "status may only be set to unpaid or stopped directly")
			}
			if err := s.store.SetStatus(ctx, podID, *status); err != nil {
				return err
			}
			if err := s.store.SetUnpaid(ctx, podID, *status == StatusUnpaid); err != nil {
				return err
			}
		}
		return nil
	})
}

// Resize changes the per-container kube count, re-validates the
// per-container kube limit, and rolls the ReplicationController with the
// recomputed resource limits. The package kube quota is not checked here.
func (s *Service) Resize(ctx context.Context, podID string, ownerID int, isAdmin bool, containerKubes map[string]int) error {
	return s.withPodLock(ctx, podID, func() error {
		p, err := s.store.GetByID(ctx, podID)
		if err != nil {
			return err
		}
		if !isAdmin && p.OwnerID != ownerID {
			return apierr.New(apierr.KindPermissionDenied, "not your pod")
		}

		spec, err := p.Spec()
		if err != nil {
			return fmt.Errorf("decoding pod %s spec: %w", podID, err)
		}
		for i := range spec.Containers {
			if n, ok := containerKubes[spec.Containers[i].Name]; ok {
				spec.Containers[i].Kubes = n
			}
		}

		if err := s.validateSpec(ctx, p.OwnerID, 0, podID, spec); err != nil {
			return err
		}

		raw, err := json.Marshal(spec)
		if err != nil {
			return fmt.Errorf("encoding resized pod spec: %w", err)
		}
		if err := s.store.SetConfig(ctx, podID, raw); err != nil {
			return err
		}

		if p.Status != StatusRunning && p.Status != StatusPreparing {
			return nil
		}
		return s.rollReplicationController(ctx, p, spec)
	})
}

// ChangeConfig is the internal command binding a pod to a node and/or a
// public IP; it is never owner-gated, only issued by the IP-Pool Manager
// and the scheduler collaborator.
func (s *Service) ChangeConfig(ctx context.Context, podID string, nodeHostname, publicIP *string) error {
	return s.withPodLock(ctx, podID, func() error {
		if nodeHostname != nil {
			if err := s.store.SetNodeHostname(ctx, podID, nodeHostname); err != nil {
				return err
			}
		}
		if publicIP != nil {
			if err := s.store.SetPublicIP(ctx, podID, publicIP); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete stops the pod, deletes its namespace, and tombstones the DB row.
func (s *Service) Delete(ctx context.Context, podID string, ownerID int, isAdmin bool) error {
	p, err := s.store.GetByID(ctx, podID)
	if err != nil {
		return err
	}
	if !isAdmin && p.OwnerID != ownerID {
		return apierr.New(apierr.KindPermissionDenied, "not your pod")
	}

	if err := s.Stop(ctx, podID, ownerID, isAdmin); err != nil {
		return err
	}
	return s.withPodLock(ctx, podID, func() error {
		if err := s.k8s.Delete(ctx, "namespaces", "", p.Namespace()); err != nil && !k8s.NotFound(err) {
			s.logger.Warn("pod: deleting namespace failed", "pod_id", podID, "error", err)
		}
		if err := s.store.SetStatus(ctx, podID, StatusDeleting); err != nil {
			return err
		}
		if err := s.events.Publish(ctx, sse.UserChannel(strconv.Itoa(p.OwnerID)), "pull_pods_state", "ping"); err != nil {
			s.logger.Warn("pod: publishing delete notification failed", "pod_id", podID, "error", err)
		}
		return s.store.Tombstone(ctx, podID)
	})
}

func (s *Service) ensureNamespace(ctx context.Context, namespace string) error {
	var ns k8s.Namespace
	err := s.k8s.Get(ctx, "namespaces", "", namespace, &ns)
	if err == nil {
		return nil
	}
	if !k8s.NotFound(err) {
		return fmt.Errorf("checking namespace %s: %w", namespace, err)
	}
	create := k8s.Namespace{Kind: "Namespace", APIVersion: "v1", Metadata: k8s.ObjectMeta{Name: namespace}}
	if err := s.k8s.Create(ctx, "namespaces", "", create, nil); err != nil {
		return fmt.Errorf("creating namespace %s: %w", namespace, err)
	}
	return nil
}

func (s *Service) rollReplicationController(ctx context.Context, p Pod, spec Spec) error {
	volumes, rbdNames, err := s.resolveVolumes(ctx, p.ID, p.OwnerID, spec)
	if err != nil {
		return err
	}
	kube, err := s.catalog.GetKube(ctx, spec.KubeType)
	if err != nil {
		return fmt.Errorf("fetching kube type %d: %w", spec.KubeType, err)
	}
	containers := BuildContainers(spec.Containers, kube, s.isInternalOwnerID(p.OwnerID), rbdNames)
	rc := BuildReplicationController(p, spec, p.OwnerID, containers, volumes, nil)
	return s.k8s.Update(ctx, "replicationcontrollers", p.Namespace(), p.SID, rc, nil)
}

func (s *Service) isInternalOwnerID(ownerID int) bool {
	return strconv.Itoa(ownerID) == s.internalUser
}

func (s *Service) serviceMode() ServiceMode {
	switch s.ipPool.Mode() {
	case ippool.ModeAWS:
		return ServiceModeAWS
	case ippool.ModeFloating:
		return ServiceModeFloating
	default:
		return ServiceModePrivate
	}
}
