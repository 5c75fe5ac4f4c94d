package pod

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kuberdock/kuberdock/pkg/k8s"
	"github.com/kuberdock/kuberdock/pkg/pd"
)

// resolveVolumes ensures a PD row exists for every persistentDisk volume
// (creating it if absent, reusing it if present), rewrites localStorage
// volumes to hostPath, drops any volume mounted by no container, and
// reports which volume names ended up RBD-backed (for the :Z mountPath
// rewrite in BuildContainers).
func (s *Service) resolveVolumes(ctx context.Context, podID string, ownerID int, spec Spec) ([]k8s.Volume, map[string]bool, error) {
	mounted := map[string]bool{}
	for _, c := range spec.Containers {
		for _, vm := range c.VolumeMounts {
			mounted[vm.Name] = true
		}
	}

	var out []k8s.Volume
	rbdNames := map[string]bool{}

	for _, v := range spec.Volumes {
		if !mounted[v.Name] {
			continue
		}

		switch {
		case v.PersistentDisk != nil:
			disk, err := s.ensurePD(ctx, ownerID, v.PersistentDisk.PDName, v.PersistentDisk.SizeGB)
			if err != nil {
				return nil, nil, err
			}
			if err := s.pd.Attach(ctx, disk.ID, podID); err != nil {
				return nil, nil, err
			}
			vol, err := s.pd.EnrichVolume(s.defaultPDBackend, disk)
			if err != nil {
				return nil, nil, fmt.Errorf("enriching volume %s: %w", v.Name, err)
			}
			vol.Name = v.Name
			if isRBDVolume(vol) {
				rbdNames[v.Name] = true
			}
			out = append(out, vol)

		case v.LocalStorage != nil:
			path := fmt.Sprintf("%s/%s/%s", s.nodeLocalPrefix, podID, v.Name)
			spec, _ := json.Marshal(map[string]any{"hostPath": map[string]string{"path": path}})
			out = append(out, k8s.Volume{Name: v.Name, Spec: spec})

		default:
			spec, _ := json.Marshal(map[string]any{"emptyDir": map[string]any{}})
			out = append(out, k8s.Volume{Name: v.Name, Spec: spec})
		}
	}

	return out, rbdNames, nil
}

// ensurePD finds the caller's existing persistent disk by (name, owner) or
// creates a new one, per §4.D volume synthesis's "consult PD Manager" step.
func (s *Service) ensurePD(ctx context.Context, ownerID int, name string, sizeGB int) (pd.Disk, error) {
	existing, ok, err := s.pd.FindByNameOwner(ctx, name, ownerID)
	if err != nil {
		return pd.Disk{}, err
	}
	if ok {
		return existing, nil
	}
	if sizeGB <= 0 {
		sizeGB = 1
	}
	return s.pd.Create(ctx, s.defaultPDBackend, name, ownerID, sizeGB)
}

func isRBDVolume(v k8s.Volume) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(v.Spec, &fields); err != nil {
		return false
	}
	_, ok := fields["rbd"]
	return ok
}
