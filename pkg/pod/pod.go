// Package pod owns the translation of a user-level PodSpec into a set of
// Kubernetes objects (ReplicationController, Service, Namespace), and the
// command protocol (start/stop/redeploy/set/resize/change_config) that
// drives a pod through its lifecycle.
package pod

import "encoding/json"

// Status is the Pod lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusRunning   Status = "running"
	StatusStopping  Status = "stopping"
	StatusStopped   Status = "stopped"
	StatusDeleting  Status = "deleting"
	StatusDeleted   Status = "deleted"
	StatusFailed    Status = "failed"
	StatusSucceeded Status = "succeeded"
	StatusUnpaid    Status = "unpaid"
)

// EnvVar is a container environment variable.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Port is a container port declaration. IsPublic is a KuberDock-only flag
// stripped before the port reaches the Kubernetes container spec.
type Port struct {
	ContainerPort int    `json:"containerPort"`
	HostPort      int    `json:"hostPort,omitempty"`
	Protocol      string `json:"protocol,omitempty"`
	IsPublic      bool   `json:"isPublic,omitempty"`
}

// VolumeMount binds a container path to a pod-level volume by name.
type VolumeMount struct {
	Name      string `json:"name"`
	MountPath string `json:"mountPath"`
	ReadOnly  bool   `json:"readOnly,omitempty"`
}

// Container is a user-supplied container spec, the unit the Pod Controller
// resolves against the image probe and the billing catalog.
type Container struct {
	Name         string        `json:"name"`
	Image        string        `json:"image"`
	Command      []string      `json:"command,omitempty"`
	Args         []string      `json:"args,omitempty"`
	Env          []EnvVar      `json:"env,omitempty"`
	Ports        []Port        `json:"ports,omitempty"`
	VolumeMounts []VolumeMount `json:"volumeMounts,omitempty"`
	WorkingDir   string        `json:"workingDir,omitempty"`
	Kubes        int           `json:"kubes"`
	MountCommand bool          `json:"-"` // set by normalization if a lifecycle hook mounts something
}

// Volume is a user-supplied pod volume. Exactly one of PersistentDisk,
// LocalStorage is set for a non-ephemeral volume; an empty Volume is an
// emptyDir.
type Volume struct {
	Name           string          `json:"name"`
	PersistentDisk *PersistentVol  `json:"persistentDisk,omitempty"`
	LocalStorage   *LocalStorage   `json:"localStorage,omitempty"`
}

// PersistentVol references a PD Manager disk by user-visible name and
// requested size (used only if the disk doesn't already exist).
type PersistentVol struct {
	PDName string `json:"pdName"`
	SizeGB int    `json:"size"`
}

// LocalStorage marks a volume as node-local, pinning the pod to whatever
// node it's first scheduled on.
type LocalStorage struct {
	Path string `json:"path,omitempty"`
}

// Spec is the full user-submitted pod specification.
type Spec struct {
	Name          string      `json:"name"`
	KubeType      int         `json:"kube_type"`
	Containers    []Container `json:"containers"`
	Volumes       []Volume    `json:"volumes,omitempty"`
	RestartPolicy string      `json:"restartPolicy,omitempty"`
	SetPublicIP   bool        `json:"podIP,omitempty"`
	TemplateID    *string     `json:"templateID,omitempty"`
	TemplateVer   *string     `json:"templateVersion,omitempty"`
	PlanName      *string     `json:"planName,omitempty"`
}

// KubeCount sums the per-container kube counts requested by spec.
func (s Spec) KubeCount() int {
	total := 0
	for _, c := range s.Containers {
		total += c.Kubes
	}
	return total
}

// HasLocalStorage reports whether any volume uses node-local storage.
func (s Spec) HasLocalStorage() bool {
	for _, v := range s.Volumes {
		if v.LocalStorage != nil {
			return true
		}
	}
	return false
}

// Pod is the persisted row: identity, ownership, status, and the
// canonical spec it was created (or last edited) from.
type Pod struct {
	ID          string
	SID         string // the ReplicationController name, distinct from ID
	Name        string
	OwnerID     int
	KubeType    int
	ConfigJSON  json.RawMessage
	Status      Status
	Unpaid      bool
	NodeHostname *string
	PublicIP    *string
	Credentials *Credentials
	PostDescription string
	TemplateID      *string
	TemplateVersion *string
	PlanName        *string
}

// Spec decodes the pod's stored configuration blob.
func (p Pod) Spec() (Spec, error) {
	var s Spec
	if len(p.ConfigJSON) == 0 {
		return Spec{}, nil
	}
	err := json.Unmarshal(p.ConfigJSON, &s)
	return s, err
}

// Namespace is always the pod's own UUID, one namespace per pod.
func (p Pod) Namespace() string { return p.ID }

// Pinned reports whether the pod must stay on a specific node, per
// spec.md's derived "pinned-node" rule: local storage or a fixed public IP.
func (p Pod) Pinned(hasLocalStorage bool) bool {
	return hasLocalStorage || p.PublicIP != nil
}

// Credentials is the bcrypt-hashed direct-access login issued to a pod
// that exposes a web-accessible port.
type Credentials struct {
	Username     string
	PasswordHash string
}
