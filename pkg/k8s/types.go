// Package k8s is a minimal typed client for the subset of the Kubernetes
// v1 API the control plane touches: pods, services, replicationcontrollers,
// endpoints, nodes, and namespaces. It decodes only the fields the rest of
// the system reads or writes — not a full API model.
package k8s

import "encoding/json"

// ObjectMeta mirrors the fields of metav1.ObjectMeta this system reads.
type ObjectMeta struct {
	Name            string            `json:"name"`
	Namespace       string             `json:"namespace,omitempty"`
	Labels          map[string]string `json:"labels,omitempty"`
	Annotations     map[string]string `json:"annotations,omitempty"`
	ResourceVersion string            `json:"resourceVersion,omitempty"`
}

// Namespace is a minimal v1.Namespace.
type Namespace struct {
	APIVersion string     `json:"apiVersion"`
	Kind       string     `json:"kind"`
	Metadata   ObjectMeta `json:"metadata"`
}

// Container is a minimal v1.Container.
type Container struct {
	Name            string                 `json:"name"`
	Image           string                 `json:"image"`
	Command         []string               `json:"command,omitempty"`
	Args            []string               `json:"args,omitempty"`
	Env             []EnvVar               `json:"env,omitempty"`
	Ports           []ContainerPort        `json:"ports,omitempty"`
	VolumeMounts    []VolumeMount          `json:"volumeMounts,omitempty"`
	Resources       ResourceRequirements   `json:"resources,omitempty"`
	ImagePullPolicy string                 `json:"imagePullPolicy,omitempty"`
	SecurityContext *SecurityContext       `json:"securityContext,omitempty"`
	WorkingDir      string                 `json:"workingDir,omitempty"`
}

// EnvVar is a minimal v1.EnvVar.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ContainerPort is a minimal v1.ContainerPort.
type ContainerPort struct {
	Name          string `json:"name,omitempty"`
	ContainerPort int    `json:"containerPort"`
	HostPort      int    `json:"hostPort,omitempty"`
	Protocol      string `json:"protocol,omitempty"`
}

// VolumeMount is a minimal v1.VolumeMount.
type VolumeMount struct {
	Name      string `json:"name"`
	MountPath string `json:"mountPath"`
	ReadOnly  bool   `json:"readOnly,omitempty"`
}

// ResourceRequirements is a minimal v1.ResourceRequirements.
type ResourceRequirements struct {
	Limits   map[string]string `json:"limits,omitempty"`
	Requests map[string]string `json:"requests,omitempty"`
}

// SecurityContext is a minimal v1.SecurityContext, used only to add
// SYS_ADMIN when a lifecycle hook mounts something.
type SecurityContext struct {
	Capabilities *Capabilities `json:"capabilities,omitempty"`
}

// Capabilities is a minimal v1.Capabilities.
type Capabilities struct {
	Add []string `json:"add,omitempty"`
}

// Volume is a minimal v1.Volume — the Spec field is a raw message because
// its shape depends on the volume source (hostPath, rbd, awsElasticBlockStore,
// emptyDir, ...), which PD backends rewrite independently.
type Volume struct {
	Name string          `json:"name"`
	Spec json.RawMessage `json:"-"`
}

// MarshalJSON flattens Volume so Name sits alongside the source stanza the
// backend produced, matching how v1.Volume serializes on the wire.
func (v Volume) MarshalJSON() ([]byte, error) {
	var fields map[string]json.RawMessage
	if len(v.Spec) > 0 {
		if err := json.Unmarshal(v.Spec, &fields); err != nil {
			return nil, err
		}
	} else {
		fields = map[string]json.RawMessage{}
	}
	nameJSON, err := json.Marshal(v.Name)
	if err != nil {
		return nil, err
	}
	fields["name"] = nameJSON
	return json.Marshal(fields)
}

// PodSpec is a minimal v1.PodSpec.
type PodSpec struct {
	Containers         []Container       `json:"containers"`
	Volumes            []Volume          `json:"volumes,omitempty"`
	RestartPolicy      string            `json:"restartPolicy,omitempty"`
	NodeSelector       map[string]string `json:"nodeSelector,omitempty"`
	NodeName           string            `json:"nodeName,omitempty"`
	HostNetwork        bool              `json:"hostNetwork,omitempty"`
}

// Pod is a minimal v1.Pod, including the status subset the reconciler reads.
type Pod struct {
	APIVersion string     `json:"apiVersion,omitempty"`
	Kind       string     `json:"kind,omitempty"`
	Metadata   ObjectMeta `json:"metadata"`
	Spec       PodSpec    `json:"spec"`
	Status     PodStatus  `json:"status,omitempty"`
}

// PodStatus is a minimal v1.PodStatus.
type PodStatus struct {
	Phase             string            `json:"phase,omitempty"`
	ContainerStatuses []ContainerStatus `json:"containerStatuses,omitempty"`
}

// ContainerStatus is a minimal v1.ContainerStatus. Kubes is not part of
// upstream Kubernetes — it is stamped onto each container status by the
// scheduler-side kubelet patch so the reconciler can bill a container's
// running time without a second lookup against the pod spec.
type ContainerStatus struct {
	Name        string                           `json:"name"`
	ContainerID string                           `json:"containerID,omitempty"`
	Ready       bool                             `json:"ready"`
	Kubes       int                              `json:"kubes,omitempty"`
	State       map[string]ContainerStateDetail  `json:"state,omitempty"`
}

// ContainerStateDetail covers the fields read out of the "running"/
// "terminated"/"waiting" state variants.
type ContainerStateDetail struct {
	StartedAt  string `json:"startedAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
}

// ReplicationController is a minimal v1.ReplicationController.
type ReplicationController struct {
	APIVersion string                     `json:"apiVersion,omitempty"`
	Kind       string                     `json:"kind,omitempty"`
	Metadata   ObjectMeta                 `json:"metadata"`
	Spec       ReplicationControllerSpec  `json:"spec"`
}

// ReplicationControllerSpec is a minimal v1.ReplicationControllerSpec.
type ReplicationControllerSpec struct {
	Replicas int               `json:"replicas"`
	Selector map[string]string `json:"selector"`
	Template PodTemplateSpec   `json:"template"`
}

// PodTemplateSpec is a minimal v1.PodTemplateSpec.
type PodTemplateSpec struct {
	Metadata ObjectMeta `json:"metadata"`
	Spec     PodSpec    `json:"spec"`
}

// ServicePort is a minimal v1.ServicePort.
type ServicePort struct {
	Name       string `json:"name"`
	Port       int    `json:"port"`
	TargetPort int    `json:"targetPort"`
	Protocol   string `json:"protocol,omitempty"`
}

// ServiceSpec is a minimal v1.ServiceSpec.
type ServiceSpec struct {
	Selector    map[string]string `json:"selector"`
	Ports       []ServicePort     `json:"ports"`
	Type        string            `json:"type,omitempty"`
	ExternalIPs []string          `json:"externalIPs,omitempty"`
}

// Service is a minimal v1.Service.
type Service struct {
	APIVersion string      `json:"apiVersion,omitempty"`
	Kind       string      `json:"kind,omitempty"`
	Metadata   ObjectMeta  `json:"metadata"`
	Spec       ServiceSpec `json:"spec"`
}

// EndpointAddress is a minimal v1.EndpointAddress.
type EndpointAddress struct {
	IP        string      `json:"ip"`
	TargetRef *ObjectMeta `json:"targetRef,omitempty"`
}

// EndpointSubset is a minimal v1.EndpointSubset.
type EndpointSubset struct {
	Addresses []EndpointAddress `json:"addresses,omitempty"`
}

// Endpoints is a minimal v1.Endpoints.
type Endpoints struct {
	APIVersion string           `json:"apiVersion,omitempty"`
	Kind       string           `json:"kind,omitempty"`
	Metadata   ObjectMeta       `json:"metadata"`
	Subsets    []EndpointSubset `json:"subsets"`
}

// NodeCondition is a minimal v1.NodeCondition.
type NodeCondition struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// NodeStatus is a minimal v1.NodeStatus.
type NodeStatus struct {
	Conditions []NodeCondition `json:"conditions,omitempty"`
}

// Node is a minimal v1.Node.
type Node struct {
	APIVersion string     `json:"apiVersion,omitempty"`
	Kind       string     `json:"kind,omitempty"`
	Metadata   ObjectMeta `json:"metadata"`
	Status     NodeStatus `json:"status,omitempty"`
}

// WatchEvent wraps a single event off a watch stream: its type (ADDED,
// MODIFIED, DELETED) and the raw object, decoded lazily by the caller into
// the concrete type it expects.
type WatchEvent struct {
	Type   string          `json:"type"`
	Object json.RawMessage `json:"object"`
}
