package pod

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kuberdock/kuberdock/pkg/catalog"
	"github.com/kuberdock/kuberdock/pkg/k8s"
)

const (
	labelPodUID      = "kuberdock-pod-uid"
	labelUserUID     = "kuberdock-user-uid"
	labelPublicIP    = "kuberdock-public-ip"
	labelKubeType    = "kuberdock-kube-type"
	labelNodeHost    = "kuberdock-node-hostname"
	annotationPorts  = "kuberdock-pod-ports"
	annotationVols   = "kuberdock-volume-annotations"
)

// kubeTypeSelector is the nodeSelector value a pod's kube type resolves to,
// e.g. "type_0". The internal-service kube type gets no selector at all so
// it may land on any node.
func kubeTypeSelector(kubeType int) string {
	return fmt.Sprintf("type_%d", kubeType)
}

// BuildReplicationController synthesizes the RC Kubernetes object for pd,
// given its resolved spec and the set of Kubernetes containers/volumes
// already prepared by BuildContainers/BuildVolumes.
func BuildReplicationController(p Pod, spec Spec, ownerID int, containers []k8s.Container, volumes []k8s.Volume, volumeAnnotations []json.RawMessage) k8s.ReplicationController {
	restartPolicy := spec.RestartPolicy
	if restartPolicy == "" {
		restartPolicy = "Always"
	}

	labels := map[string]string{
		labelPodUID:  p.ID,
		labelUserUID: fmt.Sprintf("%d", ownerID),
	}
	if p.PublicIP != nil {
		labels[labelPublicIP] = *p.PublicIP
	}

	nodeSelector := map[string]string{}
	if spec.KubeType != catalog.InternalKubeID {
		nodeSelector[labelKubeType] = kubeTypeSelector(spec.KubeType)
	}
	if p.NodeHostname != nil {
		nodeSelector[labelNodeHost] = *p.NodeHostname
	}

	volAnnotations, _ := json.Marshal(volumeAnnotations)
	portsAnnotation := dumpPorts(spec.Containers)

	return k8s.ReplicationController{
		Kind:       "ReplicationController",
		APIVersion: "v1",
		Metadata: k8s.ObjectMeta{
			Name:   p.SID,
			Labels: map[string]string{labelPodUID: p.ID},
		},
		Spec: k8s.ReplicationControllerSpec{
			Replicas: 1,
			Selector: map[string]string{labelPodUID: p.ID},
			Template: k8s.PodTemplateSpec{
				Metadata: k8s.ObjectMeta{
					Namespace: p.Namespace(),
					Labels:    labels,
					Annotations: map[string]string{
						annotationPorts: portsAnnotation,
						annotationVols:  string(volAnnotations),
					},
				},
				Spec: k8s.PodSpec{
					Containers:    containers,
					Volumes:       volumes,
					RestartPolicy: restartPolicy,
					NodeSelector:  nodeSelector,
				},
			},
		},
	}
}

// dumpPorts mirrors Pod._dump_ports: container ports (including the
// KuberDock-only isPublic flag) are recorded in an annotation because the
// Kubernetes-bound container spec has hostPort/isPublic stripped.
func dumpPorts(containers []Container) string {
	allPorts := make([][]Port, len(containers))
	for i, c := range containers {
		allPorts[i] = c.Ports
	}
	raw, _ := json.Marshal(allPorts)
	return string(raw)
}

// BuildContainers resolves each user container against its kube type's
// CPU/memory limits and applies the Kubernetes-specific rewrites: strip
// hostPort for non-internal owners, uppercase protocol, strip isPublic,
// force imagePullPolicy=Always, add SYS_ADMIN for mount hooks, and append
// :Z to RBD-backed mount paths.
func BuildContainers(containers []Container, kube catalog.Kube, isInternalOwner bool, rbdVolumeNames map[string]bool) []k8s.Container {
	out := make([]k8s.Container, 0, len(containers))
	for _, c := range containers {
		kubes := c.Kubes
		if kubes <= 0 {
			kubes = 1
		}

		var ports []k8s.ContainerPort
		for _, p := range c.Ports {
			proto := strings.ToUpper(p.Protocol)
			if proto == "" {
				proto = "TCP"
			}
			kp := k8s.ContainerPort{ContainerPort: p.ContainerPort, Protocol: proto}
			if isInternalOwner {
				kp.HostPort = p.HostPort
			}
			ports = append(ports, kp)
		}

		var mounts []k8s.VolumeMount
		for _, vm := range c.VolumeMounts {
			mountPath := vm.MountPath
			if rbdVolumeNames[vm.Name] && !strings.HasSuffix(mountPath, ":Z") && !strings.HasSuffix(mountPath, ":z") {
				mountPath += ":Z"
			}
			mounts = append(mounts, k8s.VolumeMount{Name: vm.Name, MountPath: mountPath, ReadOnly: vm.ReadOnly})
		}

		var env []k8s.EnvVar
		for _, e := range c.Env {
			env = append(env, k8s.EnvVar{Name: e.Name, Value: e.Value})
		}

		kc := k8s.Container{
			Name:            c.Name,
			Image:           c.Image,
			Command:         c.Command,
			Args:            c.Args,
			Env:             env,
			Ports:           ports,
			VolumeMounts:    mounts,
			WorkingDir:      c.WorkingDir,
			ImagePullPolicy: "Always",
			Resources: k8s.ResourceRequirements{
				Limits: map[string]string{
					"cpu":    kube.CPULimit(kubes),
					"memory": kube.MemoryLimit(kubes),
				},
			},
		}
		if c.MountCommand {
			kc.SecurityContext = &k8s.SecurityContext{Capabilities: &k8s.Capabilities{Add: []string{"SYS_ADMIN"}}}
		}
		out = append(out, kc)
	}
	return out
}

// BuildService synthesizes the Service object for a pod whose containers
// declare at least one port, or returns ok=false if none do.
func BuildService(p Pod, spec Spec, containers []k8s.Container, mode ServiceMode, nodeExternalIP string) (k8s.Service, bool) {
	var ports []k8s.ServicePort
	hasPort := false
	for ci, c := range spec.Containers {
		for pi, port := range c.Ports {
			hasPort = true
			name := fmt.Sprintf("c%d-p%d", ci, pi)
			if port.IsPublic {
				name += "-public"
			}
			ports = append(ports, k8s.ServicePort{
				Name:       name,
				Port:       port.ContainerPort,
				TargetPort: port.ContainerPort,
				Protocol:   strings.ToUpper(firstNonEmpty(port.Protocol, "TCP")),
			})
		}
	}
	if !hasPort {
		return k8s.Service{}, false
	}

	svc := k8s.Service{
		Kind:       "Service",
		APIVersion: "v1",
		Metadata: k8s.ObjectMeta{
			Name:      p.SID,
			Namespace: p.Namespace(),
			Labels:    map[string]string{labelPodUID: p.ID},
		},
		Spec: k8s.ServiceSpec{
			Selector: map[string]string{labelPodUID: p.ID},
			Ports:    ports,
		},
	}

	switch mode {
	case ServiceModeAWS:
		svc.Spec.Type = "LoadBalancer"
	case ServiceModeFloating:
		if nodeExternalIP != "" {
			svc.Spec.ExternalIPs = []string{nodeExternalIP}
		}
	case ServiceModePrivate:
		// no type, no external IPs — ClusterIP default, internal only.
	}
	return svc, true
}

// ServiceMode mirrors the IP-pool allocation mode, since Service synthesis
// is mode-dependent per spec.md §4.C/§4.D.
type ServiceMode int

const (
	ServiceModePrivate ServiceMode = iota
	ServiceModeFloating
	ServiceModeAWS
)

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
