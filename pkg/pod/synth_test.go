package pod

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/kuberdock/kuberdock/pkg/catalog"
)

func TestKubeTypeSelector(t *testing.T) {
	if got, want := kubeTypeSelector(2), "type_2"; got != want {
		t.Errorf("kubeTypeSelector(2) = %q, want %q", got, want)
	}
}

func TestDumpPorts(t *testing.T) {
	containers := []Container{
		{Ports: []Port{{ContainerPort: 80, IsPublic: true}}},
		{Ports: nil},
	}
	raw := dumpPorts(containers)

	var decoded [][]Port
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("dumpPorts produced invalid JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("dumpPorts: got %d container entries, want 2", len(decoded))
	}
	if !decoded[0][0].IsPublic {
		t.Error("dumpPorts: first container's port lost isPublic")
	}
}

func TestBuildContainersStripsHostPortForNonInternal(t *testing.T) {
	kube := catalog.Kube{CPUFraction: 1, MemoryMB: 128}
	containers := []Container{{
		Name:  "web",
		Image: "nginx",
		Kubes: 1,
		Ports: []Port{{ContainerPort: 80, HostPort: 8080, Protocol: "tcp"}},
	}}

	out := BuildContainers(containers, kube, false, nil)
	if len(out) != 1 || len(out[0].Ports) != 1 {
		t.Fatalf("BuildContainers() = %+v, want one container with one port", out)
	}
	if out[0].Ports[0].HostPort != 0 {
		t.Errorf("non-internal owner: HostPort = %d, want 0", out[0].Ports[0].HostPort)
	}
	if out[0].Ports[0].Protocol != "TCP" {
		t.Errorf("Protocol = %q, want uppercased TCP", out[0].Ports[0].Protocol)
	}
	if out[0].ImagePullPolicy != "Always" {
		t.Errorf("ImagePullPolicy = %q, want Always", out[0].ImagePullPolicy)
	}
}

func TestBuildContainersKeepsHostPortForInternal(t *testing.T) {
	kube := catalog.Kube{CPUFraction: 1, MemoryMB: 128}
	containers := []Container{{Name: "web", Ports: []Port{{ContainerPort: 80, HostPort: 8080}}}}

	out := BuildContainers(containers, kube, true, nil)
	if out[0].Ports[0].HostPort != 8080 {
		t.Errorf("internal owner: HostPort = %d, want 8080", out[0].Ports[0].HostPort)
	}
}

func TestBuildContainersRBDMountRewrite(t *testing.T) {
	kube := catalog.Kube{CPUFraction: 1, MemoryMB: 128}
	containers := []Container{{
		Name:         "web",
		VolumeMounts: []VolumeMount{{Name: "data", MountPath: "/data"}},
	}}

	out := BuildContainers(containers, kube, false, map[string]bool{"data": true})
	if got := out[0].VolumeMounts[0].MountPath; got != "/data:Z" {
		t.Errorf("RBD mountPath = %q, want /data:Z", got)
	}
}

func TestBuildContainersMountCommandAddsSysAdmin(t *testing.T) {
	kube := catalog.Kube{CPUFraction: 1, MemoryMB: 128}
	containers := []Container{{Name: "web", MountCommand: true}}

	out := BuildContainers(containers, kube, false, nil)
	if out[0].SecurityContext == nil || out[0].SecurityContext.Capabilities == nil {
		t.Fatal("MountCommand container missing SecurityContext.Capabilities")
	}
	if !strings.Contains(strings.Join(out[0].SecurityContext.Capabilities.Add, ","), "SYS_ADMIN") {
		t.Errorf("capabilities = %v, want SYS_ADMIN", out[0].SecurityContext.Capabilities.Add)
	}
}

func TestBuildServiceNoPortsReturnsFalse(t *testing.T) {
	p := Pod{ID: "pod-1", SID: "sid-1"}
	spec := Spec{Containers: []Container{{Name: "web"}}}

	_, ok := BuildService(p, spec, nil, ServiceModePrivate, "")
	if ok {
		t.Error("BuildService() with no ports: ok = true, want false")
	}
}

func TestBuildServiceNaming(t *testing.T) {
	p := Pod{ID: "pod-1", SID: "sid-1"}
	spec := Spec{Containers: []Container{{
		Name: "web",
		Ports: []Port{
			{ContainerPort: 80, IsPublic: true},
			{ContainerPort: 443},
		},
	}}}

	svc, ok := BuildService(p, spec, nil, ServiceModeFloating, "1.2.3.4")
	if !ok {
		t.Fatal("BuildService() ok = false, want true")
	}
	if svc.Spec.Ports[0].Name != "c0-p0-public" {
		t.Errorf("first port name = %q, want c0-p0-public", svc.Spec.Ports[0].Name)
	}
	if svc.Spec.Ports[1].Name != "c0-p1" {
		t.Errorf("second port name = %q, want c0-p1", svc.Spec.Ports[1].Name)
	}
	if len(svc.Spec.ExternalIPs) != 1 || svc.Spec.ExternalIPs[0] != "1.2.3.4" {
		t.Errorf("floating mode ExternalIPs = %v, want [1.2.3.4]", svc.Spec.ExternalIPs)
	}
}

func TestBuildServiceAWSModeUsesLoadBalancer(t *testing.T) {
	p := Pod{ID: "pod-1", SID: "sid-1"}
	spec := Spec{Containers: []Container{{Ports: []Port{{ContainerPort: 80}}}}}

	svc, ok := BuildService(p, spec, nil, ServiceModeAWS, "")
	if !ok {
		t.Fatal("BuildService() ok = false, want true")
	}
	if svc.Spec.Type != "LoadBalancer" {
		t.Errorf("Type = %q, want LoadBalancer", svc.Spec.Type)
	}
}

func TestBuildReplicationControllerInternalKubeTypeHasNoSelector(t *testing.T) {
	p := Pod{ID: "pod-1", SID: "sid-1"}
	spec := Spec{KubeType: catalog.InternalKubeID}

	rc := BuildReplicationController(p, spec, 1, nil, nil, nil)
	if _, ok := rc.Spec.Template.Spec.NodeSelector[labelKubeType]; ok {
		t.Error("internal kube type: NodeSelector should have no kube-type key")
	}
}

func TestBuildReplicationControllerSetsNodeSelector(t *testing.T) {
	p := Pod{ID: "pod-1", SID: "sid-1"}
	spec := Spec{KubeType: 3}

	rc := BuildReplicationController(p, spec, 1, nil, nil, nil)
	if got, want := rc.Spec.Template.Spec.NodeSelector[labelKubeType], "type_3"; got != want {
		t.Errorf("NodeSelector[%s] = %q, want %q", labelKubeType, got, want)
	}
}
