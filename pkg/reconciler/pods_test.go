package reconciler

import (
	"testing"

	"github.com/kuberdock/kuberdock/pkg/k8s"
)

func TestDockerID(t *testing.T) {
	cases := map[string]string{
		"docker://abc123": "abc123",
		"abc123":          "abc123",
		"":                "",
	}
	for in, want := range cases {
		if got := dockerID(in); got != want {
			t.Errorf("dockerID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPodStateVector(t *testing.T) {
	pod := k8s.Pod{
		Status: k8s.PodStatus{
			Phase: "Running",
			ContainerStatuses: []k8s.ContainerStatus{
				{Name: "web", Ready: true},
				{Name: "sidecar", Ready: false},
			},
		},
	}
	want := `["Running",true,false]`
	if got := podStateVector(pod); got != want {
		t.Errorf("podStateVector() = %q, want %q", got, want)
	}
}

func TestPodStateVectorNoContainers(t *testing.T) {
	pod := k8s.Pod{Status: k8s.PodStatus{Phase: "Pending"}}
	want := `["Pending"]`
	if got := podStateVector(pod); got != want {
		t.Errorf("podStateVector() = %q, want %q", got, want)
	}
}
