package reconciler

import (
	"testing"

	"github.com/kuberdock/kuberdock/pkg/k8s"
)

func TestNodeStateVector(t *testing.T) {
	node := k8s.Node{
		Status: k8s.NodeStatus{
			Conditions: []k8s.NodeCondition{
				{Type: "Ready", Status: "True"},
				{Type: "MemoryPressure", Status: "False"},
			},
		},
	}
	want := `["Ready","True","MemoryPressure","False"]`
	if got := nodeStateVector(node); got != want {
		t.Errorf("nodeStateVector() = %q, want %q", got, want)
	}
}

func TestNodeStateVectorNoConditions(t *testing.T) {
	node := k8s.Node{}
	want := `[""]`
	if got := nodeStateVector(node); got != want {
		t.Errorf("nodeStateVector() = %q, want %q", got, want)
	}
}
