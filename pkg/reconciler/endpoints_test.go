package reconciler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kuberdock/kuberdock/pkg/k8s"
)

type fakeNodeIPBinder struct {
	bound, unbound []string
}

func (f *fakeNodeIPBinder) Bind(ctx context.Context, host, podIP, publicIP string, ports []k8s.ServicePort) error {
	f.bound = append(f.bound, host)
	return nil
}

func (f *fakeNodeIPBinder) Unbind(ctx context.Context, host, podIP, publicIP string, ports []k8s.ServicePort) error {
	f.unbound = append(f.unbound, host)
	return nil
}

func TestResolveBindingNoSubsetsUnbindsAssigned(t *testing.T) {
	r := &Reconciler{nodeIPs: &fakeNodeIPBinder{}}
	binder := r.nodeIPs.(*fakeNodeIPBinder)

	host := "node-1"
	podIP := "10.0.0.5"
	state := &publicIPState{AssignedPublicIP: "1.2.3.4", AssignedTo: &host, AssignedPodIP: &podIP}

	changedState, err := r.resolveBinding(context.Background(), k8s.Endpoints{}, "MODIFIED", nil, state)
	if err != nil {
		t.Fatalf("resolveBinding() error: %v", err)
	}
	if !changedState {
		t.Error("resolveBinding() changed = false, want true")
	}
	if len(binder.unbound) != 1 || binder.unbound[0] != host {
		t.Errorf("unbound = %v, want [%s]", binder.unbound, host)
	}
	if state.AssignedTo != nil || state.AssignedPodIP != nil {
		t.Error("state still references a node after unbind")
	}
}

func TestResolveBindingNoSubsetsDeletedDoesNotUnbind(t *testing.T) {
	r := &Reconciler{nodeIPs: &fakeNodeIPBinder{}}
	binder := r.nodeIPs.(*fakeNodeIPBinder)

	host := "node-1"
	state := &publicIPState{AssignedPublicIP: "1.2.3.4", AssignedTo: &host}

	changedState, err := r.resolveBinding(context.Background(), k8s.Endpoints{}, "DELETED", nil, state)
	if err != nil {
		t.Fatalf("resolveBinding() error: %v", err)
	}
	if changedState {
		t.Error("resolveBinding() changed = true on a DELETED event with no subsets, want false")
	}
	if len(binder.unbound) != 0 {
		t.Errorf("unbound = %v, want none", binder.unbound)
	}
}

func TestResolveBindingMultipleSubsetsOutOfScope(t *testing.T) {
	r := &Reconciler{nodeIPs: &fakeNodeIPBinder{}}
	ep := k8s.Endpoints{Subsets: []k8s.EndpointSubset{{}, {}}}
	state := &publicIPState{AssignedPublicIP: "1.2.3.4"}

	changedState, err := r.resolveBinding(context.Background(), ep, "MODIFIED", nil, state)
	if err != nil {
		t.Fatalf("resolveBinding() error: %v", err)
	}
	if changedState {
		t.Error("resolveBinding() changed = true for a multi-subset endpoint, want false (out of scope)")
	}
}

func TestResolveBindingOneSubsetBindsToCurrentNode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		pod := k8s.Pod{Spec: k8s.PodSpec{NodeName: "node-2"}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pod)
	}))
	defer srv.Close()

	binder := &fakeNodeIPBinder{}
	r := &Reconciler{k8s: k8s.New(srv.URL, "v1"), nodeIPs: binder}

	ep := k8s.Endpoints{Subsets: []k8s.EndpointSubset{{
		Addresses: []k8s.EndpointAddress{{IP: "10.0.0.9", TargetRef: &k8s.ObjectMeta{Name: "my-pod"}}},
	}}}
	state := &publicIPState{AssignedPublicIP: "1.2.3.4"}

	changedState, err := r.resolveBinding(context.Background(), ep, "MODIFIED", nil, state)
	if err != nil {
		t.Fatalf("resolveBinding() error: %v", err)
	}
	if !changedState {
		t.Error("resolveBinding() changed = false, want true")
	}
	if len(binder.bound) != 1 || binder.bound[0] != "node-2" {
		t.Errorf("bound = %v, want [node-2]", binder.bound)
	}
	if state.AssignedTo == nil || *state.AssignedTo != "node-2" {
		t.Errorf("state.AssignedTo = %v, want node-2", state.AssignedTo)
	}
}

func TestResolveBindingOneSubsetMigratesToNewNode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		pod := k8s.Pod{Spec: k8s.PodSpec{NodeName: "node-3"}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pod)
	}))
	defer srv.Close()

	binder := &fakeNodeIPBinder{}
	r := &Reconciler{k8s: k8s.New(srv.URL, "v1"), nodeIPs: binder}

	oldHost := "node-2"
	oldPodIP := "10.0.0.9"
	ep := k8s.Endpoints{Subsets: []k8s.EndpointSubset{{
		Addresses: []k8s.EndpointAddress{{IP: "10.0.0.10", TargetRef: &k8s.ObjectMeta{Name: "my-pod"}}},
	}}}
	state := &publicIPState{AssignedPublicIP: "1.2.3.4", AssignedTo: &oldHost, AssignedPodIP: &oldPodIP}

	changedState, err := r.resolveBinding(context.Background(), ep, "MODIFIED", nil, state)
	if err != nil {
		t.Fatalf("resolveBinding() error: %v", err)
	}
	if !changedState {
		t.Error("resolveBinding() changed = false, want true")
	}
	if len(binder.unbound) != 1 || binder.unbound[0] != oldHost {
		t.Errorf("unbound = %v, want [%s]", binder.unbound, oldHost)
	}
	if len(binder.bound) != 1 || binder.bound[0] != "node-3" {
		t.Errorf("bound = %v, want [node-3]", binder.bound)
	}
	if state.AssignedTo == nil || *state.AssignedTo != "node-3" {
		t.Errorf("state.AssignedTo = %v, want node-3", state.AssignedTo)
	}
}

func TestResolveBindingOneSubsetNoPublicIPAssignedIsNoop(t *testing.T) {
	r := &Reconciler{nodeIPs: &fakeNodeIPBinder{}}
	ep := k8s.Endpoints{Subsets: []k8s.EndpointSubset{{
		Addresses: []k8s.EndpointAddress{{IP: "10.0.0.9", TargetRef: &k8s.ObjectMeta{Name: "my-pod"}}},
	}}}
	state := &publicIPState{}

	changedState, err := r.resolveBinding(context.Background(), ep, "MODIFIED", nil, state)
	if err != nil {
		t.Fatalf("resolveBinding() error: %v", err)
	}
	if changedState {
		t.Error("resolveBinding() changed = true with no public IP assigned, want false")
	}
}
