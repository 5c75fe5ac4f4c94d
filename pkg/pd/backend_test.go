package pd

import (
	"context"
	"testing"

	"github.com/kuberdock/kuberdock/pkg/k8s"
)

type fakeBackend struct{ name string }

func (f *fakeBackend) Name() string                       { return f.name }
func (f *fakeBackend) CreatePhysical(context.Context, string, int) error { return nil }
func (f *fakeBackend) DeletePhysical(context.Context, string) error      { return nil }
func (f *fakeBackend) EnrichVolume(string, string, *int) (k8s.Volume, error) {
	return k8s.Volume{}, nil
}
func (f *fakeBackend) NodeBound() bool { return false }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeBackend{name: "ceph"})
	r.Register(&fakeBackend{name: "aws"})

	got, err := r.Get("ceph")
	if err != nil {
		t.Fatalf("Get(ceph) error: %v", err)
	}
	if got.Name() != "ceph" {
		t.Errorf("Get(ceph).Name() = %q, want ceph", got.Name())
	}

	if _, err := r.Get("missing"); err == nil {
		t.Error("Get(missing) expected an error, got nil")
	}

	if len(r.All()) != 2 {
		t.Errorf("All() returned %d backends, want 2", len(r.All()))
	}
}
