package pod

import (
	"strings"
	"testing"
)

func TestSpecKubeCount(t *testing.T) {
	s := Spec{Containers: []Container{{Kubes: 1}, {Kubes: 3}, {Kubes: 0}}}
	if got, want := s.KubeCount(), 4; got != want {
		t.Errorf("KubeCount() = %d, want %d", got, want)
	}
}

func TestSpecHasLocalStorage(t *testing.T) {
	without := Spec{Volumes: []Volume{{Name: "v1", PersistentDisk: &PersistentVol{PDName: "d"}}}}
	if without.HasLocalStorage() {
		t.Error("HasLocalStorage() = true, want false")
	}

	with := Spec{Volumes: []Volume{{Name: "v1", LocalStorage: &LocalStorage{}}}}
	if !with.HasLocalStorage() {
		t.Error("HasLocalStorage() = false, want true")
	}
}

func TestPodPinned(t *testing.T) {
	ip := "1.2.3.4"
	cases := []struct {
		name            string
		pod             Pod
		hasLocalStorage bool
		want            bool
	}{
		{"nothing pins it", Pod{}, false, false},
		{"local storage pins it", Pod{}, true, true},
		{"public ip pins it", Pod{PublicIP: &ip}, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pod.Pinned(tc.hasLocalStorage); got != tc.want {
				t.Errorf("Pinned() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPodSpecRoundtrip(t *testing.T) {
	p := Pod{ConfigJSON: []byte(`{"name":"web","kube_type":1,"containers":[{"name":"c1","image":"nginx","kubes":1}]}`)}
	spec, err := p.Spec()
	if err != nil {
		t.Fatalf("Spec() error: %v", err)
	}
	if spec.Name != "web" || spec.KubeType != 1 || len(spec.Containers) != 1 {
		t.Errorf("Spec() = %+v, want name=web kube_type=1 with 1 container", spec)
	}
}

func TestPodSpecEmptyConfig(t *testing.T) {
	p := Pod{}
	spec, err := p.Spec()
	if err != nil {
		t.Fatalf("Spec() error: %v", err)
	}
	if spec.Name != "" {
		t.Errorf("Spec() on empty config = %+v, want zero value", spec)
	}
}

func TestPodNamespaceIsID(t *testing.T) {
	p := Pod{ID: "abc-123"}
	if got := p.Namespace(); got != "abc-123" {
		t.Errorf("Namespace() = %q, want %q", got, "abc-123")
	}
}

func TestNewIDFormatAndUniqueness(t *testing.T) {
	id1, err := newID()
	if err != nil {
		t.Fatalf("newID() error: %v", err)
	}
	id2, err := newID()
	if err != nil {
		t.Fatalf("newID() error: %v", err)
	}
	if id1 == id2 {
		t.Error("newID() produced the same id twice")
	}
	parts := strings.Split(id1, "-")
	if len(parts) != 5 {
		t.Fatalf("newID() = %q, want 5 hyphen-separated groups", id1)
	}
	lens := []int{8, 4, 4, 4, 12}
	for i, want := range lens {
		if len(parts[i]) != want {
			t.Errorf("newID() group %d = %q (len %d), want len %d", i, parts[i], len(parts[i]), want)
		}
	}
	if parts[2][0] != '4' {
		t.Errorf("newID() version nibble = %q, want 4", parts[2][0])
	}
}
