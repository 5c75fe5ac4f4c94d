package pd

import "testing"

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Pending:  "pending",
		Created:  "created",
		ToDelete: "todelete",
		Deleted:  "deleted",
		State(99): "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestDiskInUse(t *testing.T) {
	pod := "pod-1"
	cases := []struct {
		name string
		disk Disk
		want bool
	}{
		{"unbound", Disk{}, false},
		{"bound", Disk{PodID: &pod}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.disk.InUse(); got != tc.want {
				t.Errorf("InUse() = %v, want %v", got, tc.want)
			}
		})
	}
}
