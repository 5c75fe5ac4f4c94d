package pd

import "testing"

const (
	sepUserID   = "__SEPID__"
	sepUsername = "__SEP__"
)

func TestComposeName(t *testing.T) {
	got := ComposeName(sepUserID, "mydrive", 42)
	want := "mydrive__SEPID__42"
	if got != want {
		t.Errorf("ComposeName() = %q, want %q", got, want)
	}
}

func TestParseName(t *testing.T) {
	cases := []struct {
		name      string
		driveName string
		want      ParsedName
		wantOK    bool
	}{
		{
			name:      "id form",
			driveName: "mydrive__SEPID__42",
			want:      ParsedName{Drive: "mydrive", OwnerID: 42},
			wantOK:    true,
		},
		{
			name:      "legacy username form",
			driveName: "mydrive__SEP__alice",
			want:      ParsedName{Drive: "mydrive", OwnerName: "alice"},
			wantOK:    true,
		},
		{
			name:      "unparseable",
			driveName: "justadrivewithnoseparator",
			wantOK:    false,
		},
		{
			name:      "id form wins over username form when both separators present",
			driveName: "my__SEP__drive__SEPID__7",
			want:      ParsedName{Drive: "my__SEP__drive", OwnerID: 7},
			wantOK:    true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseName(sepUserID, sepUsername, tc.driveName)
			if ok != tc.wantOK {
				t.Fatalf("ParseName() ok = %v, want %v", ok, tc.wantOK)
			}
			if !tc.wantOK {
				return
			}
			if got != tc.want {
				t.Errorf("ParseName() = %+v, want %+v", got, tc.want)
			}
		})
	}
}
