package ippool

import "testing"

func TestParseAutoblockEmpty(t *testing.T) {
	set, err := ParseAutoblock("")
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 0 {
		t.Errorf("expected empty set, got %v", set)
	}
}

func TestParseAutoblockSingleIPs(t *testing.T) {
	set, err := ParseAutoblock("10.0.0.1,10.0.0.4")
	if err != nil {
		t.Fatal(err)
	}
	a, _ := ParseIP("10.0.0.1")
	b, _ := ParseIP("10.0.0.4")
	if len(set) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(set))
	}
	if _, ok := set[a]; !ok {
		t.Error("missing 10.0.0.1")
	}
	if _, ok := set[b]; !ok {
		t.Error("missing 10.0.0.4")
	}
}

func TestParseAutoblockRange(t *testing.T) {
	set, err := ParseAutoblock("10.1.0.10-10.1.0.12")
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(set))
	}
}

func TestParseAutoblockMixed(t *testing.T) {
	set, err := ParseAutoblock("10.0.0.1, 10.1.0.10-10.1.0.12")
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(set))
	}
}

func TestParseAutoblockInvalid(t *testing.T) {
	cases := []string{
		"not-an-ip",
		"10.0.0.1-",
		"10.0.0.12-10.0.0.1",
		"10.0.0.1-10.0.0.2-10.0.0.3",
	}
	for _, c := range cases {
		if _, err := ParseAutoblock(c); err == nil {
			t.Errorf("ParseAutoblock(%q): expected error", c)
		}
	}
}
