package ippool

import "testing"

func TestPoolBlockedSet(t *testing.T) {
	p := Pool{Network: "10.0.0.0/24", BlockedList: []uint32{1, 2, 3}}
	set := p.BlockedSet()
	if len(set) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(set))
	}
	for _, ip := range []uint32{1, 2, 3} {
		if _, ok := set[ip]; !ok {
			t.Errorf("missing %d in blocked set", ip)
		}
	}
}

func TestPoolNet(t *testing.T) {
	p := Pool{Network: "10.0.0.0/24"}
	n, err := p.net()
	if err != nil {
		t.Fatal(err)
	}
	if n.String() != "10.0.0.0/24" {
		t.Errorf("net() = %s, want 10.0.0.0/24", n.String())
	}
}

func TestPoolNetInvalid(t *testing.T) {
	p := Pool{Network: "not-a-cidr"}
	if _, err := p.net(); err == nil {
		t.Error("expected error for invalid network")
	}
}
