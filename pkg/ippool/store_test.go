package ippool

import "testing"

func TestFirstFreePrefersAvailablePreferredIP(t *testing.T) {
	network, _ := ParseCIDR("10.0.0.0/24")
	preferred, _ := ParseIP("10.0.0.5")
	ip, ok := firstFree(network, map[uint32]struct{}{}, map[uint32]struct{}{}, preferred, true)
	if !ok || ip != preferred {
		t.Fatalf("firstFree = %d, %v; want preferred ip %d", ip, ok, preferred)
	}
}

func TestFirstFreeFallsBackWhenPreferredTaken(t *testing.T) {
	network, _ := ParseCIDR("10.0.0.0/24")
	preferred, _ := ParseIP("10.0.0.1")
	taken := map[uint32]struct{}{preferred: {}}
	ip, ok := firstFree(network, taken, map[uint32]struct{}{}, preferred, true)
	if !ok {
		t.Fatal("expected a free ip")
	}
	if ip == preferred {
		t.Fatal("should not return the taken preferred ip")
	}
	want, _ := ParseIP("10.0.0.2")
	if ip != want {
		t.Errorf("firstFree = %d, want %d (first free after taken)", ip, want)
	}
}

func TestFirstFreeSkipsBlockedAndTaken(t *testing.T) {
	network, _ := ParseCIDR("10.0.0.0/30")
	h1, _ := ParseIP("10.0.0.1")
	h2, _ := ParseIP("10.0.0.2")
	taken := map[uint32]struct{}{h1: {}}
	blocked := map[uint32]struct{}{h2: {}}
	_, ok := firstFree(network, taken, blocked, 0, false)
	if ok {
		t.Fatal("expected no free host: /30 has only 2 usable hosts, both excluded")
	}
}

func TestFirstFreeNoHostsAvailable(t *testing.T) {
	network, _ := ParseCIDR("10.0.0.0/31")
	base, _ := ParseIP("10.0.0.0")
	taken := map[uint32]struct{}{base: {}}
	_, ok := firstFree(network, taken, map[uint32]struct{}{}, 0, false)
	if ok {
		t.Fatal("expected no free host when the only /31 address is taken")
	}
}

func TestIPAvailableRejectsOutOfNetwork(t *testing.T) {
	network, _ := ParseCIDR("10.0.0.0/24")
	outside, _ := ParseIP("10.0.1.5")
	if ipAvailable(network, nil, nil, outside) {
		t.Error("expected ip outside the network to be unavailable")
	}
}
