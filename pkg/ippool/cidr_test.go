package ippool

import (
	"testing"
)

func TestHostCountAndPageCount(t *testing.T) {
	cases := []struct {
		cidr      string
		hostCount int
		pages     int
	}{
		{"10.0.0.0/24", 256, 1},
		{"10.0.0.0/23", 512, 2},
		{"10.0.0.0/16", 65536, 256},
		{"10.0.0.0/31", 2, 1},
		{"10.0.0.0/32", 1, 1},
	}
	for _, tc := range cases {
		network, err := ParseCIDR(tc.cidr)
		if err != nil {
			t.Fatalf("ParseCIDR(%s): %v", tc.cidr, err)
		}
		if got := HostCount(network); got != tc.hostCount {
			t.Errorf("HostCount(%s) = %d, want %d", tc.cidr, got, tc.hostCount)
		}
		if got := PageCount(network); got != tc.pages {
			t.Errorf("PageCount(%s) = %d, want %d", tc.cidr, got, tc.pages)
		}
	}
}

func TestHostsPageExcludesNetworkAndBroadcast(t *testing.T) {
	network, err := ParseCIDR("192.168.1.0/24")
	if err != nil {
		t.Fatal(err)
	}
	page := HostsPage(network, 1)
	if len(page) != 254 {
		t.Fatalf("expected 254 usable hosts, got %d", len(page))
	}
	if FormatIP(page[0]) != "192.168.1.1" {
		t.Errorf("first host = %s, want 192.168.1.1", FormatIP(page[0]))
	}
	if FormatIP(page[len(page)-1]) != "192.168.1.254" {
		t.Errorf("last host = %s, want 192.168.1.254", FormatIP(page[len(page)-1]))
	}
}

func TestHostsPageSlash31And32(t *testing.T) {
	for _, cidr := range []string{"10.0.0.0/31", "10.0.0.4/32"} {
		network, err := ParseCIDR(cidr)
		if err != nil {
			t.Fatal(err)
		}
		page := HostsPage(network, 1)
		if len(page) != 1 {
			t.Fatalf("HostsPage(%s, 1) = %v, want single network address", cidr, page)
		}
		if HostsPage(network, 2) != nil {
			t.Errorf("HostsPage(%s, 2) should be empty", cidr)
		}
	}
}

func TestHostsPagePagination(t *testing.T) {
	network, err := ParseCIDR("10.0.0.0/23")
	if err != nil {
		t.Fatal(err)
	}
	var all []uint32
	for page := 1; page <= PageCount(network); page++ {
		all = append(all, HostsPage(network, page)...)
	}
	if len(all) != 510 {
		t.Fatalf("total usable hosts = %d, want 510", len(all))
	}
	if got := Hosts(network); len(got) != len(all) {
		t.Errorf("Hosts() length = %d, want %d", len(got), len(all))
	}
}

func TestOverlaps(t *testing.T) {
	a, _ := ParseCIDR("10.0.0.0/24")
	b, _ := ParseCIDR("10.0.0.128/25")
	c, _ := ParseCIDR("10.0.1.0/24")
	if !Overlaps(a, b) {
		t.Error("expected 10.0.0.0/24 and 10.0.0.128/25 to overlap")
	}
	if Overlaps(a, c) {
		t.Error("expected 10.0.0.0/24 and 10.0.1.0/24 not to overlap")
	}
}

func TestFormatAndParseIPRoundTrip(t *testing.T) {
	ip, err := ParseIP("192.168.1.42")
	if err != nil {
		t.Fatal(err)
	}
	if got := FormatIP(ip); got != "192.168.1.42" {
		t.Errorf("round trip = %s, want 192.168.1.42", got)
	}
}

func TestParseIPRejectsInvalid(t *testing.T) {
	if _, err := ParseIP("not-an-ip"); err == nil {
		t.Error("expected error for invalid ip")
	}
	if _, err := ParseIP("::1"); err == nil {
		t.Error("expected error for ipv6 address")
	}
}
