package firewallports

import "testing"

func TestProtocolValid(t *testing.T) {
	if !ProtocolTCP.valid() {
		t.Error("tcp should be valid")
	}
	if !ProtocolUDP.valid() {
		t.Error("udp should be valid")
	}
	if Protocol("icmp").valid() {
		t.Error("icmp should not be valid")
	}
}
