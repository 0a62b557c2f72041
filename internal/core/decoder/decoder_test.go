package decoder

import (
	"errors"
	"net/netip"
	"testing"

	"icc.tech/pktbridge/internal/core"
)

// makeUDPFrame builds an Ethernet+IPv4+UDP frame by hand.
func makeUDPFrame(srcPort, dstPort uint16) []byte {
	frame := make([]byte, 42) // Ethernet + IPv4 + UDP headers

	// Ethernet header (14 bytes)
	copy(frame[0:6], []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55})
	copy(frame[6:12], []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	frame[12], frame[13] = 0x08, 0x00 // EtherType: IPv4

	// IPv4 header (20 bytes)
	frame[14] = 0x45                  // Version 4, IHL 5
	frame[16], frame[17] = 0x00, 0x1C // Total length: 28
	frame[22] = 0x40                  // TTL: 64
	frame[23] = 0x11                  // Protocol: UDP
	copy(frame[26:30], []byte{192, 168, 1, 1})
	copy(frame[30:34], []byte{192, 168, 1, 2})

	// UDP header (8 bytes)
	frame[34] = byte(srcPort >> 8)
	frame[35] = byte(srcPort)
	frame[36] = byte(dstPort >> 8)
	frame[37] = byte(dstPort)
	frame[39] = 0x08 // Length: 8

	return frame
}

// makeVLANTCPFrame builds an Ethernet+802.1Q+IPv4+TCP frame by hand.
func makeVLANTCPFrame(vlanID uint16) []byte {
	frame := make([]byte, 58) // Ethernet + VLAN + IPv4 + TCP headers

	copy(frame[0:6], []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55})
	copy(frame[6:12], []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	frame[12], frame[13] = 0x81, 0x00 // EtherType: 802.1Q

	// VLAN tag (4 bytes): TCI with VLAN ID, inner EtherType IPv4
	frame[14] = byte(vlanID >> 8)
	frame[15] = byte(vlanID)
	frame[16], frame[17] = 0x08, 0x00

	// IPv4 header (20 bytes) at offset 18
	frame[18] = 0x45
	frame[20], frame[21] = 0x00, 0x28 // Total length: 40
	frame[26] = 0x40                  // TTL
	frame[27] = 0x06                  // Protocol: TCP
	copy(frame[30:34], []byte{10, 0, 0, 1})
	copy(frame[34:38], []byte{10, 0, 0, 2})

	// TCP header (20 bytes) at offset 38
	frame[38], frame[39] = 0x1F, 0x90 // Src port: 8080
	frame[40], frame[41] = 0x01, 0xBB // Dst port: 443
	frame[50] = 0x50                  // Data offset: 5

	return frame
}

func TestParseHeaderUDP(t *testing.T) {
	hdr, err := ParseHeader(makeUDPFrame(5000, 1900), "eth0")
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}

	if hdr.Ingress != "eth0" {
		t.Errorf("Expected ingress eth0, got %s", hdr.Ingress)
	}
	if hdr.EtherType != 0x0800 {
		t.Errorf("Expected EtherType 0x0800, got 0x%04x", hdr.EtherType)
	}
	if hdr.Protocol != 17 {
		t.Errorf("Expected protocol 17 (UDP), got %d", hdr.Protocol)
	}
	if hdr.SrcIP != netip.MustParseAddr("192.168.1.1") {
		t.Errorf("Expected SrcIP 192.168.1.1, got %v", hdr.SrcIP)
	}
	if hdr.DstIP != netip.MustParseAddr("192.168.1.2") {
		t.Errorf("Expected DstIP 192.168.1.2, got %v", hdr.DstIP)
	}
	if hdr.SrcPort != 5000 || hdr.DstPort != 1900 {
		t.Errorf("Expected ports 5000/1900, got %d/%d", hdr.SrcPort, hdr.DstPort)
	}
}

func TestParseHeaderVLANTCP(t *testing.T) {
	hdr, err := ParseHeader(makeVLANTCPFrame(100), "eth1")
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}

	if hdr.VLAN != 100 {
		t.Errorf("Expected VLAN 100, got %d", hdr.VLAN)
	}
	if hdr.Protocol != 6 {
		t.Errorf("Expected protocol 6 (TCP), got %d", hdr.Protocol)
	}
	if hdr.SrcPort != 8080 || hdr.DstPort != 443 {
		t.Errorf("Expected ports 8080/443, got %d/%d", hdr.SrcPort, hdr.DstPort)
	}
}

func TestParseHeaderNonIP(t *testing.T) {
	// ARP frame: valid Ethernet header, EtherType 0x0806
	frame := make([]byte, 42)
	frame[12], frame[13] = 0x08, 0x06

	hdr, err := ParseHeader(frame, "eth0")
	if err != nil {
		t.Fatalf("ParseHeader failed on ARP frame: %v", err)
	}
	if hdr.IsIP() {
		t.Error("ARP frame reported as IP")
	}
	if hdr.Protocol != 0 {
		t.Errorf("Expected protocol 0 for non-IP frame, got %d", hdr.Protocol)
	}
}

func TestParseHeaderTooShort(t *testing.T) {
	for _, size := range []int{0, 3, 13} {
		_, err := ParseHeader(make([]byte, size), "eth0")
		if !errors.Is(err, core.ErrFrameTooShort) {
			t.Errorf("Expected ErrFrameTooShort for %d-byte frame, got %v", size, err)
		}
	}
}

func TestParseHeaderTruncatedIP(t *testing.T) {
	frame := makeUDPFrame(5000, 1900)[:20] // Cuts into the IPv4 header
	if _, err := ParseHeader(frame, "eth0"); !errors.Is(err, core.ErrFrameTooShort) {
		t.Errorf("Expected ErrFrameTooShort for truncated IP header, got %v", err)
	}
}

func BenchmarkParseHeader(b *testing.B) {
	frame := makeUDPFrame(5000, 1900)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseHeader(frame, "eth0"); err != nil {
			b.Fatal(err)
		}
	}
}
