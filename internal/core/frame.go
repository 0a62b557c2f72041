// Package core defines core data structures with zero external dependencies.
package core

import (
	"net/netip"
	"time"
)

// Frame is one link-layer frame moving through the forwarding pipeline.
// A Frame is owned by exactly one pipeline stage at a time; Data is never
// mutated after intake, so duplicating a frame to several egress queues
// shares the same backing slice.
type Frame struct {
	Data      []byte    // Full frame, copied out of the capture ring at intake
	Header    Header    // Parsed L2-L4 view used for classification
	Ingress   string    // Name of the interface the frame arrived on
	Timestamp time.Time // Capture timestamp (kernel timestamp preferred)
	WireLen   int       // Original frame length on the wire
}

// Header is the parsed header view a frame is classified on.
// Non-IP frames carry only EtherType and VLAN; Protocol stays 0.
type Header struct {
	Ingress   string // Ingress interface name, part of the classification key
	EtherType uint16 // 0x0800=IPv4, 0x86DD=IPv6; other values = non-IP
	VLAN      uint16 // Outermost VLAN ID, 0 = untagged
	Protocol  uint8  // L4 protocol (TCP=6, UDP=17), 0 for non-IP frames
	SrcIP     netip.Addr
	DstIP     netip.Addr
	SrcPort   uint16 // 0 unless TCP/UDP
	DstPort   uint16 // 0 unless TCP/UDP
}

// IsIP reports whether the frame carried an IPv4 or IPv6 payload.
func (h Header) IsIP() bool {
	return h.EtherType == 0x0800 || h.EtherType == 0x86DD
}
