// Package decoder implements L2-L4 header parsing for classification.
//
// The forwarding engine only needs the handful of header fields rules can
// match on, so frames are parsed with direct offset arithmetic instead of a
// full packet-decoding library. Payload bytes are never inspected.
package decoder

import (
	"icc.tech/pktbridge/internal/core"
)

// ParseHeader extracts the classification header view from a raw frame.
//
// Non-IP frames (ARP, LLDP, ...) are not an error: the returned header
// carries the EtherType and VLAN tag with zero-valued L3/L4 fields, and the
// rule set decides what happens to them. An error is returned only for
// frames too mangled to classify at all.
func ParseHeader(data []byte, ingress string) (core.Header, error) {
	hdr := core.Header{Ingress: ingress}

	etherType, vlan, payload, err := decodeEthernet(data)
	if err != nil {
		return core.Header{}, err
	}
	hdr.EtherType = etherType
	hdr.VLAN = vlan

	if !hdr.IsIP() {
		return hdr, nil
	}

	ip, payload, err := decodeIP(payload)
	if err != nil {
		return core.Header{}, err
	}
	hdr.Protocol = ip.protocol
	hdr.SrcIP = ip.src
	hdr.DstIP = ip.dst

	srcPort, dstPort, err := decodeTransport(payload, ip.protocol)
	if err != nil {
		return core.Header{}, err
	}
	hdr.SrcPort = srcPort
	hdr.DstPort = dstPort

	return hdr, nil
}
