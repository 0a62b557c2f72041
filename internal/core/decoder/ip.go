package decoder

import (
	"net/netip"

	"icc.tech/pktbridge/internal/core"
)

const (
	ipv4HeaderMinLen = 20
	ipv6HeaderLen    = 40
)

// ipHeader is the subset of the IP header the classifier needs.
type ipHeader struct {
	protocol uint8
	src      netip.Addr
	dst      netip.Addr
}

// decodeIP decodes an IPv4 or IPv6 header.
// Returns the header fields and the transport-layer payload.
func decodeIP(data []byte) (ipHeader, []byte, error) {
	if len(data) < 1 {
		return ipHeader{}, nil, core.ErrFrameTooShort
	}

	switch data[0] >> 4 {
	case 4:
		return decodeIPv4(data)
	case 6:
		return decodeIPv6(data)
	default:
		return ipHeader{}, nil, core.ErrUnsupportedProto
	}
}

func decodeIPv4(data []byte) (ipHeader, []byte, error) {
	if len(data) < ipv4HeaderMinLen {
		return ipHeader{}, nil, core.ErrFrameTooShort
	}

	// IHL is in 32-bit words, lower 4 bits of the first byte.
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen || len(data) < headerLen {
		return ipHeader{}, nil, core.ErrFrameTooShort
	}

	ip := ipHeader{protocol: data[9]}

	addr, ok := netip.AddrFromSlice(data[12:16])
	if !ok {
		return ip, nil, core.ErrFrameTooShort
	}
	ip.src = addr

	addr, ok = netip.AddrFromSlice(data[16:20])
	if !ok {
		return ip, nil, core.ErrFrameTooShort
	}
	ip.dst = addr

	return ip, data[headerLen:], nil
}

func decodeIPv6(data []byte) (ipHeader, []byte, error) {
	if len(data) < ipv6HeaderLen {
		return ipHeader{}, nil, core.ErrFrameTooShort
	}

	// Next Header at offset 6 is the IPv4 Protocol equivalent. Extension
	// headers are not walked; frames using them classify as their first
	// extension header protocol and fall through to non-TCP/UDP matching.
	ip := ipHeader{protocol: data[6]}

	addr, ok := netip.AddrFromSlice(data[8:24])
	if !ok {
		return ip, nil, core.ErrFrameTooShort
	}
	ip.src = addr

	addr, ok = netip.AddrFromSlice(data[24:40])
	if !ok {
		return ip, nil, core.ErrFrameTooShort
	}
	ip.dst = addr

	return ip, data[ipv6HeaderLen:], nil
}
