package decoder

import (
	"encoding/binary"

	"icc.tech/pktbridge/internal/core"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20

	protocolTCP = 6
	protocolUDP = 17
)

// decodeTransport extracts source and destination ports for TCP and UDP.
// Other transport protocols (ICMP, SCTP, ...) classify on protocol number
// alone and report zero ports.
func decodeTransport(data []byte, protocol uint8) (srcPort, dstPort uint16, err error) {
	switch protocol {
	case protocolTCP:
		if len(data) < tcpHeaderMinLen {
			return 0, 0, core.ErrFrameTooShort
		}
	case protocolUDP:
		if len(data) < udpHeaderLen {
			return 0, 0, core.ErrFrameTooShort
		}
	default:
		return 0, 0, nil
	}

	// TCP and UDP both put the port pair in the first four bytes.
	return binary.BigEndian.Uint16(data[0:2]), binary.BigEndian.Uint16(data[2:4]), nil
}
