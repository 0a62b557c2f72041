package decoder

import (
	"encoding/binary"

	"icc.tech/pktbridge/internal/core"
)

const (
	ethernetHeaderLen = 14
	vlanHeaderLen     = 4

	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
	etherTypeVLAN = 0x8100
	etherTypeQinQ = 0x88A8
)

// decodeEthernet decodes the Ethernet header including VLAN tags.
// Returns the final EtherType, the outermost VLAN ID (0 if untagged) and the
// remaining payload.
func decodeEthernet(data []byte) (etherType uint16, vlan uint16, payload []byte, err error) {
	if len(data) < ethernetHeaderLen {
		return 0, 0, nil, core.ErrFrameTooShort
	}

	etherType = binary.BigEndian.Uint16(data[12:14])
	offset := ethernetHeaderLen

	// VLAN tags can be nested (QinQ); classification keys on the outermost ID.
	for etherType == etherTypeVLAN || etherType == etherTypeQinQ {
		if len(data) < offset+vlanHeaderLen {
			return 0, 0, nil, core.ErrFrameTooShort
		}

		tci := binary.BigEndian.Uint16(data[offset : offset+2])
		if vlan == 0 {
			vlan = tci & 0x0FFF // Lower 12 bits are the VLAN ID
		}

		etherType = binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += vlanHeaderLen
	}

	return etherType, vlan, data[offset:], nil
}
