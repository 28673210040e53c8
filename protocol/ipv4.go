package protocol

import (
	"encoding/binary"

	"github.com/probelab/probekit/field"
)

// IPv4 header without options: 20 bytes. Version and IHL share the first
// byte; the descriptor exposes them as a single byte-granular field since
// the field table is byte addressed.
const ipv4HeaderSize = 20

// IP protocol numbers for the descriptors this registry knows about.
var ipProtocolNumbers = map[string]uint8{
	NameICMPv4: 1,
	NameUDP:    17,
}

// NewIPv4 returns the IPv4 protocol descriptor. Derived defaults:
// versionIhl (0x45), ttl (64), protocol (from the nested layer),
// totalLength (segment size) and checksum (over the header).
func NewIPv4() Protocol {
	specs := []FieldSpec{
		{Name: "versionIhl", Kind: field.KindUint8, Offset: 0, Width: 1},
		{Name: "tos", Kind: field.KindUint8, Offset: 1, Width: 1},
		{Name: "totalLength", Kind: field.KindUint16, Offset: 2, Width: 2},
		{Name: "identification", Kind: field.KindUint16, Offset: 4, Width: 2},
		{Name: "flagsFragment", Kind: field.KindUint16, Offset: 6, Width: 2},
		{Name: "ttl", Kind: field.KindUint8, Offset: 8, Width: 1},
		{Name: "protocol", Kind: field.KindUint8, Offset: 9, Width: 1},
		{Name: "src", Kind: field.KindIPv4, Offset: 12, Width: 4},
		{Name: "dst", Kind: field.KindIPv4, Offset: 16, Width: 4},
		// Resolved last so it covers the final header content.
		{Name: "checksum", Kind: field.KindUint16, Offset: 10, Width: 2},
	}

	defaults := func(name string, ctx DefaultContext) ([]byte, bool) {
		switch name {
		case "versionIhl":
			return []byte{0x45}, true
		case "ttl":
			return []byte{64}, true
		case "protocol":
			num, ok := ipProtocolNumbers[ctx.NextProtocol]
			if !ok {
				return nil, false
			}
			return []byte{num}, true
		case "totalLength":
			// The 16-bit length cannot represent oversized segments;
			// the field is left zeroed rather than truncated.
			if ctx.SegmentSize > 0xffff {
				return nil, false
			}
			return binary.BigEndian.AppendUint16(nil, uint16(ctx.SegmentSize)), true
		case "checksum":
			return binary.BigEndian.AppendUint16(nil, Checksum(ctx.Header)), true
		default:
			return nil, false
		}
	}

	return newDef(NameIPv4, ipv4HeaderSize, specs, defaults)
}
