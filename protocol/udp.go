package protocol

import (
	"encoding/binary"

	"github.com/probelab/probekit/field"
)

// UDP header: 8 bytes.
const udpHeaderSize = 8

// NewUDP returns the UDP descriptor. The length field defaults to the
// segment size. The checksum is left at zero ("no checksum"): deriving it
// would require the outer pseudo-header, which the descriptor context
// deliberately does not expose.
func NewUDP() Protocol {
	specs := []FieldSpec{
		{Name: "srcPort", Kind: field.KindUint16, Offset: 0, Width: 2},
		{Name: "dstPort", Kind: field.KindUint16, Offset: 2, Width: 2},
		{Name: "length", Kind: field.KindUint16, Offset: 4, Width: 2},
		{Name: "checksum", Kind: field.KindUint16, Offset: 6, Width: 2},
	}

	defaults := func(name string, ctx DefaultContext) ([]byte, bool) {
		switch name {
		case "length":
			if ctx.SegmentSize > 0xffff {
				return nil, false
			}
			return binary.BigEndian.AppendUint16(nil, uint16(ctx.SegmentSize)), true
		default:
			return nil, false
		}
	}

	return newDef(NameUDP, udpHeaderSize, specs, defaults)
}
