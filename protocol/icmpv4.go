package protocol

import (
	"encoding/binary"

	"github.com/probelab/probekit/field"
)

// ICMPv4 echo header: 8 bytes.
const icmpv4HeaderSize = 8

const icmpv4TypeEchoRequest = 8

// NewICMPv4 returns the ICMPv4 descriptor with the echo message layout.
// Derived defaults: type (echo request) and checksum over header plus
// payload.
func NewICMPv4() Protocol {
	specs := []FieldSpec{
		{Name: "type", Kind: field.KindUint8, Offset: 0, Width: 1},
		{Name: "code", Kind: field.KindUint8, Offset: 1, Width: 1},
		{Name: "identifier", Kind: field.KindUint16, Offset: 4, Width: 2},
		{Name: "sequence", Kind: field.KindUint16, Offset: 6, Width: 2},
		{Name: "checksum", Kind: field.KindUint16, Offset: 2, Width: 2},
	}

	defaults := func(name string, ctx DefaultContext) ([]byte, bool) {
		switch name {
		case "type":
			return []byte{icmpv4TypeEchoRequest}, true
		case "checksum":
			return binary.BigEndian.AppendUint16(nil, Checksum(ctx.Header, ctx.Payload)), true
		default:
			return nil, false
		}
	}

	return newDef(NameICMPv4, icmpv4HeaderSize, specs, defaults)
}
