// Package field provides the typed, named values that are written into and
// read back from packet header bytes. Fields carry their own big-endian
// serialization so that layers can stay agnostic of value semantics.
package field

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/netip"
)

// Kind is a closed tag describing how a field value is serialized.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUint8
	KindUint16
	KindUint32
	KindBytes
	KindIPv4
)

func (k Kind) String() string {
	switch k {
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindBytes:
		return "bytes"
	case KindIPv4:
		return "ipv4"
	default:
		return "invalid"
	}
}

// Field is an immutable named value. The zero value is not usable; construct
// fields with Uint8, Uint16, Uint32, Bytes, IPv4 or Decode.
type Field struct {
	name  string
	kind  Kind
	value []byte
}

// Uint8 constructs a one-byte field.
func Uint8(name string, v uint8) Field {
	return Field{name: name, kind: KindUint8, value: []byte{v}}
}

// Uint16 constructs a two-byte field in network byte order.
func Uint16(name string, v uint16) Field {
	return Field{name: name, kind: KindUint16, value: binary.BigEndian.AppendUint16(nil, v)}
}

// Uint32 constructs a four-byte field in network byte order.
func Uint32(name string, v uint32) Field {
	return Field{name: name, kind: KindUint32, value: binary.BigEndian.AppendUint32(nil, v)}
}

// Bytes constructs an opaque field from a copy of the given bytes.
func Bytes(name string, v []byte) Field {
	value := make([]byte, len(v))
	copy(value, v)
	return Field{name: name, kind: KindBytes, value: value}
}

// IPv4 constructs a four-byte address field. The address must be an IPv4
// address; IPv4-mapped IPv6 addresses are unmapped first.
func IPv4(name string, addr netip.Addr) (Field, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return Field{}, fmt.Errorf("field %q: address %s is not IPv4", name, addr)
	}
	v := addr.As4()
	return Field{name: name, kind: KindIPv4, value: v[:]}, nil
}

// Decode reconstructs a field of the given kind from its raw serialization.
// The raw length must match the kind's width exactly, except for KindBytes
// which accepts any length.
func Decode(name string, kind Kind, raw []byte) (Field, error) {
	switch kind {
	case KindUint8:
		if len(raw) != 1 {
			return Field{}, fmt.Errorf("field %q: uint8 wants 1 byte, got %d", name, len(raw))
		}
	case KindUint16:
		if len(raw) != 2 {
			return Field{}, fmt.Errorf("field %q: uint16 wants 2 bytes, got %d", name, len(raw))
		}
	case KindUint32:
		if len(raw) != 4 {
			return Field{}, fmt.Errorf("field %q: uint32 wants 4 bytes, got %d", name, len(raw))
		}
	case KindIPv4:
		if len(raw) != 4 {
			return Field{}, fmt.Errorf("field %q: ipv4 wants 4 bytes, got %d", name, len(raw))
		}
	case KindBytes:
	default:
		return Field{}, fmt.Errorf("field %q: unknown kind %d", name, kind)
	}

	value := make([]byte, len(raw))
	copy(value, raw)
	return Field{name: name, kind: kind, value: value}, nil
}

// Name returns the field's name as declared by its protocol.
func (f Field) Name() string { return f.name }

// Kind returns the field's serialization tag.
func (f Field) Kind() Kind { return f.kind }

// Width returns the serialized length in bytes.
func (f Field) Width() int { return len(f.value) }

// Bytes returns a copy of the field's big-endian serialization.
func (f Field) Bytes() []byte {
	out := make([]byte, len(f.value))
	copy(out, f.value)
	return out
}

// Uint returns the field value as an unsigned integer. Only meaningful for
// the fixed-width integer kinds; other kinds return 0.
func (f Field) Uint() uint64 {
	switch f.kind {
	case KindUint8:
		return uint64(f.value[0])
	case KindUint16:
		return uint64(binary.BigEndian.Uint16(f.value))
	case KindUint32:
		return uint64(binary.BigEndian.Uint32(f.value))
	default:
		return 0
	}
}

// Addr returns the field value as an IPv4 address. Only meaningful for
// KindIPv4; other kinds return the zero Addr.
func (f Field) Addr() netip.Addr {
	if f.kind != KindIPv4 || len(f.value) != 4 {
		return netip.Addr{}
	}
	return netip.AddrFrom4([4]byte(f.value))
}

// Equal reports whether two fields have the same name, kind and value.
func (f Field) Equal(other Field) bool {
	if f.name != other.name || f.kind != other.kind || len(f.value) != len(other.value) {
		return false
	}
	for i := range f.value {
		if f.value[i] != other.value[i] {
			return false
		}
	}
	return true
}

// ValueString renders the value for human-readable dumps.
func (f Field) ValueString() string {
	switch f.kind {
	case KindUint8, KindUint16, KindUint32:
		return fmt.Sprintf("%d", f.Uint())
	case KindIPv4:
		return f.Addr().String()
	default:
		return hex.EncodeToString(f.value)
	}
}

func (f Field) String() string {
	return fmt.Sprintf("%s=%s", f.name, f.ValueString())
}
