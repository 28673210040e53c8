package probe

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"strconv"

	"github.com/probelab/probekit/field"
	"github.com/probelab/probekit/protocol"
)

// Spec declares one packet: an ordered list of protocol layers, outermost
// first, followed by the terminal payload. It is the YAML surface of the
// build CLI.
type Spec struct {
	// Layers lists the protocol layers, outermost first.
	Layers []LayerSpec `yaml:"layers"`

	// Payload is the terminal payload as literal bytes.
	Payload string `yaml:"payload"`

	// PayloadHex is the terminal payload in hex; mutually exclusive with
	// Payload.
	PayloadHex string `yaml:"payloadHex"`
}

// LayerSpec declares one protocol layer and the fields to set explicitly.
// Unlisted fields are filled by default resolution.
type LayerSpec struct {
	Protocol string            `yaml:"protocol"`
	Fields   map[string]string `yaml:"fields"`
}

// PayloadBytes returns the declared payload.
func (m Spec) PayloadBytes() ([]byte, error) {
	if m.Payload != "" && m.PayloadHex != "" {
		return nil, errors.New("payload and payloadHex are mutually exclusive")
	}
	if m.PayloadHex != "" {
		data, err := hex.DecodeString(m.PayloadHex)
		if err != nil {
			return nil, fmt.Errorf("failed to decode payloadHex: %w", err)
		}
		return data, nil
	}
	return []byte(m.Payload), nil
}

// WithField returns a copy of the spec with one field value overridden on
// the first layer of the given protocol. Used by callers that rebuild
// probes with varying field values.
func (m Spec) WithField(protoName, fieldName, value string) Spec {
	out := m
	out.Layers = make([]LayerSpec, len(m.Layers))
	copy(out.Layers, m.Layers)

	for i, layer := range out.Layers {
		if layer.Protocol != protoName {
			continue
		}
		fields := make(map[string]string, len(layer.Fields)+1)
		for k, v := range layer.Fields {
			fields[k] = v
		}
		fields[fieldName] = value
		out.Layers[i].Fields = fields
		break
	}
	return out
}

// parseFieldValue turns a textual field value into a Field matching the
// protocol's declaration: integers (decimal or 0x-prefixed) for the integer
// kinds, dotted quads for addresses, hex for opaque bytes.
func parseFieldValue(spec protocol.FieldSpec, raw string) (field.Field, error) {
	switch spec.Kind {
	case field.KindUint8:
		v, err := strconv.ParseUint(raw, 0, 8)
		if err != nil {
			return field.Field{}, fmt.Errorf("field %q: %w", spec.Name, err)
		}
		return field.Uint8(spec.Name, uint8(v)), nil

	case field.KindUint16:
		v, err := strconv.ParseUint(raw, 0, 16)
		if err != nil {
			return field.Field{}, fmt.Errorf("field %q: %w", spec.Name, err)
		}
		return field.Uint16(spec.Name, uint16(v)), nil

	case field.KindUint32:
		v, err := strconv.ParseUint(raw, 0, 32)
		if err != nil {
			return field.Field{}, fmt.Errorf("field %q: %w", spec.Name, err)
		}
		return field.Uint32(spec.Name, uint32(v)), nil

	case field.KindIPv4:
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return field.Field{}, fmt.Errorf("field %q: %w", spec.Name, err)
		}
		return field.IPv4(spec.Name, addr)

	case field.KindBytes:
		data, err := hex.DecodeString(raw)
		if err != nil {
			return field.Field{}, fmt.Errorf("field %q: %w", spec.Name, err)
		}
		return field.Bytes(spec.Name, data), nil

	default:
		return field.Field{}, fmt.Errorf("field %q: unsupported kind %s", spec.Name, spec.Kind)
	}
}
