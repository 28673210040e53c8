// Package protocol defines the immutable protocol descriptors the packet
// core consults for header layout: field tables mapping names to byte
// ranges, minimum header sizes, and default-value derivation for dependent
// fields such as lengths and checksums.
package protocol

import "github.com/probelab/probekit/field"

// FieldSpec declares one header field: its name, serialization kind and the
// byte range it occupies relative to the start of the header.
type FieldSpec struct {
	Name   string
	Kind   field.Kind
	Offset int
	Width  int
}

// DefaultContext carries the layer geometry a descriptor may consult when
// deriving a default field value. Header and Payload alias the layer's
// segment in the shared buffer; descriptors must treat them as read-only.
type DefaultContext struct {
	// HeaderSize is the layer's header length in bytes.
	HeaderSize int
	// SegmentSize is the layer's total length (header plus nested data).
	SegmentSize int
	// Header is the header region with all previously resolved fields
	// already written.
	Header []byte
	// Payload is the data region nested inside this layer.
	Payload []byte
	// NextProtocol names the protocol nested immediately inside this
	// layer, or is empty when the payload follows directly.
	NextProtocol string
}

// Protocol describes one network protocol's header layout. Implementations
// are immutable and safe for concurrent use.
type Protocol interface {
	// Name returns the registry name of the protocol.
	Name() string

	// MinHeaderSize returns the smallest valid header length in bytes.
	MinHeaderSize() int

	// FieldSpec looks up a field declaration by name.
	FieldSpec(name string) (FieldSpec, bool)

	// FieldSpecs returns every field declaration in header order.
	// Dependent fields (checksums) are ordered after the fields they
	// cover so that default resolution can proceed front to back.
	FieldSpecs() []FieldSpec

	// DefaultValue derives the value for a field the caller did not set
	// explicitly. The second result is false when the field has no
	// default beyond zero bytes.
	DefaultValue(name string, ctx DefaultContext) ([]byte, bool)
}
