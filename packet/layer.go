package packet

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/probelab/probekit/field"
	"github.com/probelab/probekit/protocol"
)

var (
	// ErrNoProtocol is returned by field operations on a payload layer.
	ErrNoProtocol = errors.New("layer has no protocol")

	// ErrUnknownField is returned when the protocol does not declare the
	// named field.
	ErrUnknownField = errors.New("field is not defined by the protocol")

	// ErrSegmentTooSmall is returned when a write does not fit in the
	// layer's view.
	ErrSegmentTooSmall = errors.New("segment too small")

	// ErrNotTerminal is returned when a payload is assigned to a layer
	// that carries a protocol header.
	ErrNotTerminal = errors.New("layer is not the terminal payload layer")

	// ErrLayerNested is returned by WritePayload when another layer is
	// nested inside this one; writing would corrupt the nested header.
	ErrLayerNested = errors.New("a layer is nested inside this one")

	// ErrNoSegment is returned when the layer has no buffer attached.
	ErrNoSegment = errors.New("layer has no segment")
)

// Layer is one view into the shared buffer: either a protocol header plus
// the data nested inside it, or the terminal opaque payload. A layer never
// owns the bytes it covers.
type Layer struct {
	proto       protocol.Protocol
	buf         *Buffer
	offset      int
	headerSize  int
	segmentSize int

	// nested is maintained by the owning stack: true once another layer
	// sits inside this layer's data region. Every protocol layer in a
	// stack wraps at least the terminal payload layer.
	nested bool

	// setFields records fields written explicitly, so default resolution
	// does not overwrite them.
	setFields map[string]struct{}

	// stack is non-nil when the layer belongs to a Stack; used to reject
	// mutation after freezing and to route structural payload changes.
	stack *Stack
}

// NewLayer returns an empty payload layer: no protocol, no segment, zero
// sizes.
func NewLayer() *Layer {
	return &Layer{setFields: map[string]struct{}{}}
}

// SetProtocol associates a protocol descriptor with the layer. It does not
// touch the segment. Passing nil marks the layer as terminal payload.
func (l *Layer) SetProtocol(p protocol.Protocol) {
	l.proto = p
	l.setFields = map[string]struct{}{}
}

// Protocol returns the associated descriptor, or nil for a payload layer.
func (l *Layer) Protocol() protocol.Protocol { return l.proto }

// SetSegment points the layer's view at the given buffer offset. Bounds are
// validated lazily on access, since the orchestrating stack may still be
// resizing the buffer.
func (l *Layer) SetSegment(buf *Buffer, offset int) {
	l.buf = buf
	l.offset = offset
}

// Offset returns the segment's starting offset within the shared buffer.
func (l *Layer) Offset() int { return l.offset }

// Segment returns the layer's bytes (header plus data), bounds-checked
// against the buffer's current length.
func (l *Layer) Segment() ([]byte, error) {
	if l.buf == nil {
		return nil, ErrNoSegment
	}
	return l.buf.Slice(l.offset, l.segmentSize)
}

// SegmentSize returns the total view length (header plus data).
func (l *Layer) SegmentSize() int { return l.segmentSize }

// SetSegmentSize sets the total view length. The header_size <= segment_size
// invariant is the caller's responsibility, as is containment between
// neighboring layers.
func (l *Layer) SetSegmentSize(size int) { l.segmentSize = size }

// HeaderSize returns the header length; zero for a payload layer.
func (l *Layer) HeaderSize() int { return l.headerSize }

// SetHeaderSize sets the header length.
func (l *Layer) SetHeaderSize(size int) { l.headerSize = size }

// SetField serializes the field into the header region at the offset and
// width the protocol declares for the field's name.
func (l *Layer) SetField(f field.Field) error {
	if err := l.mutable(); err != nil {
		return err
	}
	if l.proto == nil {
		return fmt.Errorf("cannot set field %q: %w", f.Name(), ErrNoProtocol)
	}

	spec, ok := l.proto.FieldSpec(f.Name())
	if !ok {
		return fmt.Errorf("protocol %q: field %q: %w", l.proto.Name(), f.Name(), ErrUnknownField)
	}

	value := f.Bytes()
	if len(value) != spec.Width {
		return fmt.Errorf("field %q: value is %d bytes, header slot is %d", f.Name(), len(value), spec.Width)
	}

	dst, err := l.headerRange(spec)
	if err != nil {
		return err
	}

	copy(dst, value)
	l.setFields[f.Name()] = struct{}{}
	return nil
}

// Field reconstructs a field from the bytes currently stored at the
// offset and width the protocol declares for name.
func (l *Layer) Field(name string) (field.Field, error) {
	if l.proto == nil {
		return field.Field{}, fmt.Errorf("cannot read field %q: %w", name, ErrNoProtocol)
	}

	spec, ok := l.proto.FieldSpec(name)
	if !ok {
		return field.Field{}, fmt.Errorf("protocol %q: field %q: %w", l.proto.Name(), name, ErrUnknownField)
	}

	raw, err := l.headerRange(spec)
	if err != nil {
		return field.Field{}, err
	}
	return field.Decode(name, spec.Kind, raw)
}

// headerRange returns the header bytes a field spec addresses, checking the
// range against both the declared header size and the shared buffer.
func (l *Layer) headerRange(spec protocol.FieldSpec) ([]byte, error) {
	if spec.Offset+spec.Width > l.headerSize || l.headerSize > l.segmentSize {
		return nil, fmt.Errorf("field %q at [%d, %d) of %d-byte header: %w",
			spec.Name, spec.Offset, spec.Offset+spec.Width, l.headerSize, ErrSegmentTooSmall)
	}
	if l.buf == nil {
		return nil, ErrNoSegment
	}
	return l.buf.Slice(l.offset+spec.Offset, spec.Width)
}

// SetPayload replaces this layer's data with the given bytes. Only valid on
// the terminal payload layer. On a stack-owned layer the stack grows or
// shrinks the shared buffer and keeps the outer layers consistent; a
// standalone layer can only extend when it owns the buffer's tail.
func (l *Layer) SetPayload(payload []byte) error {
	if err := l.mutable(); err != nil {
		return err
	}
	if l.proto != nil {
		return fmt.Errorf("cannot set payload on %q layer: %w", l.proto.Name(), ErrNotTerminal)
	}
	if l.stack != nil {
		return l.stack.SetPayload(payload)
	}
	if l.buf == nil {
		return ErrNoSegment
	}

	if len(payload) != l.segmentSize {
		if l.offset+l.segmentSize != l.buf.Len() {
			return fmt.Errorf("cannot resize payload from %d to %d bytes: %w",
				l.segmentSize, len(payload), ErrSegmentTooSmall)
		}
		if err := l.buf.Resize(l.offset + len(payload)); err != nil {
			return err
		}
		l.segmentSize = len(payload)
	}

	seg, err := l.Segment()
	if err != nil {
		return err
	}
	copy(seg, payload)
	return nil
}

// WritePayload writes bytes into the layer's data region starting at the
// byte offset relative to the end of the header. It fails without touching
// the buffer when another layer is nested inside this one or when the write
// does not fit the data region.
func (l *Layer) WritePayload(payload []byte, offset int) error {
	if err := l.mutable(); err != nil {
		return err
	}
	if l.nested {
		return ErrLayerNested
	}

	dataSize := l.segmentSize - l.headerSize
	if offset < 0 || offset+len(payload) > dataSize {
		return fmt.Errorf("write of %d bytes at offset %d into %d-byte data region: %w",
			len(payload), offset, dataSize, ErrSegmentTooSmall)
	}
	if l.buf == nil {
		return ErrNoSegment
	}

	dst, err := l.buf.Slice(l.offset+l.headerSize+offset, len(payload))
	if err != nil {
		return err
	}
	copy(dst, payload)
	return nil
}

// Dump writes a human-readable rendering of the layer, indented two spaces
// per nesting level.
func (l *Layer) Dump(w io.Writer, indent int) {
	pad := strings.Repeat("  ", indent)

	if l.proto == nil {
		fmt.Fprintf(w, "%spayload (%d bytes)\n", pad, l.segmentSize)
		if seg, err := l.Segment(); err == nil && len(seg) > 0 {
			fmt.Fprintf(w, "%s  data = %x\n", pad, seg)
		}
		return
	}

	fmt.Fprintf(w, "%s%s (header %d, segment %d)\n", pad, l.proto.Name(), l.headerSize, l.segmentSize)
	for _, spec := range l.proto.FieldSpecs() {
		f, err := l.Field(spec.Name)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s  %s = %s\n", pad, spec.Name, f.ValueString())
	}
}

// fieldSet reports whether the named field was written explicitly.
func (l *Layer) fieldSet(name string) bool {
	_, ok := l.setFields[name]
	return ok
}

// mutable returns an error when the owning stack no longer accepts edits.
func (l *Layer) mutable() error {
	if l.stack != nil && l.stack.state == StateFrozen {
		return ErrFrozen
	}
	return nil
}
