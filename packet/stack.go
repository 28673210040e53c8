package packet

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/probelab/probekit/field"
	"github.com/probelab/probekit/protocol"
)

var (
	// ErrFrozen is returned by any mutation once the stack is frozen.
	ErrFrozen = errors.New("stack is frozen")

	// ErrState is returned when an operation is not legal in the stack's
	// current state; transitions are strictly forward.
	ErrState = errors.New("operation not allowed in this state")

	// ErrPayloadFixed is returned by Push after the payload has been set:
	// setting the payload fixes the buffer's total length.
	ErrPayloadFixed = errors.New("payload already set")
)

// State is the lifecycle stage of a Stack. Transitions are strictly
// forward: Empty, Building, Resolved, Frozen.
type State uint8

const (
	StateEmpty State = iota
	StateBuilding
	StateResolved
	StateFrozen
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateResolved:
		return "resolved"
	case StateFrozen:
		return "frozen"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type stackOptions struct {
	log     *zap.SugaredLogger
	maxSize int
}

func newStackOptions() *stackOptions {
	return &stackOptions{
		log: zap.NewNop().Sugar(),
	}
}

// StackOption configures a Stack.
type StackOption func(*stackOptions)

// WithLog sets the logger for the stack.
func WithLog(log *zap.SugaredLogger) StackOption {
	return func(o *stackOptions) {
		o.log = log
	}
}

// WithMaxPacketSize caps the shared buffer's length in bytes. Zero means
// unbounded.
func WithMaxPacketSize(n int) StackOption {
	return func(o *stackOptions) {
		o.maxSize = n
	}
}

// Stack is the ordered sequence of layers composing one packet over one
// shared buffer. It owns the ordering and containment invariants: exactly
// one terminal payload layer, always last, and every layer's data region
// exactly covers the layers nested inside it.
type Stack struct {
	buf    *Buffer
	layers []*Layer
	state  State
	log    *zap.SugaredLogger
}

// Resolved describes one field filled in by ResolveDefaults.
type Resolved struct {
	Layer    int
	Protocol string
	Field    field.Field
}

// NewStack returns a stack holding only an empty terminal payload layer.
func NewStack(options ...StackOption) *Stack {
	opts := newStackOptions()
	for _, o := range options {
		o(opts)
	}

	s := &Stack{
		buf:   NewBuffer(opts.maxSize),
		state: StateEmpty,
		log:   opts.log,
	}

	terminal := NewLayer()
	terminal.SetSegment(s.buf, 0)
	terminal.stack = s
	s.layers = []*Layer{terminal}
	return s
}

// State returns the stack's current lifecycle stage.
func (s *Stack) State() State { return s.state }

// Layers returns the layers in outermost-to-innermost order. The last layer
// is always the terminal payload layer.
func (s *Stack) Layers() []*Layer {
	out := make([]*Layer, len(s.layers))
	copy(out, s.layers)
	return out
}

// Bytes returns the packet bytes built so far. The slice aliases the shared
// buffer; it is stable once the stack is frozen.
func (s *Stack) Bytes() []byte { return s.buf.Bytes() }

// Push appends a new protocol layer after the current innermost protocol
// layer, reserving the descriptor's minimum header size in the shared
// buffer. All existing offsets and sizes are recomputed in the same step,
// so the containment invariant holds before and after.
func (s *Stack) Push(p protocol.Protocol) (*Layer, error) {
	if p == nil {
		return nil, errors.New("cannot push a nil protocol")
	}
	if s.state != StateEmpty && s.state != StateBuilding {
		return nil, fmt.Errorf("push in state %q: %w", s.state, s.stateErr())
	}

	terminal := s.layers[len(s.layers)-1]
	if terminal.segmentSize > 0 {
		return nil, fmt.Errorf("cannot push %q: %w", p.Name(), ErrPayloadFixed)
	}

	headerSize := p.MinHeaderSize()
	if err := s.buf.Resize(s.buf.Len() + headerSize); err != nil {
		return nil, fmt.Errorf("cannot push %q: %w", p.Name(), err)
	}

	layer := NewLayer()
	layer.SetProtocol(p)
	layer.SetSegment(s.buf, terminal.offset)
	layer.SetHeaderSize(headerSize)
	layer.SetSegmentSize(headerSize)
	layer.stack = s

	// The terminal payload layer sits inside every protocol layer, so
	// direct data-region writes go through the terminal layer only.
	layer.nested = true

	// The new layer occupies what used to be the start of the terminal
	// layer's region; the terminal layer slides right by one header.
	terminal.offset += headerSize

	// Outer layers gain the new header in their data regions.
	for _, outer := range s.layers[:len(s.layers)-1] {
		outer.segmentSize += headerSize
	}

	s.layers = append(s.layers[:len(s.layers)-1], layer, terminal)
	s.state = StateBuilding

	s.log.Debugw("pushed layer",
		"protocol", p.Name(),
		"offset", layer.offset,
		"header_size", headerSize,
		"buffer_len", s.buf.Len(),
	)
	return layer, nil
}

// SetPayload sets the terminal layer's bytes, growing or shrinking the
// shared buffer. It fixes the packet's total length and must therefore be
// the last structural operation.
func (s *Stack) SetPayload(payload []byte) error {
	if s.state != StateEmpty && s.state != StateBuilding {
		return fmt.Errorf("set payload in state %q: %w", s.state, s.stateErr())
	}

	terminal := s.layers[len(s.layers)-1]
	delta := len(payload) - terminal.segmentSize
	if err := s.buf.Resize(s.buf.Len() + delta); err != nil {
		return err
	}

	terminal.segmentSize = len(payload)
	for _, outer := range s.layers[:len(s.layers)-1] {
		outer.segmentSize += delta
	}

	seg, err := terminal.Segment()
	if err != nil {
		return err
	}
	copy(seg, payload)

	s.state = StateBuilding
	s.log.Debugw("set payload", "size", len(payload), "buffer_len", s.buf.Len())
	return nil
}

// ResolveDefaults fills every field not explicitly set, walking the layers
// innermost to outermost so that outer headers see the final size and
// content of what they wrap. It returns the fields it derived. A resolved
// stack may be resolved again, recomputing dependent fields after explicit
// field edits; only freezing ends resolution.
func (s *Stack) ResolveDefaults() ([]Resolved, error) {
	if s.state == StateFrozen {
		return nil, fmt.Errorf("resolve in state %q: %w", s.state, ErrFrozen)
	}

	var resolved []Resolved
	for i := len(s.layers) - 2; i >= 0; i-- {
		layer := s.layers[i]
		p := layer.Protocol()

		nextProto := ""
		if inner := s.layers[i+1].Protocol(); inner != nil {
			nextProto = inner.Name()
		}

		for _, spec := range p.FieldSpecs() {
			if layer.fieldSet(spec.Name) {
				continue
			}

			// Derivation starts from a zeroed slot so a previous
			// resolution's value does not feed into its replacement.
			slot, err := layer.headerRange(spec)
			if err != nil {
				return nil, err
			}
			for j := range slot {
				slot[j] = 0
			}

			seg, err := layer.Segment()
			if err != nil {
				return nil, err
			}
			ctx := protocol.DefaultContext{
				HeaderSize:   layer.HeaderSize(),
				SegmentSize:  layer.SegmentSize(),
				Header:       seg[:layer.HeaderSize()],
				Payload:      seg[layer.HeaderSize():],
				NextProtocol: nextProto,
			}

			value, ok := p.DefaultValue(spec.Name, ctx)
			if !ok {
				continue
			}

			f, err := field.Decode(spec.Name, spec.Kind, value)
			if err != nil {
				return nil, fmt.Errorf("protocol %q: bad default for %q: %w", p.Name(), spec.Name, err)
			}
			if err := layer.SetField(f); err != nil {
				return nil, err
			}
			// SetField records the name; keep the field eligible for
			// re-resolution if the caller resolves twice.
			delete(layer.setFields, spec.Name)

			resolved = append(resolved, Resolved{Layer: i, Protocol: p.Name(), Field: f})
			s.log.Debugw("resolved field", "protocol", p.Name(), "field", f.String())
		}
	}

	s.state = StateResolved
	return resolved, nil
}

// Freeze makes the stack read-only. Only a resolved stack can be frozen;
// any later mutation fails with ErrFrozen.
func (s *Stack) Freeze() error {
	if s.state != StateResolved {
		return fmt.Errorf("freeze in state %q: %w", s.state, s.stateErr())
	}
	s.state = StateFrozen
	s.log.Debugw("stack frozen", "bytes", s.buf.Len(), "layers", len(s.layers))
	return nil
}

// Dump writes a tree-shaped rendering of the whole packet, one indentation
// level per nesting depth.
func (s *Stack) Dump(w io.Writer) {
	for i, layer := range s.layers {
		layer.Dump(w, i)
	}
}

func (s *Stack) String() string {
	var b strings.Builder
	s.Dump(&b)
	return b.String()
}

func (s *Stack) stateErr() error {
	if s.state == StateFrozen {
		return ErrFrozen
	}
	return ErrState
}
