// Package probe builds complete packets from declarative specs: it owns the
// shared buffer (through a layer stack), consults a protocol registry for
// descriptors, resolves dependent fields and freezes the result, emitting
// events along the way.
package probe

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/probelab/probekit/event"
	"github.com/probelab/probekit/packet"
	"github.com/probelab/probekit/protocol"
)

type options struct {
	log     *zap.SugaredLogger
	issuer  event.Issuer
	sink    func(*event.Event)
	maxSize int
}

func newOptions() *options {
	return &options{
		log: zap.NewNop().Sugar(),
	}
}

// Option configures a Probe.
type Option func(*options)

// WithLog sets the logger for the probe.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithIssuer sets the algorithm instance recorded as the issuer of the
// probe's events.
func WithIssuer(issuer event.Issuer) Option {
	return func(o *options) {
		o.issuer = issuer
	}
}

// WithSink sets the consumer of the probe's events. The sink takes
// ownership of each event and must close it.
func WithSink(sink func(*event.Event)) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithMaxPacketSize caps the built packet's length in bytes.
func WithMaxPacketSize(n int) Option {
	return func(o *options) {
		o.maxSize = n
	}
}

// Probe builds one packet at a time from a Spec. Rebuilding replaces the
// previous stack; a probe is for a single caller at a time.
type Probe struct {
	registry *protocol.Registry
	stack    *packet.Stack
	issuer   event.Issuer
	sink     func(*event.Event)
	maxSize  int
	log      *zap.SugaredLogger
}

// New returns a probe resolving protocol names against the given registry.
func New(registry *protocol.Registry, opts ...Option) *Probe {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	if registry == nil {
		registry = protocol.Builtin()
	}

	return &Probe{
		registry: registry,
		issuer:   o.issuer,
		sink:     o.sink,
		maxSize:  o.maxSize,
		log:      o.log,
	}
}

// Build constructs, resolves and freezes a packet from the spec. On success
// the frozen stack replaces any previously built one.
func (p *Probe) Build(spec Spec) error {
	stack := packet.NewStack(
		packet.WithLog(p.log),
		packet.WithMaxPacketSize(p.maxSize),
	)

	for _, layerSpec := range spec.Layers {
		proto, ok := p.registry.Lookup(layerSpec.Protocol)
		if !ok {
			return fmt.Errorf("unknown protocol %q", layerSpec.Protocol)
		}

		layer, err := stack.Push(proto)
		if err != nil {
			return fmt.Errorf("failed to push %q: %w", proto.Name(), err)
		}

		for name, raw := range layerSpec.Fields {
			fieldSpec, ok := proto.FieldSpec(name)
			if !ok {
				return fmt.Errorf("protocol %q: %w: %q", proto.Name(), packet.ErrUnknownField, name)
			}
			f, err := parseFieldValue(fieldSpec, raw)
			if err != nil {
				return fmt.Errorf("protocol %q: %w", proto.Name(), err)
			}
			if err := layer.SetField(f); err != nil {
				return err
			}
		}

		p.emit(event.TypeLayerChanged, proto.Name())
	}

	payload, err := spec.PayloadBytes()
	if err != nil {
		return err
	}
	if err := stack.SetPayload(payload); err != nil {
		return fmt.Errorf("failed to set payload: %w", err)
	}
	p.emit(event.TypeLayerChanged, "payload")

	resolved, err := stack.ResolveDefaults()
	if err != nil {
		return fmt.Errorf("failed to resolve defaults: %w", err)
	}
	for _, r := range resolved {
		p.emit(event.TypeFieldResolved, r)
	}

	if err := stack.Freeze(); err != nil {
		return err
	}

	p.stack = stack
	p.emit(event.TypeProbeReady, stack.Bytes())
	p.log.Infow("probe built", "bytes", len(stack.Bytes()), "layers", len(spec.Layers)+1)
	return nil
}

// Stack returns the most recently built stack, or nil before the first
// successful Build.
func (p *Probe) Stack() *packet.Stack { return p.stack }

// Bytes returns the built packet bytes, or nil before the first successful
// Build.
func (p *Probe) Bytes() []byte {
	if p.stack == nil {
		return nil
	}
	return p.stack.Bytes()
}

// Dump writes the built packet's layer tree.
func (p *Probe) Dump(w io.Writer) {
	if p.stack == nil {
		return
	}
	p.stack.Dump(w)
}

func (p *Probe) String() string {
	if p.stack == nil {
		return ""
	}
	return p.stack.String()
}

// emit hands an event to the sink, if any. The sink owns the event.
func (p *Probe) emit(typ event.Type, data any) {
	if p.sink == nil {
		return
	}
	ev, err := event.New(typ, data, p.issuer)
	if err != nil {
		p.log.Warnw("failed to create event", "type", typ, "error", err)
		return
	}
	p.sink(ev)
}
