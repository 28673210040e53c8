// Package event provides the notification primitive used to signal state
// changes from the packet-construction core to its consumers. Events carry
// an optional payload whose lifetime is governed by caller-supplied retain
// and release hooks, and a non-owning reference to the algorithm instance
// that issued them.
package event

import (
	"errors"
	"fmt"
)

// ErrInvalidType is returned by New for a type outside the closed set.
var ErrInvalidType = errors.New("invalid event type")

// Type identifies the kind of an event. The set is closed.
type Type uint8

const (
	TypeInvalid Type = iota

	// TypeLayerChanged signals that a layer was added or its bytes were
	// rewritten.
	TypeLayerChanged

	// TypeFieldResolved signals that a dependent field (length,
	// checksum) was derived during default resolution.
	TypeFieldResolved

	// TypeProbeReady signals that a packet was resolved, frozen and is
	// ready for transmission.
	TypeProbeReady

	// TypeAlgorithmDone signals that an algorithm instance finished.
	TypeAlgorithmDone

	typeMax
)

func (t Type) String() string {
	switch t {
	case TypeLayerChanged:
		return "layer-changed"
	case TypeFieldResolved:
		return "field-resolved"
	case TypeProbeReady:
		return "probe-ready"
	case TypeAlgorithmDone:
		return "algorithm-done"
	default:
		return "invalid"
	}
}

func (t Type) valid() bool {
	return t > TypeInvalid && t < typeMax
}

// Issuer identifies the algorithm instance an event originated from. The
// relation is used for routing and lookup, never for lifetime control.
type Issuer interface {
	InstanceID() uint64
	InstanceName() string
}

type options struct {
	retain  func(any)
	release func(any)
}

// Option configures payload ownership at event creation.
type Option func(*options)

// WithRetain supplies a hook invoked on the payload when the event takes a
// shared reference to it. Without it the event merely borrows the payload.
func WithRetain(fn func(any)) Option {
	return func(o *options) {
		o.retain = fn
	}
}

// WithRelease supplies the hook invoked on the payload exactly once when
// the event is closed, or when creation fails.
func WithRelease(fn func(any)) Option {
	return func(o *options) {
		o.release = fn
	}
}

// Event is a tagged notification with an optional payload.
type Event struct {
	typ     Type
	data    any
	issuer  Issuer
	release func(any)
	closed  bool
}

// New creates an event. If creation fails and both a payload and a release
// hook were supplied, the hook is invoked on the payload before returning,
// so the payload is never leaked on the failure path. On success a supplied
// retain hook is invoked first to establish shared ownership.
func New(typ Type, data any, issuer Issuer, opts ...Option) (*Event, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if !typ.valid() {
		if data != nil && o.release != nil {
			o.release(data)
		}
		return nil, fmt.Errorf("type %d: %w", typ, ErrInvalidType)
	}

	if data != nil && o.retain != nil {
		o.retain(data)
	}

	return &Event{
		typ:     typ,
		data:    data,
		issuer:  issuer,
		release: o.release,
	}, nil
}

// Type returns the event's tag.
func (e *Event) Type() Type { return e.typ }

// Data returns the payload, which may be nil.
func (e *Event) Data() any { return e.data }

// Issuer returns the issuing algorithm instance, which may be nil.
func (e *Event) Issuer() Issuer { return e.issuer }

// Close releases the payload through the release hook, exactly once.
// Closing a nil or already-closed event is a no-op.
func (e *Event) Close() {
	if e == nil || e.closed {
		return
	}
	e.closed = true
	if e.data != nil && e.release != nil {
		e.release(e.data)
	}
}

func (e *Event) String() string {
	if e == nil {
		return "event(nil)"
	}
	if e.issuer == nil {
		return fmt.Sprintf("event(%s)", e.typ)
	}
	return fmt.Sprintf("event(%s from %s#%d)", e.typ, e.issuer.InstanceName(), e.issuer.InstanceID())
}
