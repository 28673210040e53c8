package algorithm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/probelab/probekit/event"
)

// ErrQueueFull is returned by Post when the dispatcher's queue is full.
var ErrQueueFull = errors.New("event queue is full")

const defaultQueueSize = 64

// Handler consumes one event. The dispatcher closes the event after the
// handler returns, honoring the payload's release hook.
type Handler func(ctx context.Context, ev *event.Event) error

type dispatcherOptions struct {
	log       *zap.SugaredLogger
	queueSize int
}

func newDispatcherOptions() *dispatcherOptions {
	return &dispatcherOptions{
		log:       zap.NewNop().Sugar(),
		queueSize: defaultQueueSize,
	}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherOptions)

// WithLog sets the logger for the dispatcher.
func WithLog(log *zap.SugaredLogger) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.log = log
	}
}

// WithQueueSize sets the event queue capacity.
func WithQueueSize(n int) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.queueSize = n
	}
}

// Dispatcher routes events from algorithm instances to a single handler.
// Events posted while Run is not draining the queue are buffered up to the
// queue capacity.
type Dispatcher struct {
	mu        sync.Mutex
	instances map[uint64]*Instance
	queue     chan *event.Event
	handler   Handler
	log       *zap.SugaredLogger
}

// NewDispatcher returns a dispatcher delivering to the given handler.
func NewDispatcher(handler Handler, options ...DispatcherOption) *Dispatcher {
	opts := newDispatcherOptions()
	for _, o := range options {
		o(opts)
	}

	return &Dispatcher{
		instances: map[uint64]*Instance{},
		queue:     make(chan *event.Event, opts.queueSize),
		handler:   handler,
		log:       opts.log,
	}
}

// Register adds an instance so that events can be routed back to it by id.
func (d *Dispatcher) Register(inst *Instance) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.instances[inst.InstanceID()]; ok {
		return fmt.Errorf("instance %d is already registered", inst.InstanceID())
	}
	d.instances[inst.InstanceID()] = inst
	return nil
}

// Unregister removes an instance by id.
func (d *Dispatcher) Unregister(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.instances, id)
}

// Lookup returns the registered instance with the given id.
func (d *Dispatcher) Lookup(id uint64) (*Instance, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	inst, ok := d.instances[id]
	return inst, ok
}

// Post enqueues an event for delivery. When the queue is full the event is
// closed (releasing its payload) and ErrQueueFull is returned, so no
// payload leaks on the failure path.
func (d *Dispatcher) Post(ev *event.Event) error {
	select {
	case d.queue <- ev:
		return nil
	default:
		ev.Close()
		return ErrQueueFull
	}
}

// Run delivers queued events to the handler until the context ends. Every
// delivered event is closed after handling. Handler errors are logged and
// do not stop delivery.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return ctx.Err()
		case ev := <-d.queue:
			if err := d.handler(ctx, ev); err != nil {
				d.log.Warnw("event handler failed", "event", ev.String(), "error", err)
			}
			ev.Close()
		}
	}
}

// drain closes any events still queued so their payloads are released.
func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			ev.Close()
		default:
			return
		}
	}
}
