// Package algorithm models the probing-algorithm instances that issue
// events and the dispatcher that routes those events to a consumer.
package algorithm

import "github.com/probelab/probekit/event"

// Instance is one running probing algorithm. It serves as the non-owning
// issuer reference carried by events.
type Instance struct {
	id   uint64
	name string
}

// NewInstance returns an instance with the given id and name.
func NewInstance(id uint64, name string) *Instance {
	return &Instance{id: id, name: name}
}

// InstanceID returns the instance's identifier.
func (m *Instance) InstanceID() uint64 { return m.id }

// InstanceName returns the algorithm name.
func (m *Instance) InstanceName() string { return m.name }

var _ event.Issuer = (*Instance)(nil)
