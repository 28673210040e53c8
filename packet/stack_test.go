package packet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/probekit/field"
	"github.com/probelab/probekit/protocol"
)

// requireContainment checks that every layer's data region is exactly the
// concatenation of the segments nested inside it, over one shared buffer.
func requireContainment(t *testing.T, s *Stack) {
	t.Helper()

	layers := s.Layers()
	require.NotEmpty(t, layers)

	terminal := layers[len(layers)-1]
	require.Nil(t, terminal.Protocol(), "terminal layer must be the payload layer")
	for _, l := range layers[:len(layers)-1] {
		require.NotNil(t, l.Protocol(), "only the terminal layer may lack a protocol")
	}

	end := terminal.Offset() + terminal.SegmentSize()
	require.Equal(t, len(s.Bytes()), end, "layers must cover the buffer exactly")

	for i, l := range layers[:len(layers)-1] {
		inner := layers[i+1]
		dataStart := l.Offset() + l.HeaderSize()
		dataEnd := l.Offset() + l.SegmentSize()

		require.Equal(t, dataStart, inner.Offset(), "layer %d data must start at layer %d segment", i, i+1)
		require.Equal(t, dataEnd, end, "layer %d data must end at the innermost byte", i)
		require.LessOrEqual(t, l.HeaderSize(), l.SegmentSize())
	}
}

func TestStackLifecycle(t *testing.T) {
	s := NewStack()
	assert.Equal(t, StateEmpty, s.State())
	requireContainment(t, s)

	_, err := s.Push(protocol.NewIPv4())
	require.NoError(t, err)
	assert.Equal(t, StateBuilding, s.State())
	requireContainment(t, s)

	_, err = s.Push(protocol.NewICMPv4())
	require.NoError(t, err)
	requireContainment(t, s)

	require.NoError(t, s.SetPayload([]byte("probekit")))
	requireContainment(t, s)
	assert.Equal(t, 36, len(s.Bytes()))

	_, err = s.ResolveDefaults()
	require.NoError(t, err)
	assert.Equal(t, StateResolved, s.State())

	require.NoError(t, s.Freeze())
	assert.Equal(t, StateFrozen, s.State())
	requireContainment(t, s)
}

func TestPushGeometry(t *testing.T) {
	s := NewStack()

	outer, err := s.Push(protocol.NewIPv4())
	require.NoError(t, err)
	assert.Equal(t, 0, outer.Offset())
	assert.Equal(t, 20, outer.HeaderSize())
	assert.Equal(t, 20, outer.SegmentSize())

	inner, err := s.Push(protocol.NewUDP())
	require.NoError(t, err)
	assert.Equal(t, 20, inner.Offset())
	assert.Equal(t, 8, inner.SegmentSize())

	// The outer layer's view now spans the nested header too.
	assert.Equal(t, 28, outer.SegmentSize())

	require.NoError(t, s.SetPayload([]byte{1, 2, 3, 4}))
	assert.Equal(t, 32, outer.SegmentSize())
	assert.Equal(t, 12, inner.SegmentSize())
	requireContainment(t, s)
}

func TestSetPayloadShrinks(t *testing.T) {
	s := NewStack()
	outer, err := s.Push(protocol.NewIPv4())
	require.NoError(t, err)

	require.NoError(t, s.SetPayload([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, s.SetPayload([]byte{9, 10}))

	assert.Equal(t, 22, len(s.Bytes()))
	assert.Equal(t, 22, outer.SegmentSize())
	assert.Equal(t, []byte{9, 10}, s.Bytes()[20:])
	requireContainment(t, s)
}

func TestPushAfterPayloadFails(t *testing.T) {
	s := NewStack()
	_, err := s.Push(protocol.NewIPv4())
	require.NoError(t, err)
	require.NoError(t, s.SetPayload([]byte{1, 2}))

	_, err = s.Push(protocol.NewUDP())
	require.ErrorIs(t, err, ErrPayloadFixed)
}

func TestPushNilProtocol(t *testing.T) {
	s := NewStack()
	_, err := s.Push(nil)
	require.Error(t, err)
}

func TestCapacityFailure(t *testing.T) {
	s := NewStack(WithMaxPacketSize(24))

	_, err := s.Push(protocol.NewIPv4())
	require.NoError(t, err)

	_, err = s.Push(protocol.NewICMPv4())
	require.ErrorIs(t, err, ErrCapacity)

	// The failed push left the stack consistent.
	requireContainment(t, s)
	assert.Equal(t, 20, len(s.Bytes()))

	err = s.SetPayload(make([]byte, 16))
	require.ErrorIs(t, err, ErrCapacity)
	require.NoError(t, s.SetPayload(make([]byte, 4)))
	requireContainment(t, s)
}

func TestResizeSafety(t *testing.T) {
	s := NewStack()

	// Repeated pushes force several buffer reallocations; offsets must
	// stay consistent because layers never hold raw pointers.
	for i := 0; i < 4; i++ {
		_, err := s.Push(protocol.NewIPv4())
		require.NoError(t, err)
		requireContainment(t, s)
	}

	require.NoError(t, s.SetPayload(make([]byte, 100)))
	requireContainment(t, s)
	assert.Equal(t, 4*20+100, len(s.Bytes()))
}

func TestWritePayloadOnlyOnTerminalLayer(t *testing.T) {
	s := NewStack()

	outer, err := s.Push(protocol.NewIPv4())
	require.NoError(t, err)

	inner, err := s.Push(protocol.NewICMPv4())
	require.NoError(t, err)
	require.NoError(t, s.SetPayload([]byte{1, 2, 3, 4}))

	// Every protocol layer wraps the terminal payload layer, so direct
	// data-region writes are rejected and leave the buffer byte-for-byte
	// unchanged.
	before := append([]byte{}, s.Bytes()...)
	err = outer.WritePayload([]byte{0xff}, 0)
	require.ErrorIs(t, err, ErrLayerNested)
	assert.Equal(t, before, s.Bytes())

	err = inner.WritePayload([]byte{0xff, 0xff}, 0)
	require.ErrorIs(t, err, ErrLayerNested)
	assert.Equal(t, before, s.Bytes())

	// Only the terminal layer writes into the payload bytes.
	terminal := s.Layers()[2]
	require.NoError(t, terminal.WritePayload([]byte{0xaa}, 0))
	assert.Equal(t, byte(0xaa), s.Bytes()[28])
	assert.Equal(t, []byte{0xaa, 2, 3, 4}, s.Bytes()[28:])
}

func TestResolveDefaults(t *testing.T) {
	s := NewStack()

	outer, err := s.Push(protocol.NewIPv4())
	require.NoError(t, err)
	require.NoError(t, outer.SetField(field.Uint8("ttl", 5)))

	_, err = s.Push(protocol.NewICMPv4())
	require.NoError(t, err)
	require.NoError(t, s.SetPayload([]byte("probekit")))

	resolved, err := s.ResolveDefaults()
	require.NoError(t, err)

	// ttl was set explicitly and must not be resolved again.
	for _, r := range resolved {
		assert.NotEqual(t, "ttl", r.Field.Name())
	}
	ttl, err := outer.Field("ttl")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), ttl.Uint())

	// Outer totalLength covers everything: 20 + 8 + 8.
	totalLength, err := outer.Field("totalLength")
	require.NoError(t, err)
	assert.Equal(t, uint64(36), totalLength.Uint())

	// The ipv4 protocol number was derived from the nested icmpv4 layer.
	proto, err := outer.Field("protocol")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), proto.Uint())

	// Both checksums validate over their covered regions.
	data := s.Bytes()
	assert.Equal(t, uint16(0), protocol.Checksum(data[:20]))
	assert.Equal(t, uint16(0), protocol.Checksum(data[20:]))
}

func TestResolveTwiceRecomputesDependents(t *testing.T) {
	s := NewStack()
	outer, err := s.Push(protocol.NewIPv4())
	require.NoError(t, err)
	require.NoError(t, s.SetPayload([]byte{1, 2, 3, 4}))

	_, err = s.ResolveDefaults()
	require.NoError(t, err)
	require.Equal(t, uint16(0), protocol.Checksum(s.Bytes()[:20]))

	// Editing a field after resolution and resolving again recomputes
	// the checksum over the new header content.
	require.NoError(t, outer.SetField(field.Uint8("ttl", 9)))
	_, err = s.ResolveDefaults()
	require.NoError(t, err)

	ttl, err := outer.Field("ttl")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), ttl.Uint())
	assert.Equal(t, uint16(0), protocol.Checksum(s.Bytes()[:20]))
}

func TestStateMachineIsForwardOnly(t *testing.T) {
	s := NewStack()
	layer, err := s.Push(protocol.NewIPv4())
	require.NoError(t, err)
	require.NoError(t, s.SetPayload([]byte{1, 2}))

	// Freezing before resolving is out of order.
	require.ErrorIs(t, s.Freeze(), ErrState)

	_, err = s.ResolveDefaults()
	require.NoError(t, err)

	// No structural edits once resolved.
	_, err = s.Push(protocol.NewUDP())
	require.ErrorIs(t, err, ErrState)
	require.ErrorIs(t, s.SetPayload([]byte{3}), ErrState)

	require.NoError(t, s.Freeze())

	// No edits at all once frozen.
	require.ErrorIs(t, layer.SetField(field.Uint8("ttl", 9)), ErrFrozen)
	require.ErrorIs(t, layer.WritePayload([]byte{1}, 0), ErrFrozen)
	_, err = s.Push(protocol.NewUDP())
	require.ErrorIs(t, err, ErrFrozen)
	_, err = s.ResolveDefaults()
	require.ErrorIs(t, err, ErrFrozen)
}

// TestLengthExample exercises the documented scenario: a 20-byte ipv4-like
// header over an 8-byte payload resolves totalLength to 28 and dumps as a
// two-level tree.
func TestLengthExample(t *testing.T) {
	s := NewStack()

	outer, err := s.Push(protocol.NewIPv4())
	require.NoError(t, err)
	require.NoError(t, s.SetPayload([]byte{1, 2, 3, 4, 5, 6, 7, 8}))

	_, err = s.ResolveDefaults()
	require.NoError(t, err)
	require.NoError(t, s.Freeze())

	totalLength, err := outer.Field("totalLength")
	require.NoError(t, err)
	assert.Equal(t, uint64(28), totalLength.Uint())

	out := s.String()
	assert.True(t, strings.HasPrefix(out, "ipv4 (header 20, segment 28)\n"), out)
	assert.Contains(t, out, "  totalLength = 28\n")
	assert.Contains(t, out, "\n  payload (8 bytes)\n")
}

func TestResolveEmptyStack(t *testing.T) {
	s := NewStack()
	resolved, err := s.ResolveDefaults()
	require.NoError(t, err)
	assert.Empty(t, resolved)
	assert.Equal(t, StateResolved, s.State())
	require.NoError(t, s.Freeze())
}
