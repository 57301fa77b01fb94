package virtual

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	can "github.com/vehiclecomms/isotp/pkg/can"
)

func TestSerializeDeserializeFrameRoundTrip(t *testing.T) {
	frame := can.Frame{ID: 0x7E0, Flags: 0x1, Format: can.FD, DLC: 9}
	for i := range frame.Data {
		frame.Data[i] = uint8(i)
	}
	encoded, err := serializeFrame(frame)
	require.NoError(t, err)

	decoded, err := deserializeFrame(encoded[4:])
	require.NoError(t, err)
	assert.Equal(t, frame, *decoded)
}

type frameCollector struct {
	mu     sync.Mutex
	frames []can.Frame
}

func (c *frameCollector) Handle(frame can.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
}

func (c *frameCollector) snapshot() []can.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]can.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// TestLoopbackSend exercises the receiveOwn path, which delivers sent
// frames straight back to the local subscriber without needing a
// broker connection.
func TestLoopbackSend(t *testing.T) {
	bus, err := NewVirtualCanBus("unused")
	require.NoError(t, err)
	vbus := bus.(*Bus)
	vbus.SetReceiveOwn(true)

	collector := &frameCollector{}
	require.NoError(t, vbus.Subscribe(collector))

	frame := can.Frame{ID: 0x123, Format: can.Classic, DLC: 8}
	copy(frame.Data[:], []byte{0x10, 0x14, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	require.NoError(t, vbus.Send(frame))

	got := collector.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, frame, got[0])
}

func TestNewVirtualCanBusWithTimeoutAppliesDefaults(t *testing.T) {
	bus, err := NewVirtualCanBusWithTimeout("unused", 0, -1)
	require.NoError(t, err)
	vbus := bus.(*Bus)
	assert.Equal(t, defaultReadTimeout, vbus.readTimeout)
	assert.Equal(t, defaultWriteTimeout, vbus.writeTimeout)
}

func TestNewVirtualCanBusWithTimeoutHonorsCaller(t *testing.T) {
	bus, err := NewVirtualCanBusWithTimeout("unused", 5*time.Millisecond, 3*time.Millisecond)
	require.NoError(t, err)
	vbus := bus.(*Bus)
	assert.Equal(t, 5*time.Millisecond, vbus.readTimeout)
	assert.Equal(t, 3*time.Millisecond, vbus.writeTimeout)
}
