package can

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDLCDataLenRoundTrip(t *testing.T) {
	for dlc := uint8(0); dlc <= MaxDLCFD; dlc++ {
		dataLen, ok := DLCToDataLen(dlc, FD)
		require.True(t, ok)
		gotDLC, ok := DataLenToDLC(dataLen, FD)
		require.True(t, ok)
		assert.Equal(t, dlc, gotDLC)
	}
}

func TestDLCToDataLenRejectsOutOfRange(t *testing.T) {
	_, ok := DLCToDataLen(16, FD)
	assert.False(t, ok)
	_, ok = DLCToDataLen(9, Classic)
	assert.False(t, ok)
}

func TestDataLenToDLCRoundsUpToNextStep(t *testing.T) {
	dlc, ok := DataLenToDLC(9, FD)
	require.True(t, ok)
	assert.Equal(t, uint8(9), dlc)
	length, ok := DLCToDataLen(dlc, FD)
	require.True(t, ok)
	assert.Equal(t, uint8(12), length)
}

func TestDataLenToDLCRejectsTooLarge(t *testing.T) {
	_, ok := DataLenToDLC(9, Classic)
	assert.False(t, ok)
	_, ok = DataLenToDLC(65, FD)
	assert.False(t, ok)
}

func TestFrameSetDataRejectsOversize(t *testing.T) {
	f := Frame{Format: Classic}
	ok := f.SetData(make([]byte, 9))
	assert.False(t, ok)
}

func TestFrameSetDataSetsMinimalDLC(t *testing.T) {
	f := Frame{Format: FD}
	require.True(t, f.SetData([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}))
	assert.Equal(t, uint8(9), f.DLC)
	assert.Equal(t, uint8(12), f.Datalen())
}

func TestFramePadFillsWithPaddingByte(t *testing.T) {
	f := Frame{Format: Classic}
	require.True(t, f.SetData([]byte{1, 2, 3}))
	f.Pad()
	assert.Equal(t, uint8(8), f.Datalen())
	assert.Equal(t, []byte{1, 2, 3, Padding, Padding, Padding, Padding, Padding}, f.Data[:8])
}

func TestFramePadOnFDStepsToNextDLC(t *testing.T) {
	f := Frame{Format: FD}
	require.True(t, f.SetData(make([]byte, 9)))
	f.Pad()
	assert.Equal(t, uint8(12), f.Datalen())
	for i := 9; i < 12; i++ {
		assert.Equal(t, uint8(Padding), f.Data[i])
	}
}

func TestNewBusUnknownInterface(t *testing.T) {
	_, err := NewBus("nonexistent", "chan0", 500000)
	assert.Error(t, err)
}

type recordingListener struct {
	frames []Frame
}

func (r *recordingListener) Handle(frame Frame) {
	r.frames = append(r.frames, frame)
}

func TestRegisterInterfaceAndNewBus(t *testing.T) {
	const name = "test-loopback"
	RegisterInterface(name, func(channel string) (Bus, error) {
		return &loopbackBus{channel: channel}, nil
	})

	bus, err := NewBus(name, "chX", 0)
	require.NoError(t, err)
	listener := &recordingListener{}
	require.NoError(t, bus.Subscribe(listener))
	frame := Frame{ID: 0x1, Format: Classic, DLC: 8}
	require.NoError(t, bus.Send(frame))
	require.Len(t, listener.frames, 1)
	assert.Equal(t, frame, listener.frames[0])
}

type loopbackBus struct {
	channel  string
	listener FrameListener
}

func (b *loopbackBus) Connect(...any) error { return nil }
func (b *loopbackBus) Disconnect() error    { return nil }
func (b *loopbackBus) Send(frame Frame) error {
	if b.listener != nil {
		b.listener.Handle(frame)
	}
	return nil
}
func (b *loopbackBus) Subscribe(l FrameListener) error {
	b.listener = l
	return nil
}
