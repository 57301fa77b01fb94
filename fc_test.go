package isotp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	can "github.com/vehiclecomms/isotp/pkg/can"
)

func TestSTminRoundTrip(t *testing.T) {
	// Values an encoder actually produces must round-trip exactly.
	exact := []uint32{0, 100, 200, 500, 900, 1000, 2000, 50000, 126000}
	for _, usec := range exact {
		b := stminToByte(usec)
		assert.Equal(t, usec, byteToSTmin(b), "usec=%d byte=0x%02X", usec, b)
	}
}

func TestSTminCapsAboveMax(t *testing.T) {
	assert.Equal(t, byte(0x7F), stminToByte(127000))
	assert.Equal(t, byte(0x7F), stminToByte(5_000_000))
	assert.Equal(t, uint32(127000), byteToSTmin(0x7F))
}

func TestSTminReservedBytesDecodeToCap(t *testing.T) {
	for _, b := range []byte{0x80, 0xAA, 0xF0, 0xFA, 0xFF} {
		assert.Equal(t, uint32(127000), byteToSTmin(b), "byte=0x%02X", b)
	}
}

func TestPrepareParseFCRoundTrip(t *testing.T) {
	ctx := newTestContext(t, can.Classic, Normal)
	frame, err := prepareFC(ctx, FSClearToSend, 8, 5000)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x30, 0x08, 0x05, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC}, frameBytes(frame))

	fs, bs, stmin, err := parseFC(ctx, frame)
	require.NoError(t, err)
	assert.Equal(t, uint8(FSClearToSend), fs)
	assert.Equal(t, uint8(8), bs)
	assert.Equal(t, 5*time.Millisecond, stmin)
}

// Scenario 3 (flow control): peer replies bs=0, stmin=0.
func TestPrepareFCScenario3(t *testing.T) {
	ctx := newTestContext(t, can.Classic, Normal)
	frame, err := prepareFC(ctx, FSClearToSend, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x30, 0x00, 0x00, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC}, frameBytes(frame))
}

func TestPrepareFCInvalidStatus(t *testing.T) {
	ctx := newTestContext(t, can.Classic, Normal)
	_, err := prepareFC(ctx, 3, 0, 0)
	require.Error(t, err)
}

func TestParseFCRejectsWrongPCI(t *testing.T) {
	ctx := newTestContext(t, can.Classic, Normal)
	frame := buildFrame(can.Classic, []byte{0x21, 1, 2})
	_, _, _, err := parseFC(ctx, frame)
	require.Error(t, err)
	assert.ErrorIs(t, err, CodeNoMessage)
}

func TestParseFCWithAddressExtension(t *testing.T) {
	ctx := newTestContext(t, can.Classic, Extended)
	require.NoError(t, ctx.SetAddressExtension(0x7E))
	frame, err := prepareFC(ctx, FSWait, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7E, 0x31, 0x00, 0x00, 0xCC, 0xCC, 0xCC, 0xCC}, frameBytes(frame))

	fs, _, _, err := parseFC(ctx, frame)
	require.NoError(t, err)
	assert.Equal(t, uint8(FSWait), fs)
}
