package isotp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	can "github.com/vehiclecomms/isotp/pkg/can"
)

func TestModeExtensionLen(t *testing.T) {
	cases := []struct {
		mode    Mode
		wantLen uint8
		wantOK  bool
	}{
		{Normal, 0, true},
		{NormalFixed, 0, true},
		{Extended, 1, true},
		{Mixed, 1, true},
		{Mode(99), 0, false},
	}
	for _, c := range cases {
		got, ok := c.mode.ExtensionLen()
		assert.Equal(t, c.wantOK, ok, "mode %v", c.mode)
		assert.Equal(t, c.wantLen, got, "mode %v", c.mode)
	}
}

func TestMaxPayload(t *testing.T) {
	cases := []struct {
		mode   Mode
		format can.Format
		want   uint8
	}{
		{Normal, can.Classic, 8},
		{Normal, can.FD, 64},
		{Extended, can.Classic, 7},
		{Extended, can.FD, 63},
		{Mixed, can.FD, 63},
		{NormalFixed, can.Classic, 8},
	}
	for _, c := range cases {
		got, ok := MaxPayload(c.mode, c.format)
		assert.True(t, ok)
		assert.Equal(t, c.want, got)
	}

	_, ok := MaxPayload(Mode(99), can.Classic)
	assert.False(t, ok)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "normal", Normal.String())
	assert.Equal(t, "normal-fixed", NormalFixed.String())
	assert.Equal(t, "extended", Extended.String())
	assert.Equal(t, "mixed", Mixed.String())
	assert.Equal(t, "invalid", Mode(99).String())
}
