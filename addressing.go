package isotp

import (
	can "github.com/vehiclecomms/isotp/pkg/can"
)

// Mode is the ISO-TP addressing mode, a tagged variant replacing the
// ad-hoc mode switches that recur in every codec: each mode only
// differs in how many leading bytes of a frame carry the address
// extension, so codecs consult Mode once instead of branching
// themselves.
type Mode uint8

const (
	Normal Mode = iota
	NormalFixed
	Extended
	Mixed
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case NormalFixed:
		return "normal-fixed"
	case Extended:
		return "extended"
	case Mixed:
		return "mixed"
	default:
		return "invalid"
	}
}

// ExtensionLen returns the number of address-extension bytes this
// mode places at the front of every frame: 0 for normal/normal-fixed,
// 1 for extended/mixed. ok is false for an unrecognized mode.
func (m Mode) ExtensionLen() (n uint8, ok bool) {
	switch m {
	case Normal, NormalFixed:
		return 0, true
	case Extended, Mixed:
		return 1, true
	default:
		return 0, false
	}
}

// MaxPayload returns the number of bytes available for PCI+data in a
// frame of the given format once the addressing extension has been
// accounted for. ok is false for an unrecognized mode or format.
func MaxPayload(mode Mode, format can.Format) (n uint8, ok bool) {
	ext, ok := mode.ExtensionLen()
	if !ok {
		return 0, false
	}
	max := can.MaxDatalen(format)
	if ext > max {
		return 0, false
	}
	return max - ext, true
}
