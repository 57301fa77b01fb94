// Package can provides the CAN/CAN-FD frame type and transport registry
// that the isotp engines drive through the Transport interface.
package can

import (
	"fmt"
)

const RtrFlag uint32 = 0x40000000
const SffMask uint32 = 0x000007FF

// Format distinguishes classic CAN from CAN-FD, which changes the
// maximum data length per frame and the set of valid DLC values.
type Format uint8

const (
	Classic Format = iota
	FD
)

func (f Format) String() string {
	if f == FD {
		return "CAN-FD"
	}
	return "classic"
}

const (
	MaxDatalenClassic = 8
	MaxDatalenFD      = 64
	Padding           = 0xCC
	MaxDLCClassic     = 8
	MaxDLCFD          = 15
)

// MaxDatalen returns the largest data length a frame of the given
// format may carry.
func MaxDatalen(format Format) uint8 {
	if format == FD {
		return MaxDatalenFD
	}
	return MaxDatalenClassic
}

// MaxDLC returns the largest valid DLC value for the given format.
func MaxDLC(format Format) uint8 {
	if format == FD {
		return MaxDLCFD
	}
	return MaxDLCClassic
}

// dlcToLen mirrors ISO 11898-1 table 5: DLC 0-8 map directly to that
// many bytes, DLC 9-15 step through the CAN-FD lengths.
var dlcToLen = [16]uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// DLCToDataLen converts a DLC value to a data length. ok is false if
// dlc is outside the valid range for format.
func DLCToDataLen(dlc uint8, format Format) (dataLen uint8, ok bool) {
	if dlc > MaxDLC(format) {
		return 0, false
	}
	return dlcToLen[dlc], true
}

// DataLenToDLC converts a data length to the smallest DLC whose mapped
// length is >= dataLen. ok is false if dataLen exceeds the format's
// maximum.
func DataLenToDLC(dataLen uint8, format Format) (dlc uint8, ok bool) {
	if dataLen > MaxDatalen(format) {
		return 0, false
	}
	for d, l := range dlcToLen {
		if l >= dataLen {
			return uint8(d), true
		}
	}
	return 0, false
}

// CAN bus errors, as reported by FrameListener implementations that
// surface controller state changes alongside data frames.
const (
	ErrorTxWarning   = 0x0001
	ErrorTxPassive   = 0x0002
	ErrorTxBusOff    = 0x0004
	ErrorTxOverflow  = 0x0008
	ErrorRxWarning   = 0x0100
	ErrorRxPassive   = 0x0200
	ErrorRxOverflow  = 0x0800
	ErrorWarnPassive = 0x0303
)

// Frame is a CAN or CAN-FD frame. Data holds up to MaxDatalenFD bytes;
// only Data[:DLC-derived length] is meaningful, the format determines
// how DLC maps to that length.
type Frame struct {
	ID     uint32
	Flags  uint8
	Format Format
	DLC    uint8
	Data   [MaxDatalenFD]byte
}

// NewFrame builds an empty frame of the given format, ready to receive
// up to MaxDatalen(format) bytes via SetData.
func NewFrame(id uint32, flags uint8, format Format) Frame {
	return Frame{ID: id, Flags: flags, Format: format}
}

// Datalen returns the number of meaningful bytes in Data, derived from
// DLC and Format. Returns 0 if DLC is out of range for Format.
func (f Frame) Datalen() uint8 {
	n, ok := DLCToDataLen(f.DLC, f.Format)
	if !ok {
		return 0
	}
	return n
}

// SetData copies data into the frame and sets DLC to the smallest
// value that covers it. If that length isn't itself a representable
// byte count (CAN-FD has gaps above 8 bytes: 9, 10 and 11 bytes all
// round up to a 12-byte frame), the gap bytes are filled with Padding
// since they go out on the wire regardless. Returns false if data is
// longer than the format allows.
func (f *Frame) SetData(data []byte) bool {
	if len(data) > int(MaxDatalen(f.Format)) {
		return false
	}
	dlc, ok := DataLenToDLC(uint8(len(data)), f.Format)
	if !ok {
		return false
	}
	f.DLC = dlc
	copy(f.Data[:], data)
	nominalLen, _ := DLCToDataLen(dlc, f.Format)
	for i := len(data); i < int(nominalLen); i++ {
		f.Data[i] = Padding
	}
	return true
}

// Pad grows the frame's data length to the next valid DLC datalen,
// filling the new bytes with Padding. The DLC is updated to match.
// Mirrors the original can_frame helper's pad_can_frame.
func (f *Frame) Pad() {
	cur := f.Datalen()
	dlc, ok := DataLenToDLC(cur, f.Format)
	if !ok {
		dlc = MaxDLC(f.Format)
	}
	padded, _ := DLCToDataLen(dlc, f.Format)
	if padded < 8 {
		padded = 8
		dlc, _ = DataLenToDLC(8, f.Format)
	}
	for i := cur; i < padded; i++ {
		f.Data[i] = Padding
	}
	f.DLC = dlc
}

// FrameListener handles frames received off a Bus.
type FrameListener interface {
	Handle(frame Frame)
}

// Bus is a CAN bus interface, implemented by each transport backend
// (socketcan, virtual, ...).
type Bus interface {
	Connect(...any) error
	Disconnect() error
	Send(frame Frame) error
	Subscribe(callback FrameListener) error
}

// RegisterInterface registers a new CAN bus interface type. Call this
// from the init() function of a transport backend package.
func RegisterInterface(interfaceType string, newInterface NewInterfaceFunc) {
	interfaceRegistry[interfaceType] = newInterface
}

type NewInterfaceFunc func(channel string) (Bus, error)

var interfaceRegistry = make(map[string]NewInterfaceFunc)

// NewBus creates a new CAN bus with the given registered interface
// name. Currently registered: socketcan, virtual.
func NewBus(canInterface string, channel string, bitrate int) (Bus, error) {
	createInterface, ok := interfaceRegistry[canInterface]
	if !ok {
		return nil, fmt.Errorf("unsupported interface: %v", canInterface)
	}
	return createInterface(channel)
}
