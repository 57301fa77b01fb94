package isotp

import (
	"time"

	can "github.com/vehiclecomms/isotp/pkg/can"
)

// Flow status sub-codes carried in the low nibble of a Flow-Control
// frame's PCI byte.
const (
	FSClearToSend uint8 = 0
	FSWait        uint8 = 1
	FSOverflow    uint8 = 2
)

// stminToByte encodes a microsecond separation time per ISO
// 15765-2:2016 table 20. Every value it emits round-trips through
// byteToSTmin.
func stminToByte(usec uint32) byte {
	switch {
	case usec < 100:
		return 0x00
	case usec < 1000:
		return byte(0xF0 + usec/100)
	case usec < 127000:
		return byte(usec / 1000)
	default:
		return 0x7F
	}
}

// byteToSTmin decodes a Flow-Control STmin byte to microseconds.
// Reserved byte values decode to the 127ms cap.
func byteToSTmin(b byte) uint32 {
	switch {
	case b == 0x00:
		return 0
	case b >= 0x01 && b <= 0x7F:
		return uint32(b) * 1000
	case b >= 0xF1 && b <= 0xF9:
		return uint32(b-0xF0) * 100
	default:
		return 127000
	}
}

// prepareFC builds a Flow-Control frame with the given flow status,
// block size and separation time.
func prepareFC(ctx *Context, fs uint8, bs uint8, stminUsec uint32) (can.Frame, error) {
	if fs > FSOverflow {
		return can.Frame{}, wrapErr("prepare_fc", CodeInvalidArg, ErrIllegalArgument)
	}
	ext := int(ctx.extLen)
	buf := make([]byte, ext+3)
	if ext == 1 {
		buf[0] = ctx.addrExt
	}
	buf[ext] = 0x30 | fs
	buf[ext+1] = bs
	buf[ext+2] = stminToByte(stminUsec)

	frame := can.Frame{Format: ctx.format}
	if !frame.SetData(buf) {
		return can.Frame{}, newErr("prepare_fc", CodeFault)
	}
	frame.Pad()
	return frame, nil
}

// parseFC parses a Flow-Control frame, returning its flow status,
// block size and decoded separation time.
func parseFC(ctx *Context, frame can.Frame) (fs uint8, bs uint8, stmin time.Duration, err error) {
	ext := int(ctx.extLen)
	dl := int(frame.Datalen())
	if dl < ext+3 {
		return 0, 0, 0, newErr("parse_fc", CodeMsgSize)
	}
	pci := frame.Data[ext]
	if pci>>4 != 0x3 {
		return 0, 0, 0, newErr("parse_fc", CodeNoMessage)
	}
	fs = pci & 0x0F
	if fs > FSOverflow {
		return 0, 0, 0, newErr("parse_fc", CodeBadMessage)
	}
	bs = frame.Data[ext+1]
	stminUs := byteToSTmin(frame.Data[ext+2])
	if ext == 1 {
		ctx.addrExt = frame.Data[0]
	}
	return fs, bs, time.Duration(stminUs) * time.Microsecond, nil
}
