package isotp

import (
	"encoding/binary"

	can "github.com/vehiclecomms/isotp/pkg/can"
)

// ffDLMin is the smallest FF_DL a First-Frame may carry: maxPayload
// (already reduced by the extension byte) minus the extension length,
// minus one more on CAN-FD because its Single-Frame escape form costs
// a header byte the classic short form doesn't. On CAN-FD, and on
// classic CAN with normal addressing, this is one more than the largest
// Single-Frame payload; on classic CAN with an extension byte it is 6,
// a length a Single-Frame can also carry.
func ffDLMin(ctx *Context) uint32 {
	if ctx.format == can.FD {
		return uint32(ctx.maxPayload) - uint32(ctx.extLen) - 1
	}
	return uint32(ctx.maxPayload) - uint32(ctx.extLen)
}

// prepareFF builds a First-Frame announcing totalLen and carrying as
// much of payload as the frame has room for. It records totalDatalen,
// remaining and the initial sequence number (1) on ctx.
func prepareFF(ctx *Context, payload []byte, totalLen uint32) (can.Frame, int, error) {
	if totalLen < ffDLMin(ctx) {
		return can.Frame{}, 0, newErr("prepare_ff", CodeOutOfRange)
	}
	ext := int(ctx.extLen)

	var header []byte
	if totalLen <= 4095 {
		header = []byte{0x10 | byte(totalLen>>8), byte(totalLen)}
	} else {
		header = make([]byte, 6)
		header[0] = 0x10
		header[1] = 0x00
		binary.BigEndian.PutUint32(header[2:], totalLen)
	}

	available := int(ctx.maxPayload) - len(header)
	if available < 0 {
		return can.Frame{}, 0, newErr("prepare_ff", CodeFault)
	}
	copied := available
	if copied > len(payload) {
		copied = len(payload)
	}

	buf := make([]byte, ext+len(header)+copied)
	if ext == 1 {
		buf[0] = ctx.addrExt
	}
	copy(buf[ext:], header)
	copy(buf[ext+len(header):], payload[:copied])

	frame := can.Frame{Format: ctx.format}
	if !frame.SetData(buf) {
		return can.Frame{}, 0, newErr("prepare_ff", CodeFault)
	}
	frame.Pad()

	ctx.totalDatalen = totalLen
	ctx.remaining = totalLen - uint32(copied)
	ctx.sequenceNum = 1
	return frame, copied, nil
}

// parseFF parses a First-Frame out of frame into out, and records
// totalDatalen/remaining/sequenceNum on ctx for the CF loop to follow.
func parseFF(ctx *Context, frame can.Frame, out []byte) (int, error) {
	ext := int(ctx.extLen)
	dl := int(frame.Datalen())
	if dl < ext+2 {
		return 0, newErr("parse_ff", CodeMsgSize)
	}
	pci := frame.Data[ext]
	if pci>>4 != 0x1 {
		return 0, newErr("parse_ff", CodeBadMessage)
	}

	lo := pci & 0x0F
	var ffDL uint32
	headerLen := 2
	// The escape/long form is signalled by the full 12-bit length
	// field being zero (low nibble and the second byte both 0x00);
	// any other lo == 0 value is a perfectly valid short-form FF_DL
	// below 256, not a malformed escape header.
	if lo == 0 && frame.Data[ext+1] == 0x00 {
		if dl < ext+6 {
			return 0, newErr("parse_ff", CodeMsgSize)
		}
		ffDL = binary.BigEndian.Uint32(frame.Data[ext+2 : ext+6])
		headerLen = 6
	} else {
		ffDL = (uint32(lo) << 8) | uint32(frame.Data[ext+1])
	}

	if ffDL < ffDLMin(ctx) {
		return 0, newErr("parse_ff", CodeBadMessage)
	}
	if ffDL > uint32(len(out)) {
		return 0, newErr("parse_ff", CodeOverflow)
	}

	copied := dl - ext - headerLen
	if copied > int(ffDL) {
		copied = int(ffDL)
	}
	if copied < 0 {
		copied = 0
	}
	copy(out, frame.Data[ext+headerLen:ext+headerLen+copied])

	if ext == 1 {
		ctx.addrExt = frame.Data[0]
	}
	ctx.totalDatalen = ffDL
	ctx.remaining = ffDL - uint32(copied)
	ctx.sequenceNum = 1
	return copied, nil
}
