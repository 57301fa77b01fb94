package isotp

import (
	can "github.com/vehiclecomms/isotp/pkg/can"
)

// prepareCF builds the next Consecutive-Frame, copying up to
// max_payload-1 bytes starting at totalDatalen-remaining out of
// payload, then advances remaining and the sequence counter. SN wraps
// 1, 2, ..., 15, 0, 1, ... via modulo 16.
func prepareCF(ctx *Context, payload []byte) (can.Frame, int, error) {
	if ctx.remaining == 0 {
		return can.Frame{}, 0, newErr("prepare_cf", CodeFault)
	}
	ext := int(ctx.extLen)
	sn := byte(ctx.sequenceNum) & 0x0F

	avail := int(ctx.maxPayload) - 1
	copyLen := avail
	if uint32(copyLen) > ctx.remaining {
		copyLen = int(ctx.remaining)
	}
	offset := int(ctx.totalDatalen - ctx.remaining)
	if offset+copyLen > len(payload) {
		return can.Frame{}, 0, newErr("prepare_cf", CodeFault)
	}

	buf := make([]byte, ext+1+copyLen)
	if ext == 1 {
		buf[0] = ctx.addrExt
	}
	buf[ext] = 0x20 | sn
	copy(buf[ext+1:], payload[offset:offset+copyLen])

	frame := can.Frame{Format: ctx.format}
	if !frame.SetData(buf) {
		return can.Frame{}, 0, newErr("prepare_cf", CodeFault)
	}
	frame.Pad()

	ctx.remaining -= uint32(copyLen)
	ctx.sequenceNum = (ctx.sequenceNum + 1) % 16
	return frame, copyLen, nil
}

// parseCF parses one Consecutive-Frame into out at the position its
// sequence number implies. A frame whose PCI nibble isn't 0x2 is
// treated as unrelated traffic and silently ignored (0 bytes copied,
// no state change) rather than an error, per the protocol's tolerance
// for noise during a CF loop. A sequence-number mismatch aborts the
// transfer: sequenceNum is poisoned so no later CF in the same Recv
// call can be mistaken for valid.
func parseCF(ctx *Context, frame can.Frame, out []byte) (int, error) {
	if ctx.totalDatalen > uint32(len(out)) {
		return 0, newErr("parse_cf", CodeNoBufferSpace)
	}
	ext := int(ctx.extLen)
	dl := int(frame.Datalen())
	if dl < ext+1 {
		return 0, nil
	}
	pci := frame.Data[ext]
	if pci>>4 != 0x2 {
		return 0, nil
	}

	sn := int16(pci & 0x0F)
	if sn != ctx.sequenceNum {
		ctx.sequenceNum = poisonedSequenceNum
		ctx.remaining = ^uint32(0)
		ctx.state = stateAborted
		ctx.abortCode = CodeConnAborted
		return 0, newErr("parse_cf", CodeConnAborted)
	}

	copyLen := dl - ext - 1
	if uint32(copyLen) > ctx.remaining {
		copyLen = int(ctx.remaining)
	}
	if copyLen < 0 {
		copyLen = 0
	}
	offset := int(ctx.totalDatalen - ctx.remaining)
	copy(out[offset:offset+copyLen], frame.Data[ext+1:ext+1+copyLen])

	if ext == 1 {
		ctx.addrExt = frame.Data[0]
	}
	ctx.remaining -= uint32(copyLen)
	ctx.sequenceNum = (ctx.sequenceNum + 1) % 16
	return copyLen, nil
}
