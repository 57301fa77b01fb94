package isotp

import (
	can "github.com/vehiclecomms/isotp/pkg/can"
)

// prepareSF builds a Single-Frame carrying payload. Short form is used
// when payload fits the PCI nibble (len <= 7, or 6 under an extension
// byte); CAN-FD frames fall back to the escaped form for longer
// payloads. Classic CAN has no escape form: its frame is too small to
// ever need one, so its escape range is empty (escMax < escMin) and
// only the short form can match.
func prepareSF(ctx *Context, payload []byte) (can.Frame, int, error) {
	ext := int(ctx.extLen)
	n := len(payload)
	if n <= 0 {
		return can.Frame{}, 0, wrapErr("prepare_sf", CodeOutOfRange, ErrIllegalArgument)
	}

	shortMax := 7 - ext
	escMin := 8 - ext
	escMax := int(ctx.maxPayload) - 2 - ext

	var buf []byte
	switch {
	case n <= shortMax:
		buf = make([]byte, ext+1+n)
		if ext == 1 {
			buf[0] = ctx.addrExt
		}
		buf[ext] = byte(n)
		copy(buf[ext+1:], payload)
	case n >= escMin && n <= escMax:
		buf = make([]byte, ext+2+n)
		if ext == 1 {
			buf[0] = ctx.addrExt
		}
		buf[ext] = 0x00
		buf[ext+1] = byte(n)
		copy(buf[ext+2:], payload)
	default:
		return can.Frame{}, 0, newErr("prepare_sf", CodeOverflow)
	}

	frame := can.Frame{Format: ctx.format}
	if !frame.SetData(buf) {
		return can.Frame{}, 0, newErr("prepare_sf", CodeFault)
	}
	frame.Pad()
	return frame, n, nil
}

// parseSF parses a Single-Frame out of frame into out. Which form
// applies is determined by the frame's own byte length, not the PCI
// nibble: CAN frames of 8 bytes or fewer always carry the short form,
// longer CAN-FD frames always carry the escaped form (there is no
// 9-byte DLC step, so "short" and "long" frame lengths never overlap).
func parseSF(ctx *Context, frame can.Frame, out []byte) (int, error) {
	ext := int(ctx.extLen)
	dl := int(frame.Datalen())

	if dl <= 8 {
		if dl < ext+1 {
			return 0, newErr("parse_sf", CodeMsgSize)
		}
		pci := frame.Data[ext]
		if pci>>4 != 0x0 {
			return 0, newErr("parse_sf", CodeBadMessage)
		}
		sfDL := int(pci & 0x0F)
		if sfDL == 0 {
			return 0, newErr("parse_sf", CodeUnsupported)
		}
		if sfDL == 7 && ext == 1 {
			return 0, newErr("parse_sf", CodeUnsupported)
		}
		return finishParseSF(ctx, frame, out, ext, 1, sfDL)
	}

	if dl < ext+2 {
		return 0, newErr("parse_sf", CodeMsgSize)
	}
	pci := frame.Data[ext]
	if pci != 0x00 {
		return 0, newErr("parse_sf", CodeBadMessage)
	}
	sfDL := int(frame.Data[ext+1])
	if sfDL <= 7 {
		return 0, newErr("parse_sf", CodeUnsupported)
	}
	if sfDL > dl-ext-2 {
		return 0, newErr("parse_sf", CodeUnsupported)
	}
	return finishParseSF(ctx, frame, out, ext, 2, sfDL)
}

func finishParseSF(ctx *Context, frame can.Frame, out []byte, ext, headerLen, sfDL int) (int, error) {
	if sfDL > len(out) {
		return 0, newErr("parse_sf", CodeNoBufferSpace)
	}
	copy(out, frame.Data[ext+headerLen:ext+headerLen+sfDL])
	if ext == 1 {
		ctx.addrExt = frame.Data[0]
	}
	return sfDL, nil
}
