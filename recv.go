package isotp

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	can "github.com/vehiclecomms/isotp/pkg/can"
)

// Recv receives one ISO-TP message into out, blocking until the
// message is fully received, N_Cr expires, goctx is cancelled, or the
// peer's First-Frame declares more data than out can hold. bs and
// stminUsec are advertised to the peer in this side's Flow-Control
// frames. timeout bounds each individual transport call.
func (ctx *Context) Recv(goctx context.Context, out []byte, bs uint8, stminUsec uint32, timeout time.Duration) (int, error) {
	ctx.reset()
	if err := checkCancel(goctx); err != nil {
		return 0, err
	}

	frame, err := ctx.transport.RecvFrame(timeout)
	if err != nil {
		if timeoutLike(err) {
			return 0, newErr("recv", CodeTimedOut)
		}
		return 0, wrapErr("recv", CodeFault, err)
	}

	ext := int(ctx.extLen)
	if int(frame.Datalen()) < ext+1 {
		return 0, newErr("recv", CodeMsgSize)
	}

	switch frame.Data[ext] >> 4 {
	case 0x0:
		n, err := parseSF(ctx, frame, out)
		if err != nil {
			return 0, err
		}
		ctx.metrics.frameRecv("sf")
		ctx.state = stateDone
		return n, nil

	case 0x1:
		return ctx.recvMultiFrame(goctx, frame, out, bs, stminUsec, timeout)

	default:
		return 0, newErr("recv", CodeNoMessage)
	}
}

// recvMultiFrame parses the already-received First-Frame ff, then
// drives the Flow-Control/Consecutive-Frame loop: send FC.CTS, receive
// up to bs CFs (or indefinitely if bs == 0) restarting N_Cr after each
// one, and repeat until the message is complete.
func (ctx *Context) recvMultiFrame(goctx context.Context, ff can.Frame, out []byte, bs uint8, stminUsec uint32, timeout time.Duration) (int, error) {
	n, err := parseFF(ctx, ff, out)
	if err != nil {
		var pe *ProtocolError
		if errors.As(err, &pe) && pe.Code == CodeOverflow {
			if fc, ferr := prepareFC(ctx, FSOverflow, 0, 0); ferr == nil {
				_ = ctx.transport.SendFrame(fc, timeout)
			}
			ctx.state = stateAborted
			ctx.abortCode = CodeConnAborted
			ctx.metrics.aborted(CodeConnAborted)
			return 0, newErr("recv", CodeConnAborted)
		}
		return 0, err
	}
	ctx.metrics.frameRecv("ff")
	ctx.metrics.setRemaining(ctx.remaining)
	log.WithField("total", ctx.totalDatalen).Debug("[RECV] first-frame received")

	received := n
	ctx.state = stateReceivingBlock
	if err := ctx.enforceInvariants("recv"); err != nil {
		return received, err
	}

	for ctx.remaining > 0 {
		if err := checkCancel(goctx); err != nil {
			return received, err
		}
		fc, err := prepareFC(ctx, FSClearToSend, bs, stminUsec)
		if err != nil {
			return received, err
		}
		if err := ctx.transport.SendFrame(fc, timeout); err != nil {
			return received, wrapErr("recv", CodeFault, err)
		}
		ctx.metrics.frameSent("fc")
		ctx.timer.arm(ctx.nCr)
		if err := ctx.enforceInvariants("recv"); err != nil {
			return received, err
		}

		count := 0
		for ctx.remaining > 0 && (bs == 0 || count < int(bs)) {
			if err := checkCancel(goctx); err != nil {
				return received, err
			}
			if ctx.timer.expired() {
				ctx.state = stateAborted
				ctx.abortCode = CodeTimedOut
				ctx.metrics.timedOut("n_cr")
				return received, newErr("recv", CodeTimedOut)
			}
			waitFor := ctx.timer.remaining()
			if timeout > 0 && timeout < waitFor {
				waitFor = timeout
			}
			cf, err := ctx.transport.RecvFrame(waitFor)
			if err != nil {
				if timeoutLike(err) {
					continue
				}
				return received, wrapErr("recv", CodeFault, err)
			}

			copied, err := parseCF(ctx, cf, out)
			if err != nil {
				ctx.metrics.aborted(CodeConnAborted)
				return received, err
			}
			if copied == 0 {
				continue
			}
			ctx.metrics.frameRecv("cf")
			received += copied
			count++
			ctx.metrics.setRemaining(ctx.remaining)
			ctx.timer.arm(ctx.nCr)
			if err := ctx.enforceInvariants("recv"); err != nil {
				return received, err
			}
		}
	}

	ctx.state = stateDone
	ctx.metrics.setRemaining(0)
	return received, nil
}
