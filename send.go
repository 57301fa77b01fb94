package isotp

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// Send transfers payload to the peer, blocking until the whole
// message is sent, a protocol timer expires, goctx is cancelled, or
// the peer aborts. timeout bounds each individual transport call; the
// four protocol timers bound the overall wait across calls.
//
// Payloads that fit a Single-Frame are sent in one call. Longer
// payloads are split into a First-Frame followed by Consecutive-Frame
// blocks, driven by the peer's Flow-Control frames exactly as
// described in the component design: N_As bounds the wait for the
// first FC after the FF, N_Bs every FC after that.
func (ctx *Context) Send(goctx context.Context, payload []byte, timeout time.Duration) (int, error) {
	ctx.reset()
	if err := checkCancel(goctx); err != nil {
		return 0, err
	}
	if len(payload) == 0 {
		return 0, wrapErr("send", CodeInvalidArg, ErrIllegalArgument)
	}

	frame, n, err := prepareSF(ctx, payload)
	if err == nil {
		if sendErr := ctx.transport.SendFrame(frame, timeout); sendErr != nil {
			return 0, wrapErr("send", CodeFault, sendErr)
		}
		ctx.metrics.frameSent("sf")
		ctx.state = stateDone
		log.WithField("bytes", n).Debug("[SEND] single-frame complete")
		return n, nil
	}
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Code != CodeOverflow {
		return 0, err
	}

	return ctx.sendMultiFrame(goctx, payload, timeout)
}

func (ctx *Context) sendMultiFrame(goctx context.Context, payload []byte, timeout time.Duration) (int, error) {
	ffFrame, copied, err := prepareFF(ctx, payload, uint32(len(payload)))
	if err != nil {
		return 0, err
	}
	if err := ctx.transport.SendFrame(ffFrame, timeout); err != nil {
		return 0, wrapErr("send", CodeFault, err)
	}
	ctx.metrics.frameSent("ff")
	ctx.metrics.setRemaining(ctx.remaining)
	log.WithField("total", ctx.totalDatalen).Debug("[SEND] first-frame sent")

	sent := copied
	ctx.fcWaitCount = 0
	ctx.state = stateAwaitingFC
	ctx.timer.arm(ctx.nAs)
	applicable := ctx.nAs
	timerLabel := "n_as"
	if err := ctx.enforceInvariants("send"); err != nil {
		return sent, err
	}

	for ctx.remaining > 0 {
		if err := checkCancel(goctx); err != nil {
			return sent, err
		}
		if ctx.timer.expired() {
			ctx.state = stateAborted
			ctx.abortCode = CodeTimedOut
			ctx.metrics.timedOut(timerLabel)
			return sent, newErr("send", CodeTimedOut)
		}
		waitFor := ctx.timer.remaining()
		if timeout > 0 && timeout < waitFor {
			waitFor = timeout
		}
		frame, err := ctx.transport.RecvFrame(waitFor)
		if err != nil {
			if timeoutLike(err) {
				continue
			}
			return sent, wrapErr("send", CodeFault, err)
		}

		fs, bs, stmin, ferr := parseFC(ctx, frame)
		if ferr != nil {
			return sent, ferr
		}
		ctx.metrics.frameRecv("fc")
		if err := ctx.enforceInvariants("send"); err != nil {
			return sent, err
		}

		switch fs {
		case FSClearToSend:
			ctx.fcWaitCount = 0
			ctx.lastBlockSz = bs
			ctx.lastSTmin = stmin
			n, err := ctx.sendBlock(payload, bs, stmin, timeout)
			sent += n
			if err != nil {
				return sent, err
			}
			if ctx.remaining > 0 {
				applicable = ctx.nBs
				timerLabel = "n_bs"
				ctx.timer.arm(applicable)
			}
		case FSWait:
			ctx.fcWaitCount++
			ctx.metrics.fcWaitSeen()
			log.Warnf("[SEND] FC.WAIT received (%d)", ctx.fcWaitCount)
			if ctx.maxWait > 0 && ctx.fcWaitCount > ctx.maxWait {
				ctx.state = stateAborted
				ctx.abortCode = CodeConnAborted
				ctx.metrics.aborted(CodeConnAborted)
				return sent, newErr("send", CodeConnAborted)
			}
			applicable = ctx.nBs
			timerLabel = "n_bs"
			ctx.timer.arm(applicable)
		case FSOverflow:
			ctx.state = stateAborted
			ctx.abortCode = CodeConnAborted
			ctx.metrics.aborted(CodeConnAborted)
			return sent, newErr("send", CodeConnAborted)
		default:
			return sent, newErr("send", CodeBadMessage)
		}
	}

	ctx.state = stateDone
	ctx.metrics.setRemaining(0)
	return sent, nil
}

// sendBlock transmits one block of Consecutive-Frames: bs frames, or
// until the transfer completes, whichever comes first. bs == 0 means
// send continuously with no further Flow-Control expected.
func (ctx *Context) sendBlock(payload []byte, bs uint8, stmin time.Duration, timeout time.Duration) (int, error) {
	sent := 0
	count := 0
	for ctx.remaining > 0 && (bs == 0 || count < int(bs)) {
		frame, n, err := prepareCF(ctx, payload)
		if err != nil {
			return sent, err
		}
		if err := ctx.transport.SendFrame(frame, timeout); err != nil {
			return sent, wrapErr("send", CodeFault, err)
		}
		ctx.metrics.frameSent("cf")
		sent += n
		count++
		ctx.metrics.setRemaining(ctx.remaining)
		if err := ctx.enforceInvariants("send"); err != nil {
			return sent, err
		}
		if ctx.remaining > 0 {
			ctx.clock.Sleep(stmin)
		}
	}
	return sent, nil
}
