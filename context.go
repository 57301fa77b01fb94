package isotp

import (
	"time"

	log "github.com/sirupsen/logrus"

	can "github.com/vehiclecomms/isotp/pkg/can"
)

const defaultTimerBound = time.Second

// engineState is an explicit state sum type recorded alongside the
// sentinel-poisoning of sequenceNum/remaining on error. The engines set
// it at each phase; checkInvariants reads it to decide whether the
// sequence-number range applies.
type engineState uint8

const (
	stateIdle engineState = iota
	stateAwaitingFC
	stateReceivingBlock
	stateDone
	stateAborted
)

// poisonedSequenceNum is written to Context.sequenceNum on abort so
// that any caller inspecting the field directly after a failed Recv
// sees a value outside the valid 0-15 range, for callers that don't
// check the returned error.
const poisonedSequenceNum = -1

// Config configures a new Context. Transport is required; Clock
// defaults to the system clock; zero timer bounds default to one
// second.
type Config struct {
	Format  can.Format
	Mode    Mode
	MaxWait uint8

	NAs time.Duration
	NAr time.Duration
	NBs time.Duration
	NCr time.Duration

	Transport Transport
	Clock     Clock
	Metrics   *Recorder
}

// Context holds all per-conversation state for one ISO-TP peer. A
// single Context drives exactly one message at a time; it is reset to
// idle at the start of every Send/Recv and is safe to reuse
// sequentially for many messages. It is not reset when a call returns:
// the final state (done, or aborted with its poisoned fields) stays in
// place until the next Send/Recv or Reset. Concurrent use from multiple
// goroutines is outside the contract.
type Context struct {
	// immutable after NewContext
	format     can.Format
	mode       Mode
	extLen     uint8
	maxPayload uint8
	maxWait    uint8
	nAs, nAr   time.Duration
	nBs, nCr   time.Duration
	transport  Transport
	clock      Clock
	metrics    *Recorder

	// mutable during a transfer
	addrExt      byte
	frame        can.Frame
	totalDatalen uint32
	remaining    uint32
	sequenceNum  int16
	lastBlockSz  uint8
	lastSTmin    time.Duration
	fcWaitCount  uint8
	state        engineState
	abortCode    Code
	timer        *deadline
}

// NewContext validates cfg and returns an idle Context ready for
// Send/Recv. It is the sole constructor; there is no zero-value
// Context usable without it because maxPayload must be derived from
// format and mode together.
func NewContext(cfg Config) (*Context, error) {
	if cfg.Transport == nil {
		return nil, wrapErr("new_context", CodeInvalidArg, ErrNoTransport)
	}
	extLen, ok := cfg.Mode.ExtensionLen()
	if !ok {
		return nil, wrapErr("new_context", CodeFault, ErrIllegalArgument)
	}
	maxPayload, ok := MaxPayload(cfg.Mode, cfg.Format)
	if !ok {
		return nil, wrapErr("new_context", CodeFault, ErrIllegalArgument)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	withDefault := func(d time.Duration) time.Duration {
		if d <= 0 {
			return defaultTimerBound
		}
		return d
	}
	ctx := &Context{
		format:     cfg.Format,
		mode:       cfg.Mode,
		extLen:     extLen,
		maxPayload: maxPayload,
		maxWait:    cfg.MaxWait,
		nAs:        withDefault(cfg.NAs),
		nAr:        withDefault(cfg.NAr),
		nBs:        withDefault(cfg.NBs),
		nCr:        withDefault(cfg.NCr),
		transport:  cfg.Transport,
		clock:      clock,
		metrics:    cfg.Metrics,
		timer:      newDeadline(clock),
	}
	ctx.reset()
	log.WithFields(log.Fields{
		"format": cfg.Format,
		"mode":   cfg.Mode,
	}).Debug("[CTX] created")
	return ctx, nil
}

// Reset returns the context to idle, discarding any in-flight
// transfer state. Safe to call at any time, including after a failed
// Send/Recv.
func (ctx *Context) Reset() {
	ctx.reset()
}

func (ctx *Context) reset() {
	ctx.frame = can.Frame{Format: ctx.format}
	ctx.totalDatalen = 0
	ctx.remaining = 0
	ctx.sequenceNum = 0
	ctx.lastBlockSz = 0
	ctx.lastSTmin = 0
	ctx.fcWaitCount = 0
	ctx.state = stateIdle
	ctx.abortCode = CodeOK
}

// AddressExtension returns the address-extension byte last observed
// on the wire (for extended/mixed addressing), and false if this
// context's mode carries no extension byte.
func (ctx *Context) AddressExtension() (byte, bool) {
	if ctx.extLen == 0 {
		return 0, false
	}
	return ctx.addrExt, true
}

// SetAddressExtension sets the address-extension byte this context
// will place on outgoing frames. Returns ErrIllegalArgument if the
// context's addressing mode carries no extension byte.
func (ctx *Context) SetAddressExtension(ae byte) error {
	if ctx.extLen == 0 {
		return wrapErr("set_address_extension", CodeInvalidArg, ErrIllegalArgument)
	}
	ctx.addrExt = ae
	return nil
}

// checkInvariants asserts four of the data-model invariants: remaining
// <= total, frame length within the format maximum, sequence number in
// 0-15 mid-transfer, and extension length <= 1. It does not check that
// remaining == 0 exactly when idle, nor that the extension length
// matches the addressing mode. It logs and
// returns a Fault error rather than panicking or silently continuing,
// matching the defensive-fault taxonomy entry. Callers go through
// enforceInvariants, which Send/Recv call at phase boundaries, not on
// every byte.
func (ctx *Context) checkInvariants(op string) error {
	if ctx.remaining > ctx.totalDatalen {
		log.Errorf("[CTX][%s] invariant violated: remaining %d > total %d", op, ctx.remaining, ctx.totalDatalen)
		return newErr(op, CodeFault)
	}
	if int(ctx.frame.Datalen()) > int(can.MaxDatalen(ctx.format)) {
		log.Errorf("[CTX][%s] invariant violated: frame len %d exceeds format max", op, ctx.frame.Datalen())
		return newErr(op, CodeFault)
	}
	if ctx.state == stateReceivingBlock || ctx.state == stateAwaitingFC {
		if ctx.sequenceNum < 0 || ctx.sequenceNum > 15 {
			log.Errorf("[CTX][%s] invariant violated: sequence_num %d out of range mid-transfer", op, ctx.sequenceNum)
			return newErr(op, CodeFault)
		}
	}
	if ctx.extLen > 1 {
		log.Errorf("[CTX][%s] invariant violated: extension_len %d", op, ctx.extLen)
		return newErr(op, CodeFault)
	}
	return nil
}

// enforceInvariants calls checkInvariants and, on violation, transitions
// the context to stateAborted and records the fault the same way any
// other abort path does. Called at phase boundaries in Send/Recv: after
// a First-Frame is built or parsed, after each Consecutive-Frame, and
// on every Flow-Control dispatch.
func (ctx *Context) enforceInvariants(op string) error {
	if err := ctx.checkInvariants(op); err != nil {
		ctx.state = stateAborted
		ctx.abortCode = CodeFault
		ctx.metrics.aborted(CodeFault)
		return err
	}
	return nil
}
