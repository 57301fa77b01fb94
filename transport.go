package isotp

import (
	"time"

	can "github.com/vehiclecomms/isotp/pkg/can"
)

// Transport is the pair of blocking single-frame callables the core
// is driven through: a single Go interface in place of a tx/rx
// function-pointer pair and an opaque handle, per the "accept
// interfaces" convention.
type Transport interface {
	// SendFrame transmits exactly one CAN frame, blocking up to
	// timeout. A non-nil error aborts the in-flight Send/Recv call.
	SendFrame(frame can.Frame, timeout time.Duration) error

	// RecvFrame receives exactly one CAN frame, blocking up to
	// timeout. Implementations should return a timeout-flavoured
	// error when no frame arrives in time. Send/Recv treat an error
	// whose Timeout() method reports true (net.Error's convention) as
	// "no frame yet": Recv's first receive returns CodeTimedOut, and
	// the Flow-Control/Consecutive-Frame loops retry until the
	// protocol timer expires. Any other error is wrapped as CodeFault.
	RecvFrame(timeout time.Duration) (can.Frame, error)
}

// Clock is the injected time source and blocking sleep, in place of a
// process-wide now_usec/sleep pair. Both are only consulted for STmin
// spacing and timer bookkeeping.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// systemClock is the default Clock, backed by the standard library.
// No clock-related dependency appears anywhere in the retrieval pack,
// so this is implemented directly against time rather than through a
// third-party library.
type systemClock struct{}

func (systemClock) Now() time.Time  { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// BusTransport adapts a can.Bus (SocketCAN, virtual, ...) to the
// Transport interface by layering a blocking receive on top of the
// bus's asynchronous Subscribe/FrameListener model: RecvFrame waits
// on an internal channel fed by the subscription callback.
type BusTransport struct {
	bus    can.Bus
	frames chan can.Frame
}

// NewBusTransport subscribes to bus and returns a Transport that
// turns its async frame delivery into blocking RecvFrame calls.
func NewBusTransport(bus can.Bus) (*BusTransport, error) {
	t := &BusTransport{bus: bus, frames: make(chan can.Frame, 64)}
	if err := bus.Subscribe(frameListenerFunc(func(f can.Frame) {
		select {
		case t.frames <- f:
		default:
			// drop when nobody is reading; a stuck consumer must not
			// block the bus's receive goroutine
		}
	})); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *BusTransport) SendFrame(frame can.Frame, timeout time.Duration) error {
	return t.bus.Send(frame)
}

func (t *BusTransport) RecvFrame(timeout time.Duration) (can.Frame, error) {
	select {
	case f := <-t.frames:
		return f, nil
	case <-time.After(timeout):
		return can.Frame{}, &timeoutError{}
	}
}

type timeoutError struct{}

func (*timeoutError) Error() string { return "isotp: transport receive timed out" }
func (*timeoutError) Timeout() bool { return true }

type frameListenerFunc func(can.Frame)

func (f frameListenerFunc) Handle(frame can.Frame) { f(frame) }
