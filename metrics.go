package isotp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder wires ISO-TP transfer events to Prometheus. A Context built
// without one (Config.Metrics left nil) pays no metrics cost; every
// method is nil-safe so call sites never need a presence check.
type Recorder struct {
	framesTx  *prometheus.CounterVec
	framesRx  *prometheus.CounterVec
	fcWait    prometheus.Counter
	timeouts  *prometheus.CounterVec
	aborts    *prometheus.CounterVec
	remaining prometheus.Gauge
}

// NewRecorder creates a Recorder and registers its collectors against
// reg. Pass prometheus.DefaultRegisterer to use the global registry,
// or a fresh *prometheus.Registry in tests to avoid collisions between
// parallel test Contexts.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		framesTx: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "isotp_frames_tx_total",
			Help: "CAN frames transmitted by frame kind (sf, ff, cf, fc).",
		}, []string{"kind"}),
		framesRx: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "isotp_frames_rx_total",
			Help: "CAN frames received by frame kind (sf, ff, cf, fc).",
		}, []string{"kind"}),
		fcWait: factory.NewCounter(prometheus.CounterOpts{
			Name: "isotp_fc_wait_total",
			Help: "Flow-Control WAIT frames observed by the send engine.",
		}),
		timeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "isotp_timeouts_total",
			Help: "Protocol timer expirations by timer name (n_as, n_bs, n_cr).",
		}, []string{"timer"}),
		aborts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "isotp_aborts_total",
			Help: "Transfers aborted by error code.",
		}, []string{"code"}),
		remaining: factory.NewGauge(prometheus.GaugeOpts{
			Name: "isotp_remaining_bytes",
			Help: "Bytes remaining in the transfer currently in flight, 0 when idle.",
		}),
	}
}

func (r *Recorder) frameSent(kind string) {
	if r == nil {
		return
	}
	r.framesTx.WithLabelValues(kind).Inc()
}

func (r *Recorder) frameRecv(kind string) {
	if r == nil {
		return
	}
	r.framesRx.WithLabelValues(kind).Inc()
}

func (r *Recorder) fcWaitSeen() {
	if r == nil {
		return
	}
	r.fcWait.Inc()
}

func (r *Recorder) timedOut(timer string) {
	if r == nil {
		return
	}
	r.timeouts.WithLabelValues(timer).Inc()
}

func (r *Recorder) aborted(code Code) {
	if r == nil {
		return
	}
	r.aborts.WithLabelValues(code.String()).Inc()
}

func (r *Recorder) setRemaining(n uint32) {
	if r == nil {
		return
	}
	r.remaining.Set(float64(n))
}
