package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const namespace = "videoroom"

var (
	initialized atomic.Bool

	OfferCounter          *prometheus.CounterVec
	CandidateCounter      *prometheus.CounterVec
	DisplayedStreams      *prometheus.GaugeVec
	RemoteScreensharing   *prometheus.GaugeVec
	RemoteRTPBytes        prometheus.Counter
	SessionsClosedCounter *prometheus.CounterVec
)

func init() {
	OfferCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "negotiation",
			Name:      "offers",
			Help:      "Server offers processed, by result.",
		},
		[]string{"result"},
	)
	CandidateCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "negotiation",
			Name:      "ice_candidates",
		},
		[]string{"direction", "result"},
	)
	DisplayedStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "display",
			Name:      "streams",
			Help:      "Remote non-screensharing streams currently holding a display slot.",
		},
		[]string{"topic"},
	)
	RemoteScreensharing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "display",
			Name:      "remote_screensharing",
		},
		[]string{"topic"},
	)
	RemoteRTPBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "remote_rtp_bytes",
		},
	)
	SessionsClosedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "closed",
		},
		[]string{"reason"},
	)
}

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	if initialized.Swap(true) {
		return
	}

	prometheus.MustRegister(OfferCounter)
	prometheus.MustRegister(CandidateCounter)
	prometheus.MustRegister(DisplayedStreams)
	prometheus.MustRegister(RemoteScreensharing)
	prometheus.MustRegister(RemoteRTPBytes)
	prometheus.MustRegister(SessionsClosedCounter)
}
