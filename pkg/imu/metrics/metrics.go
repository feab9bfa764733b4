// Package metrics exposes prometheus instrumentation for the protocol and
// session layers. All methods are safe to call on a nil *Metrics, so
// instrumentation stays optional.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "capture2go"

// Metrics holds the counters of one client process; label "device" keys
// per-session series, label "channel" separates the BLE sub-streams.
type Metrics struct {
	framesDecoded   *prometheus.CounterVec
	bytesDropped    *prometheus.CounterVec
	unknownHeaders  *prometheus.CounterVec
	decodeErrors    *prometheus.CounterVec
	queueDrops      *prometheus.CounterVec
	packetsSent     *prometheus.CounterVec
	commandTimeouts *prometheus.CounterVec
}

// New creates the metric set and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "protocol", Name: "frames_decoded_total",
			Help: "Frames successfully decoded from the wire.",
		}, []string{"device", "channel"}),
		bytesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "protocol", Name: "bytes_dropped_total",
			Help: "Bytes discarded while resynchronising on the start byte.",
		}, []string{"device", "channel"}),
		unknownHeaders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "protocol", Name: "unknown_headers_total",
			Help: "Frames whose header is not in the packet registry.",
		}, []string{"device"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "protocol", Name: "decode_errors_total",
			Help: "Frames with a known header but an invalid payload.",
		}, []string{"device"}),
		queueDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "queue_drops_total",
			Help: "Packets dropped from a full consumer queue.",
		}, []string{"device"}),
		packetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "packets_sent_total",
			Help: "Frames written to the transport.",
		}, []string{"device"}),
		commandTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "command_timeouts_total",
			Help: "Commands whose acknowledgement did not arrive in time.",
		}, []string{"device"}),
	}
	reg.MustRegister(m.framesDecoded, m.bytesDropped, m.unknownHeaders,
		m.decodeErrors, m.queueDrops, m.packetsSent, m.commandTimeouts)
	return m
}

func (m *Metrics) FrameDecoded(device, channel string) {
	if m != nil {
		m.framesDecoded.WithLabelValues(device, channel).Inc()
	}
}

func (m *Metrics) BytesDropped(device, channel string, n uint64) {
	if m != nil && n > 0 {
		m.bytesDropped.WithLabelValues(device, channel).Add(float64(n))
	}
}

func (m *Metrics) UnknownHeader(device string) {
	if m != nil {
		m.unknownHeaders.WithLabelValues(device).Inc()
	}
}

func (m *Metrics) DecodeError(device string) {
	if m != nil {
		m.decodeErrors.WithLabelValues(device).Inc()
	}
}

func (m *Metrics) QueueDrop(device string) {
	if m != nil {
		m.queueDrops.WithLabelValues(device).Inc()
	}
}

func (m *Metrics) PacketSent(device string) {
	if m != nil {
		m.packetsSent.WithLabelValues(device).Inc()
	}
}

func (m *Metrics) CommandTimeout(device string) {
	if m != nil {
		m.commandTimeouts.WithLabelValues(device).Inc()
	}
}
