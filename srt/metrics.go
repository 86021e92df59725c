package srt

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports nine SocketStats counters as Prometheus gauges, one
// GaugeVec per exported counter labelled by connection id and endpoint
// role ("server" or "client"), the same per-counter GaugeVec shape
// penguintechinc-marchproxy's metrics package uses for its proxy health
// counters. The remaining SocketStats fields are not exported.
type Metrics struct {
	pktSent      *prometheus.GaugeVec
	pktRecv      *prometheus.GaugeVec
	byteSent     *prometheus.GaugeVec
	byteRecv     *prometheus.GaugeVec
	pktSndLoss   *prometheus.GaugeVec
	pktRcvLoss   *prometheus.GaugeVec
	pktRetrans   *prometheus.GaugeVec
	sendRateMbps *prometheus.GaugeVec
	recvRateMbps *prometheus.GaugeVec
}

// NewMetrics registers the SRT gauge set on reg. reg is owned by the
// caller; NewMetrics never creates a default registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	labels := []string{"role", "connection_id"}

	m := &Metrics{
		pktSent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "srt", Name: "pkt_sent_total", Help: "Total packets sent on the socket.",
		}, labels),
		pktRecv: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "srt", Name: "pkt_recv_total", Help: "Total packets received on the socket.",
		}, labels),
		byteSent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "srt", Name: "byte_sent_total", Help: "Total bytes sent on the socket.",
		}, labels),
		byteRecv: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "srt", Name: "byte_recv_total", Help: "Total bytes received on the socket.",
		}, labels),
		pktSndLoss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "srt", Name: "pkt_snd_loss_total", Help: "Total send-side packet loss events.",
		}, labels),
		pktRcvLoss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "srt", Name: "pkt_rcv_loss_total", Help: "Total receive-side packet loss events.",
		}, labels),
		pktRetrans: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "srt", Name: "pkt_retrans_total", Help: "Total retransmitted packets.",
		}, labels),
		sendRateMbps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "srt", Name: "send_rate_mbps", Help: "Interval send rate in Mbps.",
		}, labels),
		recvRateMbps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "srt", Name: "recv_rate_mbps", Help: "Interval receive rate in Mbps.",
		}, labels),
	}

	reg.MustRegister(m.pktSent, m.pktRecv, m.byteSent, m.byteRecv,
		m.pktSndLoss, m.pktRcvLoss, m.pktRetrans, m.sendRateMbps, m.recvRateMbps)

	return m
}

// Observe updates all gauges from a stats snapshot for the given role
// ("server" or "client") and connection id.
func (m *Metrics) Observe(role string, connectionID int64, s *SocketStats) {
	id := strconv.FormatInt(connectionID, 10)

	m.pktSent.WithLabelValues(role, id).Set(float64(s.PktSentTotal))
	m.pktRecv.WithLabelValues(role, id).Set(float64(s.PktRecvTotal))
	m.byteSent.WithLabelValues(role, id).Set(float64(s.ByteSentTotal))
	m.byteRecv.WithLabelValues(role, id).Set(float64(s.ByteRecvTotal))
	m.pktSndLoss.WithLabelValues(role, id).Set(float64(s.PktSndLossTotal))
	m.pktRcvLoss.WithLabelValues(role, id).Set(float64(s.PktRcvLossTotal))
	m.pktRetrans.WithLabelValues(role, id).Set(float64(s.PktRetransTotal))
	m.sendRateMbps.WithLabelValues(role, id).Set(s.MbpsSendRate)
	m.recvRateMbps.WithLabelValues(role, id).Set(s.MbpsRecvRate)
}

// Forget removes all gauge series for a connection, called from
// on_socket_disconnected so a closed connection's gauges don't linger.
func (m *Metrics) Forget(role string, connectionID int64) {
	id := strconv.FormatInt(connectionID, 10)

	m.pktSent.DeleteLabelValues(role, id)
	m.pktRecv.DeleteLabelValues(role, id)
	m.byteSent.DeleteLabelValues(role, id)
	m.byteRecv.DeleteLabelValues(role, id)
	m.pktSndLoss.DeleteLabelValues(role, id)
	m.pktRcvLoss.DeleteLabelValues(role, id)
	m.pktRetrans.DeleteLabelValues(role, id)
	m.sendRateMbps.DeleteLabelValues(role, id)
	m.recvRateMbps.DeleteLabelValues(role, id)
}
