package telemetry

import "github.com/prometheus/client_golang/prometheus"

const livelookNamespace string = "livelook"

var (
	promPeerConnections     prometheus.Gauge
	promRelayParticipants   prometheus.Gauge
	promRelayRooms          prometheus.Gauge
	promSignalingMessages   *prometheus.CounterVec
	promRemoteTrackPackets  *prometheus.CounterVec
	ServiceOperationCounter *prometheus.CounterVec
)

func init() {
	promPeerConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: livelookNamespace,
		Subsystem: "client",
		Name:      "peer_connections",
	})

	promRelayParticipants = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: livelookNamespace,
		Subsystem: "relay",
		Name:      "participants",
	})

	promRelayRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: livelookNamespace,
		Subsystem: "relay",
		Name:      "rooms",
	})

	promSignalingMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: livelookNamespace,
			Subsystem: "relay",
			Name:      "signaling_messages",
		},
		[]string{"method"},
	)

	promRemoteTrackPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: livelookNamespace,
			Subsystem: "client",
			Name:      "remote_track_packets",
		},
		[]string{"kind"},
	)

	ServiceOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   livelookNamespace,
			Subsystem:   "node",
			Name:        "service_operation",
			ConstLabels: prometheus.Labels{"node_id": "1"},
		},
		[]string{"type", "status", "error_type"},
	)

	prometheus.MustRegister(promPeerConnections)
	prometheus.MustRegister(promRelayParticipants)
	prometheus.MustRegister(promRelayRooms)
	prometheus.MustRegister(promSignalingMessages)
	prometheus.MustRegister(promRemoteTrackPackets)
	prometheus.MustRegister(ServiceOperationCounter)
}

func PeerConnectionOpened() {
	promPeerConnections.Inc()
}

func PeerConnectionClosed() {
	promPeerConnections.Dec()
}

func ParticipantConnected() {
	promRelayParticipants.Inc()
}

func ParticipantDisconnected() {
	promRelayParticipants.Dec()
}

func RoomCreated() {
	promRelayRooms.Inc()
}

func RoomDeleted() {
	promRelayRooms.Dec()
}

func SignalingMessage(method string) {
	promSignalingMessages.WithLabelValues(method).Inc()
}

func RemoteTrackPackets(kind string, n int) {
	promRemoteTrackPackets.WithLabelValues(kind).Add(float64(n))
}
