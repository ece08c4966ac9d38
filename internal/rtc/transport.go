package rtc

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-meet/internal/config"
	"github.com/isqad/livelook-meet/internal/core"
)

const (
	dtlsRetransmissionInterval = 100 * time.Millisecond
	mtu                        = 1400
)

// PCTransport is a pion peer connection to one remote participant
type PCTransport struct {
	id   core.ParticipantID
	pc   *webrtc.PeerConnection
	me   *webrtc.MediaEngine
	sink EventSink

	lock    sync.Mutex
	readers []*RemoteTrackReader
}

type TransportParams struct {
	EnabledCodecs []config.CodecSpec
	Config        *config.WebRTCConfig
}

// NewTransportFactory opens pion connections for the registry
func NewTransportFactory(params TransportParams) ConnectionFactory {
	return func(id core.ParticipantID, sink EventSink) (Connection, error) {
		return NewPCTransport(id, sink, params)
	}
}

func NewPCTransport(id core.ParticipantID, sink EventSink, params TransportParams) (*PCTransport, error) {
	pc, me, err := newPeerConnection(params)
	if err != nil {
		return nil, err
	}

	t := &PCTransport{
		id:   id,
		pc:   pc,
		me:   me,
		sink: sink,
	}

	t.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if candidate == nil {
			return
		}
		t.sink(CandidateGenerated{Participant: t.id, Candidate: candidate.ToJSON()})
	})
	t.pc.OnICEGatheringStateChange(func(state webrtc.ICEGathererState) {
		if state == webrtc.ICEGathererStateComplete {
			log.Debug().Str("service", "transport").Str("participantID", string(t.id)).Msg("ICE gathering complete")
		}
	})
	t.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.sink(StateChanged{Participant: t.id, State: state})
	})
	t.pc.OnTrack(t.onTrack)

	return t, nil
}

func newPeerConnection(params TransportParams) (*webrtc.PeerConnection, *webrtc.MediaEngine, error) {
	me, ir, err := createMediaEngine(params.EnabledCodecs, params.Config.Publisher)
	if err != nil {
		return nil, nil, err
	}

	se := params.Config.SettingEngine
	se.DisableMediaEngineCopy(true)
	se.SetDTLSRetransmissionInterval(dtlsRetransmissionInterval)
	se.SetReceiveMTU(mtu)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithSettingEngine(se),
		webrtc.WithInterceptorRegistry(ir),
	)

	pc, err := api.NewPeerConnection(params.Config.Configuration)

	return pc, me, err
}

func (t *PCTransport) onTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	log.Debug().
		Str("service", "transport").
		Str("participantID", string(t.id)).
		Str("kind", track.Kind().String()).
		Str("codec", track.Codec().MimeType).
		Msg("on media track")

	reader := NewRemoteTrackReader(track, t.pc)
	t.lock.Lock()
	t.readers = append(t.readers, reader)
	t.lock.Unlock()
	go reader.Run()

	t.sink(TrackReceived{
		Participant: t.id,
		Track: core.MediaTrack{
			ID:       track.ID(),
			StreamID: track.StreamID(),
			Kind:     track.Kind(),
			Codec:    track.Codec().MimeType,
		},
	})
}

// Stats sums what arrived on every remote track of this connection
func (t *PCTransport) Stats() RemoteTrackStats {
	t.lock.Lock()
	defer t.lock.Unlock()

	var total RemoteTrackStats
	for _, r := range t.readers {
		st := r.Stats()
		total.Packets += st.Packets
		total.Bytes += st.Bytes
		total.Lost += st.Lost
	}
	return total
}

func (t *PCTransport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

func (t *PCTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

func (t *PCTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(desc)
}

func (t *PCTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(desc)
}

func (t *PCTransport) LocalDescription() *webrtc.SessionDescription {
	return t.pc.LocalDescription()
}

func (t *PCTransport) RemoteDescription() *webrtc.SessionDescription {
	return t.pc.RemoteDescription()
}

func (t *PCTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// AddTrack attaches a local track and drains the sender's RTCP, interceptors
// only see NACKs and reports when somebody reads them
func (t *PCTransport) AddTrack(track webrtc.TrackLocal) (Sender, error) {
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}

	go func() {
		buf := make([]byte, mtu)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	return sender, nil
}

func (t *PCTransport) Close() error {
	t.lock.Lock()
	readers := t.readers
	t.readers = nil
	t.lock.Unlock()

	for _, r := range readers {
		r.Stop()
	}

	return t.pc.Close()
}
