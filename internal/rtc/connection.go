package rtc

import (
	"github.com/pion/webrtc/v3"

	"github.com/isqad/livelook-meet/internal/core"
	"github.com/isqad/livelook-meet/internal/eventbus/rpc"
)

// Connection is the part of a peer connection the negotiation engine drives
type Connection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) (Sender, error)
	Close() error
}

// statsReporter is a connection that reads remote media
type statsReporter interface {
	Stats() RemoteTrackStats
}

// Sender swaps the outgoing track in place, *webrtc.RTPSender satisfies it
type Sender interface {
	ReplaceTrack(webrtc.TrackLocal) error
}

// ConnectionFactory opens a connection to one remote participant. The
// connection reports its callbacks through sink.
type ConnectionFactory func(id core.ParticipantID, sink EventSink) (Connection, error)

// Signaler sends messages to the relay
type Signaler interface {
	Send(r rpc.Rpc) error
}

// LocalMedia is the current capture as the registry sees it
type LocalMedia interface {
	LocalTracks() []webrtc.TrackLocal
	Stop()
}

type EventSink func(Event)

// Event is anything the session loop handles
type Event interface {
	isEvent()
}

type CandidateGenerated struct {
	Participant core.ParticipantID
	Candidate   webrtc.ICECandidateInit
}

type TrackReceived struct {
	Participant core.ParticipantID
	Track       core.MediaTrack
}

type StateChanged struct {
	Participant core.ParticipantID
	State       webrtc.PeerConnectionState
}

// Signal is a message received from the relay
type Signal struct {
	Message rpc.Rpc
}

type GraceExpired struct {
	Participant core.ParticipantID
	generation  uint64
}

func (CandidateGenerated) isEvent() {}
func (TrackReceived) isEvent()      {}
func (StateChanged) isEvent()       {}
func (Signal) isEvent()             {}
func (GraceExpired) isEvent()       {}
