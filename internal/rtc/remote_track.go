package rtc

import (
	"errors"
	"io"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/isqad/livelook-meet/internal/telemetry"
)

const rtcpPLIInterval = time.Second * 3

type rtpSource interface {
	ID() string
	Kind() webrtc.RTPCodecType
	SSRC() webrtc.SSRC
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

type rtcpWriter interface {
	WriteRTCP([]rtcp.Packet) error
}

type RemoteTrackStats struct {
	Packets uint64
	Bytes   uint64
	Lost    uint64
}

// RemoteTrackReader consumes a received track. Nothing is rendered here, the
// reader keeps the jitter buffers moving, counts packets and asks video
// senders for keyframes.
type RemoteTrackReader struct {
	track  rtpSource
	writer rtcpWriter

	packets atomic.Uint64
	bytes   atomic.Uint64
	lost    atomic.Uint64

	pliInterval time.Duration
	stop        chan struct{}
	stopped     chan struct{}
	stopOnce    atomic.Bool
}

func NewRemoteTrackReader(track rtpSource, writer rtcpWriter) *RemoteTrackReader {
	return &RemoteTrackReader{
		track:       track,
		writer:      writer,
		pliInterval: rtcpPLIInterval,
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// Run blocks until the track ends or Stop is called
func (r *RemoteTrackReader) Run() {
	defer close(r.stopped)

	if r.track.Kind() == webrtc.RTPCodecTypeVideo && r.writer != nil {
		go r.requestKeyframes()
	}

	var (
		lastSeq uint16
		started bool
	)
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		pkt, _, err := r.track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("service", "remote_track").Str("trackID", r.track.ID()).Msg("read stopped")
			}
			r.Stop()
			return
		}

		if started {
			// uint16 arithmetic handles wraparound, big gaps are reordering
			if gap := pkt.SequenceNumber - lastSeq; gap > 1 && gap < 0x8000 {
				r.lost.Add(uint64(gap - 1))
			}
		}
		lastSeq = pkt.SequenceNumber
		started = true

		r.packets.Inc()
		r.bytes.Add(uint64(len(pkt.Payload)))
		telemetry.RemoteTrackPackets(r.track.Kind().String(), 1)
	}
}

func (r *RemoteTrackReader) requestKeyframes() {
	ticker := time.NewTicker(r.pliInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			err := r.writer.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(r.track.SSRC())},
			})
			if err != nil {
				log.Debug().Err(err).Str("service", "remote_track").Str("trackID", r.track.ID()).Msg("PLI failed")
			}
		}
	}
}

func (r *RemoteTrackReader) Stats() RemoteTrackStats {
	return RemoteTrackStats{
		Packets: r.packets.Load(),
		Bytes:   r.bytes.Load(),
		Lost:    r.lost.Load(),
	}
}

func (r *RemoteTrackReader) Stop() {
	if r.stopOnce.CAS(false, true) {
		close(r.stop)
	}
}

// Done is closed when Run returns
func (r *RemoteTrackReader) Done() <-chan struct{} {
	return r.stopped
}
