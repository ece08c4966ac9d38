package media

import (
	"io"

	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/atomic"
)

// LocalTrack is a captured track. Disabling it drops samples, the track
// object and the capture behind it stay alive.
type LocalTrack struct {
	*webrtc.TrackLocalStaticSample

	enabled atomic.Bool
	stopped atomic.Bool
	samples atomic.Uint64
	done    chan struct{}
}

func NewLocalTrack(codec webrtc.RTPCodecCapability, id, streamID string) (*LocalTrack, error) {
	sample, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}

	t := &LocalTrack{
		TrackLocalStaticSample: sample,
		done:                   make(chan struct{}),
	}
	t.enabled.Store(true)

	return t, nil
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *LocalTrack) Enabled() bool {
	return t.enabled.Load()
}

// WriteSample forwards the sample unless the track is disabled.
// It returns io.ErrClosedPipe once the track is stopped.
func (t *LocalTrack) WriteSample(s pionmedia.Sample) error {
	if t.stopped.Load() {
		return io.ErrClosedPipe
	}
	if !t.enabled.Load() {
		return nil
	}
	t.samples.Inc()
	return t.TrackLocalStaticSample.WriteSample(s)
}

// Samples counts samples forwarded while enabled
func (t *LocalTrack) Samples() uint64 {
	return t.samples.Load()
}

func (t *LocalTrack) Stop() {
	if t.stopped.CAS(false, true) {
		close(t.done)
	}
}

func (t *LocalTrack) Stopped() bool {
	return t.stopped.Load()
}

func (t *LocalTrack) Done() <-chan struct{} {
	return t.done
}
