package media

import (
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/atomic"

	"github.com/isqad/livelook-meet/internal/core"
)

// CaptureStream is one acquisition: an audio and a video track sharing a
// stream id, plus whatever keeps them fed
type CaptureStream struct {
	ID         string
	Audio      *LocalTrack
	Video      *LocalTrack
	FacingMode FacingMode
	Settings   Settings

	stopOnce sync.Once
	stopped  atomic.Bool
	release  func()
}

// NewCaptureStream wraps tracks a source produced. release runs once on Stop.
func NewCaptureStream(id string, audio, video *LocalTrack, facing FacingMode, settings Settings, release func()) *CaptureStream {
	return &CaptureStream{
		ID:         id,
		Audio:      audio,
		Video:      video,
		FacingMode: facing,
		Settings:   settings,
		release:    release,
	}
}

// Tracks returns audio first, then video
func (s *CaptureStream) Tracks() []webrtc.TrackLocal {
	tracks := make([]webrtc.TrackLocal, 0, 2)
	if s.Audio != nil {
		tracks = append(tracks, s.Audio)
	}
	if s.Video != nil {
		tracks = append(tracks, s.Video)
	}
	return tracks
}

func (s *CaptureStream) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		if s.Audio != nil {
			s.Audio.Stop()
		}
		if s.Video != nil {
			s.Video.Stop()
		}
		if s.release != nil {
			s.release()
		}
	})
}

// Stopped reports a stream released by Stop
func (s *CaptureStream) Stopped() bool {
	return s.stopped.Load()
}

// Ended reports a stream whose capture is gone
func (s *CaptureStream) Ended() bool {
	return (s.Video == nil || s.Video.Stopped()) && (s.Audio == nil || s.Audio.Stopped())
}

// Describe is the stream as the view sees it
func (s *CaptureStream) Describe() *core.MediaStream {
	ms := core.NewMediaStream(s.ID)
	for _, t := range []*LocalTrack{s.Audio, s.Video} {
		if t == nil {
			continue
		}
		ms.AddTrack(core.MediaTrack{
			ID:       t.ID(),
			StreamID: t.StreamID(),
			Kind:     t.Kind(),
			Codec:    t.Codec().MimeType,
		})
	}
	return ms
}
