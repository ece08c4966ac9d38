package core

import (
	"github.com/pion/webrtc/v3"
)

// MediaTrack describes one track of a stream, local or remote
type MediaTrack struct {
	ID       string              `json:"id"`
	StreamID string              `json:"stream_id"`
	Kind     webrtc.RTPCodecType `json:"kind"`
	Codec    string              `json:"codec,omitempty"`
}

// MediaStream is one logical stream per participant: a peer may deliver
// audio and video as separate track events, both end up here.
type MediaStream struct {
	ID     string
	tracks map[webrtc.RTPCodecType]MediaTrack
}

func NewMediaStream(id string) *MediaStream {
	return &MediaStream{
		ID:     id,
		tracks: make(map[webrtc.RTPCodecType]MediaTrack),
	}
}

// AddTrack merges the track into the stream. A later track of the same kind
// replaces the earlier one; the returned flag reports that.
func (s *MediaStream) AddTrack(t MediaTrack) bool {
	_, replaced := s.tracks[t.Kind]
	s.tracks[t.Kind] = t
	return replaced
}

func (s *MediaStream) Track(kind webrtc.RTPCodecType) (MediaTrack, bool) {
	t, ok := s.tracks[kind]
	return t, ok
}

func (s *MediaStream) HasAudio() bool {
	_, ok := s.tracks[webrtc.RTPCodecTypeAudio]
	return ok
}

func (s *MediaStream) HasVideo() bool {
	_, ok := s.tracks[webrtc.RTPCodecTypeVideo]
	return ok
}

// Tracks lists audio first, then video
func (s *MediaStream) Tracks() []MediaTrack {
	tracks := make([]MediaTrack, 0, len(s.tracks))
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if t, ok := s.tracks[kind]; ok {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

func (s *MediaStream) Clone() *MediaStream {
	c := NewMediaStream(s.ID)
	for k, t := range s.tracks {
		c.tracks[k] = t
	}
	return c
}
