package core

import (
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
)

func TestMediaStream(t *testing.T) {
	s := NewMediaStream("stream-1")
	assert.False(t, s.HasAudio())
	assert.False(t, s.HasVideo())

	assert.False(t, s.AddTrack(MediaTrack{ID: "v", Kind: webrtc.RTPCodecTypeVideo}))
	assert.False(t, s.AddTrack(MediaTrack{ID: "a", Kind: webrtc.RTPCodecTypeAudio}))

	tracks := s.Tracks()
	assert.Len(t, tracks, 2)
	assert.Equal(t, "a", tracks[0].ID)
	assert.Equal(t, "v", tracks[1].ID)

	assert.True(t, s.AddTrack(MediaTrack{ID: "v2", Kind: webrtc.RTPCodecTypeVideo}))
	v, ok := s.Track(webrtc.RTPCodecTypeVideo)
	assert.True(t, ok)
	assert.Equal(t, "v2", v.ID)

	c := s.Clone()
	c.AddTrack(MediaTrack{ID: "v3", Kind: webrtc.RTPCodecTypeVideo})
	v, _ = s.Track(webrtc.RTPCodecTypeVideo)
	assert.Equal(t, "v2", v.ID)
}
