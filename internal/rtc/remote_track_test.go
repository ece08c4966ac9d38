package rtc

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
)

type fakeRemoteTrack struct {
	kind    webrtc.RTPCodecType
	packets chan *rtp.Packet
}

func (f *fakeRemoteTrack) ID() string                { return "remote" }
func (f *fakeRemoteTrack) Kind() webrtc.RTPCodecType { return f.kind }
func (f *fakeRemoteTrack) SSRC() webrtc.SSRC         { return 1234 }

func (f *fakeRemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	pkt, ok := <-f.packets
	if !ok {
		return nil, nil, io.EOF
	}
	return pkt, nil, nil
}

type fakeRTCPWriter struct {
	mu      sync.Mutex
	packets []rtcp.Packet
}

func (w *fakeRTCPWriter) WriteRTCP(pkts []rtcp.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.packets = append(w.packets, pkts...)
	return nil
}

func (w *fakeRTCPWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.packets)
}

func TestRemoteTrackReaderStats(t *testing.T) {
	track := &fakeRemoteTrack{kind: webrtc.RTPCodecTypeAudio, packets: make(chan *rtp.Packet, 8)}
	r := NewRemoteTrackReader(track, nil)

	for _, seq := range []uint16{65534, 65535, 0, 3} {
		track.packets <- &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}, Payload: []byte{1, 2, 3}}
	}
	close(track.packets)

	r.Run()

	stats := r.Stats()
	assert.Equal(t, uint64(4), stats.Packets)
	assert.Equal(t, uint64(12), stats.Bytes)
	assert.Equal(t, uint64(2), stats.Lost)
}

func TestRemoteTrackReaderRequestsKeyframes(t *testing.T) {
	track := &fakeRemoteTrack{kind: webrtc.RTPCodecTypeVideo, packets: make(chan *rtp.Packet)}
	writer := &fakeRTCPWriter{}

	r := NewRemoteTrackReader(track, writer)
	r.pliInterval = 5 * time.Millisecond
	go r.Run()

	assert.Eventually(t, func() bool { return writer.count() >= 2 }, time.Second, 5*time.Millisecond)

	writer.mu.Lock()
	pli, ok := writer.packets[0].(*rtcp.PictureLossIndication)
	writer.mu.Unlock()
	assert.True(t, ok)
	assert.Equal(t, uint32(1234), pli.MediaSSRC)

	r.Stop()
	close(track.packets)
	<-r.Done()
}
