package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

const (
	oggPageDuration = 20 * time.Millisecond
	opusSampleRate  = 48000
	vp8FourCC       = "VP80"
)

// FileSource plays IVF/OGG files as if they were a camera and a microphone.
// Each facing mode has its own video file; the audio file is optional.
type FileSource struct {
	FrontVideo string
	BackVideo  string
	Audio      string
}

func (s *FileSource) videoFile(facing FacingMode) (string, FacingMode) {
	switch facing {
	case FacingBack:
		return s.BackVideo, FacingBack
	case FacingFront:
		return s.FrontVideo, FacingFront
	}
	if s.FrontVideo != "" {
		return s.FrontVideo, FacingFront
	}
	return s.BackVideo, FacingBack
}

func (s *FileSource) Acquire(ctx context.Context, c Constraints) (*CaptureStream, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, facing := s.videoFile(c.FacingMode)
	if path == "" {
		return nil, ErrDeviceNotFound
	}

	videoFile, err := openMedia(path)
	if err != nil {
		return nil, err
	}
	ivf, header, err := ivfreader.NewWith(videoFile)
	if err != nil {
		videoFile.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if header.FourCC != vp8FourCC {
		videoFile.Close()
		return nil, fmt.Errorf("%s: unsupported codec %q", path, header.FourCC)
	}

	streamID := uuid.NewString()
	video, err := NewLocalTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video-"+string(facing), streamID)
	if err != nil {
		videoFile.Close()
		return nil, err
	}

	var (
		audio     *LocalTrack
		audioFile *os.File
	)
	if s.Audio != "" {
		audioFile, err = openMedia(s.Audio)
		if err != nil {
			videoFile.Close()
			return nil, err
		}
		audio, err = NewLocalTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
		if err != nil {
			videoFile.Close()
			audioFile.Close()
			return nil, err
		}
	}

	frameRate := c.FrameRate
	if frameRate <= 0 && header.TimebaseNumerator > 0 {
		frameRate = int(header.TimebaseDenominator / header.TimebaseNumerator)
	}
	if frameRate <= 0 {
		frameRate = 30
	}

	pumpCtx, cancel := context.WithCancel(context.Background())

	go pumpVideo(pumpCtx, videoFile, ivf, video, time.Second/time.Duration(frameRate))
	if audio != nil {
		go pumpAudio(pumpCtx, audioFile, audio)
	}

	settings := Settings{
		Width:     int(header.Width),
		Height:    int(header.Height),
		FrameRate: frameRate,
	}

	log.Debug().
		Str("service", "media").
		Str("file", path).
		Str("facing", string(facing)).
		Int("frame_rate", frameRate).
		Msg("capture started")

	return NewCaptureStream(streamID, audio, video, facing, settings, cancel), nil
}

func openMedia(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrDeviceNotFound)
	}
	return f, err
}

func pumpVideo(ctx context.Context, file *os.File, ivf *ivfreader.IVFReader, track *LocalTrack, interval time.Duration) {
	defer file.Close()
	defer track.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if ivf, err = rewindIVF(file); err != nil {
				log.Error().Err(err).Str("service", "media").Msg("rewind video")
				return
			}
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("service", "media").Msg("read video frame")
			return
		}

		if err := track.WriteSample(pionmedia.Sample{Data: frame, Duration: interval}); err != nil {
			if !errors.Is(err, io.ErrClosedPipe) {
				log.Error().Err(err).Str("service", "media").Msg("write video sample")
			}
			return
		}
	}
}

func rewindIVF(file *os.File) (*ivfreader.IVFReader, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	ivf, _, err := ivfreader.NewWith(file)
	return ivf, err
}

func pumpAudio(ctx context.Context, file *os.File, track *LocalTrack) {
	defer file.Close()
	defer track.Stop()

	ogg, _, err := oggreader.NewWith(file)
	if err != nil {
		log.Error().Err(err).Str("service", "media").Msg("open audio")
		return
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if _, err = file.Seek(0, io.SeekStart); err == nil {
				ogg, _, err = oggreader.NewWith(file)
			}
			if err != nil {
				log.Error().Err(err).Str("service", "media").Msg("rewind audio")
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("service", "media").Msg("read audio page")
			return
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(samples) * time.Second / opusSampleRate

		if err := track.WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
			if !errors.Is(err, io.ErrClosedPipe) {
				log.Error().Err(err).Str("service", "media").Msg("write audio sample")
			}
			return
		}
	}
}
