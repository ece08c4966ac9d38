package media

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"
)

// TrackBroadcaster pushes a fresh set of local tracks to every peer
type TrackBroadcaster interface {
	ReplaceTracks(tracks []webrtc.TrackLocal) error
}

// PreviewFunc receives the stream the local preview should show
type PreviewFunc func(*CaptureStream)

type State struct {
	FacingMode   FacingMode
	AudioEnabled bool
	VideoEnabled bool
	Constraints  Constraints
}

// Controller owns the local capture. Only one capture stream is live at a
// time; a replacement becomes live before the previous one is stopped.
type Controller struct {
	source Source

	// op serializes acquisitions
	op sync.Mutex

	mu          sync.RWMutex
	stream      *CaptureStream
	state       State
	broadcaster TrackBroadcaster
	preview     PreviewFunc
	generation  uint64
}

func NewController(source Source, initial Constraints) *Controller {
	if initial.FacingMode == FacingAny {
		initial.FacingMode = FacingFront
	}
	return &Controller{
		source: source,
		state: State{
			FacingMode:   initial.FacingMode,
			AudioEnabled: true,
			VideoEnabled: true,
			Constraints:  initial,
		},
	}
}

func (c *Controller) SetBroadcaster(b TrackBroadcaster) {
	c.mu.Lock()
	c.broadcaster = b
	c.mu.Unlock()
}

func (c *Controller) OnPreview(fn PreviewFunc) {
	c.mu.Lock()
	c.preview = fn
	c.mu.Unlock()
}

// Acquire opens a capture with the given constraints and makes it live
func (c *Controller) Acquire(ctx context.Context, constraints Constraints) (*CaptureStream, error) {
	c.op.Lock()
	defer c.op.Unlock()

	return c.acquire(ctx, constraints)
}

// Start acquires with the current constraints
func (c *Controller) Start(ctx context.Context) (*CaptureStream, error) {
	return c.Acquire(ctx, c.State().Constraints)
}

func (c *Controller) acquire(ctx context.Context, constraints Constraints) (*CaptureStream, error) {
	c.mu.RLock()
	generation := c.generation
	c.mu.RUnlock()

	stream, err := c.source.Acquire(ctx, constraints)
	if err != nil {
		return nil, &CaptureError{FacingMode: constraints.FacingMode, Err: err}
	}

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		stream.Stop()
		return nil, ErrStopped
	}

	if stream.Audio != nil {
		stream.Audio.SetEnabled(c.state.AudioEnabled)
	}
	if stream.Video != nil {
		stream.Video.SetEnabled(c.state.VideoEnabled)
	}

	previous := c.stream
	c.stream = stream
	c.state.Constraints = constraints
	c.state.FacingMode = stream.FacingMode
	if c.state.FacingMode == FacingAny {
		c.state.FacingMode = constraints.FacingMode
	}
	broadcaster := c.broadcaster
	preview := c.preview
	c.mu.Unlock()

	if preview != nil {
		preview(stream)
	}
	if broadcaster != nil {
		if err := broadcaster.ReplaceTracks(stream.Tracks()); err != nil {
			log.Warn().Err(err).Str("service", "media").Msg("replace tracks")
		}
	}
	if previous != nil {
		previous.Stop()
	}

	return stream, nil
}

// FlipFacing switches to the opposite camera. The current capture stays
// live until the new one is up; if neither the opposite nor any camera can
// be opened, the previous facing mode is kept or re-acquired.
func (c *Controller) FlipFacing(ctx context.Context) (*CaptureStream, error) {
	c.op.Lock()
	defer c.op.Unlock()

	current := c.State()
	next := current.Constraints
	next.FacingMode = current.FacingMode.Opposite()

	stream, err := c.acquire(ctx, next)
	if err == nil {
		return stream, nil
	}
	if errors.Is(err, ErrStopped) {
		return nil, err
	}
	log.Warn().Err(err).Str("service", "media").Msg("flip camera, retrying without facing constraint")

	unconstrained := next
	unconstrained.FacingMode = FacingAny
	stream, retryErr := c.acquire(ctx, unconstrained)
	if retryErr == nil {
		return stream, nil
	}
	if errors.Is(retryErr, ErrStopped) {
		return nil, retryErr
	}

	c.mu.RLock()
	live := c.stream != nil && !c.stream.Ended()
	c.mu.RUnlock()

	if !live {
		if _, restoreErr := c.acquire(ctx, current.Constraints); restoreErr != nil {
			log.Error().Err(restoreErr).Str("service", "media").Msg("restore previous camera")
		}
	}

	return nil, err
}

// ApplySettings re-acquires with a new resolution or frame rate, same facing mode
func (c *Controller) ApplySettings(ctx context.Context, s Settings) (*CaptureStream, error) {
	c.op.Lock()
	defer c.op.Unlock()

	current := c.State()
	next := current.Constraints
	next.FacingMode = current.FacingMode
	next.Width = s.Width
	next.Height = s.Height
	next.FrameRate = s.FrameRate
	if err := next.Validate(); err != nil {
		return nil, err
	}

	return c.acquire(ctx, next)
}

// SetAudioEnabled mutes the microphone track without touching the capture.
// Every peer shares the same track object so they all see the change.
func (c *Controller) SetAudioEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.AudioEnabled = enabled
	if c.stream != nil && c.stream.Audio != nil {
		c.stream.Audio.SetEnabled(enabled)
	}
}

func (c *Controller) SetVideoEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.VideoEnabled = enabled
	if c.stream != nil && c.stream.Video != nil {
		c.stream.Video.SetEnabled(enabled)
	}
}

func (c *Controller) ToggleAudio() bool {
	enabled := !c.State().AudioEnabled
	c.SetAudioEnabled(enabled)
	return enabled
}

func (c *Controller) ToggleVideo() bool {
	enabled := !c.State().VideoEnabled
	c.SetVideoEnabled(enabled)
	return enabled
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) Stream() *CaptureStream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stream
}

// LocalTracks is the current capture for new peer connections
func (c *Controller) LocalTracks() []webrtc.TrackLocal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.stream == nil {
		return nil
	}
	return c.stream.Tracks()
}

// Stop releases the capture immediately. An acquisition in flight is
// discarded when it completes.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.generation++
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}
}
