package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-meet/internal/core"
	"github.com/isqad/livelook-meet/internal/telemetry"
)

const (
	defaultStallTimeout   = 30 * time.Second
	DefaultHealthInterval = 5 * time.Second
)

var ErrCameraUnavailable = errors.New("camera is not available")

type CameraStatus string

const (
	// CameraConnecting has no remote media yet
	CameraConnecting CameraStatus = "connecting"
	CameraConnected  CameraStatus = "connected"
	// CameraStalled stopped delivering packets for longer than the stall timeout
	CameraStalled CameraStatus = "stalled"
)

// Camera is a remote participant seen as a production source
type Camera struct {
	ID          core.ParticipantID
	DisplayName string
	Stream      *core.MediaStream
	Status      CameraStatus
	Active      bool
	Stats       RemoteTrackStats
	LastSeen    time.Time
}

// CameraSource is what the stage watches, *Session satisfies it
type CameraSource interface {
	Participants() []*core.Participant
	ConnectionStats(id core.ParticipantID) (RemoteTrackStats, bool)
}

type StageParams struct {
	Source       CameraSource
	StallTimeout time.Duration
	// AutoSwitch puts the first live camera on program whenever nothing
	// live is there
	AutoSwitch bool
}

type cameraHealth struct {
	packets  uint64
	lastSeen time.Time
	stalled  bool
}

// Stage keeps at most one remote camera on program and watches every
// camera's packet flow
type Stage struct {
	params StageParams
	now    func() time.Time

	mu       sync.Mutex
	active   core.ParticipantID
	health   map[core.ParticipantID]*cameraHealth
	onSwitch func(Camera)
	onStall  func(Camera)
}

func NewStage(params StageParams) *Stage {
	if params.StallTimeout == 0 {
		params.StallTimeout = defaultStallTimeout
	}
	return &Stage{
		params: params,
		now:    time.Now,
		health: make(map[core.ParticipantID]*cameraHealth),
	}
}

// OnSwitch is called with the camera that went on program
func (s *Stage) OnSwitch(fn func(Camera)) {
	s.mu.Lock()
	s.onSwitch = fn
	s.mu.Unlock()
}

// OnStall is called once per stall
func (s *Stage) OnStall(fn func(Camera)) {
	s.mu.Lock()
	s.onStall = fn
	s.mu.Unlock()
}

// SwitchTo puts a connected camera on program
func (s *Stage) SwitchTo(id core.ParticipantID) (*core.MediaStream, error) {
	s.mu.Lock()
	cameras := s.camerasLocked(s.now())

	var target *Camera
	for i := range cameras {
		if cameras[i].ID == id {
			target = &cameras[i]
			break
		}
	}
	if target == nil || target.Status != CameraConnected {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrCameraUnavailable, id)
	}
	if s.active == id {
		s.mu.Unlock()
		return target.Stream, nil
	}

	s.active = id
	target.Active = true
	onSwitch := s.onSwitch
	s.mu.Unlock()

	log.Info().Str("service", "stage").Str("participantID", string(id)).Msg("camera on program")
	if onSwitch != nil {
		onSwitch(*target)
	}
	return target.Stream, nil
}

// Active returns the camera on program
func (s *Stage) Active() (Camera, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.camerasLocked(s.now()) {
		if c.Active {
			return c, true
		}
	}
	return Camera{}, false
}

// Cameras lists every remote participant in join order
func (s *Stage) Cameras() []Camera {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.camerasLocked(s.now())
}

// CameraStats is false for an unknown camera
func (s *Stage) CameraStats(id core.ParticipantID) (RemoteTrackStats, bool) {
	return s.params.Source.ConnectionStats(id)
}

// Check marks cameras whose packet count has not moved within the stall
// timeout and takes a stalled or departed camera off program
func (s *Stage) Check() {
	now := s.now()

	s.mu.Lock()
	participants := s.params.Source.Participants()
	present := make(map[core.ParticipantID]struct{}, len(participants))

	var stalled []Camera
	for _, p := range participants {
		present[p.ID] = struct{}{}
		h := s.healthLocked(p.ID, now)

		stats, _ := s.params.Source.ConnectionStats(p.ID)
		switch {
		case p.Stream == nil:
			// the timeout only runs once media started
			h.lastSeen = now
		case stats.Packets > h.packets:
			if h.stalled {
				log.Info().Str("service", "stage").Str("participantID", string(p.ID)).Msg("camera recovered")
			}
			h.packets = stats.Packets
			h.lastSeen = now
			h.stalled = false
		case !h.stalled && now.Sub(h.lastSeen) > s.params.StallTimeout:
			h.stalled = true
			telemetry.ServiceOperationCounter.WithLabelValues("camera_health", "error", "stalled").Add(1)
			log.Warn().
				Str("service", "stage").
				Str("participantID", string(p.ID)).
				Dur("silence", now.Sub(h.lastSeen)).
				Msg("camera stalled")
			stalled = append(stalled, s.camera(p, h, stats))
		}
	}

	for id := range s.health {
		if _, ok := present[id]; !ok {
			delete(s.health, id)
		}
	}

	cameras := s.camerasLocked(now)
	if s.active != "" {
		live := false
		for _, c := range cameras {
			if c.ID == s.active {
				live = c.Status == CameraConnected
				break
			}
		}
		if !live {
			log.Info().Str("service", "stage").Str("participantID", string(s.active)).Msg("camera off program")
			s.active = ""
		}
	}

	var switched *Camera
	if s.active == "" && s.params.AutoSwitch {
		for i := range cameras {
			if cameras[i].Status == CameraConnected {
				s.active = cameras[i].ID
				cameras[i].Active = true
				switched = &cameras[i]
				break
			}
		}
	}

	onStall, onSwitch := s.onStall, s.onSwitch
	s.mu.Unlock()

	if onStall != nil {
		for _, c := range stalled {
			onStall(c)
		}
	}
	if switched != nil {
		log.Info().Str("service", "stage").Str("participantID", string(switched.ID)).Msg("camera on program")
		if onSwitch != nil {
			onSwitch(*switched)
		}
	}
}

// Run checks camera health every interval until ctx is done
func (s *Stage) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Check()
		}
	}
}

func (s *Stage) healthLocked(id core.ParticipantID, now time.Time) *cameraHealth {
	h, ok := s.health[id]
	if !ok {
		h = &cameraHealth{lastSeen: now}
		s.health[id] = h
	}
	return h
}

func (s *Stage) camerasLocked(now time.Time) []Camera {
	participants := s.params.Source.Participants()

	cameras := make([]Camera, 0, len(participants))
	for _, p := range participants {
		stats, _ := s.params.Source.ConnectionStats(p.ID)
		cameras = append(cameras, s.camera(p, s.healthLocked(p.ID, now), stats))
	}
	return cameras
}

func (s *Stage) camera(p *core.Participant, h *cameraHealth, stats RemoteTrackStats) Camera {
	status := CameraConnected
	switch {
	case p.Stream == nil:
		status = CameraConnecting
	case h.stalled:
		status = CameraStalled
	}

	return Camera{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Stream:      p.Stream,
		Status:      status,
		Active:      p.ID == s.active,
		Stats:       stats,
		LastSeen:    h.lastSeen,
	}
}
