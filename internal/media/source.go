package media

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoCapture      = errors.New("could not start capture")
	ErrDeviceNotFound = errors.New("capture device not found")
	ErrStopped        = errors.New("media controller stopped")
)

// FacingMode is a logical camera direction, independent of what hardware exists
type FacingMode string

const (
	FacingFront FacingMode = "front"
	FacingBack  FacingMode = "back"
	// FacingAny leaves the choice to the source
	FacingAny FacingMode = ""
)

func (f FacingMode) Opposite() FacingMode {
	if f == FacingBack {
		return FacingFront
	}
	return FacingBack
}

type Constraints struct {
	FacingMode FacingMode
	Width      int
	Height     int
	FrameRate  int
}

func (c Constraints) Validate() error {
	if c.Width < 0 || c.Height < 0 || c.FrameRate < 0 {
		return fmt.Errorf("invalid constraints %dx%d@%d", c.Width, c.Height, c.FrameRate)
	}
	return nil
}

// Settings are the resolution and frame rate knobs of ApplySettings
type Settings struct {
	Width     int
	Height    int
	FrameRate int
}

// Source opens a new capture stream every time it's asked
type Source interface {
	Acquire(ctx context.Context, c Constraints) (*CaptureStream, error)
}

// CaptureError tells the user which camera could not be opened
type CaptureError struct {
	FacingMode FacingMode
	Err        error
}

func (e *CaptureError) Error() string {
	facing := string(e.FacingMode)
	if facing == "" {
		facing = "any"
	}
	return fmt.Sprintf("could not capture %s camera: %v", facing, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Is makes every capture error match ErrNoCapture
func (e *CaptureError) Is(target error) bool {
	return target == ErrNoCapture
}
