// Package view projects the call roster into renderable tiles.
package view

import (
	"github.com/isqad/livelook-meet/internal/core"
)

type Tile struct {
	ID          core.ParticipantID `json:"id"`
	DisplayName string             `json:"display_name"`
	Stream      *core.MediaStream  `json:"-"`
	IsLocal     bool               `json:"is_local"`
	IsMuted     bool               `json:"is_muted"`
	IsVideoOff  bool               `json:"is_video_off"`
}

// LocalTile is what the local media controller knows about ourselves
type LocalTile struct {
	DisplayName  string
	Stream       *core.MediaStream
	AudioEnabled bool
	VideoEnabled bool
}

type Options struct {
	// MinimizeLocal hides the local tile from the grid
	MinimizeLocal bool
}

// Project returns the local tile first, then remotes in the given order.
// A remote without a video track yet renders as video off.
func Project(local LocalTile, remotes []*core.Participant, opts Options) []Tile {
	tiles := make([]Tile, 0, len(remotes)+1)

	if !opts.MinimizeLocal {
		tiles = append(tiles, Tile{
			ID:          core.LocalParticipantID,
			DisplayName: local.DisplayName,
			Stream:      local.Stream,
			IsLocal:     true,
			IsMuted:     !local.AudioEnabled,
			IsVideoOff:  !local.VideoEnabled || local.Stream == nil || !local.Stream.HasVideo(),
		})
	}

	for _, p := range remotes {
		if p == nil {
			continue
		}
		tiles = append(tiles, Tile{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Stream:      p.Stream,
			IsMuted:     p.Stream == nil || !p.Stream.HasAudio(),
			IsVideoOff:  p.Stream == nil || !p.Stream.HasVideo(),
		})
	}

	return tiles
}

// LayoutFor is the number of grid columns for count tiles
func LayoutFor(count int) int {
	switch {
	case count <= 1:
		return 1
	case count <= 4:
		return 2
	case count <= 9:
		return 3
	default:
		return 4
	}
}
