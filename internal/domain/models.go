package domain

import (
	"fmt"
	"strings"
	"time"
)

// MprisBusPrefix is the well-known name namespace every MPRIS player lives under
const MprisBusPrefix = "org.mpris.MediaPlayer2"

// PlayerStatus represents the current state of the media player
type PlayerStatus string

const (
	// StatusPlaying indicates the media is currently playing
	StatusPlaying PlayerStatus = "Playing"
	// StatusPaused indicates the media is paused
	StatusPaused PlayerStatus = "Paused"
	// StatusStopped indicates the media is stopped
	StatusStopped PlayerStatus = "Stopped"
)

// ParsePlayerStatus converts an MPRIS PlaybackStatus value, ignoring case
func ParsePlayerStatus(s string) (PlayerStatus, error) {
	switch strings.ToLower(s) {
	case "playing":
		return StatusPlaying, nil
	case "paused":
		return StatusPaused, nil
	case "stopped":
		return StatusStopped, nil
	}
	return "", fmt.Errorf("playback status %q is not Playing, Paused or Stopped", s)
}

// LoopStatus represents the repeat mode reported by the player
type LoopStatus string

const (
	LoopNone     LoopStatus = "None"
	LoopTrack    LoopStatus = "Track"
	LoopPlaylist LoopStatus = "Playlist"
)

// ParseLoopStatus converts an MPRIS LoopStatus value, ignoring case
func ParseLoopStatus(s string) (LoopStatus, error) {
	switch strings.ToLower(s) {
	case "none":
		return LoopNone, nil
	case "track":
		return LoopTrack, nil
	case "playlist":
		return LoopPlaylist, nil
	}
	return "", fmt.Errorf("loop status %q is not None, Track or Playlist", s)
}

// PlayerIdentity identifies one player instance on the bus.
// Two identities are equal when their bus names are equal; Short is derived from Bus.
type PlayerIdentity struct {
	// Bus is the full well-known name, e.g. org.mpris.MediaPlayer2.spotify
	Bus string
	// Short is the human friendly part of the name, e.g. spotify
	Short string
}

// NewPlayerIdentity builds an identity from a well-known bus name
func NewPlayerIdentity(bus string) (PlayerIdentity, error) {
	if !strings.HasPrefix(bus, MprisBusPrefix+".") {
		return PlayerIdentity{}, fmt.Errorf("%w: %q", ErrInvalidBusName, bus)
	}

	parts := strings.Split(bus, ".")
	if len(parts) < 4 || parts[3] == "" {
		return PlayerIdentity{}, fmt.Errorf("%w: %q", ErrInvalidBusName, bus)
	}

	return PlayerIdentity{Bus: bus, Short: parts[3]}, nil
}

// String returns the bus name
func (id PlayerIdentity) String() string {
	return id.Bus
}

// Equal reports whether both identities refer to the same bus name
func (id PlayerIdentity) Equal(other PlayerIdentity) bool {
	return id.Bus == other.Bus
}

// MatchesShort returns true if the short name equals other
func (id PlayerIdentity) MatchesShort(other string) bool {
	return id.Short == other
}

// MatchesBusPrefix returns true if other is an MPRIS name and the bus name starts with it
func (id PlayerIdentity) MatchesBusPrefix(other string) bool {
	return strings.HasPrefix(other, MprisBusPrefix) && strings.HasPrefix(id.Bus, other)
}

// MatchesEither returns true if the short name or the bus name matches
func (id PlayerIdentity) MatchesEither(other string) bool {
	return id.MatchesShort(other) || id.MatchesBusPrefix(other)
}

// MatchesBoth returns true only if the short name and the bus name both match
func (id PlayerIdentity) MatchesBoth(other string) bool {
	return id.MatchesShort(other) && id.MatchesBusPrefix(other)
}

// PlaybackSnapshot is the last ground truth about a player's position.
// Rate is the effective rate: zero unless the player is playing.
type PlaybackSnapshot struct {
	Position   time.Duration
	Rate       float64
	ObservedAt time.Time
	// Length of the current track, zero when unknown
	Length time.Duration
}

// Playing reports whether position advances with wall-clock time
func (s PlaybackSnapshot) Playing() bool {
	return s.Rate != 0
}
