package domain

import (
	"context"
	"time"
)

// Monitor defines the interface for watching MPRIS players
// Implementations should handle D-Bus/MPRIS communication
type Monitor interface {
	// Watch starts the background reconciliation.
	// Calling it more than once has no further effect.
	Watch(ctx context.Context) error

	// Stop ends the watcher, releases its subscriptions and waits for
	// every background goroutine to exit
	Stop(ctx context.Context) error

	// Recv blocks until the next event is available.
	// After termination it returns the terminal cause once, then ErrChannelClosed.
	Recv(ctx context.Context) (Event, error)

	// Players returns a point-in-time view of the attached players
	Players() []PlayerHandle

	// Lookup returns the attached player with the given identity
	Lookup(id PlayerIdentity) (PlayerHandle, bool)
}

// PlayerHandle is a shareable reference to one attached player
type PlayerHandle interface {
	Identity() PlayerIdentity

	// Metadata fetches the current track metadata from the player
	Metadata(ctx context.Context) (Metadata, error)

	// PlaybackStatus fetches the current status from the player
	PlaybackStatus(ctx context.Context) (PlayerStatus, error)

	// Snapshot returns the last observed playback snapshot without a bus call
	Snapshot() PlaybackSnapshot
}

// Config defines the interface for application configuration
type Config interface {
	// GetTickInterval returns the period of position ticks, zero disables them
	GetTickInterval() time.Duration

	// GetCallTimeout bounds every method call issued to a player
	GetCallTimeout() time.Duration

	// GetEventBuffer returns the capacity of the event channel
	GetEventBuffer() int

	// GetCoalesceWindow returns the window in which properties-changed
	// notifications of one player are merged, zero disables coalescing
	// A held back notification is flushed before that player's Seeked or Detached event
	GetCoalesceWindow() time.Duration

	// GetDebounce returns how long the engine waits before reacting to changes
	GetDebounce() time.Duration

	// GetMetricsAddr returns the Prometheus listen address, empty disables it
	GetMetricsAddr() string
}
