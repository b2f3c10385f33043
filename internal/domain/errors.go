package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBusName is returned for names outside the MPRIS namespace
	ErrInvalidBusName = errors.New("invalid mpris bus name")

	// ErrMalformedNotification marks a bus signal that could not be interpreted
	ErrMalformedNotification = errors.New("malformed notification")

	// ErrBusConnectionLost is the fatal condition ending a watcher
	ErrBusConnectionLost = errors.New("bus connection lost")

	// ErrChannelClosed is returned by every receive after the event channel terminated
	ErrChannelClosed = errors.New("event channel closed")

	// ErrTransientPlayer matches every *PlayerError
	ErrTransientPlayer = errors.New("player call failed")

	// ErrMetadataFieldType is returned when a metadata value has an unexpected type
	ErrMetadataFieldType = errors.New("unexpected metadata field type")
)

// PlayerError is a failed or timed out call to a single player.
// It never affects other players or the watcher itself.
type PlayerError struct {
	Player   PlayerIdentity
	Property string
	Err      error
}

func (e *PlayerError) Error() string {
	return fmt.Sprintf("player %s: failed to get %s: %v", e.Player.Short, e.Property, e.Err)
}

func (e *PlayerError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransientPlayer) hold for every PlayerError
func (e *PlayerError) Is(target error) bool {
	return target == ErrTransientPlayer
}
