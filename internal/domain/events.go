package domain

import "time"

// EventKind names an Event variant, used for logging and metrics labels
type EventKind string

const (
	KindPlayerAttached          EventKind = "attached"
	KindPlayerDetached          EventKind = "detached"
	KindPlayerPropertiesChanged EventKind = "properties_changed"
	KindPlayerSeeked            EventKind = "seeked"
	KindPlayerPosition          EventKind = "position"
)

// Event is one normalized change reported by the watcher.
// The set of implementations is closed: PlayerAttached, PlayerDetached,
// PlayerPropertiesChanged, PlayerSeeked and PlayerPosition.
type Event interface {
	// Identity returns the player the event concerns
	Identity() PlayerIdentity
	// Kind returns the variant name
	Kind() EventKind

	sealed()
}

// PlayerAttached is emitted when a new player service appears
type PlayerAttached struct {
	Player PlayerIdentity
}

// PlayerDetached is emitted when an attached player service disappears
type PlayerDetached struct {
	Player PlayerIdentity
}

// PlayerPropertiesChanged signals that some player property changed.
// Consumers re-fetch what they need through the player handle.
type PlayerPropertiesChanged struct {
	Player PlayerIdentity
}

// PlayerSeeked is emitted when the playback position jumped
type PlayerSeeked struct {
	Player PlayerIdentity
}

// PlayerPosition carries the estimated position of a playing player
type PlayerPosition struct {
	Player   PlayerIdentity
	Position time.Duration
}

func (e PlayerAttached) Identity() PlayerIdentity          { return e.Player }
func (e PlayerDetached) Identity() PlayerIdentity          { return e.Player }
func (e PlayerPropertiesChanged) Identity() PlayerIdentity { return e.Player }
func (e PlayerSeeked) Identity() PlayerIdentity            { return e.Player }
func (e PlayerPosition) Identity() PlayerIdentity          { return e.Player }

func (PlayerAttached) Kind() EventKind          { return KindPlayerAttached }
func (PlayerDetached) Kind() EventKind          { return KindPlayerDetached }
func (PlayerPropertiesChanged) Kind() EventKind { return KindPlayerPropertiesChanged }
func (PlayerSeeked) Kind() EventKind            { return KindPlayerSeeked }
func (PlayerPosition) Kind() EventKind          { return KindPlayerPosition }

func (PlayerAttached) sealed()          {}
func (PlayerDetached) sealed()          {}
func (PlayerPropertiesChanged) sealed() {}
func (PlayerSeeked) sealed()            {}
func (PlayerPosition) sealed()          {}
