package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlayerError(t *testing.T) {
	id, err := NewPlayerIdentity("org.mpris.MediaPlayer2.spotify")
	assert.NoError(t, err)

	perr := &PlayerError{Player: id, Property: "Metadata", Err: context.DeadlineExceeded}
	wrapped := fmt.Errorf("refresh: %w", perr)

	assert.True(t, errors.Is(wrapped, ErrTransientPlayer))
	assert.True(t, errors.Is(wrapped, context.DeadlineExceeded))
	assert.False(t, errors.Is(wrapped, ErrBusConnectionLost))

	var target *PlayerError
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "Metadata", target.Property)
	assert.Contains(t, perr.Error(), "spotify")
}

func TestEventKinds(t *testing.T) {
	id, err := NewPlayerIdentity("org.mpris.MediaPlayer2.vlc")
	assert.NoError(t, err)

	events := map[EventKind]Event{
		KindPlayerAttached:          PlayerAttached{Player: id},
		KindPlayerDetached:          PlayerDetached{Player: id},
		KindPlayerPropertiesChanged: PlayerPropertiesChanged{Player: id},
		KindPlayerSeeked:            PlayerSeeked{Player: id},
		KindPlayerPosition:          PlayerPosition{Player: id},
	}
	for kind, ev := range events {
		assert.Equal(t, kind, ev.Kind())
		assert.Equal(t, id, ev.Identity())
	}
}
