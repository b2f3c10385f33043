package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/genricoloni/playerwatch/internal/domain"
	"github.com/genricoloni/playerwatch/internal/monitor/mocks"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const spotifyBus = "org.mpris.MediaPlayer2.spotify"

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newMockPlayer(t *testing.T, timeout time.Duration) (*Player, *mocks.MockBusClient, *fakeClock) {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBusClient(ctrl)
	clock := newFakeClock()

	id, err := domain.NewPlayerIdentity(spotifyBus)
	require.NoError(t, err)
	return newPlayer(id, client, timeout, zap.NewNop(), clock.Now), client, clock
}

func expectGet(client *mocks.MockBusClient, property string) *gomock.Call {
	return client.EXPECT().CallMethod(gomock.Any(), spotifyBus, dbusPropGet, mprisPlayerIface, property)
}

// TestPlayerMetadata unifies all scenarios regarding metadata fetching:
// 1. Success (Happy Path)
// 2. DBus Errors (Connection fail)
// 3. Invalid Data types (Robustness)
func TestPlayerMetadata(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(*mocks.MockBusClient)
		wantErr   bool
		wantMeta  domain.Metadata
	}{
		{
			name: "Success - Valid Metadata",
			setupMock: func(m *mocks.MockBusClient) {
				expectGet(m, "Metadata").Return([]any{dbus.MakeVariant(map[string]dbus.Variant{
					"xesam:title":   dbus.MakeVariant("Stairway to Heaven"),
					"xesam:artist":  dbus.MakeVariant([]string{"Led Zeppelin"}),
					"mpris:trackid": dbus.MakeVariant(dbus.ObjectPath("/track/1")),
					"mpris:length":  dbus.MakeVariant(int64(482_000_000)),
				})}, nil)
			},
			wantMeta: domain.Metadata{
				"xesam:title":   "Stairway to Heaven",
				"xesam:artist":  []string{"Led Zeppelin"},
				"mpris:trackid": "/track/1",
				"mpris:length":  int64(482_000_000),
			},
		},
		{
			name: "DBus Error - Connection Fail",
			setupMock: func(m *mocks.MockBusClient) {
				expectGet(m, "Metadata").Return(nil, fmt.Errorf("connection timeout"))
			},
			wantErr: true,
		},
		{
			name: "Invalid Data - Metadata is Int not Map",
			setupMock: func(m *mocks.MockBusClient) {
				expectGet(m, "Metadata").Return([]any{dbus.MakeVariant(12345)}, nil)
			},
			wantErr: true,
		},
		{
			name: "Invalid Data - Reply is not a Variant",
			setupMock: func(m *mocks.MockBusClient) {
				expectGet(m, "Metadata").Return([]any{"oops"}, nil)
			},
			wantErr: true,
		},
		{
			name: "Invalid Data - Empty Reply",
			setupMock: func(m *mocks.MockBusClient) {
				expectGet(m, "Metadata").Return([]any{}, nil)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, client, _ := newMockPlayer(t, time.Second)
			tt.setupMock(client)

			meta, err := p.Metadata(t.Context())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrTransientPlayer), "player errors must be transient")

				var perr *domain.PlayerError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, "Metadata", perr.Property)
				assert.Equal(t, spotifyBus, perr.Player.Bus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMeta, meta)
		})
	}
}

func TestPlayerCallTimeout(t *testing.T) {
	p, client, _ := newMockPlayer(t, 20*time.Millisecond)

	expectGet(client, "PlaybackStatus").DoAndReturn(
		func(ctx context.Context, service, method string, args ...any) ([]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	start := time.Now()
	_, err := p.PlaybackStatus(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrTransientPlayer)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPlayerLiveProperties(t *testing.T) {
	p, client, _ := newMockPlayer(t, time.Second)

	expectGet(client, "PlaybackStatus").Return([]any{dbus.MakeVariant("Paused")}, nil)
	expectGet(client, "LoopStatus").Return([]any{dbus.MakeVariant("Playlist")}, nil)
	expectGet(client, "Rate").Return([]any{dbus.MakeVariant(1.5)}, nil)
	expectGet(client, "MinimumRate").Return([]any{dbus.MakeVariant(0.25)}, nil)
	expectGet(client, "MaximumRate").Return([]any{dbus.MakeVariant(4.0)}, nil)
	expectGet(client, "Position").Return([]any{dbus.MakeVariant(int64(42_000_000))}, nil)
	expectGet(client, "CanSeek").Return([]any{dbus.MakeVariant(true)}, nil)
	expectGet(client, "CanControl").Return([]any{dbus.MakeVariant(false)}, nil)

	ctx := t.Context()

	status, err := p.PlaybackStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, status)

	loop, err := p.LoopStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.LoopPlaylist, loop)

	rate, err := p.Rate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.5, rate)

	minRate, err := p.MinimumRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.25, minRate)

	maxRate, err := p.MaximumRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4.0, maxRate)

	pos, err := p.Position(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, pos)

	canSeek, err := p.CanSeek(ctx)
	require.NoError(t, err)
	assert.True(t, canSeek)

	canControl, err := p.CanControl(ctx)
	require.NoError(t, err)
	assert.False(t, canControl)
}

func TestPlayerPropertyWrongType(t *testing.T) {
	p, client, _ := newMockPlayer(t, time.Second)
	expectGet(client, "Rate").Return([]any{dbus.MakeVariant("fast")}, nil)
	expectGet(client, "PlaybackStatus").Return([]any{dbus.MakeVariant("Buffering")}, nil)

	_, err := p.Rate(t.Context())
	assert.ErrorIs(t, err, domain.ErrTransientPlayer)

	_, err = p.PlaybackStatus(t.Context())
	assert.ErrorIs(t, err, domain.ErrTransientPlayer)
}

func TestPlayerRefresh(t *testing.T) {
	p, client, clock := newMockPlayer(t, time.Second)

	client.EXPECT().CallMethod(gomock.Any(), spotifyBus, dbusPropGetAll, mprisPlayerIface).
		Return([]any{map[string]dbus.Variant{
			"PlaybackStatus": dbus.MakeVariant("Playing"),
			"Rate":           dbus.MakeVariant(1.0),
			"Position":       dbus.MakeVariant(int64(10_000_000)),
			"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
				"mpris:trackid": dbus.MakeVariant(dbus.ObjectPath("/track/1")),
				"mpris:length":  dbus.MakeVariant(int64(180_000_000)),
			}),
		}}, nil)

	require.NoError(t, p.Refresh(t.Context()))

	snap := p.Snapshot()
	assert.Equal(t, 10*time.Second, snap.Position)
	assert.Equal(t, 1.0, snap.Rate)
	assert.Equal(t, 180*time.Second, snap.Length)
	assert.Equal(t, clock.Now(), snap.ObservedAt)

	clock.Advance(5 * time.Second)
	assert.Equal(t, 15*time.Second, p.EstimatedPosition())
}

func TestPlayerRefreshLosesToConcurrentSignal(t *testing.T) {
	p, client, clock := newMockPlayer(t, time.Second)

	client.EXPECT().CallMethod(gomock.Any(), spotifyBus, dbusPropGetAll, mprisPlayerIface).DoAndReturn(
		func(ctx context.Context, service, method string, args ...any) ([]any, error) {
			// The player pauses while the reply is in flight
			require.NoError(t, p.applyProperties(map[string]dbus.Variant{
				"PlaybackStatus": dbus.MakeVariant("Paused"),
				"Position":       dbus.MakeVariant(int64(30_000_000)),
			}, clock.Now()))
			return []any{map[string]dbus.Variant{
				"PlaybackStatus": dbus.MakeVariant("Playing"),
				"Position":       dbus.MakeVariant(int64(10_000_000)),
			}}, nil
		})

	require.NoError(t, p.Refresh(t.Context()))

	snap := p.Snapshot()
	assert.Equal(t, 0.0, snap.Rate)
	assert.Equal(t, 30*time.Second, snap.Position)
	assert.Equal(t, domain.StatusPaused, p.status)
}

func TestPlayerRefreshFailure(t *testing.T) {
	p, client, _ := newMockPlayer(t, time.Second)
	client.EXPECT().CallMethod(gomock.Any(), spotifyBus, dbusPropGetAll, mprisPlayerIface).
		Return(nil, errors.New("no reply"))

	err := p.Refresh(t.Context())
	assert.ErrorIs(t, err, domain.ErrTransientPlayer)
	assert.Equal(t, domain.PlaybackSnapshot{}, p.Snapshot())
}

func TestPlayerApplyProperties(t *testing.T) {
	p, _, clock := newMockPlayer(t, time.Second)

	// Start playing at 10s
	require.NoError(t, p.applyProperties(map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant("Playing"),
		"Position":       dbus.MakeVariant(int64(10_000_000)),
	}, clock.Now()))
	assert.Equal(t, 1.0, p.Snapshot().Rate)

	// Pausing 5s later re-anchors at the estimate
	clock.Advance(5 * time.Second)
	require.NoError(t, p.applyProperties(map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant("Paused"),
	}, clock.Now()))

	snap := p.Snapshot()
	assert.Equal(t, 15*time.Second, snap.Position)
	assert.Equal(t, 0.0, snap.Rate)

	// Paused position does not move
	clock.Advance(time.Hour)
	assert.Equal(t, 15*time.Second, p.EstimatedPosition())

	// Resuming at double speed
	require.NoError(t, p.applyProperties(map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant("Playing"),
		"Rate":           dbus.MakeVariant(2.0),
	}, clock.Now()))
	clock.Advance(time.Second)
	assert.Equal(t, 17*time.Second, p.EstimatedPosition())
}

func TestPlayerTrackChangeResetsPosition(t *testing.T) {
	p, _, clock := newMockPlayer(t, time.Second)

	require.NoError(t, p.applyProperties(map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant("Playing"),
		"Position":       dbus.MakeVariant(int64(100_000_000)),
		"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
			"mpris:trackid": dbus.MakeVariant("/track/1"),
		}),
	}, clock.Now()))

	clock.Advance(time.Second)
	require.NoError(t, p.applyProperties(map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
			"mpris:trackid": dbus.MakeVariant("/track/2"),
			"mpris:length":  dbus.MakeVariant(int64(60_000_000)),
		}),
	}, clock.Now()))

	snap := p.Snapshot()
	assert.Equal(t, time.Duration(0), snap.Position)
	assert.Equal(t, time.Minute, snap.Length)
}

func TestPlayerApplyMalformed(t *testing.T) {
	p, _, clock := newMockPlayer(t, time.Second)

	tests := map[string]map[string]dbus.Variant{
		"Status Not String":  {"PlaybackStatus": dbus.MakeVariant(int32(1))},
		"Unknown Status":     {"PlaybackStatus": dbus.MakeVariant("Buffering")},
		"Rate Not Double":    {"Rate": dbus.MakeVariant("1.0")},
		"Position Not Int64": {"Position": dbus.MakeVariant(uint32(5))},
		"Metadata Not Map":   {"Metadata": dbus.MakeVariant("none")},
	}

	for name, props := range tests {
		t.Run(name, func(t *testing.T) {
			err := p.applyProperties(props, clock.Now())
			assert.ErrorIs(t, err, domain.ErrMalformedNotification)
		})
	}
	assert.Equal(t, domain.PlaybackSnapshot{}, p.Snapshot(), "malformed payloads must not touch the snapshot")
}

func TestPlayerSnapshotNeverGoesBack(t *testing.T) {
	p, _, clock := newMockPlayer(t, time.Second)

	later := clock.Now().Add(time.Minute)
	p.seeked(30*time.Second, later)

	// An update observed earlier than the current snapshot is discarded
	require.NoError(t, p.applyProperties(map[string]dbus.Variant{
		"Position": dbus.MakeVariant(int64(1_000_000)),
	}, clock.Now()))
	p.seeked(time.Second, clock.Now())

	snap := p.Snapshot()
	assert.Equal(t, 30*time.Second, snap.Position)
	assert.Equal(t, later, snap.ObservedAt)
}

func TestPlayerSeeked(t *testing.T) {
	p, _, clock := newMockPlayer(t, time.Second)

	require.NoError(t, p.applyProperties(map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant("Playing"),
	}, clock.Now()))

	clock.Advance(time.Second)
	p.seeked(90*time.Second, clock.Now())

	snap := p.Snapshot()
	assert.Equal(t, 90*time.Second, snap.Position)
	assert.Equal(t, 1.0, snap.Rate)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 92*time.Second, p.EstimatedPosition())
}
