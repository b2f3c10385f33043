package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/genricoloni/playerwatch/internal/domain"
	"github.com/genricoloni/playerwatch/internal/metrics"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// Player is a handle to one attached MPRIS player.
// Handles are shared by pointer; every method is safe for concurrent use.
type Player struct {
	identity domain.PlayerIdentity
	client   BusClient
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	status  domain.PlayerStatus // empty until the first refresh
	rate    float64             // reported rate, independent of status
	trackID string
	snap    domain.PlaybackSnapshot
	gen     uint64 // bumped on every accepted update

	stop context.CancelFunc // ends the notification forwarder
}

func newPlayer(id domain.PlayerIdentity, client BusClient, timeout time.Duration, logger *zap.Logger, now func() time.Time) *Player {
	return &Player{
		identity: id,
		client:   client,
		timeout:  timeout,
		logger:   logger.With(zap.String("player", id.Bus)),
		now:      now,
		rate:     1.0,
		stop:     func() {},
	}
}

// Identity returns the identity of the player
func (p *Player) Identity() domain.PlayerIdentity {
	return p.identity
}

// Metadata fetches the current track metadata from the player
func (p *Player) Metadata(ctx context.Context) (domain.Metadata, error) {
	v, err := p.property(ctx, "Metadata")
	if err != nil {
		return nil, err
	}

	// SAFE CAST: Some players may return nil or unexpected types if not playing anything
	raw, ok := v.Value().(map[string]dbus.Variant)
	if !ok {
		return nil, p.fail("Metadata", fmt.Errorf("unexpected signature %s", v.Signature()))
	}
	return unwrapMetadata(raw), nil
}

// PlaybackStatus fetches the current playback status from the player
func (p *Player) PlaybackStatus(ctx context.Context) (domain.PlayerStatus, error) {
	s, err := propertyAs[string](ctx, p, "PlaybackStatus")
	if err != nil {
		return "", err
	}
	status, err := domain.ParsePlayerStatus(s)
	if err != nil {
		return "", p.fail("PlaybackStatus", err)
	}
	return status, nil
}

// LoopStatus fetches the repeat mode from the player
func (p *Player) LoopStatus(ctx context.Context) (domain.LoopStatus, error) {
	s, err := propertyAs[string](ctx, p, "LoopStatus")
	if err != nil {
		return "", err
	}
	status, err := domain.ParseLoopStatus(s)
	if err != nil {
		return "", p.fail("LoopStatus", err)
	}
	return status, nil
}

// Rate fetches the playback rate from the player
func (p *Player) Rate(ctx context.Context) (float64, error) {
	return propertyAs[float64](ctx, p, "Rate")
}

// MinimumRate fetches the lowest rate the player accepts
func (p *Player) MinimumRate(ctx context.Context) (float64, error) {
	return propertyAs[float64](ctx, p, "MinimumRate")
}

// MaximumRate fetches the highest rate the player accepts
func (p *Player) MaximumRate(ctx context.Context) (float64, error) {
	return propertyAs[float64](ctx, p, "MaximumRate")
}

// Position fetches the current position from the player
func (p *Player) Position(ctx context.Context) (time.Duration, error) {
	us, err := propertyAs[int64](ctx, p, "Position")
	if err != nil {
		return 0, err
	}
	return time.Duration(us) * time.Microsecond, nil
}

// CanSeek reports whether the player supports seeking
func (p *Player) CanSeek(ctx context.Context) (bool, error) {
	return propertyAs[bool](ctx, p, "CanSeek")
}

// CanControl reports whether the player accepts control at all
func (p *Player) CanControl(ctx context.Context) (bool, error) {
	return propertyAs[bool](ctx, p, "CanControl")
}

// Snapshot returns the last observed playback snapshot
func (p *Player) Snapshot() domain.PlaybackSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// EstimatedPosition extrapolates the current position without a bus call
func (p *Player) EstimatedPosition() time.Duration {
	return EstimatePosition(p.Snapshot(), p.now())
}

// Refresh queries the player's full playback state and replaces the snapshot
func (p *Player) Refresh(ctx context.Context) error {
	ctx, cancel := p.callContext(ctx)
	defer cancel()

	// A signal applied while the call is in flight is newer than the reply
	p.mu.RLock()
	gen := p.gen
	p.mu.RUnlock()

	body, err := p.client.CallMethod(ctx, p.identity.Bus, dbusPropGetAll, mprisPlayerIface)
	if err != nil {
		return p.fail("Player", err)
	}
	if len(body) == 0 {
		return p.fail("Player", errors.New("empty reply"))
	}
	props, ok := body[0].(map[string]dbus.Variant)
	if !ok {
		return p.fail("Player", fmt.Errorf("unexpected reply type %T", body[0]))
	}

	update, err := parsePlaybackUpdate(props)
	if err != nil {
		return p.fail("Player", err)
	}
	if !p.applySince(update, p.now(), gen) {
		p.logger.Debug("Discarding stale playback state")
	}
	return nil
}

// applyProperties folds a PropertiesChanged payload into the snapshot
func (p *Player) applyProperties(changed map[string]dbus.Variant, now time.Time) error {
	update, err := parsePlaybackUpdate(changed)
	if err != nil {
		return err
	}
	p.apply(update, now)
	return nil
}

// seeked replaces the position after a discontinuous jump
func (p *Player) seeked(position time.Duration, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Before(p.snap.ObservedAt) {
		return
	}
	p.snap = domain.PlaybackSnapshot{
		Position:   position,
		Rate:       p.effectiveRateLocked(),
		ObservedAt: now,
		Length:     p.snap.Length,
	}
	p.gen++
}

// apply re-anchors the snapshot at now. It refuses updates older than the current snapshot.
func (p *Player) apply(u playbackUpdate, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applyLocked(u, now)
}

// applySince applies u only if nothing else was applied since gen was read.
func (p *Player) applySince(u playbackUpdate, now time.Time, gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return false
	}
	return p.applyLocked(u, now)
}

func (p *Player) applyLocked(u playbackUpdate, now time.Time) bool {
	if now.Before(p.snap.ObservedAt) {
		return false
	}

	position := EstimatePosition(p.snap, now)
	length := p.snap.Length

	if u.status != nil {
		p.status = *u.status
	}
	if u.rate != nil {
		p.rate = *u.rate
	}
	if u.trackID != nil && *u.trackID != p.trackID {
		// New track starts from the beginning unless told otherwise
		p.trackID = *u.trackID
		position = 0
	}
	if u.length != nil {
		length = *u.length
	}
	if u.position != nil {
		position = *u.position
	}

	p.snap = domain.PlaybackSnapshot{
		Position:   position,
		Rate:       p.effectiveRateLocked(),
		ObservedAt: now,
		Length:     length,
	}
	p.gen++
	return true
}

func (p *Player) effectiveRateLocked() float64 {
	if p.status != domain.StatusPlaying {
		return 0
	}
	return p.rate
}

func (p *Player) property(ctx context.Context, name string) (dbus.Variant, error) {
	ctx, cancel := p.callContext(ctx)
	defer cancel()

	body, err := p.client.CallMethod(ctx, p.identity.Bus, dbusPropGet, mprisPlayerIface, name)
	if err != nil {
		return dbus.Variant{}, p.fail(name, err)
	}
	if len(body) == 0 {
		return dbus.Variant{}, p.fail(name, errors.New("empty reply"))
	}
	v, ok := body[0].(dbus.Variant)
	if !ok {
		return dbus.Variant{}, p.fail(name, fmt.Errorf("unexpected reply type %T", body[0]))
	}
	return v, nil
}

func propertyAs[T any](ctx context.Context, p *Player, name string) (T, error) {
	var zero T
	v, err := p.property(ctx, name)
	if err != nil {
		return zero, err
	}
	value, ok := v.Value().(T)
	if !ok {
		return zero, p.fail(name, fmt.Errorf("expected %T, got signature %s", zero, v.Signature()))
	}
	return value, nil
}

func (p *Player) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

func (p *Player) fail(property string, err error) error {
	metrics.ObservePlayerError(property)
	p.logger.Debug("Player call failed", zap.String("property", property), zap.Error(err))
	return &domain.PlayerError{Player: p.identity, Property: property, Err: err}
}

// playbackUpdate holds the subset of player properties the estimator cares about.
// Nil fields were absent from the payload.
type playbackUpdate struct {
	status   *domain.PlayerStatus
	rate     *float64
	position *time.Duration
	length   *time.Duration
	trackID  *string
}

func parsePlaybackUpdate(props map[string]dbus.Variant) (playbackUpdate, error) {
	var u playbackUpdate

	if v, ok := props["PlaybackStatus"]; ok {
		s, ok := v.Value().(string)
		if !ok {
			return u, fmt.Errorf("%w: PlaybackStatus has signature %s", domain.ErrMalformedNotification, v.Signature())
		}
		status, err := domain.ParsePlayerStatus(s)
		if err != nil {
			return u, fmt.Errorf("%w: %v", domain.ErrMalformedNotification, err)
		}
		u.status = &status
	}

	if v, ok := props["Rate"]; ok {
		rate, ok := v.Value().(float64)
		if !ok {
			return u, fmt.Errorf("%w: Rate has signature %s", domain.ErrMalformedNotification, v.Signature())
		}
		u.rate = &rate
	}

	if v, ok := props["Position"]; ok {
		us, ok := v.Value().(int64)
		if !ok {
			return u, fmt.Errorf("%w: Position has signature %s", domain.ErrMalformedNotification, v.Signature())
		}
		position := max(time.Duration(us)*time.Microsecond, 0)
		u.position = &position
	}

	if v, ok := props["Metadata"]; ok {
		raw, ok := v.Value().(map[string]dbus.Variant)
		if !ok {
			return u, fmt.Errorf("%w: Metadata has signature %s", domain.ErrMalformedNotification, v.Signature())
		}
		meta := unwrapMetadata(raw)

		// A broken length only disables clamping
		length, _, _ := meta.Length()
		u.length = &length

		if id, err := meta.TrackID(); err == nil {
			u.trackID = &id
		}
	}

	return u, nil
}

// unwrapMetadata strips the variant layer so callers see plain Go values
func unwrapMetadata(raw map[string]dbus.Variant) domain.Metadata {
	meta := make(domain.Metadata, len(raw))
	for k, v := range raw {
		switch value := v.Value().(type) {
		case dbus.ObjectPath:
			meta[k] = string(value)
		default:
			meta[k] = value
		}
	}
	return meta
}
