package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/playerwatch/internal/domain"
	"github.com/genricoloni/playerwatch/internal/metrics"
	"github.com/godbus/dbus/v5"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	_ domain.Monitor      = (*MprisWatcher)(nil)
	_ domain.PlayerHandle = (*Player)(nil)
)

const inboxSize = 64

type notificationKind int

const (
	notifyProperties notificationKind = iota
	notifySeeked
)

// notification is a player signal forwarded to the reconcile loop
type notification struct {
	player *Player
	kind   notificationKind
	signal *dbus.Signal
}

// MprisWatcher tracks MPRIS players on the bus and publishes normalized events.
//
// Background goroutines only reference the inner state, so a watcher that
// is dropped without Stop is shut down once it is garbage collected.
type MprisWatcher struct {
	*watcher
}

type watcher struct {
	logger       *zap.Logger
	client       BusClient
	cfg          domain.Config
	registry     *Registry
	events       *EventStream
	now          func() time.Time
	malformedLog rate.Sometimes

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	inbox      chan notification
	forwarders sync.WaitGroup

	// Owned by the reconcile goroutine
	lastProps    map[domain.PlayerIdentity]time.Time
	pendingProps map[domain.PlayerIdentity]time.Time
	coalesce     *time.Timer
}

// NewMprisWatcher creates a watcher on top of an existing bus client.
// The watcher takes ownership of the client and closes it on Stop.
func NewMprisWatcher(logger *zap.Logger, client BusClient, cfg domain.Config) *MprisWatcher {
	inner := &watcher{
		logger:       logger,
		client:       client,
		cfg:          cfg,
		registry:     NewRegistry(),
		events:       newEventStream(cfg.GetEventBuffer(), logger),
		now:          time.Now,
		malformedLog: rate.Sometimes{Interval: 5 * time.Second},
		inbox:        make(chan notification, inboxSize),
		lastProps:    make(map[domain.PlayerIdentity]time.Time),
		pendingProps: make(map[domain.PlayerIdentity]time.Time),
	}

	w := &MprisWatcher{watcher: inner}
	runtime.AddCleanup(w, func(inner *watcher) { inner.abandon() }, inner)
	return w
}

// Registry returns the shared registry of attached players
func (w *watcher) Registry() *Registry {
	return w.registry
}

// Players returns a point-in-time view of the attached players
func (w *watcher) Players() []domain.PlayerHandle {
	return lo.Map(w.registry.Snapshot(), func(p *Player, _ int) domain.PlayerHandle {
		return p
	})
}

// Lookup returns the attached player with the given identity
func (w *watcher) Lookup(id domain.PlayerIdentity) (domain.PlayerHandle, bool) {
	p, ok := w.registry.Get(id)
	if !ok {
		return nil, false
	}
	return p, true
}

// Recv blocks until the next event, see EventStream.Recv
func (w *watcher) Recv(ctx context.Context) (domain.Event, error) {
	return w.events.Recv(ctx)
}

// Events returns the raw event channel, closed on termination
func (w *watcher) Events() <-chan domain.Event {
	return w.events.Events()
}

// Err returns the cause that terminated the watcher, nil after a clean stop
func (w *watcher) Err() error {
	return w.events.Err()
}

// Watch subscribes to the bus, attaches the players already present and
// starts the background reconciliation. ctx bounds the setup only; the
// watcher runs until Stop or a fatal bus error. Repeated calls are no-ops.
func (w *watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.stopped:
		return domain.ErrChannelClosed
	case w.started:
		return nil
	}

	setupCtx, cancelSetup := ctx, context.CancelFunc(func() {})
	if timeout := w.cfg.GetCallTimeout(); timeout > 0 {
		setupCtx, cancelSetup = context.WithTimeout(ctx, timeout)
	}
	defer cancelSetup()

	// Subscribe before listing so that no appearance falls in between
	nameOwner, unsubscribe, err := w.client.SubscribeNameOwnerChanged(setupCtx)
	if err != nil {
		w.logger.Error("Failed to subscribe to NameOwnerChanged", zap.Error(err))
		return fmt.Errorf("subscribe NameOwnerChanged: %w", err)
	}

	services, err := w.client.ListPlayerServices(setupCtx)
	if err != nil {
		unsubscribe()
		w.logger.Error("Failed to list existing players", zap.Error(err))
		return fmt.Errorf("list players: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.started = true

	go w.run(runCtx, nameOwner, unsubscribe, services)

	w.logger.Info("MPRIS watcher started", zap.Int("players", len(services)))
	return nil
}

// Stop gracefully stops the watcher, waits for its goroutines and closes the bus client
func (w *watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started, cancel, done := w.started, w.cancel, w.done
	w.mu.Unlock()

	var err error
	if started {
		cancel()

		// Wait for all producer goroutines to terminate before closing the client
		w.logger.Debug("Waiting for watcher goroutines to finish")
		select {
		case <-done:
		case <-ctx.Done():
			err = multierr.Append(err, fmt.Errorf("waiting for watcher: %w", ctx.Err()))
		}
	} else {
		w.events.close(nil)
	}

	if cerr := w.client.Close(); cerr != nil {
		w.logger.Warn("Failed to close bus connection", zap.Error(cerr))
		err = multierr.Append(err, fmt.Errorf("close bus client: %w", cerr))
	}

	w.logger.Info("MPRIS watcher shutdown complete")
	return err
}

// abandon is the GC cleanup path, it must not block
func (w *watcher) abandon() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	started, cancel := w.started, w.cancel
	w.mu.Unlock()

	if started {
		cancel()
	} else {
		w.events.close(nil)
	}
	_ = w.client.Close()
}

func (w *watcher) run(ctx context.Context, nameOwner <-chan *dbus.Signal, unsubscribe func(), services []string) {
	defer close(w.done)

	g, gctx := errgroup.WithContext(ctx)

	ticks := make(chan struct{}, 1)
	if interval := w.cfg.GetTickInterval(); interval > 0 {
		g.Go(func() error {
			w.tick(gctx, interval, ticks)
			return nil
		})
	}
	g.Go(func() error {
		return w.reconcile(gctx, nameOwner, ticks, services)
	})

	err := g.Wait()

	w.detachAll()
	w.forwarders.Wait()
	unsubscribe()

	if errors.Is(err, domain.ErrBusConnectionLost) {
		w.logger.Error("MPRIS watcher terminated", zap.Error(err))
	} else {
		w.logger.Info("MPRIS watcher stopped")
	}
	w.events.close(err)
}

// tick drives position estimates. Ticks are dropped while one is still pending.
func (w *watcher) tick(ctx context.Context, interval time.Duration, ticks chan<- struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case ticks <- struct{}{}:
			default:
			}
		}
	}
}

// reconcile is the only goroutine that mutates the registry and publishes events
func (w *watcher) reconcile(ctx context.Context, nameOwner <-chan *dbus.Signal, ticks <-chan struct{}, services []string) error {
	defer func() {
		if w.coalesce != nil {
			w.coalesce.Stop()
		}
	}()

	for _, name := range services {
		w.attach(ctx, name)
	}
	w.logger.Info("Player detection complete", zap.Int("count", w.registry.Len()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-nameOwner:
			if !ok {
				return domain.ErrBusConnectionLost
			}
			w.handleNameOwnerChanged(ctx, sig)
		case n := <-w.inbox:
			w.handleNotification(ctx, n)
		case <-ticks:
			w.emitPositions(ctx)
		case <-w.coalesceC():
			w.flushCoalesced(ctx)
		}
	}
}

// handleNameOwnerChanged processes NameOwnerChanged signals to track player lifecycle
func (w *watcher) handleNameOwnerChanged(ctx context.Context, sig *dbus.Signal) {
	name, oldOwner, newOwner, err := parseNameOwnerChanged(sig)
	if err != nil {
		w.malformed("NameOwnerChanged", err)
		return
	}
	if !strings.HasPrefix(name, mprisPlayerNamePrefix) {
		return // Not an MPRIS player
	}

	switch {
	case oldOwner == "" && newOwner != "":
		w.attach(ctx, name)
	case oldOwner != "" && newOwner == "":
		w.detach(ctx, name)
	case oldOwner != "" && newOwner != "":
		// Ownership moved to another process: the old instance is gone
		w.logger.Debug("MPRIS player ownership changed",
			zap.String("player", name),
			zap.String("oldUnique", oldOwner),
			zap.String("newUnique", newOwner))
		w.detach(ctx, name)
		w.attach(ctx, name)
	}
}

func (w *watcher) attach(ctx context.Context, name string) {
	id, err := domain.NewPlayerIdentity(name)
	if err != nil {
		w.malformed("NameOwnerChanged", err)
		return
	}
	if _, ok := w.registry.Get(id); ok {
		w.logger.Debug("Player already attached", zap.String("player", name))
		return
	}

	p := newPlayer(id, w.client, w.cfg.GetCallTimeout(), w.logger, w.now)
	pctx, cancel := context.WithCancel(ctx)
	p.stop = cancel

	w.registry.insert(p)
	metrics.PlayersAttached.Set(float64(w.registry.Len()))
	w.logger.Info("MPRIS player attached", zap.String("player", name), zap.String("short", id.Short))

	w.publish(ctx, domain.PlayerAttached{Player: id})

	w.forwarders.Add(1)
	go w.forward(pctx, p)
}

func (w *watcher) detach(ctx context.Context, name string) {
	id, err := domain.NewPlayerIdentity(name)
	if err != nil {
		w.malformed("NameOwnerChanged", err)
		return
	}

	p, ok := w.registry.remove(id)
	if !ok {
		w.logger.Debug("Ignoring removal of unknown player", zap.String("player", name))
		return
	}
	p.stop()
	w.flushPending(ctx, id)
	delete(w.lastProps, id)

	metrics.PlayersAttached.Set(float64(w.registry.Len()))
	w.logger.Info("MPRIS player detached", zap.String("player", name))

	w.publish(ctx, domain.PlayerDetached{Player: id})
}

// detachAll empties the registry on termination without publishing events
func (w *watcher) detachAll() {
	for _, p := range w.registry.Snapshot() {
		w.registry.remove(p.identity)
		p.stop()
	}
	metrics.PlayersAttached.Set(0)
}

// forward fans one player's signal subscriptions into the reconcile loop
func (w *watcher) forward(ctx context.Context, p *Player) {
	defer w.forwarders.Done()

	bus := p.identity.Bus
	props, unsubscribeProps, err := w.client.SubscribePropertiesChanged(ctx, bus)
	if err != nil {
		w.logger.Warn("Failed to subscribe to PropertiesChanged", zap.String("player", bus), zap.Error(err))
	} else {
		defer unsubscribeProps()
	}

	seeked, unsubscribeSeeked, err := w.client.SubscribeSeeked(ctx, bus)
	if err != nil {
		w.logger.Warn("Failed to subscribe to Seeked", zap.String("player", bus), zap.Error(err))
	} else {
		defer unsubscribeSeeked()
	}

	if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
		w.logger.Warn("Failed to fetch initial playback state", zap.String("player", bus), zap.Error(err))
	}

	for props != nil || seeked != nil {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-props:
			if !ok {
				props = nil
				continue
			}
			if !w.enqueue(ctx, notification{player: p, kind: notifyProperties, signal: sig}) {
				return
			}
		case sig, ok := <-seeked:
			if !ok {
				seeked = nil
				continue
			}
			if !w.enqueue(ctx, notification{player: p, kind: notifySeeked, signal: sig}) {
				return
			}
		}
	}
}

func (w *watcher) enqueue(ctx context.Context, n notification) bool {
	select {
	case w.inbox <- n:
		return true
	case <-ctx.Done():
		return false
	}
}

// handleNotification processes a forwarded player signal
func (w *watcher) handleNotification(ctx context.Context, n notification) {
	id := n.player.identity

	// Drop signals of a handle that was detached in the meantime
	if current, ok := w.registry.Get(id); !ok || current != n.player {
		return
	}

	switch n.kind {
	case notifyProperties:
		iface, changed, err := parsePropertiesChanged(n.signal)
		if err != nil {
			w.malformed("PropertiesChanged", err, zap.String("player", id.Bus))
			return
		}
		if !strings.HasPrefix(iface, mprisInterface) {
			return
		}
		if iface == mprisPlayerIface {
			if err := n.player.applyProperties(changed, w.now()); err != nil {
				w.malformed("PropertiesChanged", err, zap.String("player", id.Bus))
				return
			}
		}

		w.logger.Debug("Received PropertiesChanged signal",
			zap.String("player", id.Bus),
			zap.String("interface", iface),
			zap.Int("properties", len(changed)))
		w.emitPropertiesChanged(ctx, id)

	case notifySeeked:
		position, err := parseSeeked(n.signal)
		if err != nil {
			w.malformed("Seeked", err, zap.String("player", id.Bus))
			return
		}
		n.player.seeked(position, w.now())
		w.flushPending(ctx, id)
		w.publish(ctx, domain.PlayerSeeked{Player: id})
	}
}

func (w *watcher) emitPositions(ctx context.Context) {
	now := w.now()
	for _, p := range w.registry.Snapshot() {
		snap := p.Snapshot()
		if !snap.Playing() {
			continue
		}
		w.publish(ctx, domain.PlayerPosition{
			Player:   p.identity,
			Position: EstimatePosition(snap, now),
		})
	}
}

// emitPropertiesChanged publishes immediately unless a coalescing window is configured
// and the player already reported a change inside it.
func (w *watcher) emitPropertiesChanged(ctx context.Context, id domain.PlayerIdentity) {
	window := w.cfg.GetCoalesceWindow()
	if window <= 0 {
		w.publish(ctx, domain.PlayerPropertiesChanged{Player: id})
		return
	}

	if _, pending := w.pendingProps[id]; pending {
		return
	}

	now := w.now()
	if last, ok := w.lastProps[id]; ok && now.Sub(last) < window {
		w.pendingProps[id] = last.Add(window)
		w.armCoalesce(now)
		return
	}

	w.lastProps[id] = now
	w.publish(ctx, domain.PlayerPropertiesChanged{Player: id})
}

func (w *watcher) flushCoalesced(ctx context.Context) {
	now := w.now()

	due := lo.Filter(lo.Keys(w.pendingProps), func(id domain.PlayerIdentity, _ int) bool {
		return !now.Before(w.pendingProps[id])
	})
	slices.SortFunc(due, func(a, b domain.PlayerIdentity) int {
		return w.pendingProps[a].Compare(w.pendingProps[b])
	})

	for _, id := range due {
		delete(w.pendingProps, id)
		w.lastProps[id] = now
		w.publish(ctx, domain.PlayerPropertiesChanged{Player: id})
	}

	if len(w.pendingProps) > 0 {
		w.armCoalesce(now)
	}
}

// flushPending publishes a held back PropertiesChanged for id so that it
// is not overtaken by a later signal of the same player.
func (w *watcher) flushPending(ctx context.Context, id domain.PlayerIdentity) {
	if _, ok := w.pendingProps[id]; !ok {
		return
	}
	delete(w.pendingProps, id)
	w.lastProps[id] = w.now()
	w.publish(ctx, domain.PlayerPropertiesChanged{Player: id})
}

func (w *watcher) armCoalesce(now time.Time) {
	earliest := lo.MinBy(lo.Values(w.pendingProps), func(a, b time.Time) bool {
		return a.Before(b)
	})
	wait := max(earliest.Sub(now), 0)

	if w.coalesce == nil {
		w.coalesce = time.NewTimer(wait)
		return
	}
	w.coalesce.Reset(wait)
}

func (w *watcher) coalesceC() <-chan time.Time {
	if w.coalesce == nil || len(w.pendingProps) == 0 {
		return nil
	}
	return w.coalesce.C
}

func (w *watcher) publish(ctx context.Context, ev domain.Event) {
	if err := w.events.publish(ctx, ev); err != nil {
		// Only happens on shutdown
		w.logger.Debug("Event not delivered", zap.String("kind", string(ev.Kind())), zap.Error(err))
		return
	}
	metrics.ObserveEvent(string(ev.Kind()))
	w.logger.Debug("Event published",
		zap.String("kind", string(ev.Kind())),
		zap.String("player", ev.Identity().Bus))
}

// malformed logs a dropped notification, rate limited to avoid log spam from a misbehaving player
func (w *watcher) malformed(signal string, err error, fields ...zap.Field) {
	metrics.ObserveMalformed(signal)
	fields = append(fields, zap.String("signal", signal), zap.Error(err))
	w.logger.Debug("Dropping malformed notification", fields...)
	w.malformedLog.Do(func() {
		w.logger.Warn("Dropping malformed notification", fields...)
	})
}

func parseNameOwnerChanged(sig *dbus.Signal) (name, oldOwner, newOwner string, err error) {
	if sig == nil || len(sig.Body) < 3 {
		return "", "", "", fmt.Errorf("%w: NameOwnerChanged needs 3 arguments", domain.ErrMalformedNotification)
	}
	var ok1, ok2, ok3 bool
	name, ok1 = sig.Body[0].(string)
	oldOwner, ok2 = sig.Body[1].(string)
	newOwner, ok3 = sig.Body[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return "", "", "", fmt.Errorf("%w: NameOwnerChanged arguments must be strings", domain.ErrMalformedNotification)
	}
	return name, oldOwner, newOwner, nil
}

// parsePropertiesChanged validates the PropertiesChanged signal shape:
// 1. Interface name (string)
// 2. Changed properties (map[string]Variant)
// 3. Invalidated properties ([]string)
func parsePropertiesChanged(sig *dbus.Signal) (string, map[string]dbus.Variant, error) {
	if sig == nil || len(sig.Body) < 2 {
		return "", nil, fmt.Errorf("%w: PropertiesChanged needs at least 2 arguments", domain.ErrMalformedNotification)
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("%w: PropertiesChanged interface is %T", domain.ErrMalformedNotification, sig.Body[0])
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", nil, fmt.Errorf("%w: PropertiesChanged properties are %T", domain.ErrMalformedNotification, sig.Body[1])
	}
	return iface, changed, nil
}

func parseSeeked(sig *dbus.Signal) (time.Duration, error) {
	if sig == nil || len(sig.Body) < 1 {
		return 0, fmt.Errorf("%w: Seeked needs a position", domain.ErrMalformedNotification)
	}
	us, ok := sig.Body[0].(int64)
	if !ok {
		return 0, fmt.Errorf("%w: Seeked position is %T", domain.ErrMalformedNotification, sig.Body[0])
	}
	return max(time.Duration(us)*time.Microsecond, 0), nil
}
