package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// BusClient defines the bus operations the watcher depends on.
// This abstraction allows us to mock D-Bus interactions in tests.
//
// Subscriptions return a receive channel and a cancel function. The channel
// is closed when the bus connection goes away; cancel releases the
// subscription without closing the channel.
//
//go:generate mockgen -destination=mocks/bus_client_mock.go -package=mocks github.com/genricoloni/playerwatch/internal/monitor BusClient
type BusClient interface {
	// Close closes the bus connection
	Close() error

	// ListPlayerServices returns the well-known names of the MPRIS players currently on the bus
	ListPlayerServices(ctx context.Context) ([]string, error)

	// SubscribeNameOwnerChanged streams NameOwnerChanged signals for MPRIS names
	SubscribeNameOwnerChanged(ctx context.Context) (<-chan *dbus.Signal, func(), error)

	// SubscribePropertiesChanged streams PropertiesChanged signals emitted by one player
	SubscribePropertiesChanged(ctx context.Context, service string) (<-chan *dbus.Signal, func(), error)

	// SubscribeSeeked streams Seeked signals emitted by one player
	SubscribeSeeked(ctx context.Context, service string) (<-chan *dbus.Signal, func(), error)

	// CallMethod calls a method on the player's /org/mpris/MediaPlayer2 object
	// service: The bus name (e.g., "org.mpris.MediaPlayer2.spotify")
	// method: The fully qualified method (e.g., "org.freedesktop.DBus.Properties.Get")
	CallMethod(ctx context.Context, service, method string, args ...any) ([]any, error)
}

// signalSink is one subscriber of the dispatcher
type signalSink struct {
	ch   chan *dbus.Signal
	done chan struct{}
	once sync.Once
}

func newSignalSink() *signalSink {
	return &signalSink{
		ch:   make(chan *dbus.Signal, defaultSignalQueueSize),
		done: make(chan struct{}),
	}
}

func (s *signalSink) cancel() {
	s.once.Do(func() { close(s.done) })
}

// deliver blocks until the subscriber takes the signal or unsubscribes
func (s *signalSink) deliver(sig *dbus.Signal) {
	select {
	case s.ch <- sig:
	case <-s.done:
	}
}

type sinkSet map[*signalSink]struct{}

type nameSet map[string]struct{}

// StdDBusClient is the real implementation using godbus.
// A single dispatcher goroutine demultiplexes the connection's signals to subscribers.
type StdDBusClient struct {
	conn    *dbus.Conn
	logger  *zap.Logger
	signals chan *dbus.Signal

	mu          sync.Mutex
	playerNames map[string]nameSet // Maps unique bus names (:1.45) to the well-known names they own (org.mpris.MediaPlayer2.spotify)
	nameSubs    sinkSet
	propSubs    map[string]sinkSet
	seekSubs    map[string]sinkSet
	closed      bool

	dispatchDone chan struct{}
}

// NewStdDBusClient creates a real D-Bus client connected to the session bus
func NewStdDBusClient(logger *zap.Logger) (*StdDBusClient, error) {
	// The default handler spawns a goroutine per signal once our queue is full,
	// which loses ordering; the sequential handler queues instead
	conn, err := dbus.ConnectSessionBus(dbus.WithSignalHandler(dbus.NewSequentialSignalHandler()))
	if err != nil {
		return nil, fmt.Errorf("session bus connection failed: %w", err)
	}

	rules := [][]dbus.MatchOption{
		{
			dbus.WithMatchObjectPath(mprisPath),
			dbus.WithMatchInterface(dbusPropsIface),
			dbus.WithMatchMember("PropertiesChanged"),
		},
		{
			dbus.WithMatchObjectPath(mprisPath),
			dbus.WithMatchInterface(mprisPlayerIface),
			dbus.WithMatchMember("Seeked"),
		},
		{
			dbus.WithMatchInterface(dbusInterface),
			dbus.WithMatchMember("NameOwnerChanged"),
			dbus.WithMatchOption("arg0namespace", mprisInterface),
		},
	}
	for _, rule := range rules {
		if err := conn.AddMatchSignal(rule...); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to add match signal: %w", err)
		}
	}

	c := newStdDBusClient(conn, logger)
	conn.Signal(c.signals)
	go c.dispatch()

	logger.Info("Connected to session bus")
	return c, nil
}

func newStdDBusClient(conn *dbus.Conn, logger *zap.Logger) *StdDBusClient {
	return &StdDBusClient{
		conn:         conn,
		logger:       logger,
		signals:      make(chan *dbus.Signal, defaultSignalQueueSize),
		playerNames:  make(map[string]nameSet),
		nameSubs:     make(sinkSet),
		propSubs:     make(map[string]sinkSet),
		seekSubs:     make(map[string]sinkSet),
		dispatchDone: make(chan struct{}),
	}
}

// Close closes the D-Bus connection. The dispatcher then closes every subscription channel.
func (c *StdDBusClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// ListPlayerServices returns the MPRIS names among all names on the bus
func (c *StdDBusClient) ListPlayerServices(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.conn.BusObject().CallWithContext(ctx, dbusListNames, 0).Store(&names); err != nil {
		return nil, fmt.Errorf("failed to list bus names: %w", err)
	}

	return lo.Filter(names, func(name string, _ int) bool {
		return strings.HasPrefix(name, mprisPlayerNamePrefix)
	}), nil
}

// SubscribeNameOwnerChanged streams NameOwnerChanged signals for MPRIS names
func (c *StdDBusClient) SubscribeNameOwnerChanged(ctx context.Context) (<-chan *dbus.Signal, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, fmt.Errorf("subscribe NameOwnerChanged: connection closed")
	}

	sink := newSignalSink()
	c.nameSubs[sink] = struct{}{}
	return sink.ch, c.unsubscriber(sink, func() { delete(c.nameSubs, sink) }), nil
}

// SubscribePropertiesChanged streams PropertiesChanged signals emitted by one player
func (c *StdDBusClient) SubscribePropertiesChanged(ctx context.Context, service string) (<-chan *dbus.Signal, func(), error) {
	return c.subscribePlayer(ctx, service, c.propSubs)
}

// SubscribeSeeked streams Seeked signals emitted by one player
func (c *StdDBusClient) SubscribeSeeked(ctx context.Context, service string) (<-chan *dbus.Signal, func(), error) {
	return c.subscribePlayer(ctx, service, c.seekSubs)
}

// CallMethod calls a method on the player's MPRIS object
func (c *StdDBusClient) CallMethod(ctx context.Context, service, method string, args ...any) ([]any, error) {
	call := c.conn.Object(service, mprisPath).CallWithContext(ctx, method, 0, args...)
	if call.Err != nil {
		return nil, call.Err
	}
	return call.Body, nil
}

func (c *StdDBusClient) subscribePlayer(ctx context.Context, service string, subs map[string]sinkSet) (<-chan *dbus.Signal, func(), error) {
	// Signals carry the unique sender name, so the owner must be known to route them
	if !c.hasOwner(service) {
		var owner string
		if err := c.conn.BusObject().CallWithContext(ctx, dbusGetNameOwner, 0, service).Store(&owner); err != nil {
			return nil, nil, fmt.Errorf("failed to resolve owner of %s: %w", service, err)
		}
		c.mu.Lock()
		c.addOwnerLocked(owner, service)
		c.mu.Unlock()
		c.logger.Debug("Mapped player name",
			zap.String("unique", owner),
			zap.String("wellKnown", service))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, fmt.Errorf("subscribe %s: connection closed", service)
	}

	sink := newSignalSink()
	set, ok := subs[service]
	if !ok {
		set = make(sinkSet)
		subs[service] = set
	}
	set[sink] = struct{}{}

	return sink.ch, c.unsubscriber(sink, func() {
		delete(set, sink)
		if len(set) == 0 {
			delete(subs, service)
		}
	}), nil
}

func (c *StdDBusClient) unsubscriber(sink *signalSink, remove func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			sink.cancel()
			c.mu.Lock()
			remove()
			c.mu.Unlock()
		})
	}
}

func (c *StdDBusClient) hasOwner(service string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, names := range c.playerNames {
		if _, ok := names[service]; ok {
			return true
		}
	}
	return false
}

func (c *StdDBusClient) addOwnerLocked(owner, name string) {
	names, ok := c.playerNames[owner]
	if !ok {
		names = make(nameSet)
		c.playerNames[owner] = names
	}
	names[name] = struct{}{}
}

func (c *StdDBusClient) removeOwnerLocked(owner, name string) {
	names, ok := c.playerNames[owner]
	if !ok {
		return
	}
	delete(names, name)
	if len(names) == 0 {
		delete(c.playerNames, owner)
	}
}

// dispatch routes signals until the connection closes the signal channel
func (c *StdDBusClient) dispatch() {
	defer close(c.dispatchDone)
	defer c.closeSinks()

	for sig := range c.signals {
		if sig == nil {
			continue
		}
		switch sig.Name {
		case dbusNameOwnerChanged:
			c.trackOwner(sig)
			c.broadcast(sig)
		case dbusPropertiesChanged:
			c.route(sig, c.propSubs)
		case mprisSeeked:
			c.route(sig, c.seekSubs)
		}
	}

	c.logger.Info("Session bus signal stream closed")
}

func (c *StdDBusClient) broadcast(sig *dbus.Signal) {
	c.mu.Lock()
	sinks := lo.Keys(c.nameSubs)
	c.mu.Unlock()

	for _, sink := range sinks {
		sink.deliver(sig)
	}
}

func (c *StdDBusClient) route(sig *dbus.Signal, subs map[string]sinkSet) {
	c.mu.Lock()
	services, ok := c.playerNames[sig.Sender]
	var sinks []*signalSink
	for service := range services {
		sinks = append(sinks, lo.Keys(subs[service])...)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("Dropping signal from unknown sender",
			zap.String("sender", sig.Sender),
			zap.String("signal", sig.Name))
		return
	}
	for _, sink := range sinks {
		sink.deliver(sig)
	}
}

// trackOwner keeps the unique to well-known name mapping current
func (c *StdDBusClient) trackOwner(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}
	name, ok := sig.Body[0].(string)
	if !ok || !strings.HasPrefix(name, mprisPlayerNamePrefix) {
		return
	}
	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	c.mu.Lock()
	defer c.mu.Unlock()
	if oldOwner != "" {
		c.removeOwnerLocked(oldOwner, name)
	}
	if newOwner != "" {
		c.addOwnerLocked(newOwner, name)
	}
}

func (c *StdDBusClient) closeSinks() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for sink := range c.nameSubs {
		close(sink.ch)
	}
	for _, subs := range []map[string]sinkSet{c.propSubs, c.seekSubs} {
		for _, set := range subs {
			for sink := range set {
				close(sink.ch)
			}
		}
	}
	c.nameSubs = make(sinkSet)
	c.propSubs = make(map[string]sinkSet)
	c.seekSubs = make(map[string]sinkSet)
}
