package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/playerwatch/internal/domain"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Engine consumes the watcher's event stream and reports what each player is playing.
// Property changes are debounced per player so that skipping through tracks
// produces one metadata fetch.
type Engine struct {
	logger  *zap.Logger
	cfg     domain.Config
	monitor domain.Monitor
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a new orchestration engine
func NewEngine(logger *zap.Logger, cfg domain.Config, mon domain.Monitor) *Engine {
	return &Engine{
		logger:  logger,
		cfg:     cfg,
		monitor: mon,
		now:     time.Now,
	}
}

// Start launches the engine's event processing loop in a goroutine.
// It returns immediately (non-blocking).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return nil
	}

	e.logger.Info("Engine starting...")

	// The loop must outlive the start context
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel

	events := make(chan domain.Event)
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		defer close(events)
		e.pump(runCtx, events)
	}()
	go func() {
		defer e.wg.Done()
		e.runLoop(runCtx, events)
	}()
	return nil
}

// Stop ends the loop and waits for it
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}

	e.logger.Info("Engine stopping...")
	cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("Engine loop stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pump turns the blocking Recv into a channel the loop can select on
func (e *Engine) pump(ctx context.Context, out chan<- domain.Event) {
	for {
		ev, err := e.monitor.Recv(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, domain.ErrChannelClosed):
				e.logger.Info("Monitor events channel closed")
			default:
				e.logger.Error("Monitor terminated", zap.Error(err))
			}
			return
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// runLoop is the main event processing loop with per-player debouncing
func (e *Engine) runLoop(ctx context.Context, events <-chan domain.Event) {
	debounce := e.cfg.GetDebounce()

	timer := time.NewTimer(debounce)
	timer.Stop() // Start with stopped timer
	defer timer.Stop()

	pending := make(map[domain.PlayerIdentity]time.Time)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if e.handleEvent(ev, pending) {
				e.rearm(timer, pending)
			}

		case <-timer.C:
			// Timer expired: the player went quiet, report its current track
			now := e.now()
			for id, deadline := range pending {
				if now.Before(deadline) {
					continue
				}
				delete(pending, id)
				e.reportNowPlaying(ctx, id)
			}
			e.rearm(timer, pending)
		}
	}
}

// handleEvent logs ev and updates the pending set, it reports whether the set changed
func (e *Engine) handleEvent(ev domain.Event, pending map[domain.PlayerIdentity]time.Time) bool {
	id := ev.Identity()

	switch ev := ev.(type) {
	case domain.PlayerAttached:
		e.logger.Info("Player attached", zap.String("player", id.Short), zap.String("bus", id.Bus))
		pending[id] = e.now().Add(e.cfg.GetDebounce())
		return true

	case domain.PlayerDetached:
		e.logger.Info("Player detached", zap.String("player", id.Short), zap.String("bus", id.Bus))
		if _, ok := pending[id]; ok {
			delete(pending, id)
			return true
		}
		return false

	case domain.PlayerPropertiesChanged:
		e.logger.Debug("Properties changed, debouncing...", zap.String("player", id.Short))
		pending[id] = e.now().Add(e.cfg.GetDebounce())
		return true

	case domain.PlayerSeeked:
		e.logger.Debug("Player seeked", zap.String("player", id.Short))

	case domain.PlayerPosition:
		e.logger.Debug("Position", zap.String("player", id.Short), zap.Duration("position", ev.Position))
	}
	return false
}

func (e *Engine) rearm(timer *time.Timer, pending map[domain.PlayerIdentity]time.Time) {
	if len(pending) == 0 {
		timer.Stop()
		return
	}
	earliest := lo.MinBy(lo.Values(pending), func(a, b time.Time) bool {
		return a.Before(b)
	})
	timer.Reset(max(earliest.Sub(e.now()), 0))
}

// reportNowPlaying fetches the current track of one player and logs it
func (e *Engine) reportNowPlaying(ctx context.Context, id domain.PlayerIdentity) {
	player, ok := e.monitor.Lookup(id)
	if !ok {
		// Detached while debouncing
		return
	}

	status, err := player.PlaybackStatus(ctx)
	if err != nil {
		e.logPlayerError(id, err)
		return
	}

	// Skip if music is paused or stopped
	if status != domain.StatusPlaying {
		e.logger.Info("Music paused or stopped",
			zap.String("player", id.Short),
			zap.String("status", string(status)))
		return
	}

	meta, err := player.Metadata(ctx)
	if err != nil {
		e.logPlayerError(id, err)
		return
	}

	title, _ := meta.Title()
	album, _ := meta.Album()
	artists, _ := meta.Artists()
	length, _, _ := meta.Length()

	e.logger.Info("Now playing",
		zap.String("player", id.Short),
		zap.String("track", title),
		zap.String("artist", strings.Join(artists, ", ")),
		zap.String("album", album),
		zap.Duration("position", player.Snapshot().Position),
		zap.Duration("length", length))
}

func (e *Engine) logPlayerError(id domain.PlayerIdentity, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if errors.Is(err, domain.ErrTransientPlayer) {
		e.logger.Warn("Player did not answer", zap.String("player", id.Short), zap.Error(err))
		return
	}
	e.logger.Error("Failed to query player", zap.String("player", id.Short), zap.Error(err))
}
