//go:build linux

package monitor

import (
	"fmt"

	"github.com/genricoloni/playerwatch/internal/domain"
	"go.uber.org/zap"
)

// Connect opens the session bus and returns a watcher ready to Watch
func Connect(logger *zap.Logger, cfg domain.Config) (*MprisWatcher, error) {
	client, err := NewStdDBusClient(logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBusConnectionLost, err)
	}
	return NewMprisWatcher(logger, client, cfg), nil
}
