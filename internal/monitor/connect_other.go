//go:build !linux

package monitor

import (
	"errors"

	"github.com/genricoloni/playerwatch/internal/domain"
	"go.uber.org/zap"
)

// Connect returns an error indicating MPRIS monitoring is not supported on this platform
func Connect(logger *zap.Logger, cfg domain.Config) (*MprisWatcher, error) {
	return nil, errors.New("MPRIS monitoring is only supported on Linux systems")
}
