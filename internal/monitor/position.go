package monitor

import (
	"time"

	"github.com/genricoloni/playerwatch/internal/domain"
)

// EstimatePosition extrapolates the playback position from the last snapshot.
//
// The estimate is position + elapsed*rate, clamped to [0, Length] when the
// track length is known. A zero rate returns the stored position unchanged.
func EstimatePosition(snap domain.PlaybackSnapshot, now time.Time) time.Duration {
	if snap.Rate == 0 {
		return snap.Position
	}

	elapsed := now.Sub(snap.ObservedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	estimate := snap.Position + time.Duration(float64(elapsed)*snap.Rate)
	if estimate < 0 {
		return 0
	}
	if snap.Length > 0 && estimate > snap.Length {
		return snap.Length
	}
	return estimate
}
