package tele

import (
	"context"

	"github.com/juju/errors"
)

// ErrSourceUnavailable means telemetry capture failed for this tick only.
// The scheduler skips the tick; connection state is not touched. Compare
// with errors.Cause.
var ErrSourceUnavailable = errors.New("telemetry source unavailable")

// Source produces one telemetry sample per request. Implementations must
// not block indefinitely: synthesis is bounded for simulation, a live read
// carries a hard timeout via ctx.
type Source interface {
	NextSample(ctx context.Context) (Sample, error)
}

// NewSource selects the source variant once, at construction. The mode
// never switches at runtime.
func NewSource(identity Identity, simSeed int64) Source {
	switch identity.Mode {
	case ModeMavlink:
		return NewMavlinkSource(identity.DroneID)
	default:
		return NewSimSource(identity.DroneID, simSeed)
	}
}
