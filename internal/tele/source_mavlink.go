package tele

import (
	"context"

	"github.com/juju/errors"
)

// MavlinkDecoder is the slot for a live flight controller link. A real
// implementation reads the serial/UDP MAVLink stream and must respect the
// ctx deadline on every read.
type MavlinkDecoder interface {
	ReadSample(ctx context.Context) (Sample, error)
}

// MavlinkSource adapts a MavlinkDecoder to the Source contract. With no
// decoder attached every capture fails with ErrSourceUnavailable; the
// scheduler treats that as skip-this-tick, the connection stays up.
type MavlinkSource struct {
	droneID string
	dec     MavlinkDecoder
}

func NewMavlinkSource(droneID string) *MavlinkSource {
	return &MavlinkSource{droneID: droneID}
}

// AttachDecoder plugs in a live decoder. Call before the scheduler starts.
func (ms *MavlinkSource) AttachDecoder(dec MavlinkDecoder) { ms.dec = dec }

func (ms *MavlinkSource) NextSample(ctx context.Context) (Sample, error) {
	if ms.dec == nil {
		return Sample{}, errors.Annotatef(ErrSourceUnavailable, "mavlink decoder not attached")
	}
	s, err := ms.dec.ReadSample(ctx)
	if err != nil {
		return Sample{}, errors.Wrap(err, ErrSourceUnavailable)
	}
	if s.DroneID == "" {
		s.DroneID = ms.droneID
	}
	return s, nil
}
