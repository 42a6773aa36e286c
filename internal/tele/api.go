package tele

import (
	"github.com/juju/errors"
)

const AgentVersion = "1.0.0"

type Mode uint8

const (
	ModeSimulation Mode = iota
	ModeMavlink
)

func (m Mode) String() string {
	switch m {
	case ModeSimulation:
		return "SIMULATION"
	case ModeMavlink:
		return "MAVLINK"
	}
	return "INVALID"
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "SIMULATION", "simulation", "":
		return ModeSimulation, nil
	case "MAVLINK", "mavlink":
		return ModeMavlink, nil
	}
	return ModeSimulation, errors.NotValidf("mode=%s expected SIMULATION or MAVLINK", s)
}

// Identity is the immutable agent identity for the process lifetime.
// One process instance serves exactly one drone.
type Identity struct {
	DroneID string
	Token   Secret
	Mode    Mode
}

func (id Identity) Validate() error {
	if id.DroneID == "" {
		return errors.NotValidf("drone_id is empty")
	}
	if id.Token.Empty() {
		return errors.NotValidf("drone_token is empty")
	}
	return nil
}
