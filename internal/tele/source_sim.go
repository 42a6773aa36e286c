package tele

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/Neon18H/DRONEX-AGENT/helpers"
)

// Simulated trajectory anchor and physical bounds.
const (
	simBaseLat  = 4.658
	simBaseLng  = -74.093
	simWander   = 0.01 // max degrees away from anchor
	simStep     = 0.0005
	simAltMin   = 80.0
	simAltMax   = 120.0
	simSpeedMax = 15.0
)

// SimSource synthesizes a smoothly varying flight around a fixed anchor:
// seeded random walk for position, slow attitude drift, battery draining
// 0.5..1.5 per sample down to 0. Never fails.
type SimSource struct {
	droneID string
	rnd     *rand.Rand

	lat     float64
	lng     float64
	alt     float64
	yaw     float64
	battery float64
}

// seed=0 means time-seeded; any other value gives a reproducible run.
func NewSimSource(droneID string, seed int64) *SimSource {
	rnd := helpers.RandUnix()
	if seed != 0 {
		rnd = rand.New(rand.NewSource(seed))
	}
	return &SimSource{
		droneID: droneID,
		rnd:     rnd,
		lat:     simBaseLat,
		lng:     simBaseLng,
		alt:     (simAltMin + simAltMax) / 2,
		yaw:     rnd.Float64() * 360,
		battery: 100,
	}
}

func (ss *SimSource) NextSample(ctx context.Context) (Sample, error) {
	ss.lat = walk(ss.rnd, ss.lat, simStep, simBaseLat-simWander, simBaseLat+simWander)
	ss.lng = walk(ss.rnd, ss.lng, simStep, simBaseLng-simWander, simBaseLng+simWander)
	ss.alt = walk(ss.rnd, ss.alt, 2, simAltMin, simAltMax)
	ss.yaw = math.Mod(ss.yaw+ss.rnd.Float64()*10-5+360, 360)
	ss.battery = math.Max(ss.battery-(0.5+ss.rnd.Float64()), 0)

	s := Sample{
		DroneID:   ss.droneID,
		Lat:       clamp(ss.lat, -90, 90),
		Lng:       clamp(ss.lng, -180, 180),
		Alt:       round2(ss.alt),
		Roll:      round2(ss.rnd.Float64()*10 - 5),
		Pitch:     round2(ss.rnd.Float64()*10 - 5),
		Yaw:       round2(ss.yaw),
		Speed:     round2(ss.rnd.Float64() * simSpeedMax),
		Heading:   round2(ss.yaw),
		Battery:   round2(ss.battery),
		Signal:    round2(70 + ss.rnd.Float64()*30),
		Status:    "IN_OPERATION",
		Timestamp: time.Now(),
	}
	return s, nil
}

func walk(rnd *rand.Rand, v, step, min, max float64) float64 {
	v += rnd.Float64()*2*step - step
	return clamp(v, min, max)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// backend stores 2 decimal places, match the wire contract
func round2(v float64) float64 { return math.Round(v*100) / 100 }
