package tele

import "time"

// Sample is one point-in-time telemetry reading. Immutable once produced.
// Timestamp is set at capture, not at send; each sample is consumed by
// exactly one delivery attempt, a failed delivery drops the sample and the
// next tick pulls a fresh one.
type Sample struct {
	DroneID   string    `json:"drone_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Alt       float64   `json:"alt"`
	Roll      float64   `json:"roll"`
	Pitch     float64   `json:"pitch"`
	Yaw       float64   `json:"yaw"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	Battery   float64   `json:"battery"`
	Signal    float64   `json:"signal"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
