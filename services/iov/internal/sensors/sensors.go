// Package sensors exposes the vehicle telemetry snapshot the consent engine
// attaches to decision prompts.
package sensors

import "context"

// Snapshot is a point-in-time view of vehicle telemetry.
type Snapshot struct {
	EngineTemperature float64  `json:"engine_temperature"`
	TirePressure      float64  `json:"tire_pressure"`
	Speed             float64  `json:"speed"`
	Latitude          float64  `json:"latitude"`
	Longitude         float64  `json:"longitude"`
	DiagnosticCodes   []string `json:"diagnostic_codes"`
	BatteryLevel      float64  `json:"battery_level"`
}

// Moving reports whether the vehicle is in motion.
func (s Snapshot) Moving() bool { return s.Speed > 0 }

// Provider supplies the current snapshot.
type Provider interface {
	Read(ctx context.Context) (Snapshot, error)
}

// Simulated is a fixed-profile Provider used when no vehicle bus is wired.
type Simulated struct{}

func (Simulated) Read(_ context.Context) (Snapshot, error) {
	return Snapshot{
		EngineTemperature: 95,
		TirePressure:      32,
		Speed:             60,
		Latitude:          34.0522,
		Longitude:         -118.2437,
		DiagnosticCodes:   []string{"P0128", "C1234"},
		BatteryLevel:      80,
	}, nil
}

var _ Provider = Simulated{}
