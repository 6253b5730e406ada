package telemetry

import (
	"math/rand"
	"sync"
)

// Sample is one synthesized instantaneous measurement.
type Sample struct {
	Voltage float64
	Current float64
	Power   float64
}

// Generator draws synthetic electrical telemetry for simulator ticks.
// Voltage is uniform over [MinVoltage, MaxVoltage), current uniform over
// [0, MaxCurrent).
type Generator struct {
	minVoltage float64
	maxVoltage float64
	maxCurrent float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator with the specified ranges and seed.
func NewGenerator(minVoltage, maxVoltage, maxCurrent float64, seed int64) *Generator {
	return &Generator{
		minVoltage: minVoltage,
		maxVoltage: maxVoltage,
		maxCurrent: maxCurrent,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Draw returns a fresh sample. Power is derived as V*I/1000 kW.
func (g *Generator) Draw() Sample {
	g.mu.Lock()
	voltage := g.minVoltage + g.rng.Float64()*(g.maxVoltage-g.minVoltage)
	current := g.rng.Float64() * g.maxCurrent
	g.mu.Unlock()

	return Sample{
		Voltage: voltage,
		Current: current,
		Power:   voltage * current / 1000,
	}
}
