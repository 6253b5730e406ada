package telemetry_test

import (
	"testing"

	"github.com/campusvolt/prepaid-engine/internal/telemetry"
	"github.com/stretchr/testify/assert"
)

func TestDraw_StaysWithinRanges(t *testing.T) {
	gen := telemetry.NewGenerator(220, 240, 5, 99)

	for i := 0; i < 1000; i++ {
		s := gen.Draw()
		assert.GreaterOrEqual(t, s.Voltage, 220.0)
		assert.Less(t, s.Voltage, 240.0)
		assert.GreaterOrEqual(t, s.Current, 0.0)
		assert.Less(t, s.Current, 5.0)
		assert.InDelta(t, s.Voltage*s.Current/1000, s.Power, 1e-12)
	}
}

func TestDraw_Deterministic(t *testing.T) {
	a := telemetry.NewGenerator(220, 240, 5, 7)
	b := telemetry.NewGenerator(220, 240, 5, 7)

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Draw(), b.Draw())
	}
}
