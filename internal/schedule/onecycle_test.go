package schedule_test

import (
	"math"
	"testing"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabriellecaillaud/wildfire-detection/internal/schedule"
)

type recorder struct {
	lr  float32
	set int
}

func (r *recorder) SetLR(lr float32) { r.lr = lr; r.set++ }
func (r *recorder) GetLR() float32   { return r.lr }

func TestOneCycle_Phases(t *testing.T) {
	const maxLR = 0.001
	opt := &recorder{}
	s, err := schedule.NewOneCycle(opt, schedule.OneCycleConfig{
		MaxLR: maxLR, Epochs: 10, StepsPerEpoch: 10, PctStart: schedule.DefaultPctStart,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, s.TotalSteps())

	initial := maxLR / 25
	final := initial / 1e4

	assert.InDelta(t, initial, s.LastLR(), 1e-12)
	assert.InDelta(t, initial, float64(opt.GetLR()), 1e-9, "construction sets the initial LR")

	prev := s.LastLR()
	for step := 1; step <= 9; step++ {
		s.Step()
		assert.Greater(t, s.LastLR(), prev, "warm-up step %d", step)
		prev = s.LastLR()
	}
	assert.InDelta(t, maxLR, s.LastLR(), 1e-12, "peak at the end of warm-up")

	for step := 10; step <= 99; step++ {
		s.Step()
		assert.Less(t, s.LastLR(), prev, "annealing step %d", step)
		prev = s.LastLR()
	}
	assert.InDelta(t, final, s.LastLR(), 1e-15)
	assert.Equal(t, 100, opt.set)
	assert.InDelta(t, s.LastLR(), float64(opt.GetLR()), 1e-12)
}

func TestOneCycle_ClampsPastTotal(t *testing.T) {
	opt := &recorder{}
	s, err := schedule.NewOneCycle(opt, schedule.OneCycleConfig{MaxLR: 0.01, Epochs: 1, StepsPerEpoch: 5})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		s.Step()
	}
	assert.InDelta(t, 0.01/25/1e4, s.LastLR(), 1e-15)
	assert.Equal(t, s.LR(5), s.LR(500))
	assert.Equal(t, s.LR(0), s.LR(-3))
}

func TestOneCycle_AnnealingMidpoint(t *testing.T) {
	s, err := schedule.NewOneCycle(&recorder{}, schedule.OneCycleConfig{
		MaxLR:          1,
		Epochs:         1,
		StepsPerEpoch:  10,
		PctStart:       0.4,
		DivFactor:      10,
		FinalDivFactor: 10,
	})
	require.NoError(t, err)

	// Warm-up covers steps 0..3 and annealing 3..9, so step 6 is halfway
	// down, where cosine annealing sits at the mean of its endpoints.
	assert.InDelta(t, 0.1, s.LR(0), 1e-12)
	assert.InDelta(t, 1.0, s.LR(3), 1e-12)
	assert.InDelta(t, (1+0.01)/2, s.LR(6), 1e-12)
	assert.InDelta(t, 0.01, s.LR(9), 1e-12)
}

func TestOneCycle_NoWarmup(t *testing.T) {
	opt := &recorder{}
	s, err := schedule.NewOneCycle(opt, schedule.OneCycleConfig{
		MaxLR:          1,
		Epochs:         1,
		StepsPerEpoch:  10,
		DivFactor:      10,
		FinalDivFactor: 10,
	})
	require.NoError(t, err)

	// Annealing starts right away, one step below the peak.
	assert.InDelta(t, 0.01+0.99/2*(math.Cos(math.Pi/10)+1), s.LastLR(), 1e-12)
	prev := s.LastLR()
	for step := 1; step < 10; step++ {
		s.Step()
		assert.Less(t, s.LastLR(), prev, "step %d", step)
		prev = s.LastLR()
	}
	assert.InDelta(t, 0.01, s.LastLR(), 1e-12)
}

func TestOneCycle_DrivesAdam(t *testing.T) {
	b := cpu.New()
	layer := nn.NewLinear(2, 2, b)
	adam := optim.NewAdam(layer.Parameters(), optim.AdamConfig{LR: 0.5, Betas: [2]float32{0.9, 0.999}, Eps: 1e-8}, b)

	s, err := schedule.NewOneCycle(adam, schedule.OneCycleConfig{
		MaxLR: 0.001, Epochs: 2, StepsPerEpoch: 3, PctStart: schedule.DefaultPctStart,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.001/25, adam.GetLR(), 1e-9)

	s.Step()
	assert.InDelta(t, s.LastLR(), adam.GetLR(), 1e-9)
}

func TestOneCycle_InvalidConfig(t *testing.T) {
	tests := []schedule.OneCycleConfig{
		{MaxLR: 0, Epochs: 1, StepsPerEpoch: 1},
		{MaxLR: 0.1, Epochs: 0, StepsPerEpoch: 1},
		{MaxLR: 0.1, Epochs: 1, StepsPerEpoch: 0},
		{MaxLR: 0.1, Epochs: 1, StepsPerEpoch: 1, PctStart: 1.5},
		{MaxLR: 0.1, Epochs: 1, StepsPerEpoch: 1, DivFactor: -1},
	}
	for _, cfg := range tests {
		_, err := schedule.NewOneCycle(&recorder{}, cfg)
		assert.Error(t, err, "%+v", cfg)
	}
}
