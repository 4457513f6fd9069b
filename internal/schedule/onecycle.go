// Package schedule adjusts optimizer learning rates during training.
package schedule

import (
	"fmt"
	"math"
)

// LRSetter is an optimizer whose learning rate can be changed between
// steps. born's optim.Adam and optim.SGD satisfy it.
type LRSetter interface {
	SetLR(lr float32)
	GetLR() float32
}

// DefaultPctStart is the warm-up fraction used for ESC training runs.
const DefaultPctStart = 0.1

// OneCycleConfig configures a one-cycle schedule.
type OneCycleConfig struct {
	MaxLR          float64
	Epochs         int
	StepsPerEpoch  int
	PctStart       float64 // Fraction of steps spent warming up; 0 starts at MaxLR
	DivFactor      float64 // Initial LR = MaxLR/DivFactor; defaults to 25
	FinalDivFactor float64 // Final LR = initial LR/FinalDivFactor; defaults to 1e4
}

type phase struct {
	endStep  float64
	startLR  float64
	targetLR float64
}

// OneCycle is the one-cycle learning-rate policy (Smith & Topin, 2018) with
// cosine annealing: the LR rises from MaxLR/DivFactor to MaxLR over the
// first PctStart of the steps, then decays to the final LR. Only the LR is
// scheduled; the optimizer's momentum terms are left alone.
//
// The optimizer LR is set to the initial value on construction and updated
// by every Step. Steps past the total keep the final LR.
type OneCycle struct {
	opt    LRSetter
	total  int
	step   int
	phases [2]phase
	lastLR float64
}

// NewOneCycle creates a schedule driving opt.
func NewOneCycle(opt LRSetter, cfg OneCycleConfig) (*OneCycle, error) {
	if cfg.DivFactor == 0 {
		cfg.DivFactor = 25
	}
	if cfg.FinalDivFactor == 0 {
		cfg.FinalDivFactor = 1e4
	}
	switch {
	case cfg.MaxLR <= 0:
		return nil, fmt.Errorf("one-cycle: max LR must be positive, got %v", cfg.MaxLR)
	case cfg.Epochs <= 0 || cfg.StepsPerEpoch <= 0:
		return nil, fmt.Errorf("one-cycle: epochs (%d) and steps per epoch (%d) must be positive",
			cfg.Epochs, cfg.StepsPerEpoch)
	case cfg.PctStart < 0 || cfg.PctStart > 1:
		return nil, fmt.Errorf("one-cycle: warm-up fraction must be in [0, 1], got %v", cfg.PctStart)
	case cfg.DivFactor < 0 || cfg.FinalDivFactor < 0:
		return nil, fmt.Errorf("one-cycle: division factors must be positive")
	}

	total := cfg.Epochs * cfg.StepsPerEpoch
	initialLR := cfg.MaxLR / cfg.DivFactor
	minLR := initialLR / cfg.FinalDivFactor

	s := &OneCycle{
		opt:   opt,
		total: total,
		phases: [2]phase{
			{endStep: cfg.PctStart*float64(total) - 1, startLR: initialLR, targetLR: cfg.MaxLR},
			{endStep: float64(total - 1), startLR: cfg.MaxLR, targetLR: minLR},
		},
	}
	s.apply(s.LR(0))
	return s, nil
}

// Step advances the schedule by one optimizer step.
func (s *OneCycle) Step() {
	if s.step < s.total {
		s.step++
	}
	s.apply(s.LR(s.step))
}

// LastLR returns the LR most recently set on the optimizer.
func (s *OneCycle) LastLR() float64 {
	return s.lastLR
}

// TotalSteps returns Epochs*StepsPerEpoch.
func (s *OneCycle) TotalSteps() int {
	return s.total
}

// LR returns the scheduled LR at step, clamping step to [0, TotalSteps].
func (s *OneCycle) LR(step int) float64 {
	n := float64(min(max(step, 0), s.total))

	start := 0.0
	for i, p := range s.phases {
		if n <= p.endStep || i == len(s.phases)-1 {
			pct := 1.0
			if p.endStep > start {
				pct = math.Min((n-start)/(p.endStep-start), 1)
			}
			return annealCos(p.startLR, p.targetLR, pct)
		}
		start = p.endStep
	}
	return s.phases[len(s.phases)-1].targetLR
}

func (s *OneCycle) apply(lr float64) {
	s.lastLR = lr
	s.opt.SetLR(float32(lr))
}

// annealCos moves from start to end as pct goes from 0 to 1.
func annealCos(start, end, pct float64) float64 {
	return end + (start-end)/2*(math.Cos(math.Pi*pct)+1)
}
