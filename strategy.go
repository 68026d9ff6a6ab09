package cron_manager

import (
	"math/rand"
	"sync"
	"time"

	_const "github.com/TimeWtr/cron_manager/const"
)

// SweepStrategy decides, once per reconciliation cycle, whether orphaned live
// jobs are swept.
type SweepStrategy interface {
	ShouldSweep() bool
	Mode() _const.SweepMode
}

// NewSweepStrategy builds the strategy for a configured mode. probability is
// only used by RANDOM, values outside (0,1] fall back to the default.
func NewSweepStrategy(mode _const.SweepMode, probability float64) SweepStrategy {
	if mode == _const.SweepModeAlways {
		return AlwaysSweep{}
	}
	return NewRandomSweep(probability, nil)
}

type AlwaysSweep struct{}

func (AlwaysSweep) ShouldSweep() bool { return true }

func (AlwaysSweep) Mode() _const.SweepMode { return _const.SweepModeAlways }

// RandomSweep 每个周期按固定概率独立决定是否清理
type RandomSweep struct {
	probability float64
	mu          sync.Mutex
	rnd         *rand.Rand
}

func NewRandomSweep(probability float64, rnd *rand.Rand) *RandomSweep {
	if probability <= 0 || probability > 1 {
		probability = _const.DefaultProbability
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomSweep{probability: probability, rnd: rnd}
}

func (s *RandomSweep) ShouldSweep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64() < s.probability
}

func (s *RandomSweep) Mode() _const.SweepMode { return _const.SweepModeRandom }

func (s *RandomSweep) Probability() float64 { return s.probability }
