package descriptor

import (
	"fmt"
	"math"
	"sync"

	"github.com/atomistic/descriptor/pkg/errors"
)

// ---------------------------------------------------------------------------
// StatsAccumulator
// ---------------------------------------------------------------------------

// stdFloor is the lower bound applied to every finalized standard deviation
// so that standardization never divides by a vanishing scale.
const stdFloor = 1e-2

// StatsAccumulator aggregates per-type first and second moments of the raw
// environment matrix across training frames.  Radial channels (slot column
// 0) and angular channels (slot columns 1..3) are pooled separately; the
// three angular channels of a slot share one pooled moment.
//
// The accumulator is safe for concurrent use.  After Finalize it is frozen:
// further accumulation fails with a stats-frozen error.
type StatsAccumulator struct {
	mu     sync.Mutex
	ntypes int
	nnei   int

	sumr  []float64
	sumr2 []float64
	suma  []float64
	suma2 []float64
	count []float64

	frozen bool
	mean   [][]float64
	std    [][]float64
}

// NewStatsAccumulator creates an accumulator for ntypes atom types and nnei
// padded neighbor slots.
func NewStatsAccumulator(ntypes, nnei int) *StatsAccumulator {
	return &StatsAccumulator{
		ntypes: ntypes,
		nnei:   nnei,
		sumr:   make([]float64, ntypes),
		sumr2:  make([]float64, ntypes),
		suma:   make([]float64, ntypes),
		suma2:  make([]float64, ntypes),
		count:  make([]float64, ntypes),
	}
}

// Accumulate folds the raw environment matrix of one frame into the running
// moments.  Every atom contributes to the pool of its own type.
func (s *StatsAccumulator) Accumulate(env *Environment) error {
	return s.accumulate(env, env.Natoms)
}

// AccumulateMixed folds a frame from a mixed-type batch where rows beyond
// realNatoms are padding and must not contribute to the moments.
func (s *StatsAccumulator) AccumulateMixed(env *Environment, realNatoms int) error {
	if realNatoms < 0 || realNatoms > env.Natoms {
		return errors.New(errors.CodeStatsFrameMismatch,
			fmt.Sprintf("real atom count %d outside [0,%d]", realNatoms, env.Natoms))
	}
	return s.accumulate(env, realNatoms)
}

func (s *StatsAccumulator) accumulate(env *Environment, natoms int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return errors.New(errors.CodeStatsFrozen, "statistics already finalized")
	}
	if env.Nnei != s.nnei {
		return errors.New(errors.CodeStatsFrameMismatch,
			fmt.Sprintf("frame has %d neighbor slots, accumulator expects %d", env.Nnei, s.nnei))
	}

	for i := 0; i < natoms; i++ {
		t := env.Types[i]
		if t < 0 || t >= s.ntypes {
			return errors.New(errors.CodeStatsFrameMismatch,
				fmt.Sprintf("atom %d has type %d outside [0,%d)", i, t, s.ntypes))
		}
		row := env.Raw[i]
		for k := 0; k < s.nnei; k++ {
			r := row[4*k]
			s.sumr[t] += r
			s.sumr2[t] += r * r
			for c := 1; c < 4; c++ {
				a := row[4*k+c]
				s.suma[t] += a / 3
				s.suma2[t] += a * a / 3
			}
		}
		s.count[t] += float64(s.nnei)
	}
	return nil
}

// Frozen reports whether Finalize has been called.
func (s *StatsAccumulator) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}

// Finalize computes the per-type standardization tables, each with shape
// [ntypes][nnei*4].  The angular mean is pinned to zero so that padding
// slots stay zero after shifting.  A type never observed gets mean 0 and
// std 1; every other std is floored at 1e-2.  Finalize is idempotent: later
// calls return the cached tables.
func (s *StatsAccumulator) Finalize() (mean, std [][]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return s.mean, s.std
	}

	s.mean = make([][]float64, s.ntypes)
	s.std = make([][]float64, s.ntypes)
	for t := 0; t < s.ntypes; t++ {
		meanR, stdR, stdA := 0.0, 1.0, 1.0
		if s.count[t] > 0 {
			n := s.count[t]
			meanR = s.sumr[t] / n
			meanA := s.suma[t] / n
			stdR = flooredStd(s.sumr2[t]/n - meanR*meanR)
			stdA = flooredStd(s.suma2[t]/n - meanA*meanA)
		}
		mrow := make([]float64, s.nnei*4)
		srow := make([]float64, s.nnei*4)
		for k := 0; k < s.nnei; k++ {
			mrow[4*k] = meanR
			srow[4*k] = stdR
			for c := 1; c < 4; c++ {
				srow[4*k+c] = stdA
			}
		}
		s.mean[t] = mrow
		s.std[t] = srow
	}
	s.frozen = true
	return s.mean, s.std
}

func flooredStd(variance float64) float64 {
	if variance < 0 {
		variance = 0
	}
	sd := math.Sqrt(variance)
	if sd < stdFloor {
		return stdFloor
	}
	return sd
}

// ZeroMean returns a standardization mean table of all zeros with the same
// shape as the finalized mean.  The attention descriptor pins its shift to
// zero and keeps only the learned scale.
func ZeroMean(ntypes, nnei int) [][]float64 {
	mean := make([][]float64, ntypes)
	for t := range mean {
		mean[t] = make([]float64, nnei*4)
	}
	return mean
}
