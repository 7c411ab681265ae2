package descriptor

import (
	"fmt"

	"github.com/atomistic/descriptor/pkg/errors"
)

// ---------------------------------------------------------------------------
// ExclusionSet
// ---------------------------------------------------------------------------

// ExclusionSet removes selected (center, neighbor) type pairs from the
// descriptor input.  Exclusion is symmetric: excluding (a,b) also excludes
// (b,a).  Excluded slots have all four feature channels zeroed before the
// embedding, so they contribute exactly nothing downstream.
type ExclusionSet struct {
	ntypes int
	// keep is a flat lookup table of size ntypes*(ntypes+1), indexed by
	// centerType*(ntypes+1)+neighborType; the extra neighbor column is the
	// empty-slot sentinel, which is never excluded.
	keep []float64
}

// NewExclusionSet builds the lookup table from explicit type pairs.
func NewExclusionSet(ntypes int, pairs [][2]int) (*ExclusionSet, error) {
	if ntypes <= 0 {
		return nil, errors.InvalidInput("number of types must be positive")
	}
	e := &ExclusionSet{ntypes: ntypes, keep: make([]float64, ntypes*(ntypes+1))}
	for i := range e.keep {
		e.keep[i] = 1
	}
	for _, p := range pairs {
		if p[0] < 0 || p[0] >= ntypes || p[1] < 0 || p[1] >= ntypes {
			return nil, errors.New(errors.CodeInvalidExclusion,
				fmt.Sprintf("excluded pair (%d,%d) outside [0,%d)", p[0], p[1], ntypes))
		}
		e.keep[p[0]*(ntypes+1)+p[1]] = 0
		e.keep[p[1]*(ntypes+1)+p[0]] = 0
	}
	return e, nil
}

// Empty reports whether no pair is excluded.
func (e *ExclusionSet) Empty() bool {
	for _, v := range e.keep {
		if v == 0 {
			return false
		}
	}
	return true
}

// Excluded reports whether the (center, neighbor) pair is masked out.  The
// sentinel neighbor type is never excluded.
func (e *ExclusionSet) Excluded(centerType, neighborType int) bool {
	return e.keep[centerType*(e.ntypes+1)+neighborType] == 0
}

// BuildMask returns the per-slot keep flags for one atom, length nnei.
func (e *ExclusionSet) BuildMask(centerType int, neiTypes []int) []float64 {
	mask := make([]float64, len(neiTypes))
	for k, t := range neiTypes {
		mask[k] = e.keep[centerType*(e.ntypes+1)+t]
	}
	return mask
}

// Apply zeroes the feature channels of excluded slots across a frame
// environment, both standardized and raw.
func (e *ExclusionSet) Apply(env *Environment) {
	if e.Empty() {
		return
	}
	for i := 0; i < env.Natoms; i++ {
		mask := e.BuildMask(env.Types[i], env.NeighborTypes[i])
		for k, keep := range mask {
			if keep != 0 {
				continue
			}
			for c := 0; c < 4; c++ {
				env.Features[i][4*k+c] = 0
				env.Raw[i][4*k+c] = 0
			}
		}
	}
}
