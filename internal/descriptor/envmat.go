package descriptor

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/atomistic/descriptor/pkg/errors"
)

// ---------------------------------------------------------------------------
// EnvironmentBuilder
// ---------------------------------------------------------------------------

// EnvironmentBuilder turns a frame into padded neighbor tensors.  mean and
// std are per-type standardization tables with shape [ntypes][nnei*4]; a nil
// mean (or std) is treated as zeros (or ones).
type EnvironmentBuilder interface {
	Build(ctx context.Context, frame *Frame, mean, std [][]float64) (*Environment, error)
}

// ReferenceBuilder is an O(N^2) neighbor-search implementation of
// EnvironmentBuilder.  It supports open boundaries and periodic cells via
// minimum-image search over the 27 adjacent cell shifts.
type ReferenceBuilder struct {
	rcut     float64
	rcutSmth float64
	nnei     int
	ntypes   int
}

// NewReferenceBuilder constructs a reference environment builder.  nnei is
// the padded neighbor capacity (sum over the per-type selection) and ntypes
// the number of atom types; type indices outside [0, ntypes) are rejected.
func NewReferenceBuilder(rcut, rcutSmth float64, nnei, ntypes int) (*ReferenceBuilder, error) {
	if rcut <= 0 {
		return nil, errors.InvalidInput("cutoff radius must be positive")
	}
	if rcutSmth < 0 || rcutSmth > rcut {
		return nil, errors.InvalidInput("smoothing radius must lie in [0, rcut]")
	}
	if nnei <= 0 {
		return nil, errors.InvalidInput("neighbor capacity must be positive")
	}
	if ntypes <= 0 {
		return nil, errors.InvalidInput("number of types must be positive")
	}
	return &ReferenceBuilder{rcut: rcut, rcutSmth: rcutSmth, nnei: nnei, ntypes: ntypes}, nil
}

type neighbor struct {
	index int
	atype int
	dx    float64
	dy    float64
	dz    float64
	r     float64
}

// Build computes the padded, standardized environment matrix of every atom.
func (b *ReferenceBuilder) Build(ctx context.Context, frame *Frame, mean, std [][]float64) (*Environment, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "environment build canceled")
	}

	natoms := frame.Natoms()
	for i, t := range frame.Types {
		if t < 0 || t >= b.ntypes {
			return nil, errors.InvalidInput(
				fmt.Sprintf("atom %d has type %d outside [0,%d)", i, t, b.ntypes))
		}
	}

	shifts := cellShifts(frame.Box)
	env := &Environment{
		Natoms:        natoms,
		Nnei:          b.nnei,
		Features:      make([][]float64, natoms),
		Raw:           make([][]float64, natoms),
		RelCoords:     make([][]float64, natoms),
		NeighborList:  make([][]int, natoms),
		NeighborTypes: make([][]int, natoms),
		Mask:          make([][]float64, natoms),
		Types:         append([]int(nil), frame.Types...),
	}

	rc2 := b.rcut * b.rcut
	for i := 0; i < natoms; i++ {
		xi, yi, zi := frame.Coords[3*i], frame.Coords[3*i+1], frame.Coords[3*i+2]

		neighbors := make([]neighbor, 0, b.nnei)
		for j := 0; j < natoms; j++ {
			for s := range shifts {
				if j == i && shifts[s][0] == 0 && shifts[s][1] == 0 && shifts[s][2] == 0 {
					continue
				}
				dx := frame.Coords[3*j] + shifts[s][0] - xi
				dy := frame.Coords[3*j+1] + shifts[s][1] - yi
				dz := frame.Coords[3*j+2] + shifts[s][2] - zi
				d2 := dx*dx + dy*dy + dz*dz
				if d2 >= rc2 || d2 == 0 {
					continue
				}
				neighbors = append(neighbors, neighbor{
					index: j, atype: frame.Types[j],
					dx: dx, dy: dy, dz: dz, r: math.Sqrt(d2),
				})
			}
		}

		// Closest neighbors fill the fixed-capacity slots first; ties break
		// on atom index for determinism.
		sort.Slice(neighbors, func(a, c int) bool {
			if neighbors[a].r != neighbors[c].r {
				return neighbors[a].r < neighbors[c].r
			}
			return neighbors[a].index < neighbors[c].index
		})
		if len(neighbors) > b.nnei {
			neighbors = neighbors[:b.nnei]
		}

		raw := make([]float64, b.nnei*4)
		rel := make([]float64, b.nnei*3)
		list := make([]int, b.nnei)
		types := make([]int, b.nnei)
		mask := make([]float64, b.nnei)
		for k := range list {
			list[k] = -1
			types[k] = b.ntypes // sentinel for the empty slot
		}
		for k, nb := range neighbors {
			s := smoothWeight(nb.r, b.rcutSmth, b.rcut) / nb.r
			raw[4*k] = s
			raw[4*k+1] = s * nb.dx / nb.r
			raw[4*k+2] = s * nb.dy / nb.r
			raw[4*k+3] = s * nb.dz / nb.r
			rel[3*k] = nb.dx
			rel[3*k+1] = nb.dy
			rel[3*k+2] = nb.dz
			list[k] = nb.index
			types[k] = nb.atype
			mask[k] = 1
		}

		env.Raw[i] = raw
		env.RelCoords[i] = rel
		env.NeighborList[i] = list
		env.NeighborTypes[i] = types
		env.Mask[i] = mask
		env.Features[i] = standardizeRow(raw, frame.Types[i], mean, std)
	}
	return env, nil
}

// smoothWeight is the C2-continuous switching function: 1 below rmin, 0 at
// rmax, and uu^3*(-6uu^2+15uu-10)+1 in between with uu=(r-rmin)/(rmax-rmin).
func smoothWeight(r, rmin, rmax float64) float64 {
	switch {
	case r < rmin:
		return 1
	case r >= rmax:
		return 0
	default:
		uu := (r - rmin) / (rmax - rmin)
		return uu*uu*uu*(uu*(-6*uu+15)-10) + 1
	}
}

// standardizeRow applies (x - mean[t]) / std[t] elementwise.  Padding slots
// stay exactly zero because their mean is zero by construction of the
// statistics engine and a zero feature shifted by a zero mean stays zero.
func standardizeRow(raw []float64, atype int, mean, std [][]float64) []float64 {
	out := make([]float64, len(raw))
	copy(out, raw)
	if mean != nil && atype < len(mean) {
		for k, m := range mean[atype] {
			if k < len(out) {
				out[k] -= m
			}
		}
	}
	if std != nil && atype < len(std) {
		for k, s := range std[atype] {
			if k < len(out) && s != 0 {
				out[k] /= s
			}
		}
	}
	return out
}

// cellShifts returns the lattice translations to scan during neighbor
// search: just the origin for open boundaries, the 27 adjacent images for a
// periodic cell.
func cellShifts(box []float64) [][3]float64 {
	if len(box) != 9 {
		return [][3]float64{{0, 0, 0}}
	}
	shifts := make([][3]float64, 0, 27)
	for a := -1; a <= 1; a++ {
		for b := -1; b <= 1; b++ {
			for c := -1; c <= 1; c++ {
				fa, fb, fc := float64(a), float64(b), float64(c)
				shifts = append(shifts, [3]float64{
					fa*box[0] + fb*box[3] + fc*box[6],
					fa*box[1] + fb*box[4] + fc*box[7],
					fa*box[2] + fb*box[5] + fc*box[8],
				})
			}
		}
	}
	return shifts
}
