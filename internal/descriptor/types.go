// Package descriptor implements the attention-based local-environment
// descriptor for a neural-network interatomic potential.  It converts the
// neighborhood of every atom (relative coordinates and types within a cutoff
// radius) into a fixed-length, rotation- and permutation-invariant feature
// vector consumed by a downstream fitting network.
//
// Pipeline: environment matrix → standardization → type-exclusion masking →
// type-conditioned embedding → self-attention stack → invariant assembly.
package descriptor

import (
	"fmt"
	"math"

	"github.com/atomistic/descriptor/pkg/errors"
)

// ---------------------------------------------------------------------------
// Frame — one atomic configuration
// ---------------------------------------------------------------------------

// Frame is a single atomic configuration handed to the descriptor.
type Frame struct {
	// Coords holds the Cartesian coordinates, length 3*Natoms().
	Coords []float64 `json:"coords"`

	// Types holds the atom type index of every atom, length Natoms().
	Types []int `json:"types"`

	// Box holds the 9 components of the three cell vectors (row-major).
	// A nil or empty Box means open (non-periodic) boundaries.
	Box []float64 `json:"box,omitempty"`
}

// Natoms returns the number of atoms in the frame.
func (f *Frame) Natoms() int { return len(f.Types) }

// Validate performs structural validation of the frame.
func (f *Frame) Validate() error {
	if f == nil {
		return errors.InvalidInput("frame is nil")
	}
	if len(f.Types) == 0 {
		return errors.InvalidInput("frame has no atoms")
	}
	if len(f.Coords) != 3*len(f.Types) {
		return errors.InvalidInput(
			fmt.Sprintf("coords length %d does not match 3*natoms=%d", len(f.Coords), 3*len(f.Types)))
	}
	if len(f.Box) != 0 && len(f.Box) != 9 {
		return errors.InvalidInput(
			fmt.Sprintf("box must have 0 or 9 components, got %d", len(f.Box)))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Environment — per-frame neighbor tensors
// ---------------------------------------------------------------------------

// Environment holds the neighbor-list tensors produced by an
// EnvironmentBuilder for one frame.  Every per-atom row is padded to Nnei
// slots; padding slots carry zero features, mask 0, neighbor index -1, and
// the sentinel neighbor type (== ntypes).
//
// Each neighbor slot contributes 4 feature channels (s, s·x/r, s·y/r, s·z/r)
// where s is the smoothed inverse distance, so a row has Nnei*4 entries.
type Environment struct {
	Natoms int
	Nnei   int

	// Features holds the standardized environment matrix, [Natoms][Nnei*4].
	Features [][]float64

	// Raw holds the unstandardized environment matrix with the same layout.
	// The statistics engine consumes Raw; the forward pass consumes Features.
	Raw [][]float64

	// RelCoords holds the raw relative coordinates, [Natoms][Nnei*3].
	RelCoords [][]float64

	// NeighborList holds the neighbor atom indices, [Natoms][Nnei]; -1 marks
	// an empty slot.
	NeighborList [][]int

	// NeighborTypes holds the neighbor type indices, [Natoms][Nnei]; the
	// sentinel value ntypes marks an empty slot.
	NeighborTypes [][]int

	// Mask holds the slot validity flags as 1/0, [Natoms][Nnei].
	Mask [][]float64

	// Types holds the center-atom types, [Natoms].
	Types []int
}

// Ndescrpt returns the per-atom descriptor input width (Nnei * 4).
func (e *Environment) Ndescrpt() int { return e.Nnei * 4 }

// RealNeighbors returns the number of valid neighbor slots of atom i.
func (e *Environment) RealNeighbors(i int) int {
	n := 0
	for _, m := range e.Mask[i] {
		if m != 0 {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Precision
// ---------------------------------------------------------------------------

// Precision enumerates the supported numeric precision modes of the
// configuration surface.  The Go pipeline always computes in float64; the
// mode gates which checkpoint payload dtypes are accepted on restore and is
// validated at construction time (unsupported modes are fatal).
type Precision string

const (
	PrecisionDefault Precision = "default"
	PrecisionFloat32 Precision = "float32"
	PrecisionFloat64 Precision = "float64"
)

// ParsePrecision validates a precision mode string.
func ParsePrecision(s string) (Precision, error) {
	switch Precision(s) {
	case "", PrecisionDefault:
		return PrecisionDefault, nil
	case PrecisionFloat32:
		return PrecisionFloat32, nil
	case PrecisionFloat64:
		return PrecisionFloat64, nil
	default:
		return "", errors.New(errors.CodeUnsupportedPrecision,
			fmt.Sprintf("precision %q is not supported", s))
	}
}

// ---------------------------------------------------------------------------
// Activation functions
// ---------------------------------------------------------------------------

// Activation is a pointwise nonlinearity applied inside the embedding nets.
type Activation func(float64) float64

// activationTable is the closed set of supported activation functions.
var activationTable = map[string]Activation{
	"tanh":     math.Tanh,
	"relu":     func(x float64) float64 { return math.Max(0, x) },
	"relu6":    func(x float64) float64 { return math.Min(math.Max(0, x), 6) },
	"softplus": func(x float64) float64 { return math.Log1p(math.Exp(x)) },
	"sigmoid":  func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
	"gelu": func(x float64) float64 {
		return 0.5 * x * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(x+0.044715*x*x*x)))
	},
	"linear": func(x float64) float64 { return x },
	"none":   func(x float64) float64 { return x },
}

// ParseActivation resolves an activation function by name.
func ParseActivation(name string) (Activation, error) {
	if name == "" {
		name = "tanh"
	}
	fn, ok := activationTable[name]
	if !ok {
		return nil, errors.New(errors.CodeUnsupportedActivation,
			fmt.Sprintf("activation function %q is not supported", name))
	}
	return fn, nil
}
