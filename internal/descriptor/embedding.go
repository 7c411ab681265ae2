package descriptor

import (
	"fmt"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/atomistic/descriptor/pkg/errors"
)

// ---------------------------------------------------------------------------
// TypeConditionedEmbedding
// ---------------------------------------------------------------------------

// TypeConditionedEmbedding maps the radial channel of every neighbor slot to
// an embedding row, conditioned on the chemical types involved.  The type
// embedding table has ntypes+1 rows; the extra all-zero row is the sentinel
// looked up for empty slots.
//
// One-sided conditioning sends the type table through its own embedding net
// and adds the neighbor-type row to the radial embedding.  Two-sided
// conditioning embeds every (neighbor, center) type pair through a shared
// net over the concatenated rows and mixes it multiplicatively with the
// radial embedding.
type TypeConditionedEmbedding struct {
	ntypes  int
	typeDim int
	oneSide bool

	table *mat.Dense // [ntypes+1, typeDim]

	base    *EmbeddingNet // radial channel, 1 -> widths
	typeNet *EmbeddingNet // one-sided, typeDim -> widths
	pairNet *EmbeddingNet // two-sided, 2*typeDim -> widths

	// two-sided mixing coefficients, one per output channel
	composeS []float64
	composeN []float64

	// caches of the type nets applied to the (pairwise) table; invalidated
	// whenever table or net parameters change
	cacheMu sync.Mutex
	typeEmb *mat.Dense
	pairEmb *mat.Dense
}

// NewTypeConditionedEmbedding builds the embedding component.  widths are
// the hidden widths shared by all three nets; rng seeds the initial weights
// and the type table.
func NewTypeConditionedEmbedding(ntypes, typeDim int, widths []int, act Activation, resnetDT, oneSide bool, rng *rand.Rand) (*TypeConditionedEmbedding, error) {
	if ntypes <= 0 {
		return nil, errors.InvalidInput("number of types must be positive")
	}
	if typeDim <= 0 {
		return nil, errors.New(errors.CodeTypeEmbeddingRequired,
			"attention descriptor requires a type embedding dimension")
	}

	e := &TypeConditionedEmbedding{ntypes: ntypes, typeDim: typeDim, oneSide: oneSide}

	e.table = mat.NewDense(ntypes+1, typeDim, nil)
	for t := 0; t < ntypes; t++ { // sentinel row stays zero
		for d := 0; d < typeDim; d++ {
			e.table.Set(t, d, rng.NormFloat64())
		}
	}

	var err error
	if e.base, err = NewEmbeddingNet(1, widths, act, resnetDT, rng); err != nil {
		return nil, err
	}
	if oneSide {
		if e.typeNet, err = NewEmbeddingNet(typeDim, widths, act, resnetDT, rng); err != nil {
			return nil, err
		}
	} else {
		if e.pairNet, err = NewEmbeddingNet(2*typeDim, widths, act, resnetDT, rng); err != nil {
			return nil, err
		}
		w := e.pairNet.OutWidth()
		e.composeS = make([]float64, w)
		e.composeN = make([]float64, w)
		for j := 0; j < w; j++ {
			e.composeS[j] = rng.NormFloat64() * 0.001
			e.composeN[j] = rng.NormFloat64() * 0.001
		}
	}
	return e, nil
}

// OutWidth returns the embedding width.
func (e *TypeConditionedEmbedding) OutWidth() int { return e.base.OutWidth() }

// OneSide reports the conditioning mode.
func (e *TypeConditionedEmbedding) OneSide() bool { return e.oneSide }

// Table exposes the type embedding table, [ntypes+1, typeDim].
func (e *TypeConditionedEmbedding) Table() *mat.Dense { return e.table }

// BaseNet exposes the radial embedding net for checkpoint restore.
func (e *TypeConditionedEmbedding) BaseNet() *EmbeddingNet { return e.base }

// TypeNet exposes the one-sided type net, nil in two-sided mode.
func (e *TypeConditionedEmbedding) TypeNet() *EmbeddingNet { return e.typeNet }

// PairNet exposes the two-sided pair net, nil in one-sided mode.
func (e *TypeConditionedEmbedding) PairNet() *EmbeddingNet { return e.pairNet }

// SetTable installs a restored type embedding table.
func (e *TypeConditionedEmbedding) SetTable(table *mat.Dense) error {
	r, c := table.Dims()
	if r != e.ntypes+1 || c != e.typeDim {
		return errors.New(errors.CodeShapeMismatch,
			fmt.Sprintf("type table shape [%d,%d] does not match [%d,%d]", r, c, e.ntypes+1, e.typeDim))
	}
	e.table = table
	e.Invalidate()
	return nil
}

// SetCompose installs restored two-sided mixing coefficients.
func (e *TypeConditionedEmbedding) SetCompose(s, n []float64) error {
	if e.oneSide {
		return errors.InvalidInput("compose coefficients only exist in two-sided mode")
	}
	w := e.pairNet.OutWidth()
	if len(s) != w || len(n) != w {
		return errors.New(errors.CodeShapeMismatch,
			fmt.Sprintf("compose lengths [%d,%d] do not match width %d", len(s), len(n), w))
	}
	e.composeS = append([]float64(nil), s...)
	e.composeN = append([]float64(nil), n...)
	return nil
}

// ComposeS returns the two-sided self coefficients, nil in one-sided mode.
func (e *TypeConditionedEmbedding) ComposeS() []float64 { return e.composeS }

// ComposeN returns the two-sided pair coefficients, nil in one-sided mode.
func (e *TypeConditionedEmbedding) ComposeN() []float64 { return e.composeN }

// Invalidate drops the cached type-net outputs.  Callers that mutate net
// parameters directly (checkpoint restore) must invalidate before the next
// forward pass.
func (e *TypeConditionedEmbedding) Invalidate() {
	e.cacheMu.Lock()
	e.typeEmb = nil
	e.pairEmb = nil
	e.cacheMu.Unlock()
}

// Compute embeds one atom's neighborhood.  s holds the radial channel,
// shape [nnei, 1]; neiTypes the per-slot neighbor types (sentinel ntypes for
// empty slots); centerType the type of the center atom.  The result has
// shape [nnei, OutWidth()].
func (e *TypeConditionedEmbedding) Compute(s *mat.Dense, neiTypes []int, centerType int) (*mat.Dense, error) {
	nnei, cols := s.Dims()
	if cols != 1 {
		return nil, errors.New(errors.CodeShapeMismatch,
			fmt.Sprintf("radial input must have one column, got %d", cols))
	}
	if len(neiTypes) != nnei {
		return nil, errors.New(errors.CodeShapeMismatch,
			fmt.Sprintf("neighbor type count %d does not match %d slots", len(neiTypes), nnei))
	}
	if centerType < 0 || centerType >= e.ntypes {
		return nil, errors.InvalidInput(
			fmt.Sprintf("center type %d outside [0,%d)", centerType, e.ntypes))
	}
	for k, t := range neiTypes {
		if t < 0 || t > e.ntypes {
			return nil, errors.InvalidInput(
				fmt.Sprintf("neighbor slot %d has type %d outside [0,%d]", k, t, e.ntypes))
		}
	}

	out := e.base.Apply(s)
	w := e.base.OutWidth()

	if e.oneSide {
		typeEmb := e.typeEmbedding()
		for k := 0; k < nnei; k++ {
			for j := 0; j < w; j++ {
				out.Set(k, j, out.At(k, j)+typeEmb.At(neiTypes[k], j))
			}
		}
		return out, nil
	}

	pairEmb := e.pairEmbedding()
	for k := 0; k < nnei; k++ {
		row := neiTypes[k]*e.ntypes + centerType
		for j := 0; j < w; j++ {
			b := out.At(k, j)
			p := pairEmb.At(row, j)
			out.Set(k, j, b*p+e.composeS[j]*b+e.composeN[j]*p)
		}
	}
	return out, nil
}

func (e *TypeConditionedEmbedding) typeEmbedding() *mat.Dense {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if e.typeEmb == nil {
		e.typeEmb = e.typeNet.Apply(e.table)
	}
	return e.typeEmb
}

func (e *TypeConditionedEmbedding) pairEmbedding() *mat.Dense {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if e.pairEmb == nil {
		e.pairEmb = e.buildPairEmb()
	}
	return e.pairEmb
}

// buildPairEmb embeds every (neighbor, center) type combination, flat row
// index neiType*ntypes + centerType; neighbor type ranges over the sentinel
// as well, center type does not.
func (e *TypeConditionedEmbedding) buildPairEmb() *mat.Dense {
	rows := (e.ntypes + 1) * e.ntypes
	in := mat.NewDense(rows, 2*e.typeDim, nil)
	for nt := 0; nt <= e.ntypes; nt++ {
		for ct := 0; ct < e.ntypes; ct++ {
			r := nt*e.ntypes + ct
			for d := 0; d < e.typeDim; d++ {
				in.Set(r, d, e.table.At(nt, d))
				in.Set(r, e.typeDim+d, e.table.At(ct, d))
			}
		}
	}
	return e.pairNet.Apply(in)
}
