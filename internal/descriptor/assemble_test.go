package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestAssembleAtomSingleNeighbor(t *testing.T) {
	t.Parallel()

	// one slot, feature row (s, sx, sy, sz) = (2, 4, 6, 8), embedding (1, 3)
	feat := []float64{2, 4, 6, 8}
	emb := mat.NewDense(1, 2, []float64{1, 3})

	desc, qmat := assembleAtom(feat, emb, 1, 1)

	// G = feat^T * emb / 1 = [[2,6],[4,12],[6,18],[8,24]]
	// G2 = first column, D = G^T*G2 = [2*2+4*4+6*6+8*8, 6*2+12*4+18*6+24*8]
	require.Len(t, desc, 2)
	assert.InDelta(t, 120.0, desc[0], 1e-12)
	assert.InDelta(t, 360.0, desc[1], 1e-12)

	// qmat is the directional part of G transposed to [W, 3], flattened
	require.Len(t, qmat, 6)
	assert.Equal(t, []float64{4, 6, 8, 12, 18, 24}, qmat)
}

func TestAssembleAtomScaling(t *testing.T) {
	t.Parallel()

	feat := []float64{2, 0, 0, 0}
	emb := mat.NewDense(1, 1, []float64{1})

	// descriptor is quadratic in G, so halving G quarters it
	full, _ := assembleAtom(feat, emb, 1, 1)
	scaled, _ := assembleAtom(feat, emb, 1, 2)
	assert.InDelta(t, full[0]/4, scaled[0], 1e-12)
}

func TestAssembleAtomPaddingContributesNothing(t *testing.T) {
	t.Parallel()

	// a zero feature row wipes the slot's contribution no matter what the
	// embedding carries
	feat := []float64{1, 0.5, 0, 0, 0, 0, 0, 0}
	embA := mat.NewDense(2, 2, []float64{1, 2, 99, -99})
	embB := mat.NewDense(2, 2, []float64{1, 2, 0, 0})

	descA, qmatA := assembleAtom(feat, embA, 2, 2)
	descB, qmatB := assembleAtom(feat, embB, 2, 2)
	assert.Equal(t, descB, descA)
	assert.Equal(t, qmatB, qmatA)
}

func TestUnitDirections(t *testing.T) {
	t.Parallel()

	feat := []float64{0.5, 3, 4, 0, 0, 0, 0, 0}
	dirs := unitDirections(feat, 2)

	assert.InDelta(t, 0.6, dirs.At(0, 0), 1e-12)
	assert.InDelta(t, 0.8, dirs.At(0, 1), 1e-12)
	assert.InDelta(t, 0.0, dirs.At(0, 2), 1e-12)

	// padding slot keeps a zero direction
	for c := 0; c < 3; c++ {
		assert.Equal(t, 0.0, dirs.At(1, c))
	}
}
