package descriptor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/atomistic/descriptor/pkg/errors"
)

func newTestEmbedding(t *testing.T, oneSide bool) *TypeConditionedEmbedding {
	t.Helper()
	act, _ := ParseActivation("tanh")
	e, err := NewTypeConditionedEmbedding(2, 4, []int{6, 12}, act, false, oneSide, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	return e
}

func TestEmbeddingConstruction(t *testing.T) {
	t.Parallel()

	act, _ := ParseActivation("tanh")
	rng := rand.New(rand.NewSource(1))

	_, err := NewTypeConditionedEmbedding(0, 4, []int{6}, act, false, true, rng)
	assert.Error(t, err)

	_, err = NewTypeConditionedEmbedding(2, 0, []int{6}, act, false, true, rng)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeTypeEmbeddingRequired))

	one := newTestEmbedding(t, true)
	assert.True(t, one.OneSide())
	assert.NotNil(t, one.TypeNet())
	assert.Nil(t, one.PairNet())
	assert.Nil(t, one.ComposeS())

	two := newTestEmbedding(t, false)
	assert.False(t, two.OneSide())
	assert.Nil(t, two.TypeNet())
	assert.NotNil(t, two.PairNet())
	assert.Len(t, two.ComposeS(), 12)
}

func TestEmbeddingSentinelRowIsZero(t *testing.T) {
	t.Parallel()

	e := newTestEmbedding(t, true)
	table := e.Table()
	r, c := table.Dims()
	assert.Equal(t, 3, r) // ntypes + 1
	assert.Equal(t, 4, c)
	for d := 0; d < c; d++ {
		assert.Equal(t, 0.0, table.At(2, d))
	}
}

func TestEmbeddingComputeShapes(t *testing.T) {
	t.Parallel()

	for _, oneSide := range []bool{true, false} {
		e := newTestEmbedding(t, oneSide)
		s := mat.NewDense(3, 1, []float64{0.5, 0.2, 0})
		out, err := e.Compute(s, []int{0, 1, 2}, 0)
		require.NoError(t, err)
		r, c := out.Dims()
		assert.Equal(t, 3, r)
		assert.Equal(t, 12, c)
	}
}

func TestEmbeddingOneSideAddsTypeRow(t *testing.T) {
	t.Parallel()

	e := newTestEmbedding(t, true)
	s := mat.NewDense(2, 1, []float64{0.5, 0.5})

	// identical radial inputs with different neighbor types must differ by
	// exactly the difference of the type-net rows
	out, err := e.Compute(s, []int{0, 1}, 0)
	require.NoError(t, err)

	typeEmb := e.TypeNet().Apply(e.Table())
	for j := 0; j < 12; j++ {
		wantDiff := typeEmb.At(0, j) - typeEmb.At(1, j)
		assert.InDelta(t, wantDiff, out.At(0, j)-out.At(1, j), 1e-12)
	}
}

func TestEmbeddingTwoSideDependsOnCenter(t *testing.T) {
	t.Parallel()

	e := newTestEmbedding(t, false)
	s := mat.NewDense(1, 1, []float64{0.5})

	a, err := e.Compute(s, []int{1}, 0)
	require.NoError(t, err)
	b, err := e.Compute(s, []int{1}, 1)
	require.NoError(t, err)

	// the pair conditioning makes the same neighbor look different from
	// different centers
	diff := 0.0
	for j := 0; j < 12; j++ {
		diff += (a.At(0, j) - b.At(0, j)) * (a.At(0, j) - b.At(0, j))
	}
	assert.Greater(t, diff, 0.0)
}

func TestEmbeddingTwoSideComposeZero(t *testing.T) {
	t.Parallel()

	e := newTestEmbedding(t, false)
	require.NoError(t, e.SetCompose(make([]float64, 12), make([]float64, 12)))

	s := mat.NewDense(1, 1, []float64{0.3})
	out, err := e.Compute(s, []int{0}, 1)
	require.NoError(t, err)

	// with zero compose coefficients the output is exactly base*pair
	base := e.BaseNet().Apply(mat.NewDense(1, 1, []float64{0.3}))
	pair := e.buildPairEmb()
	row := 0*2 + 1
	for j := 0; j < 12; j++ {
		assert.InDelta(t, base.At(0, j)*pair.At(row, j), out.At(0, j), 1e-12)
	}
}

func TestEmbeddingComputeValidation(t *testing.T) {
	t.Parallel()

	e := newTestEmbedding(t, true)
	s := mat.NewDense(2, 1, nil)

	_, err := e.Compute(mat.NewDense(2, 2, nil), []int{0, 0}, 0)
	assert.Error(t, err)
	_, err = e.Compute(s, []int{0}, 0)
	assert.Error(t, err)
	_, err = e.Compute(s, []int{0, 0}, 5)
	assert.Error(t, err)
	_, err = e.Compute(s, []int{0, 9}, 0)
	assert.Error(t, err)
}

func TestEmbeddingSetTableInvalidates(t *testing.T) {
	t.Parallel()

	e := newTestEmbedding(t, true)
	s := mat.NewDense(1, 1, []float64{0.5})

	before, err := e.Compute(s, []int{0}, 0)
	require.NoError(t, err)

	table := mat.NewDense(3, 4, nil)
	table.Set(0, 0, 2.5)
	require.NoError(t, e.SetTable(table))

	after, err := e.Compute(s, []int{0}, 0)
	require.NoError(t, err)
	assert.False(t, mat.EqualApprox(before, after, 1e-9))

	// shape mismatch rejected
	err = e.SetTable(mat.NewDense(2, 4, nil))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeShapeMismatch))
}
