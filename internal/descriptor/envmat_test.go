package descriptor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmoothWeight(t *testing.T) {
	t.Parallel()

	const rmin, rmax = 2.0, 6.0

	assert.Equal(t, 1.0, smoothWeight(0.5, rmin, rmax))
	assert.Equal(t, 1.0, smoothWeight(1.999, rmin, rmax))
	assert.Equal(t, 0.0, smoothWeight(6.0, rmin, rmax))
	assert.Equal(t, 0.0, smoothWeight(10, rmin, rmax))

	// continuity at both edges
	assert.InDelta(t, 1.0, smoothWeight(rmin+1e-9, rmin, rmax), 1e-6)
	assert.InDelta(t, 0.0, smoothWeight(rmax-1e-9, rmin, rmax), 1e-6)

	// midpoint uu=0.5: 0.125*(-1.5+7.5-10)+1 = 0.5
	assert.InDelta(t, 0.5, smoothWeight(4.0, rmin, rmax), 1e-12)

	// monotonically decreasing across the switching window
	prev := 1.0
	for r := rmin; r < rmax; r += 0.1 {
		w := smoothWeight(r, rmin, rmax)
		assert.LessOrEqual(t, w, prev)
		prev = w
	}
}

func TestReferenceBuilderValidation(t *testing.T) {
	t.Parallel()

	_, err := NewReferenceBuilder(-1, 0, 4, 2)
	assert.Error(t, err)
	_, err = NewReferenceBuilder(6, 7, 4, 2)
	assert.Error(t, err)
	_, err = NewReferenceBuilder(6, 0.5, 0, 2)
	assert.Error(t, err)
	_, err = NewReferenceBuilder(6, 0.5, 4, 0)
	assert.Error(t, err)
}

// two atoms 1.5 apart, capacity 4: one real neighbor each, three padded slots
func TestBuildTwoAtoms(t *testing.T) {
	t.Parallel()

	b, err := NewReferenceBuilder(6.0, 2.0, 4, 2)
	require.NoError(t, err)

	frame := &Frame{
		Coords: []float64{0, 0, 0, 1.5, 0, 0},
		Types:  []int{0, 1},
	}
	env, err := b.Build(context.Background(), frame, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, env.Natoms)
	assert.Equal(t, 4, env.Nnei)
	assert.Equal(t, 16, env.Ndescrpt())

	// atom 0 sees atom 1 in slot 0
	assert.Equal(t, 1, env.NeighborList[0][0])
	assert.Equal(t, 1, env.NeighborTypes[0][0])
	assert.Equal(t, 1.0, env.Mask[0][0])
	assert.Equal(t, 1, env.RealNeighbors(0))

	// r=1.5 < rcut_smth so s = 1/r
	s := 1.0 / 1.5
	assert.InDelta(t, s, env.Raw[0][0], 1e-12)
	assert.InDelta(t, s*1.5/1.5, env.Raw[0][1], 1e-12) // s*dx/r
	assert.InDelta(t, 0, env.Raw[0][2], 1e-12)
	assert.InDelta(t, 0, env.Raw[0][3], 1e-12)

	// atom 1 sees atom 0 with the opposite direction
	assert.InDelta(t, -s, env.Raw[1][1], 1e-12)

	// padding slots: zero features, mask 0, sentinel type, index -1
	for k := 1; k < 4; k++ {
		assert.Equal(t, 0.0, env.Mask[0][k])
		assert.Equal(t, -1, env.NeighborList[0][k])
		assert.Equal(t, 2, env.NeighborTypes[0][k])
		for c := 0; c < 4; c++ {
			assert.Equal(t, 0.0, env.Raw[0][4*k+c])
		}
	}
}

func TestBuildSortsByDistance(t *testing.T) {
	t.Parallel()

	b, err := NewReferenceBuilder(6.0, 2.0, 4, 1)
	require.NoError(t, err)

	frame := &Frame{
		Coords: []float64{0, 0, 0, 3, 0, 0, 1, 0, 0, 2, 0, 0},
		Types:  []int{0, 0, 0, 0},
	}
	env, err := b.Build(context.Background(), frame, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3, 1, -1}, env.NeighborList[0])
}

func TestBuildCapacityOverflowKeepsClosest(t *testing.T) {
	t.Parallel()

	b, err := NewReferenceBuilder(6.0, 2.0, 2, 1)
	require.NoError(t, err)

	frame := &Frame{
		Coords: []float64{0, 0, 0, 3, 0, 0, 1, 0, 0, 2, 0, 0},
		Types:  []int{0, 0, 0, 0},
	}
	env, err := b.Build(context.Background(), frame, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3}, env.NeighborList[0])
}

func TestBuildPeriodicImage(t *testing.T) {
	t.Parallel()

	b, err := NewReferenceBuilder(3.0, 1.0, 2, 1)
	require.NoError(t, err)

	// one atom in a 5x5x5 cube: its nearest images are 5 apart, outside the
	// cutoff, so no neighbors at all
	frame := &Frame{
		Coords: []float64{0, 0, 0},
		Types:  []int{0},
		Box:    []float64{5, 0, 0, 0, 5, 0, 0, 0, 5},
	}
	env, err := b.Build(context.Background(), frame, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, env.RealNeighbors(0))

	// two atoms 4.5 apart wrap to 0.5 across the boundary
	frame = &Frame{
		Coords: []float64{0.25, 0, 0, 4.75, 0, 0},
		Types:  []int{0, 0},
		Box:    []float64{5, 0, 0, 0, 5, 0, 0, 0, 5},
	}
	env, err = b.Build(context.Background(), frame, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, env.RealNeighbors(0))
	assert.InDelta(t, -0.5, env.RelCoords[0][0], 1e-12)
}

func TestBuildStandardization(t *testing.T) {
	t.Parallel()

	b, err := NewReferenceBuilder(6.0, 2.0, 2, 1)
	require.NoError(t, err)

	frame := &Frame{Coords: []float64{0, 0, 0, 1, 0, 0}, Types: []int{0, 0}}

	mean := [][]float64{make([]float64, 8)}
	std := [][]float64{{2, 4, 4, 4, 2, 4, 4, 4}}
	mean[0][0] = 0.5

	env, err := b.Build(context.Background(), frame, mean, std)
	require.NoError(t, err)

	assert.InDelta(t, (env.Raw[0][0]-0.5)/2, env.Features[0][0], 1e-12)
	assert.InDelta(t, env.Raw[0][1]/4, env.Features[0][1], 1e-12)

	// padding slots keep a zero mean, so they stay exactly zero
	assert.Equal(t, 0.0, env.Features[0][4])
}

func TestBuildRejectsBadTypes(t *testing.T) {
	t.Parallel()

	b, err := NewReferenceBuilder(6.0, 2.0, 2, 1)
	require.NoError(t, err)

	frame := &Frame{Coords: []float64{0, 0, 0}, Types: []int{3}}
	_, err = b.Build(context.Background(), frame, nil, nil)
	assert.Error(t, err)

	_, err = b.Build(context.Background(), &Frame{}, nil, nil)
	assert.Error(t, err)
}
