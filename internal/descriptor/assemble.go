package descriptor

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// assembleAtom contracts the environment matrix of one atom with its
// attended embedding into the rotation-invariant descriptor.
//
// feat is the standardized (and exclusion-masked) feature row, nnei*4 wide;
// emb the attended embedding [nnei, W].  The pooled matrix G = feat^T*emb is
// scaled by 1/scaleNnei (the configured neighbor capacity, so a reduced
// selection keeps the magnitude of the original one).  The descriptor is
// G^T * G[:, :axisNeuron] flattened row-major, length W*axisNeuron; qmat is
// the directional part of G transposed to [W, 3] and flattened row-major,
// length 3*W.
func assembleAtom(feat []float64, emb *mat.Dense, axisNeuron, scaleNnei int) (desc, qmat []float64) {
	nnei, w := emb.Dims()
	r := mat.NewDense(nnei, 4, feat)

	var g mat.Dense
	g.Mul(r.T(), emb) // [4, W]
	g.Scale(1/float64(scaleNnei), &g)

	g2 := g.Slice(0, 4, 0, axisNeuron) // [4, axisNeuron]

	var d mat.Dense
	d.Mul(g.T(), g2) // [W, axisNeuron]

	desc = make([]float64, w*axisNeuron)
	for i := 0; i < w; i++ {
		for j := 0; j < axisNeuron; j++ {
			desc[i*axisNeuron+j] = d.At(i, j)
		}
	}

	qmat = make([]float64, 3*w)
	for j := 0; j < w; j++ {
		for c := 0; c < 3; c++ {
			qmat[j*3+c] = g.At(c+1, j)
		}
	}
	return desc, qmat
}

// unitDirections extracts the angular channels of a feature row and
// normalizes each slot to a unit direction, shape [nnei, 3].  Padding slots
// stay zero.
func unitDirections(feat []float64, nnei int) *mat.Dense {
	out := mat.NewDense(nnei, 3, nil)
	for k := 0; k < nnei; k++ {
		x, y, z := feat[4*k+1], feat[4*k+2], feat[4*k+3]
		n := x*x + y*y + z*z
		if n == 0 {
			continue
		}
		inv := 1 / math.Sqrt(n)
		out.Set(k, 0, x*inv)
		out.Set(k, 1, y*inv)
		out.Set(k, 2, z*inv)
	}
	return out
}
