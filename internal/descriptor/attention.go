package descriptor

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// maskPenalty is the additive bias pushed onto attention scores of empty
// neighbor slots before the softmax.  The magnitude matches the serialized
// models this package restores, so kept scores reproduce bit-compatible
// weights.
const maskPenalty = -float64(2 << 32)

// layerNormEpsilon matches the layer-normalization epsilon of the
// serialized models.
const layerNormEpsilon = 1e-3

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

// LayerDiagnostics captures the attention maps of one layer for the first
// atom of a frame.
type LayerDiagnostics struct {
	// AttnWeight is the masked softmax output, [nnei][nnei].
	AttnWeight [][]float64
	// AngularWeight is the pairwise direction-dot gate, nil unless gating is
	// enabled.
	AngularWeight [][]float64
	// FinalWeight is the weight matrix actually applied to the values.  It is
	// recorded in every mode, so without gating or diagonal masking it equals
	// AttnWeight.
	FinalWeight [][]float64
}

// Diagnostics collects per-layer attention maps for the first atom.
type Diagnostics struct {
	Layers []LayerDiagnostics
}

// ---------------------------------------------------------------------------
// AttentionLayer
// ---------------------------------------------------------------------------

// AttentionLayer is one self-attention block over the neighbor axis with a
// residual connection and layer normalization.
type AttentionLayer struct {
	dim  int
	attN int

	query *LinearLayer // dim -> attN
	key   *LinearLayer // dim -> attN
	value *LinearLayer // dim -> attN
	out   *LinearLayer // attN -> dim

	gamma []float64 // [dim]
	beta  []float64 // [dim]
}

func newAttentionLayer(dim, attN int, rng *rand.Rand) *AttentionLayer {
	l := &AttentionLayer{
		dim:   dim,
		attN:  attN,
		query: newLinearLayer(dim, attN, false, rng),
		key:   newLinearLayer(dim, attN, false, rng),
		value: newLinearLayer(dim, attN, false, rng),
		out:   newLinearLayer(attN, dim, false, rng),
		gamma: make([]float64, dim),
		beta:  make([]float64, dim),
	}
	for j := range l.gamma {
		l.gamma[j] = 1
	}
	return l
}

// Query exposes the query projection for checkpoint restore.
func (l *AttentionLayer) Query() *LinearLayer { return l.query }

// Key exposes the key projection for checkpoint restore.
func (l *AttentionLayer) Key() *LinearLayer { return l.key }

// Value exposes the value projection for checkpoint restore.
func (l *AttentionLayer) Value() *LinearLayer { return l.value }

// OutProj exposes the output projection for checkpoint restore.
func (l *AttentionLayer) OutProj() *LinearLayer { return l.out }

// SetNorm installs restored layer-normalization parameters.
func (l *AttentionLayer) SetNorm(gamma, beta []float64) {
	l.gamma = append([]float64(nil), gamma...)
	l.beta = append([]float64(nil), beta...)
}

// forward runs the block on x [nnei, dim].  mask flags valid slots, inputR
// holds unit neighbor directions [nnei, 3].  When diag is non-nil the
// attention maps are recorded into it.
func (l *AttentionLayer) forward(x *mat.Dense, mask []float64, inputR *mat.Dense, dotr, diagMask bool, diag *LayerDiagnostics) *mat.Dense {
	nnei, _ := x.Dims()

	q := l2NormalizeRows(l.query.Apply(x))
	k := l2NormalizeRows(l.key.Apply(x))
	v := l2NormalizeRows(l.value.Apply(x))

	var attn mat.Dense
	attn.Mul(q, k.T())

	// Empty slots are first damped multiplicatively, then pushed to an
	// effective -inf so the softmax assigns them zero weight.
	for i := 0; i < nnei; i++ {
		for j := 0; j < nnei; j++ {
			s := attn.At(i, j) * mask[j]
			attn.Set(i, j, s+maskPenalty*(1-mask[j]))
		}
	}
	softmaxRows(&attn)
	for i := 0; i < nnei; i++ {
		if mask[i] == 0 {
			for j := 0; j < nnei; j++ {
				attn.Set(i, j, 0)
			}
		}
	}
	if diag != nil {
		diag.AttnWeight = denseToSlices(&attn)
	}

	if dotr {
		var gate mat.Dense
		gate.Mul(inputR, inputR.T())
		attn.MulElem(&attn, &gate)
		if diag != nil {
			diag.AngularWeight = denseToSlices(&gate)
		}
	}
	if diagMask {
		for i := 0; i < nnei; i++ {
			attn.Set(i, i, 0)
		}
	}
	if diag != nil {
		diag.FinalWeight = denseToSlices(&attn)
	}

	var ctx mat.Dense
	ctx.Mul(&attn, v)
	o := l.out.Apply(&ctx)
	o.Add(o, x)
	return l.layerNorm(o)
}

// layerNorm normalizes every row over the channel axis.
func (l *AttentionLayer) layerNorm(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		mean := 0.0
		for j := 0; j < cols; j++ {
			mean += x.At(i, j)
		}
		mean /= float64(cols)
		variance := 0.0
		for j := 0; j < cols; j++ {
			d := x.At(i, j) - mean
			variance += d * d
		}
		variance /= float64(cols)
		inv := 1 / math.Sqrt(variance+layerNormEpsilon)
		for j := 0; j < cols; j++ {
			out.Set(i, j, l.gamma[j]*(x.At(i, j)-mean)*inv+l.beta[j])
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// AttentionStack
// ---------------------------------------------------------------------------

// AttentionStack chains attention layers over the neighbor axis.  A stack of
// zero layers is the identity.
type AttentionStack struct {
	layers   []*AttentionLayer
	dotr     bool
	diagMask bool
}

// NewAttentionStack builds nlayers attention blocks of width dim with
// projection width attN.  dotr enables direction-dot gating of the softmax
// weights; diagMask zeroes self-attention of each slot onto itself.
func NewAttentionStack(nlayers, dim, attN int, dotr, diagMask bool, rng *rand.Rand) *AttentionStack {
	s := &AttentionStack{dotr: dotr, diagMask: diagMask}
	for i := 0; i < nlayers; i++ {
		s.layers = append(s.layers, newAttentionLayer(dim, attN, rng))
	}
	return s
}

// Len returns the number of layers.
func (s *AttentionStack) Len() int { return len(s.layers) }

// Layers exposes the blocks for checkpoint restore.
func (s *AttentionStack) Layers() []*AttentionLayer { return s.layers }

// Forward runs the stack on x [nnei, dim].  When diag is non-nil, per-layer
// attention maps are appended to it.
func (s *AttentionStack) Forward(x *mat.Dense, mask []float64, inputR *mat.Dense, diag *Diagnostics) *mat.Dense {
	cur := x
	for _, l := range s.layers {
		var ld *LayerDiagnostics
		if diag != nil {
			diag.Layers = append(diag.Layers, LayerDiagnostics{})
			ld = &diag.Layers[len(diag.Layers)-1]
		}
		cur = l.forward(cur, mask, inputR, s.dotr, s.diagMask, ld)
	}
	return cur
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// l2NormalizeRows scales every row to unit Euclidean norm; all-zero rows are
// left untouched.
func l2NormalizeRows(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	for i := 0; i < rows; i++ {
		norm := 0.0
		for j := 0; j < cols; j++ {
			v := x.At(i, j)
			norm += v * v
		}
		if norm == 0 {
			continue
		}
		inv := 1 / math.Sqrt(norm)
		for j := 0; j < cols; j++ {
			x.Set(i, j, x.At(i, j)*inv)
		}
	}
	return x
}

// softmaxRows applies a numerically stable softmax to every row in place.
func softmaxRows(x *mat.Dense) {
	rows, cols := x.Dims()
	for i := 0; i < rows; i++ {
		max := math.Inf(-1)
		for j := 0; j < cols; j++ {
			if v := x.At(i, j); v > max {
				max = v
			}
		}
		sum := 0.0
		for j := 0; j < cols; j++ {
			e := math.Exp(x.At(i, j) - max)
			x.Set(i, j, e)
			sum += e
		}
		for j := 0; j < cols; j++ {
			x.Set(i, j, x.At(i, j)/sum)
		}
	}
}

func denseToSlices(x *mat.Dense) [][]float64 {
	rows, cols := x.Dims()
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			out[i][j] = x.At(i, j)
		}
	}
	return out
}
