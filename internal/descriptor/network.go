package descriptor

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/atomistic/descriptor/pkg/errors"
)

// ---------------------------------------------------------------------------
// Linear layer
// ---------------------------------------------------------------------------

// LinearLayer is one dense layer: y = x*W + b, optionally scaled by a
// learned per-channel timestep before the residual add.
type LinearLayer struct {
	In  int
	Out int
	W   *mat.Dense // [In, Out]
	B   []float64  // [Out]
	Idt []float64  // [Out], nil when the layer carries no timestep
}

// newLinearLayer draws Gaussian weights scaled by the fan sum, the init used
// throughout the network stack.
func newLinearLayer(in, out int, withIdt bool, rng *rand.Rand) *LinearLayer {
	w := mat.NewDense(in, out, nil)
	scale := 1.0 / math.Sqrt(float64(in+out))
	for i := 0; i < in; i++ {
		for j := 0; j < out; j++ {
			w.Set(i, j, rng.NormFloat64()*scale)
		}
	}
	b := make([]float64, out)
	for j := range b {
		b[j] = rng.NormFloat64()
	}
	var idt []float64
	if withIdt {
		idt = make([]float64, out)
		for j := range idt {
			idt[j] = 0.1 + rng.NormFloat64()*0.001
		}
	}
	return &LinearLayer{In: in, Out: out, W: w, B: b, Idt: idt}
}

// Apply computes x*W + b for x with shape [n, In].
func (l *LinearLayer) Apply(x *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	var y mat.Dense
	y.Mul(x, l.W)
	for i := 0; i < n; i++ {
		for j := 0; j < l.Out; j++ {
			y.Set(i, j, y.At(i, j)+l.B[j])
		}
	}
	return &y
}

// SetParams installs restored weights, validating shapes.
func (l *LinearLayer) SetParams(w *mat.Dense, b, idt []float64) error {
	r, c := w.Dims()
	if r != l.In || c != l.Out {
		return errors.New(errors.CodeShapeMismatch,
			fmt.Sprintf("weight shape [%d,%d] does not match layer [%d,%d]", r, c, l.In, l.Out))
	}
	if len(b) != l.Out {
		return errors.New(errors.CodeShapeMismatch,
			fmt.Sprintf("bias length %d does not match layer width %d", len(b), l.Out))
	}
	if idt != nil && len(idt) != l.Out {
		return errors.New(errors.CodeShapeMismatch,
			fmt.Sprintf("timestep length %d does not match layer width %d", len(idt), l.Out))
	}
	l.W = w
	l.B = append([]float64(nil), b...)
	if idt != nil {
		l.Idt = append([]float64(nil), idt...)
	}
	return nil
}

// ---------------------------------------------------------------------------
// EmbeddingNet
// ---------------------------------------------------------------------------

// EmbeddingNet is a stack of dense layers with residual shortcuts.  After
// each hidden activation the input is carried forward when the widths allow
// it: equal widths add the input directly, a doubled width adds the input
// concatenated with itself, anything else drops the shortcut.
type EmbeddingNet struct {
	in     int
	widths []int
	act    Activation
	layers []*LinearLayer
}

// NewEmbeddingNet builds a network mapping [n, in] inputs to
// [n, widths[len(widths)-1]] outputs.  resnetDT attaches a learned timestep
// to every layer that participates in a residual shortcut.
func NewEmbeddingNet(in int, widths []int, act Activation, resnetDT bool, rng *rand.Rand) (*EmbeddingNet, error) {
	if in <= 0 {
		return nil, errors.InvalidInput("embedding net input width must be positive")
	}
	if len(widths) == 0 {
		return nil, errors.InvalidInput("embedding net needs at least one layer")
	}
	net := &EmbeddingNet{in: in, widths: append([]int(nil), widths...), act: act}
	prev := in
	for _, w := range widths {
		if w <= 0 {
			return nil, errors.InvalidInput("embedding net layer width must be positive")
		}
		withIdt := resnetDT && (w == prev || w == 2*prev)
		net.layers = append(net.layers, newLinearLayer(prev, w, withIdt, rng))
		prev = w
	}
	return net, nil
}

// OutWidth returns the width of the final layer.
func (n *EmbeddingNet) OutWidth() int { return n.widths[len(n.widths)-1] }

// Layers exposes the dense layers for checkpoint restore.
func (n *EmbeddingNet) Layers() []*LinearLayer { return n.layers }

// Apply runs the network on x with shape [rows, in].
func (n *EmbeddingNet) Apply(x *mat.Dense) *mat.Dense {
	cur := x
	for _, l := range n.layers {
		rows, prev := cur.Dims()
		hidden := l.Apply(cur)
		for i := 0; i < rows; i++ {
			for j := 0; j < l.Out; j++ {
				h := n.act(hidden.At(i, j))
				if l.Idt != nil {
					h *= l.Idt[j]
				}
				hidden.Set(i, j, h)
			}
		}
		switch {
		case l.Out == prev:
			hidden.Add(hidden, cur)
		case l.Out == 2*prev:
			for i := 0; i < rows; i++ {
				for j := 0; j < prev; j++ {
					v := cur.At(i, j)
					hidden.Set(i, j, hidden.At(i, j)+v)
					hidden.Set(i, j+prev, hidden.At(i, j+prev)+v)
				}
			}
		}
		cur = hidden
	}
	return cur
}
