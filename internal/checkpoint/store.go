// Package checkpoint provides a flat variable store for model parameters and
// a binary file codec for persisting it.  Variables are addressed by
// slash-separated scope paths such as
// "attention_layer_0/c_query/matrix"; an optional scope suffix lets several
// model instances share one file.
package checkpoint

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/atomistic/descriptor/pkg/errors"
)

// DType identifies the on-disk element type of a tensor payload.  The store
// itself always holds float64; the dtype only controls serialization width.
type DType string

const (
	Float16  DType = "float16"
	BFloat16 DType = "bfloat16"
	Float32  DType = "float32"
	Float64  DType = "float64"
)

// elemSize returns the payload bytes per element.
func (d DType) elemSize() (int, error) {
	switch d {
	case Float16, BFloat16:
		return 2, nil
	case Float32:
		return 4, nil
	case Float64:
		return 8, nil
	default:
		return 0, errors.New(errors.CodeUnsupportedDType,
			fmt.Sprintf("unsupported tensor dtype %q", string(d)))
	}
}

// Tensor is one named variable: a dense row-major value buffer plus shape.
type Tensor struct {
	DType DType     `json:"dtype"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"-"`
}

// Len returns the element count implied by the shape.
func (t *Tensor) Len() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t *Tensor) validate() error {
	if _, err := t.DType.elemSize(); err != nil {
		return err
	}
	for _, d := range t.Shape {
		if d <= 0 {
			return errors.New(errors.CodeShapeMismatch,
				fmt.Sprintf("tensor shape %v has a non-positive dimension", t.Shape))
		}
	}
	if len(t.Data) != t.Len() {
		return errors.New(errors.CodeShapeMismatch,
			fmt.Sprintf("tensor has %d values but shape %v implies %d", len(t.Data), t.Shape, t.Len()))
	}
	return nil
}

// Store is an ordered name-to-tensor map.  Insertion order is preserved so
// serialized files are byte-stable for a given population sequence.
type Store struct {
	names   []string
	tensors map[string]*Tensor
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{tensors: make(map[string]*Tensor)}
}

// Len returns the number of stored tensors.
func (s *Store) Len() int { return len(s.names) }

// Names returns the variable names in insertion order.
func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

// Has reports whether name is present.
func (s *Store) Has(name string) bool {
	_, ok := s.tensors[name]
	return ok
}

// Put inserts or replaces a tensor under name.
func (s *Store) Put(name string, t *Tensor) error {
	if name == "" {
		return errors.InvalidInput("tensor name must not be empty")
	}
	if err := t.validate(); err != nil {
		return err
	}
	if _, ok := s.tensors[name]; !ok {
		s.names = append(s.names, name)
	}
	s.tensors[name] = t
	return nil
}

// PutMatrix stores a gonum matrix as a 2-D tensor.
func (s *Store) PutMatrix(name string, m *mat.Dense, dtype DType) error {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data = append(data, m.At(i, j))
		}
	}
	return s.Put(name, &Tensor{DType: dtype, Shape: []int{r, c}, Data: data})
}

// PutVector stores a float slice as a 1-D tensor.
func (s *Store) PutVector(name string, v []float64, dtype DType) error {
	return s.Put(name, &Tensor{
		DType: dtype,
		Shape: []int{len(v)},
		Data:  append([]float64(nil), v...),
	})
}

// Lookup returns the tensor stored under name.  A missing variable yields a
// variable-not-found error carrying the full path.
func (s *Store) Lookup(name string) (*Tensor, error) {
	t, ok := s.tensors[name]
	if !ok {
		return nil, errors.New(errors.CodeVariableNotFound,
			fmt.Sprintf("variable %q not found in checkpoint", name))
	}
	return t, nil
}

// Matrix fetches a 2-D tensor as a gonum matrix.
func (s *Store) Matrix(name string) (*mat.Dense, error) {
	t, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}
	if len(t.Shape) != 2 {
		return nil, errors.New(errors.CodeShapeMismatch,
			fmt.Sprintf("variable %q has shape %v, expected a matrix", name, t.Shape))
	}
	return mat.NewDense(t.Shape[0], t.Shape[1], append([]float64(nil), t.Data...)), nil
}

// Vector fetches a 1-D tensor as a float slice.
func (s *Store) Vector(name string) ([]float64, error) {
	t, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}
	if len(t.Shape) != 1 {
		return nil, errors.New(errors.CodeShapeMismatch,
			fmt.Sprintf("variable %q has shape %v, expected a vector", name, t.Shape))
	}
	return append([]float64(nil), t.Data...), nil
}
