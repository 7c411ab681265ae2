package descriptor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/atomistic/descriptor/internal/config"
	"github.com/atomistic/descriptor/internal/monitoring/logging"
	"github.com/atomistic/descriptor/internal/monitoring/metrics"
	"github.com/atomistic/descriptor/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ---------------------------------------------------------------------------
// Kind
// ---------------------------------------------------------------------------

// Kind selects the descriptor flavor.
type Kind string

const (
	// KindSeAttention is the full attention descriptor.
	KindSeAttention Kind = "se_atten"

	// KindSeAttentionV2 is the reduced flavor without attention blocks: the
	// embedding feeds the assembly directly.
	KindSeAttentionV2 Kind = "se_atten_v2"
)

// ParseKind resolves a kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSeAttention, KindSeAttentionV2:
		return Kind(s), nil
	default:
		return "", errors.New(errors.CodeUnknownKind,
			fmt.Sprintf("unknown descriptor kind %q", s))
	}
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

// Output holds the per-atom results of one forward pass.
type Output struct {
	Natoms int

	// Descriptor holds the invariant features, [Natoms][DimOut].
	Descriptor [][]float64

	// QMat holds the rotation matrices, [Natoms][3*W], each row a [W, 3]
	// matrix flattened row-major.
	QMat [][]float64

	// Diagnostics carries per-layer attention maps for the first atom; nil
	// unless the pass was run with diagnostics enabled.
	Diagnostics *Diagnostics
}

// ---------------------------------------------------------------------------
// Descriptor
// ---------------------------------------------------------------------------

// Descriptor is the attention descriptor engine.  It owns the parameterized
// components (type-conditioned embedding, attention stack), the neighbor
// environment builder, and the standardization tables, and exposes the
// statistics, forward, and checkpoint-restore operations.
//
// The standardization tables are guarded by a lock so that stats finalize
// and forward passes may run from different goroutines; the network
// parameters themselves are only mutated by Restore, which must not race
// with Forward.
type Descriptor struct {
	cfg  config.DescriptorConfig
	kind Kind

	nnei      int
	width     int
	precision Precision

	builder   EnvironmentBuilder
	exclude   *ExclusionSet
	embedding *TypeConditionedEmbedding
	attention *AttentionStack
	stats     *StatsAccumulator

	mu   sync.RWMutex
	mean [][]float64
	std  [][]float64

	log     logging.Logger
	metrics metrics.DescriptorMetrics
}

// Option customizes descriptor construction.
type Option func(*Descriptor)

// WithLogger attaches a logger; the default is the process-wide logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Descriptor) { d.log = l }
}

// WithMetrics attaches a metrics sink; the default is a no-op sink.
func WithMetrics(m metrics.DescriptorMetrics) Option {
	return func(d *Descriptor) { d.metrics = m }
}

// WithEnvironmentBuilder replaces the neighbor-search implementation.
func WithEnvironmentBuilder(b EnvironmentBuilder) Option {
	return func(d *Descriptor) { d.builder = b }
}

// New constructs a descriptor from a validated configuration.  Parameters
// are initialized deterministically from cfg.Seed; restore from a checkpoint
// afterwards to load trained values.
func New(cfg config.DescriptorConfig, opts ...Option) (*Descriptor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kind, err := ParseKind(cfg.Kind)
	if err != nil {
		return nil, err
	}
	act, err := ParseActivation(cfg.ActivationFunction)
	if err != nil {
		return nil, err
	}
	precision, err := ParsePrecision(cfg.Precision)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		cfg:       cfg,
		kind:      kind,
		nnei:      cfg.Nnei(),
		width:     cfg.Neuron[len(cfg.Neuron)-1],
		precision: precision,
		log:       logging.Default().Named("descriptor"),
		metrics:   metrics.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(d)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	if d.embedding, err = NewTypeConditionedEmbedding(
		cfg.Ntypes, cfg.TypeEmbeddingDim, cfg.Neuron, act,
		cfg.ResnetDT, cfg.TypeOneSide, rng,
	); err != nil {
		return nil, err
	}

	attnLayers := cfg.AttnLayer
	dotr, diagMask := cfg.AttnDotr, cfg.AttnMask
	if kind == KindSeAttentionV2 {
		attnLayers, dotr, diagMask = 0, false, false
	}
	d.attention = NewAttentionStack(attnLayers, d.width, cfg.Attn, dotr, diagMask, rng)

	pairs := make([][2]int, 0, len(cfg.ExcludeTypes))
	for _, p := range cfg.ExcludeTypes {
		pairs = append(pairs, [2]int{p[0], p[1]})
	}
	if d.exclude, err = NewExclusionSet(cfg.Ntypes, pairs); err != nil {
		return nil, err
	}

	if d.builder == nil {
		if d.builder, err = NewReferenceBuilder(cfg.Rcut, cfg.RcutSmth, d.nnei, cfg.Ntypes); err != nil {
			return nil, err
		}
	}
	d.stats = NewStatsAccumulator(cfg.Ntypes, d.nnei)
	return d, nil
}

// ---------------------------------------------------------------------------
// Dimension queries
// ---------------------------------------------------------------------------

// DimOut returns the invariant descriptor width per atom.
func (d *Descriptor) DimOut() int { return d.width * d.cfg.AxisNeuron }

// DimRotMat returns the flattened rotation matrix width per atom (3*W).
func (d *Descriptor) DimRotMat() int { return 3 * d.width }

// DimEmb returns the embedding width W.
func (d *Descriptor) DimEmb() int { return d.width }

// DimTypeEmbedding returns the type embedding width.
func (d *Descriptor) DimTypeEmbedding() int { return d.cfg.TypeEmbeddingDim }

// Ntypes returns the number of chemical types.
func (d *Descriptor) Ntypes() int { return d.cfg.Ntypes }

// Nnei returns the padded neighbor capacity.
func (d *Descriptor) Nnei() int { return d.nnei }

// Ndescrpt returns the per-atom input feature width (Nnei*4).
func (d *Descriptor) Ndescrpt() int { return d.nnei * 4 }

// Rcut returns the cutoff radius.
func (d *Descriptor) Rcut() float64 { return d.cfg.Rcut }

// Kind returns the descriptor flavor.
func (d *Descriptor) Kind() Kind { return d.kind }

// Precision returns the configured precision mode.
func (d *Descriptor) Precision() Precision { return d.precision }

// Trainable reports whether the parameters are marked trainable.  Restored
// checkpoints keep the marker of the configuration they are loaded into.
func (d *Descriptor) Trainable() bool { return d.cfg.Trainable }

// ---------------------------------------------------------------------------
// Statistics
// ---------------------------------------------------------------------------

// ComputeStats runs the statistics pass over training frames and installs
// the resulting standardization tables.  The mean is pinned to zero; only
// the learned scale is kept, so a restored model standardizes identically
// regardless of which frames seeded the statistics.
func (d *Descriptor) ComputeStats(ctx context.Context, frames []*Frame) error {
	return d.computeStats(ctx, frames, nil)
}

// ComputeStatsMixed is ComputeStats for mixed-type batches: realNatoms[i]
// gives the true atom count of frame i, rows beyond it are padding.
func (d *Descriptor) ComputeStatsMixed(ctx context.Context, frames []*Frame, realNatoms []int) error {
	if len(realNatoms) != len(frames) {
		return errors.New(errors.CodeStatsFrameMismatch,
			fmt.Sprintf("%d frames but %d real atom counts", len(frames), len(realNatoms)))
	}
	return d.computeStats(ctx, frames, realNatoms)
}

func (d *Descriptor) computeStats(ctx context.Context, frames []*Frame, realNatoms []int) error {
	if len(frames) == 0 {
		return errors.InvalidInput("statistics pass needs at least one frame")
	}
	start := time.Now()

	// moments pool the unmasked environment; type exclusion only applies to
	// the forward input
	for i, f := range frames {
		env, err := d.builder.Build(ctx, f, nil, nil)
		if err != nil {
			return err
		}
		if realNatoms != nil {
			err = d.stats.AccumulateMixed(env, realNatoms[i])
		} else {
			err = d.stats.Accumulate(env)
		}
		if err != nil {
			return err
		}
	}
	_, std := d.stats.Finalize()

	d.mu.Lock()
	d.mean = ZeroMean(d.cfg.Ntypes, d.nnei)
	d.std = std
	d.mu.Unlock()

	d.metrics.RecordStatsPass(ctx, len(frames), float64(time.Since(start).Microseconds())/1000)
	d.log.Info("statistics pass finalized",
		logging.Int("frames", len(frames)),
		logging.Int("ntypes", d.cfg.Ntypes))
	return nil
}

// SetStandardization installs externally computed standardization tables,
// for instance ones restored alongside a checkpoint.
func (d *Descriptor) SetStandardization(mean, std [][]float64) error {
	if len(mean) != d.cfg.Ntypes || len(std) != d.cfg.Ntypes {
		return errors.New(errors.CodeShapeMismatch,
			fmt.Sprintf("tables must have %d type rows", d.cfg.Ntypes))
	}
	for t := 0; t < d.cfg.Ntypes; t++ {
		if len(mean[t]) != d.nnei*4 || len(std[t]) != d.nnei*4 {
			return errors.New(errors.CodeShapeMismatch,
				fmt.Sprintf("type %d table width must be %d", t, d.nnei*4))
		}
	}
	d.mu.Lock()
	d.mean = mean
	d.std = std
	d.mu.Unlock()
	return nil
}

// Standardization returns the installed tables; nil before any stats pass.
func (d *Descriptor) Standardization() (mean, std [][]float64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mean, d.std
}

// ---------------------------------------------------------------------------
// Forward
// ---------------------------------------------------------------------------

// Forward computes the descriptor of every atom in the frame.
func (d *Descriptor) Forward(ctx context.Context, frame *Frame) (*Output, error) {
	return d.forward(ctx, frame, false)
}

// ForwardWithDiagnostics is Forward with per-layer attention maps recorded
// for the first atom.
func (d *Descriptor) ForwardWithDiagnostics(ctx context.Context, frame *Frame) (*Output, error) {
	return d.forward(ctx, frame, true)
}

// ForwardBatch runs Forward over a batch, keeping per-frame outputs
// separate.  An empty batch yields an empty result rather than an error so
// callers can stream frame groups of any size.
func (d *Descriptor) ForwardBatch(ctx context.Context, frames []*Frame) ([]*Output, error) {
	outs := make([]*Output, 0, len(frames))
	for _, f := range frames {
		out, err := d.Forward(ctx, f)
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	return outs, nil
}

func (d *Descriptor) forward(ctx context.Context, frame *Frame, withDiag bool) (*Output, error) {
	start := time.Now()
	out, err := d.forwardInner(ctx, frame, withDiag)
	durMs := float64(time.Since(start).Microseconds()) / 1000

	natoms := 0
	if frame != nil {
		natoms = frame.Natoms()
	}
	d.metrics.RecordForward(ctx, &metrics.ForwardMetricParams{
		Kind:       string(d.kind),
		Natoms:     natoms,
		DurationMs: durMs,
		Success:    err == nil,
	})
	if err != nil {
		d.log.Error("forward pass failed", logging.Err(err), logging.Int("natoms", natoms))
		return nil, err
	}
	d.log.Debug("forward pass complete",
		logging.Int("natoms", natoms),
		logging.Float64("duration_ms", durMs))
	return out, nil
}

func (d *Descriptor) forwardInner(ctx context.Context, frame *Frame, withDiag bool) (*Output, error) {
	d.mu.RLock()
	mean, std := d.mean, d.std
	d.mu.RUnlock()

	env, err := d.builder.Build(ctx, frame, mean, std)
	if err != nil {
		return nil, err
	}
	d.exclude.Apply(env)

	out := &Output{
		Natoms:     env.Natoms,
		Descriptor: make([][]float64, env.Natoms),
		QMat:       make([][]float64, env.Natoms),
	}
	if withDiag {
		out.Diagnostics = &Diagnostics{}
	}

	for i := 0; i < env.Natoms; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "forward pass canceled")
		}
		feat := env.Features[i]
		scol := make([]float64, d.nnei)
		for k := 0; k < d.nnei; k++ {
			scol[k] = feat[4*k]
		}
		s := mat.NewDense(d.nnei, 1, scol)

		emb, err := d.embedding.Compute(s, env.NeighborTypes[i], env.Types[i])
		if err != nil {
			return nil, err
		}

		var diag *Diagnostics
		if withDiag && i == 0 {
			diag = out.Diagnostics
		}
		att := d.attention.Forward(emb, env.Mask[i], unitDirections(feat, d.nnei), diag)

		out.Descriptor[i], out.QMat[i] = assembleAtom(feat, att, d.cfg.AxisNeuron, d.cfg.ScaleNnei())
	}
	return out, nil
}
