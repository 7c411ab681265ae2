// Package config defines all configuration structures for the descriptor
// service.  No I/O or parsing logic lives here — only plain data types and
// validation.
package config

import (
	"fmt"

	"github.com/atomistic/descriptor/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// DescriptorConfig holds every tunable of the attention descriptor.
type DescriptorConfig struct {
	// Kind selects the descriptor flavor: "se_atten" or "se_atten_v2".
	Kind string `mapstructure:"kind"`

	// Rcut is the neighbor cutoff radius; RcutSmth is where the switching
	// function starts decaying from 1.
	Rcut     float64 `mapstructure:"rcut"`
	RcutSmth float64 `mapstructure:"rcut_smth"`

	// Ntypes is the number of chemical types.
	Ntypes int `mapstructure:"ntypes"`

	// Sel is the per-type neighbor selection; the padded neighbor capacity
	// is its sum.  A single entry selects a type-agnostic capacity.
	Sel []int `mapstructure:"sel"`

	// OriginalSel, when set, is the selection of the model the current one
	// was reduced from; the assembly rescales by its sum so descriptor
	// magnitudes stay comparable.
	OriginalSel []int `mapstructure:"original_sel"`

	// Neuron lists the embedding-net hidden widths; AxisNeuron the number
	// of axis channels used in the final contraction.
	Neuron     []int `mapstructure:"neuron"`
	AxisNeuron int   `mapstructure:"axis_neuron"`

	// ResnetDT attaches learned timesteps to residual embedding layers.
	ResnetDT bool `mapstructure:"resnet_dt"`

	// Trainable marks the parameters as trainable; restored checkpoints
	// override initial values either way.
	Trainable bool `mapstructure:"trainable"`

	// Seed drives deterministic parameter initialization.
	Seed int64 `mapstructure:"seed"`

	// TypeOneSide selects one-sided type conditioning (neighbor type only)
	// instead of the two-sided neighbor/center pair conditioning.
	TypeOneSide bool `mapstructure:"type_one_side"`

	// TypeEmbeddingDim is the width of the learned type embedding table.
	TypeEmbeddingDim int `mapstructure:"type_embedding_dim"`

	// ExcludeTypes lists (center, neighbor) type pairs whose interaction is
	// removed from the descriptor input; exclusion is symmetric.
	ExcludeTypes [][]int `mapstructure:"exclude_types"`

	ActivationFunction string `mapstructure:"activation_function"`
	Precision          string `mapstructure:"precision"`

	// Attn is the attention projection width, AttnLayer the number of
	// attention blocks; AttnDotr gates the weights with direction dots and
	// AttnMask zeroes self-attention of a slot onto itself.
	Attn      int  `mapstructure:"attn"`
	AttnLayer int  `mapstructure:"attn_layer"`
	AttnDotr  bool `mapstructure:"attn_dotr"`
	AttnMask  bool `mapstructure:"attn_mask"`

	// Compress requests tabulated inference, which the attention descriptor
	// does not support; enabling it is a fatal configuration error.
	Compress bool `mapstructure:"compress"`
}

// Nnei returns the padded neighbor capacity.
func (c *DescriptorConfig) Nnei() int {
	n := 0
	for _, s := range c.Sel {
		n += s
	}
	return n
}

// ScaleNnei returns the neighbor count used to scale the assembly: the
// original selection sum when configured, the current one otherwise.
func (c *DescriptorConfig) ScaleNnei() int {
	if len(c.OriginalSel) == 0 {
		return c.Nnei()
	}
	n := 0
	for _, s := range c.OriginalSel {
		n += s
	}
	return n
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// MetricsConfig holds metrics exporter settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// CheckpointConfig holds checkpoint restore settings.
type CheckpointConfig struct {
	// Path is the checkpoint file to restore variables from; empty keeps
	// the seeded initialization.
	Path string `mapstructure:"path"`

	// Suffix is the variable-scope suffix appended to every variable name,
	// used when several descriptor instances share one checkpoint.
	Suffix string `mapstructure:"suffix"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration of the service.
type Config struct {
	Descriptor DescriptorConfig `mapstructure:"descriptor"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
}

// knownKinds is the closed set of descriptor flavors.
var knownKinds = map[string]bool{
	"se_atten":    true,
	"se_atten_v2": true,
}

// knownPrecisions gates the precision modes accepted at validation time.
var knownPrecisions = map[string]bool{
	"":        true,
	"default": true,
	"float32": true,
	"float64": true,
}

// knownActivations mirrors the activation table of the descriptor engine.
var knownActivations = map[string]bool{
	"": true, "tanh": true, "relu": true, "relu6": true,
	"softplus": true, "sigmoid": true, "gelu": true,
	"linear": true, "none": true,
}

// Validate performs semantic validation of a fully-populated
// DescriptorConfig.  Unsupported precision, compression combined with
// attention, and a missing type embedding are fatal and must abort startup.
func (c *DescriptorConfig) Validate() error {
	if !knownKinds[c.Kind] {
		return errors.New(errors.CodeUnknownKind,
			fmt.Sprintf("unknown descriptor kind %q", c.Kind))
	}
	if !knownPrecisions[c.Precision] {
		return errors.New(errors.CodeUnsupportedPrecision,
			fmt.Sprintf("precision %q is not supported", c.Precision))
	}
	if !knownActivations[c.ActivationFunction] {
		return errors.New(errors.CodeUnsupportedActivation,
			fmt.Sprintf("activation function %q is not supported", c.ActivationFunction))
	}
	if c.Compress {
		return errors.New(errors.CodeCompressionUnsupported,
			"compressed (tabulated) inference is not supported by the attention descriptor")
	}
	if c.TypeEmbeddingDim <= 0 {
		return errors.New(errors.CodeTypeEmbeddingRequired,
			"attention descriptor requires type_embedding_dim > 0")
	}
	if c.Rcut <= 0 {
		return errors.InvalidInput("rcut must be positive")
	}
	if c.RcutSmth < 0 || c.RcutSmth > c.Rcut {
		return errors.InvalidInput("rcut_smth must lie in [0, rcut]")
	}
	if c.Ntypes <= 0 {
		return errors.InvalidInput("ntypes must be positive")
	}
	if len(c.Sel) == 0 || c.Nnei() <= 0 {
		return errors.InvalidInput("sel must select at least one neighbor slot")
	}
	for _, s := range c.Sel {
		if s < 0 {
			return errors.InvalidInput("sel entries must be non-negative")
		}
	}
	if len(c.Neuron) == 0 {
		return errors.InvalidInput("neuron must list at least one layer width")
	}
	for _, w := range c.Neuron {
		if w <= 0 {
			return errors.InvalidInput("neuron widths must be positive")
		}
	}
	if c.AxisNeuron <= 0 || c.AxisNeuron > c.Neuron[len(c.Neuron)-1] {
		return errors.InvalidInput("axis_neuron must lie in [1, last neuron width]")
	}
	if c.Attn <= 0 {
		return errors.InvalidInput("attn projection width must be positive")
	}
	if c.AttnLayer < 0 {
		return errors.InvalidInput("attn_layer must be non-negative")
	}
	for _, p := range c.ExcludeTypes {
		if len(p) != 2 {
			return errors.New(errors.CodeInvalidExclusion,
				"exclude_types entries must be [center, neighbor] pairs")
		}
		if p[0] < 0 || p[0] >= c.Ntypes || p[1] < 0 || p[1] >= c.Ntypes {
			return errors.New(errors.CodeInvalidExclusion,
				fmt.Sprintf("excluded pair (%d,%d) outside [0,%d)", p[0], p[1], c.Ntypes))
		}
	}
	return nil
}

// Validate performs semantic validation of the root Config.
func (c *Config) Validate() error {
	if err := c.Descriptor.Validate(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return errors.InvalidInput(
			fmt.Sprintf("logging format %q must be json or console", c.Logging.Format))
	}
	return nil
}
