package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomistic/descriptor/pkg/errors"
)

func validDescriptorConfig() DescriptorConfig {
	return DescriptorConfig{
		Kind:               "se_atten",
		Rcut:               6.0,
		RcutSmth:           0.5,
		Ntypes:             2,
		Sel:                []int{60, 60},
		Neuron:             []int{24, 48, 96},
		AxisNeuron:         8,
		TypeEmbeddingDim:   8,
		ActivationFunction: "tanh",
		Precision:          "default",
		Attn:               128,
		AttnLayer:          2,
		AttnDotr:           true,
	}
}

func TestDescriptorConfigValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid config passes", func(t *testing.T) {
		t.Parallel()
		cfg := validDescriptorConfig()
		assert.NoError(t, cfg.Validate())
	})

	tests := []struct {
		name     string
		mutate   func(*DescriptorConfig)
		wantCode errors.ErrorCode
	}{
		{
			name:     "unknown kind",
			mutate:   func(c *DescriptorConfig) { c.Kind = "se_a" },
			wantCode: errors.CodeUnknownKind,
		},
		{
			name:     "unsupported precision",
			mutate:   func(c *DescriptorConfig) { c.Precision = "float16" },
			wantCode: errors.CodeUnsupportedPrecision,
		},
		{
			name:     "unsupported activation",
			mutate:   func(c *DescriptorConfig) { c.ActivationFunction = "swish" },
			wantCode: errors.CodeUnsupportedActivation,
		},
		{
			name:     "compression is fatal",
			mutate:   func(c *DescriptorConfig) { c.Compress = true },
			wantCode: errors.CodeCompressionUnsupported,
		},
		{
			name:     "missing type embedding",
			mutate:   func(c *DescriptorConfig) { c.TypeEmbeddingDim = 0 },
			wantCode: errors.CodeTypeEmbeddingRequired,
		},
		{
			name:     "exclusion pair out of range",
			mutate:   func(c *DescriptorConfig) { c.ExcludeTypes = [][]int{{0, 5}} },
			wantCode: errors.CodeInvalidExclusion,
		},
		{
			name:     "malformed exclusion entry",
			mutate:   func(c *DescriptorConfig) { c.ExcludeTypes = [][]int{{0, 1, 2}} },
			wantCode: errors.CodeInvalidExclusion,
		},
		{
			name:     "negative rcut",
			mutate:   func(c *DescriptorConfig) { c.Rcut = -1 },
			wantCode: errors.CodeInvalidInput,
		},
		{
			name:     "rcut_smth beyond rcut",
			mutate:   func(c *DescriptorConfig) { c.RcutSmth = 7.0 },
			wantCode: errors.CodeInvalidInput,
		},
		{
			name:     "empty selection",
			mutate:   func(c *DescriptorConfig) { c.Sel = nil },
			wantCode: errors.CodeInvalidInput,
		},
		{
			name:     "axis neuron beyond embedding width",
			mutate:   func(c *DescriptorConfig) { c.AxisNeuron = 200 },
			wantCode: errors.CodeInvalidInput,
		},
		{
			name:     "negative attention layer count",
			mutate:   func(c *DescriptorConfig) { c.AttnLayer = -1 },
			wantCode: errors.CodeInvalidInput,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validDescriptorConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.wantCode),
				"expected code %s, got %v", tt.wantCode, err)
		})
	}
}

func TestNnei(t *testing.T) {
	t.Parallel()

	cfg := validDescriptorConfig()
	assert.Equal(t, 120, cfg.Nnei())
	assert.Equal(t, 120, cfg.ScaleNnei())

	cfg.OriginalSel = []int{100, 100}
	assert.Equal(t, 200, cfg.ScaleNnei())
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, "se_atten", cfg.Descriptor.Kind)
	assert.Equal(t, DefaultNeuron, cfg.Descriptor.Neuron)
	assert.Equal(t, DefaultAxisNeuron, cfg.Descriptor.AxisNeuron)
	assert.Equal(t, DefaultAttn, cfg.Descriptor.Attn)
	assert.Equal(t, DefaultAttnLayer, cfg.Descriptor.AttnLayer)
	assert.Equal(t, "tanh", cfg.Descriptor.ActivationFunction)
	assert.Equal(t, "default", cfg.Descriptor.Precision)
	assert.Equal(t, int64(1), cfg.Descriptor.Seed)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.Descriptor.Kind = "se_atten_v2"
	cfg.Descriptor.Neuron = []int{10}
	cfg.Descriptor.Seed = 42
	ApplyDefaults(cfg)

	assert.Equal(t, "se_atten_v2", cfg.Descriptor.Kind)
	assert.Equal(t, []int{10}, cfg.Descriptor.Neuron)
	assert.Equal(t, int64(42), cfg.Descriptor.Seed)
	// the v2 flavor keeps an unset attention depth at zero
	assert.Equal(t, 0, cfg.Descriptor.AttnLayer)
}
