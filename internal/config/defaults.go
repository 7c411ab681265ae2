package config

// ─────────────────────────────────────────────────────────────────────────────
// Defaults
// ─────────────────────────────────────────────────────────────────────────────

// Default descriptor hyperparameters, matching the values the serialized
// models this service restores were trained with.
var (
	DefaultNeuron     = []int{24, 48, 96}
	DefaultAxisNeuron = 8
	DefaultAttn       = 128
	DefaultAttnLayer  = 2
)

// ApplyDefaults fills every unset field of cfg with its default value.  It
// never overwrites an explicitly set value, so it is safe to call after
// unmarshalling a partial file.
func ApplyDefaults(cfg *Config) {
	d := &cfg.Descriptor
	if d.Kind == "" {
		d.Kind = "se_atten"
	}
	if len(d.Neuron) == 0 {
		d.Neuron = append([]int(nil), DefaultNeuron...)
	}
	if d.AxisNeuron == 0 {
		d.AxisNeuron = DefaultAxisNeuron
	}
	if d.Attn == 0 {
		d.Attn = DefaultAttn
	}
	if d.AttnLayer == 0 && d.Kind == "se_atten" {
		d.AttnLayer = DefaultAttnLayer
	}
	if d.ActivationFunction == "" {
		d.ActivationFunction = "tanh"
	}
	if d.Precision == "" {
		d.Precision = "default"
	}
	if d.TypeEmbeddingDim == 0 {
		d.TypeEmbeddingDim = 8
	}
	if d.Seed == 0 {
		d.Seed = 1
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if len(cfg.Logging.OutputPaths) == 0 {
		cfg.Logging.OutputPaths = []string{"stdout"}
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}
