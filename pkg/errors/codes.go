package errors

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes
const (
	ErrCodeInternal       ErrorCode = "COMMON_001"
	ErrCodeInvalidInput   ErrorCode = "COMMON_002"
	ErrCodeNotFound       ErrorCode = "COMMON_003"
	ErrCodeNotImplemented ErrorCode = "COMMON_004"
	ErrCodeSerialization  ErrorCode = "COMMON_005"
)

// Short aliases used throughout the codebase
const (
	CodeInternal       = ErrCodeInternal
	CodeInvalidInput   = ErrCodeInvalidInput
	CodeNotFound       = ErrCodeNotFound
	CodeNotImplemented = ErrCodeNotImplemented
	CodeSerialization  = ErrCodeSerialization

	CodeOK      = ErrorCode("OK")
	CodeUnknown = ErrorCode("UNKNOWN")
)

// Descriptor module error codes
const (
	// ErrCodeUnsupportedPrecision: the configured precision mode is not one of
	// "default", "float32", "float64".
	ErrCodeUnsupportedPrecision ErrorCode = "DESC_001"

	// ErrCodeCompressionUnsupported: model compression was requested together
	// with the attention descriptor, which does not support it.
	ErrCodeCompressionUnsupported ErrorCode = "DESC_002"

	// ErrCodeTypeEmbeddingRequired: the attention descriptor was built without
	// a type-embedding table.
	ErrCodeTypeEmbeddingRequired ErrorCode = "DESC_003"

	// ErrCodeShapeMismatch: a tensor carried a shape incompatible with the
	// descriptor configuration.
	ErrCodeShapeMismatch ErrorCode = "DESC_004"

	// ErrCodeUnsupportedActivation: the configured activation function is not
	// in the supported set.
	ErrCodeUnsupportedActivation ErrorCode = "DESC_005"

	// ErrCodeInvalidExclusion: an exclude_types entry references a type index
	// outside [0, ntypes).
	ErrCodeInvalidExclusion ErrorCode = "DESC_006"

	// ErrCodeUnknownKind: the descriptor kind is not a member of the closed
	// variant set.
	ErrCodeUnknownKind ErrorCode = "DESC_007"
)

// Statistics engine error codes
const (
	// ErrCodeStatsFrozen: Accumulate was called after Finalize.
	ErrCodeStatsFrozen ErrorCode = "STAT_001"

	// ErrCodeStatsFrameMismatch: the per-frame natoms vector disagrees with
	// the environment layout.
	ErrCodeStatsFrameMismatch ErrorCode = "STAT_002"
)

// Checkpoint store error codes
const (
	// ErrCodeVariableNotFound: a parameter path was not present in the store.
	// The error message always carries the full structured name.
	ErrCodeVariableNotFound ErrorCode = "CKPT_001"

	// ErrCodeCheckpointCodec: the checkpoint file is malformed (bad magic,
	// truncated payload, manifest parse failure).
	ErrCodeCheckpointCodec ErrorCode = "CKPT_002"

	// ErrCodeUnsupportedDType: a tensor payload declares a dtype the codec
	// does not understand.
	ErrCodeUnsupportedDType ErrorCode = "CKPT_003"
)

// Descriptor/statistics/checkpoint aliases
const (
	CodeUnsupportedPrecision   = ErrCodeUnsupportedPrecision
	CodeCompressionUnsupported = ErrCodeCompressionUnsupported
	CodeTypeEmbeddingRequired  = ErrCodeTypeEmbeddingRequired
	CodeShapeMismatch          = ErrCodeShapeMismatch
	CodeUnsupportedActivation  = ErrCodeUnsupportedActivation
	CodeInvalidExclusion       = ErrCodeInvalidExclusion
	CodeUnknownKind            = ErrCodeUnknownKind
	CodeStatsFrozen            = ErrCodeStatsFrozen
	CodeStatsFrameMismatch     = ErrCodeStatsFrameMismatch
	CodeVariableNotFound       = ErrCodeVariableNotFound
	CodeCheckpointCodec        = ErrCodeCheckpointCodec
	CodeUnsupportedDType       = ErrCodeUnsupportedDType
)
