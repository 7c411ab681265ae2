package errors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atomistic/descriptor/pkg/errors"
)

func TestErrorCode_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "COMMON_001", errors.CodeInternal.String())
	assert.Equal(t, "DESC_001", errors.CodeUnsupportedPrecision.String())
	assert.Equal(t, "STAT_001", errors.CodeStatsFrozen.String())
	assert.Equal(t, "CKPT_001", errors.CodeVariableNotFound.String())
}

func TestErrorCodes_AreUnique(t *testing.T) {
	t.Parallel()

	codes := []errors.ErrorCode{
		errors.ErrCodeInternal,
		errors.ErrCodeInvalidInput,
		errors.ErrCodeNotFound,
		errors.ErrCodeNotImplemented,
		errors.ErrCodeSerialization,
		errors.ErrCodeUnsupportedPrecision,
		errors.ErrCodeCompressionUnsupported,
		errors.ErrCodeTypeEmbeddingRequired,
		errors.ErrCodeShapeMismatch,
		errors.ErrCodeUnsupportedActivation,
		errors.ErrCodeInvalidExclusion,
		errors.ErrCodeUnknownKind,
		errors.ErrCodeStatsFrozen,
		errors.ErrCodeStatsFrameMismatch,
		errors.ErrCodeVariableNotFound,
		errors.ErrCodeCheckpointCodec,
		errors.ErrCodeUnsupportedDType,
	}

	seen := make(map[errors.ErrorCode]bool, len(codes))
	for _, c := range codes {
		assert.Falsef(t, seen[c], "duplicate error code %s", c)
		seen[c] = true
	}
}
