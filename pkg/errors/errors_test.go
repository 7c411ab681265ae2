// Package errors_test provides unit tests for the AppError type, factory
// functions, and error-chain helpers defined in pkg/errors/errors.go.
package errors_test

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomistic/descriptor/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// TestNew
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.CodeInternal, "unexpected failure"},
		{"variable not found", errors.CodeVariableNotFound, "attention_layer_0/c_query/matrix not found"},
		{"invalid input", errors.CodeInvalidInput, "attn width must be positive"},
		{"unsupported precision", errors.CodeUnsupportedPrecision, "precision float16 is not supported"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail, "Detail should be empty for bare New()")
			assert.Nil(t, ae.Cause, "Cause should be nil for bare New()")
		})
	}
}

func TestAppError_ErrorFormat(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.CodeShapeMismatch, "bad tensor shape")
	assert.Equal(t, "[DESC_004] bad tensor shape", ae.Error())

	withDetail := ae.WithDetail("want [3 128], got [128 3]")
	assert.Equal(t, "[DESC_004] bad tensor shape: want [3 128], got [128 3]", withDetail.Error())
	assert.Empty(t, ae.Detail, "WithDetail must not mutate the receiver")
}

// ─────────────────────────────────────────────────────────────────────────────
// TestWrap
// ─────────────────────────────────────────────────────────────────────────────

func TestWrap_NilReturnsNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "ignored"))
}

func TestWrap_PreservesCauseChain(t *testing.T) {
	t.Parallel()

	root := stderrors.New("disk full")
	wrapped := errors.Wrap(root, errors.CodeCheckpointCodec, "failed to write tensor payload")

	require.NotNil(t, wrapped)
	assert.Equal(t, errors.CodeCheckpointCodec, wrapped.Code)
	assert.True(t, stderrors.Is(wrapped, root), "errors.Is must traverse through Wrap")
}

func TestWrap_UnknownCodePreservesOriginal(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.CodeVariableNotFound, "missing gamma")
	outer := errors.Wrap(inner, errors.CodeUnknown, "restore failed")

	require.NotNil(t, outer)
	assert.Equal(t, errors.CodeVariableNotFound, outer.Code,
		"wrapping with CodeUnknown must keep the inner classification")
}

func TestWrap_ErrorsAsExtractsAppError(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.CodeStatsFrozen, "accumulate after finalize")
	outer := fmt.Errorf("stats pass: %w", inner)

	var ae *errors.AppError
	require.True(t, stderrors.As(outer, &ae))
	assert.Equal(t, errors.CodeStatsFrozen, ae.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain inspection helpers
// ─────────────────────────────────────────────────────────────────────────────

func TestIsCode(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("outer: %w",
		errors.Wrap(errors.New(errors.CodeUnsupportedDType, "dtype 99"),
			errors.CodeCheckpointCodec, "read failed"))

	assert.True(t, errors.IsCode(err, errors.CodeCheckpointCodec))
	assert.True(t, errors.IsCode(err, errors.CodeUnsupportedDType))
	assert.False(t, errors.IsCode(err, errors.CodeNotFound))
	assert.False(t, errors.IsCode(nil, errors.CodeInternal))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.IsNotFound(errors.NotFound("no such frame")))
	assert.True(t, errors.IsNotFound(
		errors.New(errors.CodeVariableNotFound, "attention_layer_1/layer_normalization_1/beta not found")))
	assert.False(t, errors.IsNotFound(errors.Internal("boom")))
	assert.False(t, errors.IsNotFound(nil))
	assert.False(t, errors.IsNotFound(stderrors.New("plain error")))
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.CodeInvalidExclusion,
		errors.GetCode(errors.New(errors.CodeInvalidExclusion, "type 9 out of range")))
}

// ─────────────────────────────────────────────────────────────────────────────
// Convenience factories and builders
// ─────────────────────────────────────────────────────────────────────────────

func TestConvenienceFactories(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeInvalidInput, errors.InvalidInput("x").Code)
	assert.Equal(t, errors.CodeNotFound, errors.NotFound("x").Code)
	assert.Equal(t, errors.CodeInternal, errors.Internal("x").Code)
	assert.Equal(t, errors.CodeNotImplemented, errors.NotImplemented("x").Code)
}

func TestWithCause(t *testing.T) {
	t.Parallel()

	root := stderrors.New("root")
	ae := errors.InvalidInput("bad config").WithCause(root)

	require.NotNil(t, ae)
	assert.True(t, stderrors.Is(ae, root))

	var nilErr *errors.AppError
	assert.Nil(t, nilErr.WithCause(root), "nil receiver must stay nil")
	assert.Nil(t, nilErr.WithDetail("x"), "nil receiver must stay nil")
}

func TestStack_MentionsCallSite(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.CodeInternal, "test")
	require.NotNil(t, ae)
	if ae.Stack != "" {
		assert.True(t, strings.Contains(ae.Stack, "errors_test"),
			"stack should reference the calling test file")
	}
}
