package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, ErrorTypeData, "ignored"))
	})

	t.Run("preserves stack of wrapped error", func(t *testing.T) {
		inner := New(ErrorTypeConnection, "dial failed")
		outer := Wrap(inner, ErrorTypeState, "save failed")

		require.NotNil(t, outer)
		assert.Equal(t, inner.Stack, outer.Stack)
		assert.True(t, IsType(outer, ErrorTypeState))
		assert.ErrorIs(t, outer, inner)
	})

	t.Run("standard error cause", func(t *testing.T) {
		err := Wrap(io.EOF, ErrorTypeData, "read body")
		assert.Equal(t, "data: read body: EOF", err.Error())
		assert.ErrorIs(t, err, io.EOF)
		assert.NotEmpty(t, err.Stack)
	})
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		want      ErrorType
		retryable bool
	}{
		{401, ErrorTypeAuthentication, false},
		{403, ErrorTypePermission, false},
		{404, ErrorTypeNotFound, false},
		{408, ErrorTypeTimeout, true},
		{429, ErrorTypeRateLimit, true},
		{500, ErrorTypeConnection, true},
		{503, ErrorTypeConnection, true},
		{504, ErrorTypeTimeout, true},
		{400, ErrorTypeData, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := FromHTTPStatus(tt.status, "http://example.test/x")
			assert.Equal(t, tt.want, err.Type)
			assert.Equal(t, tt.retryable, IsRetryable(err))

			status, ok := err.Detail("status")
			require.True(t, ok)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestIsRetryableWrapped(t *testing.T) {
	err := fmt.Errorf("page 3: %w", New(ErrorTypeRateLimit, "throttled"))
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(io.EOF))
}
