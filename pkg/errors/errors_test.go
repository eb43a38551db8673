package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeOfWrapped(t *testing.T) {
	base := Transient(503, "upstream unavailable")
	wrapped := fmt.Errorf("fetch page: %w", base)

	assert.Equal(t, ErrorTypeTransient, TypeOf(wrapped))
	assert.True(t, Is(wrapped, ErrorTypeTransient))
	assert.False(t, Is(wrapped, ErrorTypeMalformed))
	assert.Equal(t, ErrorType(""), TypeOf(fmt.Errorf("plain")))
}

func TestIsUsesOutermostTypedError(t *testing.T) {
	cause := Malformed(fmt.Errorf("unexpected EOF"), "decode listing")
	err := fmt.Errorf("page 3: %w", Wrap(ErrorTypeFatal, cause, "max retry attempts (4) exceeded"))

	assert.Equal(t, ErrorTypeFatal, TypeOf(err))
	assert.True(t, Is(err, ErrorTypeFatal))
	assert.False(t, Is(err, ErrorTypeMalformed))
	assert.ErrorIs(t, err, cause)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "transient error (code 429): rate limited", Transient(429, "rate limited").Error())
	assert.Equal(t, "configuration error: bad range", Configuration("bad range").Error())

	cause := fmt.Errorf("unexpected EOF")
	err := Malformed(cause, "decode listing")
	assert.Equal(t, "malformed error: decode listing: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrorTypeTransient))
	for _, typ := range []ErrorType{ErrorTypeMalformed, ErrorTypeSerialization, ErrorTypeConfiguration, ErrorTypeAuth, ErrorTypeFatal} {
		assert.False(t, IsRetryable(typ), typ)
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{0, true},
		{408, true},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{401, false},
		{403, false},
		{404, false},
		{400, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableStatusCode(tt.code), "status %d", tt.code)
	}
}
