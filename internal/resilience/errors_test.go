package resilience

import (
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(eris.New("503"), 503), true},
		{"wrapped transient", fmt.Errorf("outer: %w", NewTransientError(eris.New("429"), 429)), true},
		{"plain error", eris.New("validation failed"), false},
		{"connection reset string", eris.New("read tcp: connection reset by peer"), true},
		{"dns string", eris.New("dial tcp: no such host"), true},
		{"io timeout string", eris.New("request: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(NewTransientError(eris.New("too many"), 429)))
	assert.False(t, IsRateLimited(NewTransientError(eris.New("oops"), 500)))
	assert.False(t, IsRateLimited(eris.New("plain")))
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, RetryableStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 422} {
		assert.False(t, RetryableStatus(code), "status %d", code)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := eris.New("inner")
	te := NewTransientError(inner, 500)
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, "inner", te.Error())
}
