package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHmac256(t *testing.T) {
	key := []byte("secret")

	a := Hmac256([]byte("payload"), key)
	b := Hmac256([]byte("payload"), key)
	c := Hmac256([]byte("payload!"), key)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64) // hex encoded sha256

	assert.True(t, HmacEqual(a, b))
	assert.False(t, HmacEqual(a, c))
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(8)
	require.NoError(t, err)
	assert.Len(t, code, 16) // hex of 8 bytes

	other, err := GenerateCode(8)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestCircuitBreaker_PassesThroughResults(t *testing.T) {
	cb := NewCircuitBreaker("test")

	result, err := cb.Execute(context.Background(), func() (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	wantErr := errors.New("boom")
	_, err = cb.Execute(context.Background(), func() (any, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestCircuitBreaker_OpensAfterSustainedFailures(t *testing.T) {
	cb := NewCircuitBreaker("test")
	boom := errors.New("boom")

	// enough failing traffic to cross the request threshold and ratio
	for i := 0; i < 100; i++ {
		cb.Execute(context.Background(), func() (any, error) {
			return nil, boom
		})
	}

	_, err := cb.Execute(context.Background(), func() (any, error) {
		return "should not run", nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
}
