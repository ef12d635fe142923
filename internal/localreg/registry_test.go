package localreg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookupRoundTrip(t *testing.T) {
	r := New()
	h := func(ctx context.Context, isCanceled CancelFunc) (string, error) { return "ok", nil }
	r.Register("greet", h)

	got, ok := r.Lookup("greet")
	require.True(t, ok)
	result, err := got(context.Background(), func() bool { return false })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestLookupUnregisteredNameFails(t *testing.T) {
	r := New()
	_, ok := r.Lookup("ghost")
	assert.False(t, ok)
}

func TestRegisterOverwritesExistingHandler(t *testing.T) {
	r := New()
	r.Register("h", func(ctx context.Context, isCanceled CancelFunc) (string, error) { return "first", nil })
	r.Register("h", func(ctx context.Context, isCanceled CancelFunc) (string, error) { return "second", nil })

	h, ok := r.Lookup("h")
	require.True(t, ok)
	result, _ := h(context.Background(), func() bool { return false })
	assert.Equal(t, "second", result)
}

func TestUnregisterRemovesHandler(t *testing.T) {
	r := New()
	r.Register("h", func(ctx context.Context, isCanceled CancelFunc) (string, error) { return "ok", nil })
	r.Unregister("h")

	_, ok := r.Lookup("h")
	assert.False(t, ok)
}

func TestUnregisterUnknownNameIsNoop(t *testing.T) {
	r := New()
	assert.NotPanics(t, func() { r.Unregister("ghost") })
}

func TestHandlerErrorPropagates(t *testing.T) {
	r := New()
	wantErr := errors.New("boom")
	r.Register("fails", func(ctx context.Context, isCanceled CancelFunc) (string, error) { return "", wantErr })

	h, ok := r.Lookup("fails")
	require.True(t, ok)
	_, err := h(context.Background(), func() bool { return false })
	assert.ErrorIs(t, err, wantErr)
}
