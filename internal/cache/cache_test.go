package cache

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestPresenceCounting(t *testing.T) {
	p := New(nil, log.New(io.Discard))
	ctx := context.Background()

	assert.Zero(t, p.Online())
	p.UserOnline(ctx, 1)
	p.UserOnline(ctx, 2)
	assert.Equal(t, 2, p.Online())

	p.UserOffline(ctx, 1)
	assert.Equal(t, 1, p.Online())
}

func TestPresenceNeverGoesNegative(t *testing.T) {
	p := New(nil, log.New(io.Discard))
	ctx := context.Background()

	p.UserOffline(ctx, 1)
	p.UserOffline(ctx, 2)
	assert.Zero(t, p.Online())
}

func TestNilClientIsSafe(t *testing.T) {
	p := New(nil, log.New(io.Discard))
	ctx := context.Background()

	// None of these may panic without a Redis client.
	p.StoreSession(ctx, 1, "token")
	p.DropSession(ctx, 1)
	p.Emit(ctx, "test", map[string]any{"k": "v"})
}
