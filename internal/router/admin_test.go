package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/registry"
)

func rawFrames(c *fakeConn) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.received))
	for i, b := range c.received {
		out[i] = string(b)
	}
	return out
}

func TestAdmin_BroadcastTextSkipsSender(t *testing.T) {
	f := newFixture(t, VariantGroup, "A", "B", "C")
	f.conns["C"].sendErr = errors.New("gone")

	n := f.router.BroadcastText(context.Background(), "A", "maintenance at noon")

	assert.Equal(t, 1, n)
	assert.Empty(t, rawFrames(f.conns["A"]))
	assert.Equal(t, []string{"maintenance at noon"}, rawFrames(f.conns["B"]))
}

func TestAdmin_BroadcastTextWithoutSender(t *testing.T) {
	f := newFixture(t, VariantBroadcast, "A", "B")
	assert.Equal(t, 2, f.router.BroadcastText(context.Background(), "", "hi"))
}

func TestAdmin_SendText(t *testing.T) {
	f := newFixture(t, VariantGroup, "A")

	require.NoError(t, f.router.SendText(context.Background(), "A", "hello"))
	assert.Equal(t, []string{"hello"}, rawFrames(f.conns["A"]))

	err := f.router.SendText(context.Background(), "nobody", "hello")
	var delErr *registry.DeliveryError
	require.ErrorAs(t, err, &delErr)
	assert.ErrorIs(t, err, registry.ErrNotConnected)
}

func TestAdmin_Online(t *testing.T) {
	f := newFixture(t, VariantGroup, "B", "A")
	assert.Equal(t, []string{"B", "A"}, f.router.Online())
}
