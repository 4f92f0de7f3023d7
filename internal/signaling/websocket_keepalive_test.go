package signaling

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/router"
)

const (
	keepaliveIdle = 500 * time.Millisecond
	keepalivePing = 50 * time.Millisecond
)

// dialKeepalive connects alice to a relay with short keepalive timers. The
// returned channels report the first server ping and the result of the
// client's blocking read.
func dialKeepalive(t *testing.T, answerPings bool) (*testRelay, *websocket.Conn, <-chan struct{}, <-chan error) {
	t.Helper()
	relay := newTestRelay(t, router.VariantGroup, func(cfg *Config) {
		cfg.SignalingWSIdleTimeout = keepaliveIdle
		cfg.SignalingWSPingInterval = keepalivePing
	})
	c := relay.dial(t, "/signal/alice")

	pinged := make(chan struct{}, 1)
	c.SetPingHandler(func(data string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		if !answerPings {
			return nil
		}
		return c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	readErr := make(chan error, 1)
	go func() {
		_, _, err := c.ReadMessage()
		readErr <- err
	}()

	select {
	case <-pinged:
	case err := <-readErr:
		t.Fatalf("closed before the first ping: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("no ping from server")
	}
	return relay, c, pinged, readErr
}

func TestKeepalive_SilentPeerIsDropped(t *testing.T) {
	relay, _, _, readErr := dialKeepalive(t, false)

	select {
	case err := <-readErr:
		require.Error(t, err)
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "close error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("idle connection was not closed")
	}

	require.Eventually(t, func() bool {
		return relay.lifecycle.Registry().Size() == 0
	}, 2*time.Second, 10*time.Millisecond, "idle connection still registered")
}

func TestKeepalive_PongExtendsDeadline(t *testing.T) {
	relay, c, _, readErr := dialKeepalive(t, true)

	time.Sleep(keepaliveIdle + 2*keepalivePing)

	select {
	case err := <-readErr:
		t.Fatalf("closed despite pongs: %v", err)
	default:
	}
	assert.Equal(t, 1, relay.lifecycle.Registry().Size())

	_ = c.Close()
	select {
	case <-readErr:
	case <-time.After(2 * time.Second):
		t.Fatalf("read goroutine did not exit")
	}
}
