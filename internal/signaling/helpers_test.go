package signaling

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/lifecycle"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/membership"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/message"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/registry"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/router"
)

type testRelay struct {
	srv       *Server
	lifecycle *lifecycle.Manager
	members   *membership.Memory
	ts        *httptest.Server
}

func newTestRelay(t *testing.T, variant router.Variant, mutate func(*Config)) *testRelay {
	t.Helper()

	reg := registry.New()
	lc := lifecycle.New(lifecycle.Config{Registry: reg})
	members := membership.NewMemory()
	rt, err := router.New(router.Config{
		Registry:   reg,
		Membership: members,
		Online:     lc,
		Variant:    variant,
	})
	require.NoError(t, err)

	cfg := Config{
		Lifecycle: lc,
		Router:    rt,
		Users:     members,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := NewServer(cfg)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &testRelay{srv: srv, lifecycle: lc, members: members, ts: ts}
}

func (r *testRelay) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(r.ts.URL, "http") + path
}

func (r *testRelay) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(r.wsURL(path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sendMsg(t *testing.T, c *websocket.Conn, msg message.Message) {
	t.Helper()
	raw, err := message.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, raw))
}

func readMsg(t *testing.T, c *websocket.Conn) message.Message {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, raw, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)
	msg, err := message.Decode(raw)
	require.NoError(t, err, "frame %s", raw)
	return msg
}

// join connects identity and waits until its create_join_group is confirmed,
// which also proves the connection is registered.
func (r *testRelay) join(t *testing.T, identity, group string) *websocket.Conn {
	t.Helper()
	c := r.dial(t, "/signal/"+identity)
	sendMsg(t, c, message.Message{ID: "join-" + identity, Type: message.TypeCreateJoinGroup, GroupID: group})
	reply := readMsg(t, c)
	require.Equal(t, message.TypeCreateJoinGroup, reply.Type)
	require.Equal(t, "join-"+identity, reply.ID)
	return c
}

// expectClose reads until the connection fails and returns the error.
func expectClose(t *testing.T, c *websocket.Conn) error {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return err
		}
	}
}
