package signaling

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/lifecycle"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/message"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/registry"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/router"
)

func newPeerConnection(t *testing.T) *webrtc.PeerConnection {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func TestWebSocketSignaling_RelaysPionOfferAndAnswer(t *testing.T) {
	relay := newTestRelay(t, router.VariantGroup, nil)
	alice := relay.join(t, "alice", "room")
	bob := relay.join(t, "bob", "room")

	caller := newPeerConnection(t)
	_, err := caller.CreateDataChannel("chat", nil)
	require.NoError(t, err)
	offer, err := caller.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, caller.SetLocalDescription(offer))

	sdp := message.SessionDescriptionFromPion(offer)
	sendMsg(t, alice, message.Message{ID: "o1", Type: message.TypeOffer, GroupID: "room", SDP: &sdp})

	ack := readMsg(t, alice)
	assert.Equal(t, message.TypeSuccess, ack.Type)
	assert.Equal(t, "o1", ack.ID)

	got := readMsg(t, bob)
	require.Equal(t, message.TypeOffer, got.Type)
	assert.Equal(t, "alice", got.From)
	assert.Equal(t, "bob", got.To)
	require.NotNil(t, got.SDP)

	callee := newPeerConnection(t)
	require.NoError(t, callee.SetRemoteDescription(got.SDP.ToPion()))
	answer, err := callee.CreateAnswer(nil)
	require.NoError(t, err)
	require.NoError(t, callee.SetLocalDescription(answer))

	answerSDP := message.SessionDescriptionFromPion(answer)
	sendMsg(t, bob, message.Message{ID: "a1", Type: message.TypeAnswer, GroupID: "room", To: "alice", SDP: &answerSDP})
	assert.Equal(t, message.TypeSuccess, readMsg(t, bob).Type)

	gotAnswer := readMsg(t, alice)
	require.Equal(t, message.TypeAnswer, gotAnswer.Type)
	require.NotNil(t, gotAnswer.SDP)
	require.NoError(t, caller.SetRemoteDescription(gotAnswer.SDP.ToPion()))
	assert.Equal(t, webrtc.SignalingStateStable, caller.SignalingState())
}

func TestWebSocketSignaling_LegacyPaths(t *testing.T) {
	relay := newTestRelay(t, router.VariantGroup, nil)

	for _, path := range []string{"/signal/a", "/websocket/b", "/websocket/v2/c"} {
		t.Run(path, func(t *testing.T) {
			c := relay.dial(t, path)
			sendMsg(t, c, message.Message{ID: "r", Type: message.TypeRegister})
			reply := readMsg(t, c)
			assert.Equal(t, message.TypeRegister, reply.Type)
			require.NotNil(t, reply.Info)
			assert.Equal(t, path[len(path)-1:], reply.Info.ID)
		})
	}
}

func TestWebSocketSignaling_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	relay := newTestRelay(t, router.VariantGroup, nil)
	c := relay.dial(t, "/signal/alice")

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"id":"x1","type":5}`)))
	fail := readMsg(t, c)
	assert.Equal(t, message.TypeFail, fail.Type)
	assert.Equal(t, "x1", fail.ID)

	sendMsg(t, c, message.Message{ID: "r", Type: message.TypeRegister})
	assert.Equal(t, message.TypeRegister, readMsg(t, c).Type)
}

func TestWebSocketSignaling_RateLimitClosesWithPolicyViolation(t *testing.T) {
	relay := newTestRelay(t, router.VariantGroup, func(cfg *Config) {
		cfg.MaxSignalingMessagesPerSecond = 1
	})
	c := relay.dial(t, "/signal/alice")

	// Unknown types are ignored, so the only reply is the rate limit failure.
	for i := 0; i < 3; i++ {
		if err := c.WriteMessage(websocket.TextMessage, []byte(`{"id":"h","type":"hangup"}`)); err != nil {
			break
		}
	}

	fail := readMsg(t, c)
	assert.Equal(t, message.TypeFail, fail.Type)
	assert.Equal(t, rateLimitedReason, fail.Error)

	err := expectClose(t, c)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestWebSocketSignaling_BinaryFrameRejected(t *testing.T) {
	relay := newTestRelay(t, router.VariantGroup, nil)
	c := relay.dial(t, "/signal/alice")

	require.NoError(t, c.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))

	fail := readMsg(t, c)
	assert.Equal(t, message.TypeFail, fail.Type)
	err := expectClose(t, c)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseUnsupportedData), "got %v", err)
}

func TestWebSocketSignaling_OversizedFrameCloses(t *testing.T) {
	relay := newTestRelay(t, router.VariantGroup, func(cfg *Config) {
		cfg.MaxSignalingMessageBytes = 64
	})
	c := relay.dial(t, "/signal/alice")

	big := make([]byte, 1024)
	for i := range big {
		big[i] = 'a'
	}
	_ = c.WriteMessage(websocket.TextMessage, big)

	err := expectClose(t, c)
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return relay.lifecycle.Registry().Size() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketSignaling_SupersedeClosesPrevious(t *testing.T) {
	relay := newTestRelay(t, router.VariantGroup, nil)
	first := relay.join(t, "alice", "room")
	second := relay.join(t, "alice", "room")

	err := expectClose(t, first)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	// The superseded session's teardown must not deregister its successor.
	time.Sleep(50 * time.Millisecond)
	reg := relay.lifecycle.Registry()
	require.Equal(t, 1, reg.Size())
	assert.EqualValues(t, 1, relay.lifecycle.OnlineCount())

	sendMsg(t, second, message.Message{ID: "r", Type: message.TypeRegister})
	assert.Equal(t, message.TypeRegister, readMsg(t, second).Type)
}

func TestWebSocketSignaling_StalledPeerDoesNotBlockSender(t *testing.T) {
	relay := newTestRelay(t, router.VariantGroup, func(cfg *Config) {
		cfg.MaxSignalingMessageBytes = 256 * 1024
		cfg.MaxSignalingMessagesPerSecond = 100000
		cfg.SignalingWSSendQueueBytes = 512 * 1024
	})
	alice := relay.join(t, "alice", "room")
	// bob never reads again, so his socket buffers fill and his queue overflows.
	relay.join(t, "bob", "room")

	sdp := &message.SessionDescription{Type: message.SDPTypeOffer, Description: strings.Repeat("a", 100*1024)}
	start := time.Now()
	for i := 0; i < 400; i++ {
		id := fmt.Sprintf("o%d", i)
		sendMsg(t, alice, message.Message{ID: id, Type: message.TypeOffer, GroupID: "room", SDP: sdp})
		reply := readMsg(t, alice)
		require.Equal(t, message.TypeSuccess, reply.Type, "reply %d: %+v", i, reply)
		require.Equal(t, id, reply.ID)
	}
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Eventually(t, func() bool {
		_, ok := relay.lifecycle.Registry().Get("bob")
		return !ok
	}, 5*time.Second, 10*time.Millisecond, "stalled peer still registered")
	_, ok := relay.lifecycle.Registry().Get("alice")
	assert.True(t, ok)
}

func TestWebSocketSignaling_DisconnectDeregisters(t *testing.T) {
	relay := newTestRelay(t, router.VariantGroup, nil)
	c := relay.join(t, "alice", "room")
	require.Equal(t, 1, relay.lifecycle.Registry().Size())

	require.NoError(t, c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second)))
	_ = c.Close()

	assert.Eventually(t, func() bool {
		return relay.lifecycle.Registry().Size() == 0 && relay.lifecycle.OnlineCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketSignaling_AdmissionLimitEvictsOldest(t *testing.T) {
	reg := registry.New()
	lc := lifecycle.New(lifecycle.Config{Registry: reg, AdmissionLimit: 2})
	relay := newTestRelay(t, router.VariantBroadcast, func(cfg *Config) {
		rt, err := router.New(router.Config{Registry: reg, Online: lc, Variant: router.VariantBroadcast})
		require.NoError(t, err)
		cfg.Lifecycle = lc
		cfg.Router = rt
	})

	a := relay.dial(t, "/signal/a")
	sendMsg(t, a, message.Message{ID: "r", Type: message.TypeRegister})
	require.Equal(t, message.TypeRegister, readMsg(t, a).Type)
	b := relay.dial(t, "/signal/b")
	sendMsg(t, b, message.Message{ID: "r", Type: message.TypeRegister})
	require.Equal(t, message.TypeRegister, readMsg(t, b).Type)
	c := relay.dial(t, "/signal/c")
	sendMsg(t, c, message.Message{ID: "r", Type: message.TypeRegister})
	require.Equal(t, message.TypeRegister, readMsg(t, c).Type)

	err := expectClose(t, a)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.ElementsMatch(t, []string{"b", "c"}, reg.Identities())
}

func TestWebSocketSignaling_BroadcastVariantForwardsToOthers(t *testing.T) {
	relay := newTestRelay(t, router.VariantBroadcast, nil)
	a := relay.dial(t, "/signal/a")
	sendMsg(t, a, message.Message{ID: "r", Type: message.TypeRegister})
	require.Equal(t, 1, readMsg(t, a).Code)
	b := relay.dial(t, "/signal/b")
	sendMsg(t, b, message.Message{ID: "r", Type: message.TypeRegister})
	require.Equal(t, 1, readMsg(t, b).Code)

	sendMsg(t, a, message.Message{ID: "k", Type: message.TypeCall})
	got := readMsg(t, b)
	assert.Equal(t, message.TypeInCall, got.Type)
	assert.Equal(t, "a", got.From)
}

func TestWebSocketSignaling_CrossOriginRejected(t *testing.T) {
	relay := newTestRelay(t, router.VariantGroup, nil)

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(relay.wsURL("/signal/alice"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, relay.lifecycle.Registry().Size())
}

func TestWebSocketSignaling_AllowListedOrigin(t *testing.T) {
	relay := newTestRelay(t, router.VariantGroup, func(cfg *Config) {
		cfg.AllowedOrigins = []string{"https://app.example.com"}
	})

	header := http.Header{}
	header.Set("Origin", "https://app.example.com")
	c, _, err := websocket.DefaultDialer.Dial(relay.wsURL("/signal/alice"), header)
	require.NoError(t, err)
	defer c.Close()
}
