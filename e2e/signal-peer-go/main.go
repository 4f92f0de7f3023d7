// Command signal-peer-go is an answering peer for browser E2E tests. It joins
// a group on a running relay, answers every offer with a pion PeerConnection
// and echoes DataChannel messages back to the caller.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"golang.org/x/net/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/message"
)

func main() {
	relayURL := envOrDefault("RELAY_URL", "ws://127.0.0.1:8080")
	userID := envOrDefault("USER_ID", "e2e-peer")
	groupID := envOrDefault("GROUP_ID", "e2e")
	origin := envOrDefault("ORIGIN", "http://127.0.0.1")

	signalURL, err := url.JoinPath(relayURL, "signal", url.PathEscape(userID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid RELAY_URL %q: %v\n", relayURL, err)
		os.Exit(2)
	}

	ws, err := websocket.Dial(signalURL, "", origin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", signalURL, err)
		os.Exit(1)
	}
	defer ws.Close()

	p := &peer{ws: ws, userID: userID, groupID: groupID, pcs: map[string]*webrtc.PeerConnection{}}
	defer p.closeAll()

	join := message.New(message.TypeCreateJoinGroup)
	join.GroupID = groupID
	if err := p.send(join); err != nil {
		fmt.Fprintf(os.Stderr, "join group: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()

	fmt.Printf("READY %s %s\n", userID, groupID)

	for {
		var raw []byte
		if err := websocket.Message.Receive(ws, &raw); err != nil {
			return
		}
		msg, err := message.Decode(raw)
		if err != nil {
			// Admin text arrives raw; it is not a signaling message.
			fmt.Printf("TEXT %s\n", strings.TrimSpace(string(raw)))
			continue
		}
		p.handle(msg)
	}
}

type peer struct {
	ws      *websocket.Conn
	userID  string
	groupID string

	sendMu sync.Mutex

	mu  sync.Mutex
	pcs map[string]*webrtc.PeerConnection
}

func (p *peer) send(msg message.Message) error {
	data, err := message.Encode(msg)
	if err != nil {
		return err
	}
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	_ = p.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return websocket.Message.Send(p.ws, string(data))
}

func (p *peer) handle(msg message.Message) {
	switch msg.Type {
	case message.TypeOffer:
		if msg.SDP == nil || msg.From == "" {
			return
		}
		// Handle each offer in its own goroutine so ICE gathering does not block
		// the read loop.
		go p.answer(msg)
	case message.TypeCandidate:
		if msg.Candidate == nil {
			return
		}
		p.mu.Lock()
		pc := p.pcs[msg.From]
		p.mu.Unlock()
		if pc != nil {
			_ = pc.AddICECandidate(msg.Candidate.ToPion())
		}
	case message.TypeFail:
		fmt.Printf("FAIL %s %s\n", msg.ID, msg.Error)
	}
}

func (p *peer) answer(offer message.Message) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "new peer connection: %v\n", err)
		return
	}

	p.mu.Lock()
	if prev := p.pcs[offer.From]; prev != nil {
		_ = prev.Close()
	}
	p.pcs[offer.From] = pc
	p.mu.Unlock()

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(m webrtc.DataChannelMessage) {
			if m.IsString {
				_ = dc.SendText(string(m.Data))
				return
			}
			_ = dc.Send(m.Data)
		})
	})

	if err := pc.SetRemoteDescription(offer.SDP.ToPion()); err != nil {
		fmt.Fprintf(os.Stderr, "set remote description from %s: %v\n", offer.From, err)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create answer: %v\n", err)
		return
	}

	// Send a complete answer instead of trickling candidates back.
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		fmt.Fprintf(os.Stderr, "set local description: %v\n", err)
		return
	}
	<-gatherComplete

	local := pc.LocalDescription()
	if local == nil {
		return
	}
	sdp := message.SessionDescriptionFromPion(*local)

	reply := message.New(message.TypeAnswer)
	reply.From = p.userID
	reply.To = offer.From
	reply.GroupID = offer.GroupID
	if reply.GroupID == "" {
		reply.GroupID = p.groupID
	}
	reply.SDP = &sdp
	if err := p.send(reply); err != nil {
		fmt.Fprintf(os.Stderr, "send answer to %s: %v\n", offer.From, err)
		return
	}
	fmt.Printf("ANSWERED %s\n", offer.From)
}

func (p *peer) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, pc := range p.pcs {
		_ = pc.Close()
		delete(p.pcs, id)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
