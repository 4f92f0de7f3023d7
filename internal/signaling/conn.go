package signaling

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/message"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/metrics"
)

const wsWriteWait = 1 * time.Second

// wsConn is the registry.Conn handed to the lifecycle Manager. Send only
// enqueues; a single writer goroutine owns data frames on the socket and
// writes the close frame after the last of them. Close is idempotent and safe
// from any goroutine.
type wsConn struct {
	id    string
	conn  *websocket.Conn
	queue *sendQueue

	// onOverflow runs once when Send finds the queue full.
	onOverflow func()

	mu           sync.Mutex
	closeCode    int
	closeReason  string
	closeSocket  bool
	writerExited bool
	overflowed   bool

	writerDone chan struct{}
}

func newWSConn(id string, conn *websocket.Conn, queueBytes int) *wsConn {
	c := &wsConn{
		id:         id,
		conn:       conn,
		queue:      newSendQueue(queueBytes),
		writerDone: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *wsConn) ID() string { return c.id }

// Send queues data for the writer. A peer that falls behind by more than the
// queue budget is closed with a policy violation rather than stalling the
// caller.
func (c *wsConn) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.queue.Enqueue(data)
	if !errors.Is(err, errSendQueueFull) {
		return err
	}

	c.mu.Lock()
	first := !c.overflowed
	c.overflowed = true
	c.mu.Unlock()
	if first && c.onOverflow != nil {
		c.onOverflow()
	}
	c.shutdown(websocket.ClosePolicyViolation, sendQueueFullReason, false, true)
	return err
}

// shutdown stops accepting frames. The first non-zero code is the one written
// in the close frame; closeSocket asks the writer to drop the socket once it
// is done.
func (c *wsConn) shutdown(code int, reason string, drain, closeSocket bool) {
	c.mu.Lock()
	if c.closeCode == 0 && code != 0 {
		c.closeCode, c.closeReason = code, reason
	}
	if closeSocket {
		c.closeSocket = true
	}
	exited := c.writerExited
	c.mu.Unlock()

	c.queue.Close(drain)
	if exited && closeSocket {
		_ = c.conn.Close()
	}
}

func (c *wsConn) writeLoop() {
	defer close(c.writerDone)
	for {
		frame, ok := c.queue.Dequeue()
		if !ok {
			break
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.queue.Close(false)
			c.mu.Lock()
			c.closeSocket = true
			c.mu.Unlock()
			break
		}
	}

	c.mu.Lock()
	c.writerExited = true
	code, reason, closeSocket := c.closeCode, c.closeReason, c.closeSocket
	c.mu.Unlock()

	if code != 0 {
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
	}
	if closeSocket {
		_ = c.conn.Close()
	}
}

// closeWith queues a close frame behind any pending frames. The socket stays
// open until the session releases it.
func (c *wsConn) closeWith(code int, reason string) {
	c.shutdown(code, reason, true, false)
}

func (c *wsConn) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// Close flushes pending frames, sends a close frame and drops the socket. It
// does not wait for the flush.
func (c *wsConn) Close() error {
	c.shutdown(websocket.CloseNormalClosure, serverClosingCloseReason, true, true)
	return nil
}

// release drops the socket once the writer has flushed, and waits for it.
func (c *wsConn) release() {
	c.shutdown(0, "", true, true)
	<-c.writerDone
}

type wsSession struct {
	srv      *Server
	ws       *wsConn
	identity string
	limiter  *rate.Limiter
	log      *slog.Logger
}

func (wss *wsSession) run(ctx context.Context) {
	srv := wss.srv
	ws := wss.ws
	defer ws.release()

	ws.conn.SetReadLimit(srv.maxMessageBytes)

	if err := srv.lifecycle.OnConnect(wss.identity, ws); err != nil {
		wss.log.Warn("connection rejected", "err", err)
		ws.closeWith(websocket.ClosePolicyViolation, err.Error())
		return
	}
	defer srv.lifecycle.OnDisconnect(wss.identity, ws)

	_ = ws.conn.SetReadDeadline(time.Now().Add(srv.idleTimeout))
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(srv.idleTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go wss.keepalive(done)

	for {
		msgType, data, err := ws.conn.ReadMessage()
		if err != nil {
			wss.readFailed(err)
			return
		}
		_ = ws.conn.SetReadDeadline(time.Now().Add(srv.idleTimeout))

		// Apply the rate limit after reading so the frame's bytes are consumed;
		// closing with unread data may reset the TCP connection before the
		// client sees the close code.
		if !wss.limiter.Allow() {
			srv.metrics.Inc(metrics.EventRateLimited)
			wss.fail(websocket.ClosePolicyViolation, rateLimitedReason)
			return
		}
		if msgType != websocket.TextMessage {
			wss.fail(websocket.CloseUnsupportedData, unsupportedFrameReason)
			return
		}

		srv.router.Handle(ctx, wss.identity, ws, data)
	}
}

func (wss *wsSession) readFailed(err error) {
	switch {
	case isTimeout(err):
		wss.log.Debug("websocket idle timeout")
		wss.ws.closeWith(websocket.CloseNormalClosure, idleTimeoutCloseReason)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
	case errors.Is(err, websocket.ErrReadLimit):
		// The close frame has already been written by the websocket library.
		wss.srv.lifecycle.OnError(wss.identity, err)
	case errors.Is(err, net.ErrClosed):
		// Closed locally, e.g. superseded or evicted.
	default:
		wss.srv.lifecycle.OnError(wss.identity, err)
	}
}

// fail sends a fail message and a close frame carrying reason.
func (wss *wsSession) fail(closeCode int, reason string) {
	_ = wss.ws.Send(context.Background(), message.MustEncode(message.Fail("", reason)))
	wss.ws.closeWith(closeCode, reason)
}

func (wss *wsSession) keepalive(done <-chan struct{}) {
	ticker := time.NewTicker(wss.srv.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := wss.ws.ping(); err != nil {
				return
			}
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
