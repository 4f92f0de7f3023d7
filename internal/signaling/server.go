package signaling

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/lifecycle"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/membership"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/router"
)

const (
	defaultIdleTimeout        = 60 * time.Second
	defaultPingInterval       = 20 * time.Second
	defaultMaxMessageBytes    = 64 * 1024
	defaultMaxMessagesPerSec  = 50
	defaultSendQueueBytes     = 1 << 20
	identityPathValue         = "userId"
	rateLimitedReason         = "rate limit exceeded"
	unsupportedFrameReason    = "expected text message"
	idleTimeoutCloseReason    = "idle timeout"
	serverClosingCloseReason  = "connection closed by server"
	sendQueueFullReason       = "send queue full"
	invalidIdentityHTTPReason = "missing user id"
)

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	Lifecycle *lifecycle.Manager
	Router    *router.Router

	// Users records identities on POST /ws/login. If nil the login route
	// still answers but records nothing.
	Users membership.UserRecorder

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// AllowedOrigins is the Origin allow-list for the WebSocket upgrade. Empty
	// means same-host only.
	AllowedOrigins []string

	// AdminAPIKey guards the /admin routes. Empty leaves them unregistered.
	AdminAPIKey string

	// CORS, when set, wraps the browser-facing login/logout routes and
	// answers their preflight requests.
	CORS func(http.Handler) http.Handler

	SignalingWSIdleTimeout  time.Duration
	SignalingWSPingInterval time.Duration

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int

	// SignalingWSSendQueueBytes bounds the bytes queued for one connection.
	// A connection that falls further behind is closed.
	SignalingWSSendQueueBytes int
}

// Server implements the relay's HTTP/WebSocket signaling surface.
//
// Endpoints:
//   - GET  /signal/{userId}       : WebSocket signaling bound to userId
//   - GET  /websocket/{userId}    : same, legacy path
//   - GET  /websocket/v2/{userId} : same, legacy path
//   - POST /ws/login              : records a user id
//   - POST /ws/logout             : acknowledges a logout
//   - /admin/*                    : out-of-band broadcast/send/online (API key)
type Server struct {
	lifecycle *lifecycle.Manager
	router    *router.Router
	users     membership.UserRecorder
	metrics   *metrics.Metrics
	log       *slog.Logger

	allowedOrigins []string
	admin          auth.Verifier
	cors           func(http.Handler) http.Handler

	idleTimeout       time.Duration
	pingInterval      time.Duration
	maxMessageBytes   int64
	maxMessagesPerSec int
	sendQueueBytes    int

	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		lifecycle:      cfg.Lifecycle,
		router:         cfg.Router,
		users:          cfg.Users,
		metrics:        cfg.Metrics,
		log:            logger,
		allowedOrigins: cfg.AllowedOrigins,
		cors:           cfg.CORS,

		idleTimeout:       cfg.SignalingWSIdleTimeout,
		pingInterval:      cfg.SignalingWSPingInterval,
		maxMessageBytes:   cfg.MaxSignalingMessageBytes,
		maxMessagesPerSec: cfg.MaxSignalingMessagesPerSecond,
		sendQueueBytes:    cfg.SignalingWSSendQueueBytes,
	}
	if s.idleTimeout <= 0 {
		s.idleTimeout = defaultIdleTimeout
	}
	if s.pingInterval <= 0 {
		s.pingInterval = defaultPingInterval
	}
	if s.maxMessageBytes <= 0 {
		s.maxMessageBytes = defaultMaxMessageBytes
	}
	if s.maxMessagesPerSec <= 0 {
		s.maxMessagesPerSec = defaultMaxMessagesPerSec
	}
	if s.sendQueueBytes <= 0 {
		s.sendQueueBytes = defaultSendQueueBytes
	}
	if cfg.AdminAPIKey != "" {
		s.admin = auth.StaticKey(cfg.AdminAPIKey)
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return origin.AllowRequest(r, s.allowedOrigins)
		},
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /signal/{userId}", s.handleWebSocketSignal)
	mux.HandleFunc("GET /websocket/{userId}", s.handleWebSocketSignal)
	mux.HandleFunc("GET /websocket/v2/{userId}", s.handleWebSocketSignal)

	login := http.Handler(http.HandlerFunc(s.handleLogin))
	logout := http.Handler(http.HandlerFunc(s.handleLogout))
	if s.cors != nil {
		login = s.cors(login)
		logout = s.cors(logout)
		preflight := s.cors(http.NotFoundHandler())
		mux.Handle("OPTIONS /ws/login", preflight)
		mux.Handle("OPTIONS /ws/logout", preflight)
	}
	mux.Handle("POST /ws/login", login)
	mux.Handle("POST /ws/logout", logout)

	if s.admin != nil {
		mux.Handle("POST /admin/broadcast", auth.Require(s.admin, http.HandlerFunc(s.handleAdminBroadcast)))
		mux.Handle("POST /admin/send", auth.Require(s.admin, http.HandlerFunc(s.handleAdminSend)))
		mux.Handle("GET /admin/online", auth.Require(s.admin, http.HandlerFunc(s.handleAdminOnline)))
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Close drops every live connection.
func (s *Server) Close() {
	s.lifecycle.Close()
}

func (s *Server) handleWebSocketSignal(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimSpace(r.PathValue(identityPathValue))
	if identity == "" {
		http.Error(w, invalidIdentityHTTPReason, http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		s.log.Debug("websocket upgrade failed", "user_id", identity, "err", err)
		return
	}

	ws := newWSConn(uuid.NewString(), conn, s.sendQueueBytes)
	sess := &wsSession{
		srv:      s,
		ws:       ws,
		identity: identity,
		limiter:  rate.NewLimiter(rate.Limit(s.maxMessagesPerSec), s.maxMessagesPerSec),
		log:      s.log.With("user_id", identity, "conn_id", ws.id, "remote_addr", r.RemoteAddr),
	}
	ws.onOverflow = func() {
		s.metrics.Inc(metrics.EventSendQueueFull)
		sess.log.Warn("send queue full, closing slow connection", "queue_bytes", s.sendQueueBytes)
	}
	sess.run(r.Context())
}
