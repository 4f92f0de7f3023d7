package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/lifecycle"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/router"
)

const (
	envVarListenAddr      = "AERO_SIGNAL_RELAY_LISTEN_ADDR"
	envVarPublicBaseURL   = "AERO_SIGNAL_RELAY_PUBLIC_BASE_URL"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarLogFormat       = "AERO_SIGNAL_RELAY_LOG_FORMAT"
	envVarLogLevel        = "AERO_SIGNAL_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "AERO_SIGNAL_RELAY_SHUTDOWN_TIMEOUT"
	envVarMode            = "AERO_SIGNAL_RELAY_MODE"

	// Routing and connection policy.
	envVarRelayVariant    = "RELAY_VARIANT"
	envVarAdmissionLimit  = "ADMISSION_LIMIT"
	envVarSupersedePolicy = "SUPERSEDE_POLICY"

	// Group membership storage.
	envVarMembershipBackend  = "MEMBERSHIP_BACKEND"
	envVarNATSURL            = "NATS_URL"
	envVarMembershipKVBucket = "MEMBERSHIP_KV_BUCKET"
	envVarMembershipSeedFile = "MEMBERSHIP_SEED_FILE"

	// Signaling WebSocket hardening.
	envVarSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSignalingWSSendQueueBytes     = "SIGNALING_WS_SEND_QUEUE_BYTES"

	envVarAdminAPIKey = "ADMIN_API_KEY"

	// coturn TURN REST (ephemeral) credentials.
	envVarTURNRESTSharedSecret   = "TURN_REST_SHARED_SECRET"
	envVarTURNRESTTTLSeconds     = "TURN_REST_TTL_SECONDS"
	envVarTURNRESTUsernamePrefix = "TURN_REST_USERNAME_PREFIX"
	envVarTURNRESTRealm          = "TURN_REST_REALM"

	DefaultListenAddr      = "127.0.0.1:8080"
	DefaultShutdown        = 15 * time.Second
	DefaultMode       Mode = ModeDev

	DefaultRelayVariant             = router.VariantGroup
	DefaultSupersedePolicy          = lifecycle.SupersedeClose
	DefaultBroadcastAdmissionLimit  = 2
	DefaultMembershipBackend        = MembershipBackendMemory
	DefaultNATSURL                  = nats.DefaultURL
	DefaultMembershipKVBucket       = "aero_signal_relay_membership"
	DefaultSignalingWSIdleTimeout   = 60 * time.Second
	DefaultSignalingWSPingInterval  = 20 * time.Second
	DefaultMaxSignalingMessageBytes = int64(64 * 1024)

	DefaultMaxSignalingMessagesPerSecond = 50
	DefaultSignalingWSSendQueueBytes     = 1 << 20

	DefaultTURNRESTTTLSeconds     int64  = 3600
	DefaultTURNRESTUsernamePrefix string = "aero"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// MembershipBackend selects where group membership lives.
type MembershipBackend string

const (
	MembershipBackendMemory MembershipBackend = "memory"
	MembershipBackendNATS   MembershipBackend = "nats"
)

type TurnRESTConfig struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string
	Realm          string
}

func (c TurnRESTConfig) Enabled() bool {
	return strings.TrimSpace(c.SharedSecret) != ""
}

type Config struct {
	ListenAddr      string
	PublicBaseURL   string
	AllowedOrigins  []string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode

	Variant router.Variant
	// AdmissionLimit caps concurrently registered connections; the most
	// recent ones survive. 0 disables the cap.
	AdmissionLimit int
	Supersede      lifecycle.SupersedePolicy

	MembershipBackend  MembershipBackend
	NATSURL            string
	MembershipKVBucket string
	// MembershipSeedFile is an optional YAML file applied at startup.
	MembershipSeedFile string

	SignalingWSIdleTimeout  time.Duration
	SignalingWSPingInterval time.Duration

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int

	// SignalingWSSendQueueBytes bounds the bytes queued for one connection
	// before it is closed as too slow.
	SignalingWSSendQueueBytes int

	// AdminAPIKey guards the admin side-channel. Empty disables it.
	AdminAPIKey string

	ICEServers []webrtc.ICEServer
	TURNREST   TurnRESTConfig

	iceConfigErr error
}

func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	publicBaseURL := envOrDefault(lookup, envVarPublicBaseURL, "")
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, "")
	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")

	turnRESTSharedSecret := envOrDefault(lookup, envVarTURNRESTSharedSecret, "")
	turnRESTTTLSeconds, err := envInt64OrDefault(lookup, envVarTURNRESTTTLSeconds, DefaultTURNRESTTTLSeconds)
	if err != nil {
		return Config{}, err
	}
	turnRESTUsernamePrefix := envOrDefault(lookup, envVarTURNRESTUsernamePrefix, DefaultTURNRESTUsernamePrefix)
	turnRESTRealm := envOrDefault(lookup, envVarTURNRESTRealm, "")

	variantStr := envOrDefault(lookup, envVarRelayVariant, string(DefaultRelayVariant))
	supersedeStr := envOrDefault(lookup, envVarSupersedePolicy, string(DefaultSupersedePolicy))
	envAdmission, envAdmissionOK := lookup(envVarAdmissionLimit)
	envAdmissionSet := envAdmissionOK && strings.TrimSpace(envAdmission) != ""
	admissionLimit, err := envIntOrDefault(lookup, envVarAdmissionLimit, 0)
	if err != nil {
		return Config{}, err
	}

	membershipBackendStr := envOrDefault(lookup, envVarMembershipBackend, string(DefaultMembershipBackend))
	natsURL := envOrDefault(lookup, envVarNATSURL, DefaultNATSURL)
	membershipKVBucket := envOrDefault(lookup, envVarMembershipKVBucket, DefaultMembershipKVBucket)
	membershipSeedFile := envOrDefault(lookup, envVarMembershipSeedFile, "")

	adminAPIKey := envOrDefault(lookup, envVarAdminAPIKey, "")

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}
	signalingWSIdleTimeout, err := envDurationOrDefault(lookup, envVarSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	signalingWSPingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	maxSignalingMessageBytes, err := envInt64OrDefault(lookup, envVarMaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	if err != nil {
		return Config{}, err
	}
	maxSignalingMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	signalingWSSendQueueBytes, err := envIntOrDefault(lookup, envVarSignalingWSSendQueueBytes, DefaultSignalingWSSendQueueBytes)
	if err != nil {
		return Config{}, err
	}

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs := flag.NewFlagSet("aero-signal-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port)")
	fs.StringVar(&publicBaseURL, "public-base-url", publicBaseURL, "Public base URL (optional; used for logging)")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins (env "+envVarAllowedOrigins+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")

	fs.StringVar(&variantStr, "variant", variantStr, "Routing variant: group or broadcast (env "+envVarRelayVariant+")")
	fs.IntVar(&admissionLimit, "admission-limit", admissionLimit, "Max registered connections, most recent win (0 = unlimited; default 2 for broadcast; env "+envVarAdmissionLimit+")")
	fs.StringVar(&supersedeStr, "supersede-policy", supersedeStr, "What happens to a connection replaced by a reconnect: close or keep (env "+envVarSupersedePolicy+")")

	fs.StringVar(&membershipBackendStr, "membership-backend", membershipBackendStr, "Group membership store: memory or nats (env "+envVarMembershipBackend+")")
	fs.StringVar(&natsURL, "nats-url", natsURL, "NATS server URL for the nats membership backend (env "+envVarNATSURL+")")
	fs.StringVar(&membershipKVBucket, "membership-kv-bucket", membershipKVBucket, "JetStream KV bucket for group membership (env "+envVarMembershipKVBucket+")")
	fs.StringVar(&membershipSeedFile, "membership-seed-file", membershipSeedFile, "YAML file of groups to create at startup (env "+envVarMembershipSeedFile+")")

	fs.DurationVar(&signalingWSIdleTimeout, "signaling-ws-idle-timeout", signalingWSIdleTimeout, "Close idle signaling WebSocket connections after this duration (env "+envVarSignalingWSIdleTimeout+")")
	fs.DurationVar(&signalingWSPingInterval, "signaling-ws-ping-interval", signalingWSPingInterval, "Send ping frames on signaling WebSocket connections at this interval (must be < --signaling-ws-idle-timeout; env "+envVarSignalingWSPingInterval+")")
	fs.Int64Var(&maxSignalingMessageBytes, "max-signaling-message-bytes", maxSignalingMessageBytes, "Max inbound signaling WS message size in bytes (env "+envVarMaxSignalingMessageBytes+")")
	fs.IntVar(&maxSignalingMessagesPerSecond, "max-signaling-messages-per-second", maxSignalingMessagesPerSecond, "Max inbound signaling WS messages per second (env "+envVarMaxSignalingMessagesPerSecond+")")
	fs.IntVar(&signalingWSSendQueueBytes, "signaling-ws-send-queue-bytes", signalingWSSendQueueBytes, "Max bytes queued for one signaling WS connection before it is closed as too slow (env "+envVarSignalingWSSendQueueBytes+")")

	fs.StringVar(&adminAPIKey, "admin-api-key", adminAPIKey, "API key for the /admin routes (empty disables them; env "+envVarAdminAPIKey+")")

	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config (AERO_ICE_SERVERS_JSON)")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "comma-separated STUN URLs (AERO_STUN_URLS)")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "comma-separated TURN URLs (AERO_TURN_URLS)")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username (AERO_TURN_USERNAME)")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential (AERO_TURN_CREDENTIAL)")
	fs.StringVar(&turnRESTSharedSecret, "turn-rest-shared-secret", turnRESTSharedSecret, "TURN REST shared secret ("+envVarTURNRESTSharedSecret+")")
	fs.Int64Var(&turnRESTTTLSeconds, "turn-rest-ttl-seconds", turnRESTTTLSeconds, "TURN REST credential TTL seconds ("+envVarTURNRESTTTLSeconds+")")
	fs.StringVar(&turnRESTUsernamePrefix, "turn-rest-username-prefix", turnRESTUsernamePrefix, "TURN REST username prefix ("+envVarTURNRESTUsernamePrefix+")")
	fs.StringVar(&turnRESTRealm, "turn-rest-realm", turnRESTRealm, "TURN realm (coturn config; "+envVarTURNRESTRealm+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}

	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	variant, err := router.ParseVariant(strings.ToLower(strings.TrimSpace(variantStr)))
	if err != nil {
		return Config{}, fmt.Errorf("%s/--variant: %w", envVarRelayVariant, err)
	}
	// The broadcast variant relays one call between two peers unless the
	// limit was configured explicitly.
	if !envAdmissionSet && !setFlags["admission-limit"] && variant == router.VariantBroadcast {
		admissionLimit = DefaultBroadcastAdmissionLimit
	}

	supersede, err := lifecycle.ParseSupersedePolicy(strings.ToLower(strings.TrimSpace(supersedeStr)))
	if err != nil {
		return Config{}, fmt.Errorf("%s/--supersede-policy: %w", envVarSupersedePolicy, err)
	}

	membershipBackend, err := parseMembershipBackend(membershipBackendStr)
	if err != nil {
		return Config{}, fmt.Errorf("%s/--membership-backend: %w", envVarMembershipBackend, err)
	}

	if listenAddr == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0")
	}
	if admissionLimit < 0 {
		return Config{}, fmt.Errorf("%s/--admission-limit must be >= 0 (0 = unlimited)", envVarAdmissionLimit)
	}
	if membershipBackend == MembershipBackendNATS {
		if strings.TrimSpace(natsURL) == "" {
			return Config{}, fmt.Errorf("%s/--nats-url must be set when %s=%s", envVarNATSURL, envVarMembershipBackend, MembershipBackendNATS)
		}
		if !isValidBucketName(membershipKVBucket) {
			return Config{}, fmt.Errorf("invalid %s/--membership-kv-bucket %q (letters, digits, '-' and '_' only)", envVarMembershipKVBucket, membershipKVBucket)
		}
	}
	if signalingWSIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--signaling-ws-idle-timeout must be > 0", envVarSignalingWSIdleTimeout)
	}
	if signalingWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--signaling-ws-ping-interval must be > 0", envVarSignalingWSPingInterval)
	}
	if signalingWSPingInterval >= signalingWSIdleTimeout {
		return Config{}, fmt.Errorf("%s/--signaling-ws-ping-interval must be < %s/--signaling-ws-idle-timeout", envVarSignalingWSPingInterval, envVarSignalingWSIdleTimeout)
	}
	if maxSignalingMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-message-bytes must be > 0", envVarMaxSignalingMessageBytes)
	}
	if maxSignalingMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-messages-per-second must be > 0", envVarMaxSignalingMessagesPerSecond)
	}
	if int64(signalingWSSendQueueBytes) < maxSignalingMessageBytes {
		return Config{}, fmt.Errorf("%s/--signaling-ws-send-queue-bytes must be >= %s/--max-signaling-message-bytes", envVarSignalingWSSendQueueBytes, envVarMaxSignalingMessageBytes)
	}
	if turnRESTTTLSeconds <= 0 {
		return Config{}, fmt.Errorf("%s/--turn-rest-ttl-seconds must be > 0", envVarTURNRESTTTLSeconds)
	}

	allowedOrigins, err := parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, fmt.Errorf("%s/%s: %w", envVarAllowedOrigins, "--allowed-origins", err)
	}

	cfg := Config{
		ListenAddr:      listenAddr,
		PublicBaseURL:   publicBaseURL,
		AllowedOrigins:  allowedOrigins,
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,
		Mode:            mode,

		Variant:        variant,
		AdmissionLimit: admissionLimit,
		Supersede:      supersede,

		MembershipBackend:  membershipBackend,
		NATSURL:            strings.TrimSpace(natsURL),
		MembershipKVBucket: membershipKVBucket,
		MembershipSeedFile: strings.TrimSpace(membershipSeedFile),

		SignalingWSIdleTimeout:        signalingWSIdleTimeout,
		SignalingWSPingInterval:       signalingWSPingInterval,
		MaxSignalingMessageBytes:      maxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: maxSignalingMessagesPerSecond,
		SignalingWSSendQueueBytes:     signalingWSSendQueueBytes,

		AdminAPIKey: strings.TrimSpace(adminAPIKey),

		TURNREST: TurnRESTConfig{
			SharedSecret:   turnRESTSharedSecret,
			TTLSeconds:     turnRESTTTLSeconds,
			UsernamePrefix: turnRESTUsernamePrefix,
			Realm:          turnRESTRealm,
		},
	}

	iceServers, err := iceSettings{
		JSON:           iceServersJSON,
		StunURLs:       stunURLs,
		TurnURLs:       turnURLs,
		TurnUsername:   turnUsername,
		TurnCredential: turnCredential,
		TURNREST:       cfg.TURNREST.Enabled(),
	}.servers()
	if err != nil {
		cfg.iceConfigErr = err
	} else {
		cfg.ICEServers = iceServers
	}

	return cfg, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

// envParsed parses a trimmed env value with parse, or returns fallback when
// the variable is unset or blank.
func envParsed[T any](lookup func(string) (string, bool), key string, fallback T, parse func(string) (T, error)) (T, error) {
	raw, ok := lookup(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := parse(raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	return envParsed(lookup, key, fallback, strconv.Atoi)
}

func envInt64OrDefault(lookup func(string) (string, bool), key string, fallback int64) (int64, error) {
	return envParsed(lookup, key, fallback, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	return envParsed(lookup, key, fallback, time.ParseDuration)
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseMembershipBackend(raw string) (MembershipBackend, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(MembershipBackendMemory):
		return MembershipBackendMemory, nil
	case string(MembershipBackendNATS), "jetstream":
		return MembershipBackendNATS, nil
	default:
		return "", fmt.Errorf("invalid membership backend %q (expected memory or nats)", raw)
	}
}

// isValidBucketName mirrors JetStream's KV bucket naming rule.
func isValidBucketName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if entry == "*" {
			out = append(out, entry)
			continue
		}

		normalizedOrigin, _, ok := origin.NormalizeHeader(entry)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
		}
		out = append(out, normalizedOrigin)
	}

	return out, nil
}
