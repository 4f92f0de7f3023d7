package main

import (
	"log/slog"
	"slices"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/router"
)

const minAdminAPIKeyLen = 16

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if slices.Contains(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.AdminAPIKey != "" && len(cfg.AdminAPIKey) < minAdminAPIKeyLen {
		logger.Warn("startup security warning: ADMIN_API_KEY is short (easier to brute force the /admin routes)",
			"warning_code", "admin_api_key_short",
			"admin_api_key_len", len(cfg.AdminAPIKey),
			"mode", cfg.Mode,
		)
	}

	if cfg.Variant == router.VariantBroadcast && cfg.AdmissionLimit == 0 {
		logger.Warn("startup security warning: RELAY_VARIANT=broadcast with ADMISSION_LIMIT=0 fans every call out to every connection",
			"warning_code", "broadcast_unlimited_admission",
			"variant", cfg.Variant,
			"admission_limit", cfg.AdmissionLimit,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MembershipBackend == config.MembershipBackendMemory {
		logger.Warn("startup warning: MEMBERSHIP_BACKEND=memory while --mode=prod (groups are lost on restart and not shared between replicas)",
			"warning_code", "membership_memory_in_prod",
			"membership_backend", cfg.MembershipBackend,
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxSignalingMessageBytes > 1<<20 { // 1MiB
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGE_BYTES is very large (increases per-message allocation risk)",
			"warning_code", "max_signaling_message_bytes_large",
			"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
			"mode", cfg.Mode,
		)
	}
}
