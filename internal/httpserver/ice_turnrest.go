package httpserver

import (
	"net/http"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/turnrest"
)

type iceResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
	// ExpiresAt is the unix expiry of injected TURN REST credentials.
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

// handleICE serves the ICE server list peers use to build their
// RTCPeerConnection. With TURN REST enabled, TURN entries get fresh
// credentials bound to ?userId= when given, or to a random session id.
func (s *Server) handleICE(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.ICEConfigError(); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}

	servers := s.cfg.ICEServers
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	if s.turn == nil {
		WriteJSON(w, http.StatusOK, iceResponse{ICEServers: servers})
		return
	}

	var (
		creds turnrest.Credentials
		err   error
	)
	if userID := strings.TrimSpace(r.URL.Query().Get("userId")); userID != "" {
		creds, err = s.turn.Generate(userID)
		if err != nil {
			WriteJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
	} else {
		creds, err = s.turn.GenerateRandom()
		if err != nil {
			s.log.Error("turn rest credential generation failed", "err", err)
			WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "credential generation failed"})
			return
		}
	}

	WriteJSON(w, http.StatusOK, iceResponse{
		ICEServers: withTURNRESTCredentials(servers, creds.Username, creds.Credential),
		ExpiresAt:  creds.ExpiryUnix,
	})
}

func withTURNRESTCredentials(servers []webrtc.ICEServer, username, credential string) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, len(servers))
	for i, server := range servers {
		out[i] = server
		if config.IsTURNServer(server) {
			out[i].Username = username
			out[i].Credential = credential
		}
	}
	return out
}
