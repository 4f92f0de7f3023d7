package signaling

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/registry"
)

const maxAdminBodyBytes = 64 * 1024

// BaseResp is the envelope of the login/logout routes.
type BaseResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

type adminBroadcastRequest struct {
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

type adminSendRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type adminOnlineResponse struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

type httpErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, BaseResp{Code: http.StatusBadRequest, Msg: invalidIdentityHTTPReason})
		return
	}
	if s.users != nil {
		if err := s.users.EnsureUser(r.Context(), userID); err != nil {
			s.log.Warn("login: record user failed", "user_id", userID, "err", err)
			writeJSON(w, http.StatusServiceUnavailable, BaseResp{Code: http.StatusServiceUnavailable, Msg: "membership store unavailable"})
			return
		}
	}
	s.log.Info("user login", "user_id", userID)
	writeJSON(w, http.StatusOK, BaseResp{Code: http.StatusOK, Msg: "success", Data: userID})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	s.log.Info("user logout", "user_id", userID)
	writeJSON(w, http.StatusOK, BaseResp{Code: http.StatusOK, Msg: "success"})
}

func (s *Server) handleAdminBroadcast(w http.ResponseWriter, r *http.Request) {
	var req adminBroadcastRequest
	if err := decodeStrictJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Text == "" {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "text is required")
		return
	}
	n := s.router.BroadcastText(r.Context(), strings.TrimSpace(req.From), req.Text)
	writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
}

func (s *Server) handleAdminSend(w http.ResponseWriter, r *http.Request) {
	var req adminSendRequest
	if err := decodeStrictJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	req.To = strings.TrimSpace(req.To)
	if req.To == "" || req.Text == "" {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "to and text are required")
		return
	}
	if err := s.router.SendText(r.Context(), req.To, req.Text); err != nil {
		if errors.Is(err, registry.ErrNotConnected) {
			writeJSONError(w, http.StatusNotFound, "not_connected", err.Error())
			return
		}
		writeJSONError(w, http.StatusBadGateway, "delivery_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"delivered": 1})
}

func (s *Server) handleAdminOnline(w http.ResponseWriter, r *http.Request) {
	users := s.router.Online()
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, adminOnlineResponse{Count: len(users), Users: users})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, httpErrorResponse{Code: code, Message: message})
}

func decodeStrictJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAdminBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}
