package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "AERO_ICE_SERVERS_JSON"

	envStunURLs       = "AERO_STUN_URLS"
	envTurnURLs       = "AERO_TURN_URLS"
	envTurnUsername   = "AERO_TURN_USERNAME"
	envTurnCredential = "AERO_TURN_CREDENTIAL"
)

// iceSettings holds the raw ICE inputs. A JSON list, when present, replaces
// the STUN/TURN convenience values entirely.
type iceSettings struct {
	JSON           string
	StunURLs       string
	TurnURLs       string
	TurnUsername   string
	TurnCredential string

	// TURNREST relaxes the credential requirement on TURN entries; the relay
	// mints them per /webrtc/ice request.
	TURNREST bool
}

func (s iceSettings) servers() ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(s.JSON); raw != "" {
		servers, err := parseICEServerList(raw, s.TURNREST)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return servers, nil
	}

	var out []webrtc.ICEServer
	if urls := commaList(s.StunURLs); len(urls) > 0 {
		stun := webrtc.ICEServer{URLs: urls}
		if err := checkICEServer(stun, false); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		out = append(out, stun)
	}

	if urls := commaList(s.TurnURLs); len(urls) > 0 {
		user := strings.TrimSpace(s.TurnUsername)
		cred := strings.TrimSpace(s.TurnCredential)
		if !s.TURNREST && (user == "" || cred == "") {
			return nil, fmt.Errorf("%s/%s: both must be set when %s is set", envTurnUsername, envTurnCredential, envTurnURLs)
		}
		turn := webrtc.ICEServer{URLs: urls, Username: user}
		if cred != "" {
			turn.Credential = cred
		}
		if err := checkICEServer(turn, s.TURNREST); err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}
		out = append(out, turn)
	}
	return out, nil
}

// urlList accepts both "urls": "stun:..." and "urls": ["stun:...", ...],
// matching the RTCIceServer dictionary.
type urlList []string

func (l *urlList) UnmarshalJSON(b []byte) error {
	var one string
	if json.Unmarshal(b, &one) == nil {
		*l = urlList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

func parseICEServerList(raw string, turnREST bool) ([]webrtc.ICEServer, error) {
	var entries []struct {
		URLs       urlList `json:"urls"`
		Username   string  `json:"username,omitempty"`
		Credential string  `json:"credential,omitempty"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	out := make([]webrtc.ICEServer, 0, len(entries))
	for i, e := range entries {
		server := webrtc.ICEServer{
			URLs:     trimAll(e.URLs),
			Username: strings.TrimSpace(e.Username),
		}
		if strings.TrimSpace(e.Credential) != "" {
			server.Credential = e.Credential
		}
		if err := checkICEServer(server, turnREST); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		out = append(out, server)
	}
	return out, nil
}

// IsTURNServer reports whether any of server's URLs is a turn: or turns: URL.
func IsTURNServer(server webrtc.ICEServer) bool {
	for _, u := range server.URLs {
		if scheme, _ := iceScheme(u); scheme == "turn" || scheme == "turns" {
			return true
		}
	}
	return false
}

func checkICEServer(server webrtc.ICEServer, turnREST bool) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}
	for _, u := range server.URLs {
		if _, ok := iceScheme(u); !ok {
			return fmt.Errorf("unsupported url scheme: %q", u)
		}
	}
	if turnREST || !IsTURNServer(server) {
		return nil
	}
	if server.Username == "" {
		return errors.New("turn urls require username")
	}
	if cred, _ := server.Credential.(string); strings.TrimSpace(cred) == "" {
		return errors.New("turn urls require credential")
	}
	return nil
}

func iceScheme(rawURL string) (string, bool) {
	scheme, _, found := strings.Cut(strings.ToLower(strings.TrimSpace(rawURL)), ":")
	if !found {
		return "", false
	}
	switch scheme {
	case "stun", "stuns", "turn", "turns":
		return scheme, true
	}
	return "", false
}

func commaList(value string) []string {
	return trimAll(strings.Split(value, ","))
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
