package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type Verifier interface {
	Verify(credential string) error
}

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// StaticKey accepts exactly one shared key. An empty key accepts nothing.
type StaticKey string

func (k StaticKey) Verify(credential string) error {
	if k == "" || credential == "" {
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(credential), []byte(k)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// CredentialFromRequest extracts an API key from r. The Authorization header
// (Bearer or ApiKey scheme) wins over X-API-Key, which wins over the apiKey
// query parameter.
func CredentialFromRequest(r *http.Request) (string, error) {
	if authz := strings.TrimSpace(r.Header.Get("Authorization")); authz != "" {
		scheme, token, ok := strings.Cut(authz, " ")
		if ok && (strings.EqualFold(scheme, "Bearer") || strings.EqualFold(scheme, "ApiKey")) {
			if token = strings.TrimSpace(token); token != "" {
				return token, nil
			}
		}
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, nil
	}
	if key := r.URL.Query().Get("apiKey"); key != "" {
		return key, nil
	}
	return "", ErrMissingCredentials
}

// Require wraps next so that only requests carrying a credential accepted by v
// reach it. Rejected requests get a 401 with a JSON error body.
func Require(v Verifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, err := CredentialFromRequest(r)
		if err == nil {
			err = v.Verify(cred)
		}
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    "unauthorized",
				"message": err.Error(),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
