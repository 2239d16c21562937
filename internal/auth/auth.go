package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

func ExtractBearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", errors.New("missing Authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", errors.New("invalid Authorization header format")
	}

	token := strings.TrimSpace(strings.TrimPrefix(auth, prefix))
	if token == "" {
		return "", errors.New("missing API key")
	}
	return token, nil
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Authenticate reports whether the request carries apiKey as a bearer token.
// An empty apiKey disables authentication.
func Authenticate(r *http.Request, apiKey string) error {
	if apiKey == "" {
		return nil
	}
	presented, err := ExtractBearerToken(r)
	if err != nil {
		return err
	}
	if !constantTimeEqual(presented, apiKey) {
		return errors.New("invalid API key")
	}
	return nil
}
