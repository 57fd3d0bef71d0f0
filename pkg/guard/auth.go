package guard

import (
	"crypto/subtle"
	"net/http"

	"github.com/pkg/errors"
)

const (
	keyHeader = "X-API-KEY"
	keyParam  = "key"
)

// Authenticator validates the shared secret carried by a request, either
// in the X-API-KEY header or the key query parameter. The header wins if
// both are present.
type Authenticator struct {
	key []byte
}

// NewAuthenticator refuses an empty secret: running without a key would
// leave the control plane effectively unauthenticated.
func NewAuthenticator(key string) (*Authenticator, error) {
	if key == "" {
		return nil, errors.New("no API key configured")
	}

	return &Authenticator{key: []byte(key)}, nil
}

// Authenticate reports whether the request carries the configured secret.
// The comparison is constant-time so response timing leaks nothing about
// the key's length or prefix.
func (a *Authenticator) Authenticate(r *http.Request) bool {
	key := r.Header.Get(keyHeader)
	if key == "" {
		key = r.URL.Query().Get(keyParam)
	}

	return subtle.ConstantTimeCompare([]byte(key), a.key) == 1
}
