// Package alert delivers best-effort security notifications to an external
// webhook. Delivery is strictly observational: it never blocks, fails, or
// retries on behalf of the request that triggered it.
package alert

import (
	"github.com/google/uuid"
)

const (
	KindBan          = "ban"
	KindBannedAccess = "banned_access"
	KindInvalidKey   = "invalid_key"
	KindRateLimit    = "rate_limit"
	KindUnban        = "unban"
	KindPause        = "pause"
	KindResume       = "resume"
	KindDeploy       = "deploy"
	KindStatus       = "status"
)

type Event struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	IP       string `json:"ip,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Detail   string `json:"detail"`
}

func NewEvent(kind, ip, endpoint, detail string) Event {
	return Event{
		ID:       uuid.NewString(),
		Kind:     kind,
		IP:       ip,
		Endpoint: endpoint,
		Detail:   detail,
	}
}

// Notifier is a one-way dispatch for security events.
type Notifier interface {
	Notify(e Event)
}

type Nop struct{}

func (Nop) Notify(Event) {}
