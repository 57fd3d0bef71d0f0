// Package guard converts repeated authentication failures into permanent
// bans and validates the shared secret on incoming requests.
package guard

import (
	"fmt"
	"sync"
	"time"

	"github.com/sonicbuilder/sentinel/pkg/alert"
	"github.com/sonicbuilder/sentinel/pkg/banlist"
	"github.com/sonicbuilder/sentinel/pkg/firewall"
)

type attempt struct {
	count        int
	firstFailure time.Time
}

// Guard owns the per-IP failure counters. Counters are in-memory only and
// reset on restart; the resulting bans go to the durable store. Safe for
// concurrent use.
type Guard struct {
	mu       sync.Mutex
	attempts map[string]*attempt

	maxAttempts int
	store       banlist.Store
	notifier    alert.Notifier
	enforcer    firewall.Enforcer

	nowFunc func() time.Time
}

func New(store banlist.Store, notifier alert.Notifier, enforcer firewall.Enforcer, maxAttempts int) *Guard {
	return &Guard{
		attempts:    make(map[string]*attempt),
		maxAttempts: maxAttempts,
		store:       store,
		notifier:    notifier,
		enforcer:    enforcer,
		nowFunc:     time.Now,
	}
}

// EnforceAll replays every stored ban into the firewall enforcer. Called at
// startup so kernel rules survive a restart along with the ban file.
func (g *Guard) EnforceAll() {
	for _, r := range g.store.All() {
		g.enforcer.Block(r.IP)
	}
}

// RecordFailure counts a failed authentication from ip. Each failure below
// the limit sends an early-warning alert carrying the attempt count. When
// the consecutive-failure count reaches the limit the IP is permanently
// banned, the firewall rule is applied, and a single ban alert goes out
// instead. The returned bool tells the caller to respond as banned rather
// than merely unauthorized. Alerts fire outside the counter lock.
func (g *Guard) RecordFailure(ip, endpoint string) bool {
	g.mu.Lock()
	a, ok := g.attempts[ip]
	if !ok {
		a = &attempt{firstFailure: g.nowFunc()}
		g.attempts[ip] = a
	}
	a.count++
	count := a.count
	banned := count >= g.maxAttempts
	if banned {
		delete(g.attempts, ip)
	}
	g.mu.Unlock()

	if !banned {
		g.notifier.Notify(alert.NewEvent(alert.KindInvalidKey, ip, endpoint,
			fmt.Sprintf("invalid key attempt %d/%d", count, g.maxAttempts)))
		return false
	}

	reason := fmt.Sprintf("%d failed auth attempts", g.maxAttempts)
	if _, created := g.store.Ban(ip, reason); created {
		g.enforcer.Block(ip)
		g.notifier.Notify(alert.NewEvent(alert.KindBan, ip, endpoint, "permanently banned: "+reason))
	}

	return true
}

// RecordSuccess clears the failure streak for ip. A legitimate request
// means the client is not one mistyped key away from a permanent ban.
func (g *Guard) RecordSuccess(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.attempts, ip)
}

// Unban removes a stored ban and its firewall rule. Returns false when the
// IP was not banned.
func (g *Guard) Unban(ip string) bool {
	if !g.store.Unban(ip) {
		return false
	}

	g.enforcer.Unblock(ip)
	g.notifier.Notify(alert.NewEvent(alert.KindUnban, ip, "", "manually removed from ban list"))
	return true
}
