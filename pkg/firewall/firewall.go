// Package firewall optionally mirrors ban decisions into the kernel packet
// filter, so banned addresses are dropped before they reach the listener.
package firewall

// Enforcer applies and removes network-level blocks for banned addresses.
// Enforcement is best-effort: failures are logged, never propagated, and
// never affect the ban decision itself.
type Enforcer interface {
	Block(ip string)
	Unblock(ip string)
}

type Nop struct{}

func (Nop) Block(string)   {}
func (Nop) Unblock(string) {}
