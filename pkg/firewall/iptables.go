package firewall

import (
	"log"

	"github.com/coreos/go-iptables/iptables"
)

// IPTables drops traffic from banned addresses via a filter/INPUT rule.
// Requires the process to run with the privileges to edit iptables.
type IPTables struct{}

func NewIPTables() IPTables {
	return IPTables{}
}

func (IPTables) Block(ip string) {
	ipt, err := iptables.New()
	if err != nil {
		log.Printf("failed to get iptables link for blocking: %v\n", err)
		return
	}

	if err := ipt.AppendUnique("filter", "INPUT", "-s", ip, "-j", "DROP"); err != nil {
		log.Printf("failed to insert iptables rule for blocking: %v\n", err)
	}
}

func (IPTables) Unblock(ip string) {
	ipt, err := iptables.New()
	if err != nil {
		log.Printf("failed to get iptables link for unblocking: %v\n", err)
		return
	}

	if err := ipt.DeleteIfExists("filter", "INPUT", "-s", ip, "-j", "DROP"); err != nil {
		log.Printf("failed to remove iptables rule for unblocking: %v\n", err)
	}
}
