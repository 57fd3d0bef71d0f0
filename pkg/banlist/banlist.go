package banlist

import (
	"github.com/pkg/errors"
	"github.com/sonicbuilder/sentinel/pkg/unixtime"
)

var NotFoundErr = errors.New("ban record not found")

type Record struct {
	IP       string        `json:"ip"`
	BannedAt unixtime.Time `json:"banned_at"`
	Reason   string        `json:"reason"`
}

// Store holds the set of permanently banned client addresses. Ban state is
// monotonic: records never expire, they are only removed by Unban.
type Store interface {
	IsBanned(ip string) bool
	Find(ip string) (Record, error)

	// Ban is idempotent. The returned bool is true only when the record was
	// newly created; a repeated ban keeps the original record untouched.
	Ban(ip, reason string) (Record, bool)
	Unban(ip string) bool

	All() []Record
	Len() int
}
