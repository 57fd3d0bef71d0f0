package server

import (
	"net"
	"net/http"
	"strings"

	"github.com/sonicbuilder/sentinel/pkg/alert"
)

// clientIP resolves the caller's address. The first X-Forwarded-For entry
// wins when present: the service sits behind a trusted reverse proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// gate runs the ban and rate checks every request passes through,
// authenticated or not. A banned or rate-limited caller gets nothing, not
// even liveness. Returns the caller's IP and whether to proceed.
func (s *Server) gate(w http.ResponseWriter, r *http.Request) (string, bool) {
	ip := clientIP(r)

	if s.store.IsBanned(ip) {
		s.audit.Record("banned_access", ip, "access attempt to "+r.URL.Path)
		s.notifier.Notify(alert.NewEvent(alert.KindBannedAccess, ip, r.URL.Path, "access attempt from banned IP"))
		writeReject(w, http.StatusForbidden)
		return "", false
	}

	if !s.limiter.Allow(ip) {
		s.audit.Record("rate_limit", ip, "rate limit triggered on "+r.URL.Path)
		s.notifier.Notify(alert.NewEvent(alert.KindRateLimit, ip, r.URL.Path, "rate limit exceeded"))
		writeReject(w, http.StatusTooManyRequests)
		return "", false
	}

	return ip, true
}

// public wraps the unauthenticated endpoints. They still sit behind the
// ban and rate checks.
func (s *Server) public(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.gate(w, r); !ok {
			return
		}

		h(w, r)
	}
}

// protected wraps the authenticated endpoints: ban check, rate check, then
// the key check. A failure that trips the brute-force limit is answered as
// banned, not merely unauthorized.
func (s *Server) protected(h func(w http.ResponseWriter, r *http.Request, ip string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, ok := s.gate(w, r)
		if !ok {
			return
		}

		if !s.auth.Authenticate(r) {
			if s.guard.RecordFailure(ip, r.URL.Path) {
				s.audit.Record("ban", ip, "permanently banned after repeated failed auth attempts")
				writeReject(w, http.StatusForbidden)
			} else {
				s.audit.Record("invalid_key", ip, "invalid key on "+r.URL.Path)
				writeReject(w, http.StatusUnauthorized)
			}
			return
		}

		s.guard.RecordSuccess(ip)
		h(w, r, ip)
	}
}
