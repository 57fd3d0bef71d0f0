package server

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/sonicbuilder/sentinel/pkg/alert"
	"github.com/sonicbuilder/sentinel/pkg/audit"
	"github.com/sonicbuilder/sentinel/pkg/banlist"
	"github.com/sonicbuilder/sentinel/pkg/scheduler"
	"github.com/sonicbuilder/sentinel/pkg/unixtime"
)

const auditViewLimit = 100

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("error: %v\n", err)
	}
}

// writeReject answers every rejection with the same minimal shape. The
// status code alone distinguishes banned, rate-limited, and bad key; the
// body never carries attempt counts or ban metadata a prober could use.
func writeReject(w http.ResponseWriter, code int) {
	writeJSON(w, code, struct {
		Error string `json:"error"`
	}{
		Error: strings.ToLower(http.StatusText(code)),
	})
}

func writeError(err error, w http.ResponseWriter, code int) {
	log.Printf("error: %v\n", err)
	writeReject(w, code)
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	res := struct {
		Service   string            `json:"service"`
		Status    string            `json:"status"`
		Timestamp unixtime.Time     `json:"timestamp"`
		Endpoints map[string]string `json:"endpoints"`
		Security  struct {
			RateLimitSeconds  int  `json:"rate_limit_seconds"`
			MaxFailedAttempts int  `json:"max_failed_attempts"`
			PersistentBans    bool `json:"persistent_bans"`
			BannedIPsCount    int  `json:"banned_ips_count"`
		} `json:"security"`
	}{
		Service:   "SonicBuilder Sentinel",
		Status:    "online",
		Timestamp: unixtime.Now(),
		Endpoints: map[string]string{
			"GET /":        "service info (public)",
			"GET /health":  "health check (public)",
			"GET /status":  "scheduler status (auth required)",
			"POST /pause":  "pause scheduler (auth required)",
			"POST /resume": "resume scheduler (auth required)",
			"POST /deploy": "trigger deploy (auth required)",
			"GET /bans":    "view ban list (auth required)",
			"POST /unban":  "remove IP from ban list (auth required)",
			"GET /audit":   "view security audit log (auth required)",
		},
	}
	res.Security.RateLimitSeconds = int(s.cfg.RateWindow.Seconds())
	res.Security.MaxFailedAttempts = s.cfg.MaxAttempts
	res.Security.PersistentBans = true
	res.Security.BannedIPsCount = s.store.Len()

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	res := struct {
		Status            string        `json:"status"`
		Service           string        `json:"service"`
		AuthConfigured    bool          `json:"auth_configured"`
		DiscordConfigured bool          `json:"discord_configured"`
		BannedIPsCount    int           `json:"banned_ips_count"`
		AuditEntriesCount int           `json:"audit_entries_count"`
		Timestamp         unixtime.Time `json:"timestamp"`
	}{
		Status:            "ok",
		Service:           "SonicBuilder Sentinel",
		AuthConfigured:    true,
		DiscordConfigured: s.cfg.DiscordWebhook != "",
		BannedIPsCount:    s.store.Len(),
		AuditEntriesCount: s.audit.Len(),
		Timestamp:         unixtime.Now(),
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request, ip string) {
	s.audit.Record("status", ip, "status checked")
	s.notifier.Notify(alert.NewEvent(alert.KindStatus, ip, "/status", "status checked"))

	st := s.sched.Status()
	res := struct {
		Status           string          `json:"status"`
		Paused           bool            `json:"paused"`
		SchedulerRunning bool            `json:"scheduler_running"`
		Stats            scheduler.Stats `json:"stats"`
		SchedulerLog     []string        `json:"scheduler_log"`
		VerifyLog        []string        `json:"verify_log"`
		Timestamp        unixtime.Time   `json:"timestamp"`
	}{
		Status:           "ok",
		Paused:           st.Paused,
		SchedulerRunning: st.SchedulerRunning,
		Stats:            st.Stats,
		SchedulerLog:     st.SchedulerLog,
		VerifyLog:        st.VerifyLog,
		Timestamp:        unixtime.Now(),
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) pause(w http.ResponseWriter, _ *http.Request, ip string) {
	if err := s.sched.Pause(); err != nil {
		writeError(err, w, http.StatusInternalServerError)
		return
	}

	s.audit.Record("pause", ip, "scheduler paused")
	s.notifier.Notify(alert.NewEvent(alert.KindPause, ip, "/pause", "scheduler paused"))

	writeJSON(w, http.StatusOK, struct {
		Status    string        `json:"status"`
		Action    string        `json:"action"`
		Message   string        `json:"message"`
		Timestamp unixtime.Time `json:"timestamp"`
	}{
		Status:    "success",
		Action:    "paused",
		Message:   "scheduler will pause at next cycle check",
		Timestamp: unixtime.Now(),
	})
}

func (s *Server) resume(w http.ResponseWriter, _ *http.Request, ip string) {
	removed, err := s.sched.Resume()
	if err != nil {
		writeError(err, w, http.StatusInternalServerError)
		return
	}

	s.audit.Record("resume", ip, "scheduler resumed")
	s.notifier.Notify(alert.NewEvent(alert.KindResume, ip, "/resume", "scheduler resumed"))

	message := "scheduler will resume at next cycle"
	if !removed {
		message = "scheduler was not paused"
	}

	writeJSON(w, http.StatusOK, struct {
		Status      string        `json:"status"`
		Action      string        `json:"action"`
		FlagRemoved bool          `json:"flag_removed"`
		Message     string        `json:"message"`
		Timestamp   unixtime.Time `json:"timestamp"`
	}{
		Status:      "success",
		Action:      "resumed",
		FlagRemoved: removed,
		Message:     message,
		Timestamp:   unixtime.Now(),
	})
}

func (s *Server) deploy(w http.ResponseWriter, r *http.Request, ip string) {
	s.audit.Record("deploy", ip, "manual deploy triggered")
	s.notifier.Notify(alert.NewEvent(alert.KindDeploy, ip, "/deploy", "manual deploy triggered"))

	out, err := s.sched.Deploy(r.Context())
	if err != nil {
		log.Printf("deploy failed: %v\n", err)
		s.audit.Record("deploy_failed", ip, err.Error())

		writeJSON(w, http.StatusInternalServerError, struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}{
			Status: "error",
			Error:  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Status      string        `json:"status"`
		Action      string        `json:"action"`
		OutputLines int           `json:"output_lines"`
		Timestamp   unixtime.Time `json:"timestamp"`
	}{
		Status:      "success",
		Action:      "deployed",
		OutputLines: len(strings.Split(strings.TrimRight(out, "\n"), "\n")),
		Timestamp:   unixtime.Now(),
	})
}

func (s *Server) bans(w http.ResponseWriter, _ *http.Request, ip string) {
	records := s.store.All()
	s.audit.Record("bans_view", ip, "viewed ban list")

	writeJSON(w, http.StatusOK, struct {
		Status    string           `json:"status"`
		BannedIPs []banlist.Record `json:"banned_ips"`
		Count     int              `json:"count"`
		Timestamp unixtime.Time    `json:"timestamp"`
	}{
		Status:    "ok",
		BannedIPs: records,
		Count:     len(records),
		Timestamp: unixtime.Now(),
	})
}

func (s *Server) unban(w http.ResponseWriter, r *http.Request, ip string) {
	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(err, w, http.StatusBadRequest)
		return
	}

	if net.ParseIP(body.IP) == nil {
		writeJSON(w, http.StatusBadRequest, struct {
			Error string `json:"error"`
		}{
			Error: "missing or invalid ip field",
		})
		return
	}

	if !s.guard.Unban(body.IP) {
		writeJSON(w, http.StatusOK, struct {
			Status    string        `json:"status"`
			Message   string        `json:"message"`
			IP        string        `json:"ip"`
			Timestamp unixtime.Time `json:"timestamp"`
		}{
			Status:    "info",
			Message:   "IP was not in ban list",
			IP:        body.IP,
			Timestamp: unixtime.Now(),
		})
		return
	}

	s.audit.Record("unban", ip, "unbanned IP "+body.IP)

	writeJSON(w, http.StatusOK, struct {
		Status        string        `json:"status"`
		Action        string        `json:"action"`
		IP            string        `json:"ip"`
		RemainingBans int           `json:"remaining_bans"`
		Timestamp     unixtime.Time `json:"timestamp"`
	}{
		Status:        "success",
		Action:        "unbanned",
		IP:            body.IP,
		RemainingBans: s.store.Len(),
		Timestamp:     unixtime.Now(),
	})
}

func (s *Server) auditView(w http.ResponseWriter, _ *http.Request, ip string) {
	entries := s.audit.Tail(auditViewLimit)
	s.audit.Record("audit_view", ip, "viewed audit log")

	writeJSON(w, http.StatusOK, struct {
		Status    string        `json:"status"`
		Entries   []audit.Entry `json:"audit_entries"`
		Count     int           `json:"count"`
		Timestamp unixtime.Time `json:"timestamp"`
	}{
		Status:    "ok",
		Entries:   entries,
		Count:     s.audit.Len(),
		Timestamp: unixtime.Now(),
	})
}
