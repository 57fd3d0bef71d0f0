package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sonicbuilder/sentinel/internal/config"
	"github.com/sonicbuilder/sentinel/pkg/alert"
	"github.com/sonicbuilder/sentinel/pkg/audit"
	"github.com/sonicbuilder/sentinel/pkg/banlist"
	"github.com/sonicbuilder/sentinel/pkg/firewall"
	"github.com/sonicbuilder/sentinel/pkg/guard"
	"github.com/sonicbuilder/sentinel/pkg/ratelimit"
	"github.com/sonicbuilder/sentinel/pkg/scheduler"
)

type Server struct {
	cfg      config.Config
	store    banlist.Store
	guard    *guard.Guard
	auth     *guard.Authenticator
	limiter  *ratelimit.Limiter
	audit    *audit.Log
	notifier alert.Notifier
	sched    *scheduler.Controller

	server *http.Server
}

func New(cfg config.Config, store banlist.Store, notifier alert.Notifier, enforcer firewall.Enforcer) (*Server, error) {
	auth, err := guard.NewAuthenticator(cfg.APIKey)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		store:    store,
		guard:    guard.New(store, notifier, enforcer, cfg.MaxAttempts),
		auth:     auth,
		limiter:  ratelimit.New(cfg.RateWindow),
		audit:    audit.Open(cfg.AuditFile),
		notifier: notifier,
		sched:    scheduler.New(cfg.PauseFlag, cfg.SchedulerLog, cfg.VerifyLog, cfg.DeployScript, cfg.DeployTimeout),
	}

	s.guard.EnforceAll()

	return s, nil
}

// Handler builds the routing table. CORS is open so the static dashboard
// hosted on GitHub Pages can reach the API.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter().StrictSlash(true)

	router.HandleFunc("/", s.public(s.root)).Methods(http.MethodGet)
	router.HandleFunc("/health", s.public(s.health)).Methods(http.MethodGet)

	router.HandleFunc("/status", s.protected(s.status)).Methods(http.MethodGet)
	router.HandleFunc("/pause", s.protected(s.pause)).Methods(http.MethodPost)
	router.HandleFunc("/resume", s.protected(s.resume)).Methods(http.MethodPost)
	router.HandleFunc("/deploy", s.protected(s.deploy)).Methods(http.MethodPost)

	router.HandleFunc("/bans", s.protected(s.bans)).Methods(http.MethodGet)
	router.HandleFunc("/unban", s.protected(s.unban)).Methods(http.MethodPost)
	router.HandleFunc("/audit", s.protected(s.auditView)).Methods(http.MethodGet)

	return cors.Default().Handler(router)
}

func (s *Server) ListenAndServe() {
	s.server = &http.Server{Addr: fmt.Sprintf(":%d", s.cfg.Port), Handler: s.Handler()}

	log.Printf("listening on %v\n", s.server.Addr)
	log.Fatalln(s.server.ListenAndServe())
}

func (s *Server) Shutdown() error {
	s.limiter.Close()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
