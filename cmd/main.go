package main

import (
	"log"
	"os"
	"os/signal"

	"github.com/sonicbuilder/sentinel/internal/config"
	"github.com/sonicbuilder/sentinel/internal/server"
	"github.com/sonicbuilder/sentinel/pkg/alert"
	"github.com/sonicbuilder/sentinel/pkg/banlist"
	"github.com/sonicbuilder/sentinel/pkg/firewall"
)

func main() {
	log.Println("starting sentinel")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v\n", err)
	}

	store := banlist.NewFileStore(cfg.BanFile)
	log.Printf("loaded %v banned IPs from %v\n", store.Len(), cfg.BanFile)

	var notifier alert.Notifier = alert.Nop{}
	if cfg.DiscordWebhook != "" {
		notifier = alert.NewDiscord(cfg.DiscordWebhook)
		log.Println("discord notifications enabled")
	}

	var enforcer firewall.Enforcer = firewall.Nop{}
	if cfg.FirewallEnforce {
		enforcer = firewall.NewIPTables()
		log.Println("iptables enforcement enabled")
	}

	s, err := server.New(cfg, store, notifier, enforcer)
	if err != nil {
		log.Fatalf("unable to start server: %v\n", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	go s.ListenAndServe()

	<-stop
	log.Println("stopping sentinel")

	if err := s.Shutdown(); err != nil {
		log.Fatalf("failed to stop server: %v\n", err)
	}
}
