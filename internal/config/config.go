package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config is read from the environment at startup. FOUNDER_API_KEY is the
// only required variable: the service refuses to start without a secret
// rather than run with authentication effectively disabled.
type Config struct {
	APIKey         string `envconfig:"FOUNDER_API_KEY" required:"true"`
	DiscordWebhook string `envconfig:"DISCORD_WEBHOOK"`
	Port           int    `envconfig:"PORT" default:"8080"`

	BanFile     string        `envconfig:"BAN_FILE" default:"banned_ips.json"`
	AuditFile   string        `envconfig:"AUDIT_FILE" default:"security_audit.json"`
	RateWindow  time.Duration `envconfig:"RATE_WINDOW" default:"10s"`
	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"5"`

	PauseFlag     string        `envconfig:"PAUSE_FLAG" default:"pause.flag"`
	SchedulerLog  string        `envconfig:"SCHEDULER_LOG" default:"scheduler.log"`
	VerifyLog     string        `envconfig:"VERIFY_LOG" default:"verify.log"`
	DeployScript  string        `envconfig:"DEPLOY_SCRIPT" default:"./autodeploy.sh"`
	DeployTimeout time.Duration `envconfig:"DEPLOY_TIMEOUT" default:"2m"`

	FirewallEnforce bool `envconfig:"FIREWALL_ENFORCE" default:"false"`
}

func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}

	return c, nil
}
