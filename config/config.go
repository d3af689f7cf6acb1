package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port          int    `mapstructure:"port"`
	DBPath        string `mapstructure:"db_path"`
	PublicBaseURL string `mapstructure:"public_base_url"`

	WebhookWorkers   int           `mapstructure:"webhook_workers"`
	WebhookQueueSize int           `mapstructure:"webhook_queue_size"`
	SweepSchedule    string        `mapstructure:"sweep_schedule"`
	StaleEventAfter  time.Duration `mapstructure:"stale_event_after"`

	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	CloudDomainList string        `mapstructure:"cloud_domains"`

	SlackBotToken     string `mapstructure:"slack_bot_token"`
	SlackAlertChannel string `mapstructure:"slack_alert_channel"`
}

var defaults = map[string]interface{}{
	"port":                8080,
	"db_path":             "jira_sync.db",
	"public_base_url":     "",
	"webhook_workers":     4,
	"webhook_queue_size":  256,
	"sweep_schedule":      "*/5 * * * *",
	"stale_event_after":   "2m",
	"probe_timeout":       "30s",
	"request_timeout":     "15s",
	"cloud_domains":       "atlassian.net,jira.com",
	"slack_bot_token":     "",
	"slack_alert_channel": "",
}

// Load reads envFile into the environment when it exists, then resolves
// every key from the environment or its default.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.WebhookWorkers <= 0 {
		return fmt.Errorf("WEBHOOK_WORKERS must be positive, got %d", c.WebhookWorkers)
	}
	if c.WebhookQueueSize <= 0 {
		return fmt.Errorf("WEBHOOK_QUEUE_SIZE must be positive, got %d", c.WebhookQueueSize)
	}
	if len(c.CloudDomains()) == 0 {
		return errors.New("CLOUD_DOMAINS must name at least one domain")
	}
	return nil
}

// CloudDomains splits CLOUD_DOMAINS into lower-case host suffixes.
func (c *Config) CloudDomains() []string {
	var out []string
	for _, d := range strings.Split(c.CloudDomainList, ",") {
		d = strings.ToLower(strings.Trim(strings.TrimSpace(d), "."))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SlackEnabled reports whether failure notifications can be sent.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAlertChannel != ""
}
