package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration. It is loaded once by the command
// and passed by pointer to the components that need it.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Program       ProgramConfig       `mapstructure:"program"`
	Payout        PayoutConfig        `mapstructure:"payout"`
	Collaborators CollaboratorsConfig `mapstructure:"collaborators"`
	Leader        LeaderConfig        `mapstructure:"leader"`
	Disbursement  DisbursementConfig  `mapstructure:"disbursement"`
}

type DatabaseConfig struct {
	DSN              string        `mapstructure:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

type LogConfig struct {
	Format string `mapstructure:"format"` // "text" or "json"
	Level  string `mapstructure:"level"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ProgramConfig describes the subsidy scheme itself.
type ProgramConfig struct {
	Timezone       string `mapstructure:"timezone"`
	Start          string `mapstructure:"start"` // YYYY-MM-DD
	AgeLimit       int    `mapstructure:"age_limit"`
	LookBackMonths int    `mapstructure:"look_back_months"`
	RateSchedule   string `mapstructure:"rate_schedule"` // optional YAML file; embedded default when empty
}

// PayoutConfig drives the payment scheduler.
type PayoutConfig struct {
	PromoteGrace    time.Duration `mapstructure:"promote_grace"`
	BatchDueDays    int           `mapstructure:"batch_due_days"`
	RetryAfter      time.Duration `mapstructure:"retry_after"`
	BatchSoftLimit  int           `mapstructure:"batch_soft_limit"`
	PromoteInterval time.Duration `mapstructure:"promote_interval"`
	SubmitInterval  time.Duration `mapstructure:"submit_interval"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
}

type CollaboratorsConfig struct {
	IdentityURL   string        `mapstructure:"identity_url"`
	MembershipURL string        `mapstructure:"membership_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxAttempts   uint          `mapstructure:"max_attempts"`
}

type LeaderConfig struct {
	Mode       string        `mapstructure:"mode"` // "redis", "http" or "static"
	Key        string        `mapstructure:"key"`
	TTL        time.Duration `mapstructure:"ttl"`
	ElectorURL string        `mapstructure:"elector_url"`
	Static     bool          `mapstructure:"static"` // leadership for mode "static"
}

type DisbursementConfig struct {
	Channel      string `mapstructure:"channel"` // "redis" or "file"
	Topic        string `mapstructure:"topic"`
	ConfirmTopic string `mapstructure:"confirm_topic"`
	OutboxDir    string `mapstructure:"outbox_dir"`
}

// EnvPrefix prefixes every environment override, e.g. BRILLE_DATABASE_DSN.
const EnvPrefix = "BRILLE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.statement_timeout", 30*time.Second)

	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "info")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("program.timezone", "Europe/Oslo")
	v.SetDefault("program.start", "2023-08-01")
	v.SetDefault("program.age_limit", 18)
	v.SetDefault("program.look_back_months", 6)
	v.SetDefault("program.rate_schedule", "")

	v.SetDefault("payout.promote_grace", 24*time.Hour)
	v.SetDefault("payout.batch_due_days", 8)
	v.SetDefault("payout.retry_after", 72*time.Hour)
	v.SetDefault("payout.batch_soft_limit", 100)
	v.SetDefault("payout.promote_interval", 10*time.Minute)
	v.SetDefault("payout.submit_interval", 15*time.Minute)
	v.SetDefault("payout.retry_interval", time.Hour)

	v.SetDefault("collaborators.identity_url", "")
	v.SetDefault("collaborators.membership_url", "")
	v.SetDefault("collaborators.timeout", 5*time.Second)
	v.SetDefault("collaborators.max_attempts", 3)

	v.SetDefault("leader.mode", "redis")
	v.SetDefault("leader.key", "brillestotte:leader")
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("leader.elector_url", "")
	v.SetDefault("leader.static", false)

	v.SetDefault("disbursement.channel", "redis")
	v.SetDefault("disbursement.topic", "brillestotte.batches")
	v.SetDefault("disbursement.confirm_topic", "brillestotte.confirmations")
	v.SetDefault("disbursement.outbox_dir", "outbox")
}

// Load reads defaults, then the optional YAML file at path, then BRILLE_*
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Location returns the business timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Program.Timezone)
	if err != nil {
		return nil, fmt.Errorf("program.timezone: %w", err)
	}
	return loc, nil
}

// ProgramStart returns the scheme start date at UTC midnight.
func (c *Config) ProgramStart() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.Program.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("program.start: %w", err)
	}
	return t, nil
}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.ProgramStart(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Program.AgeLimit <= 0 {
		return fmt.Errorf("program.age_limit must be positive")
	}
	if c.Program.LookBackMonths <= 0 {
		return fmt.Errorf("program.look_back_months must be positive")
	}
	if c.Payout.BatchDueDays < 0 {
		return fmt.Errorf("payout.batch_due_days must not be negative")
	}
	if c.Payout.BatchSoftLimit <= 0 {
		return fmt.Errorf("payout.batch_soft_limit must be positive")
	}
	for name, d := range map[string]time.Duration{
		"payout.promote_interval": c.Payout.PromoteInterval,
		"payout.submit_interval":  c.Payout.SubmitInterval,
		"payout.retry_interval":   c.Payout.RetryInterval,
		"payout.retry_after":      c.Payout.RetryAfter,
		"collaborators.timeout":   c.Collaborators.Timeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Collaborators.MaxAttempts == 0 {
		return fmt.Errorf("collaborators.max_attempts must be at least 1")
	}
	switch c.Leader.Mode {
	case "redis", "static":
	case "http":
		if c.Leader.ElectorURL == "" {
			return fmt.Errorf("leader.elector_url is required for leader.mode http")
		}
	default:
		return fmt.Errorf("leader.mode must be redis, http or static, got %q", c.Leader.Mode)
	}
	switch c.Disbursement.Channel {
	case "redis", "file":
	default:
		return fmt.Errorf("disbursement.channel must be redis or file, got %q", c.Disbursement.Channel)
	}
	return nil
}

// ValidateWithDSN also requires a database connection string.
func (c *Config) ValidateWithDSN() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("--dsn or BRILLE_DATABASE_DSN is required")
	}
	return nil
}

// ValidateCollaborators requires the registry endpoints used by decide and serve.
func (c *Config) ValidateCollaborators() error {
	if c.Collaborators.IdentityURL == "" || c.Collaborators.MembershipURL == "" {
		return fmt.Errorf("collaborators.identity_url and collaborators.membership_url are required")
	}
	return nil
}
