package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "ISLANDS"

type Config struct {
	Bind                 string
	Port                 int
	Keepalive            time.Duration
	OfflineAfter         time.Duration
	AbandonAfter         time.Duration
	ReapInterval         time.Duration
	FinishedRetention    time.Duration
	RejectDuplicateUsers bool
	DatabaseURL          string
	Debug                bool
}

// RegisterFlags binds every option to fs with its default.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&c.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: ISLANDS_BIND)")
	fs.IntVarP(&c.Port, "port", "p", 8080, "port to listen on (env: ISLANDS_PORT)")
	fs.DurationVar(&c.Keepalive, "keepalive", 10*time.Second, "interval clients are told to send heartbeats (env: ISLANDS_KEEPALIVE)")
	fs.DurationVar(&c.OfflineAfter, "offline-after", 30*time.Second, "inactivity before a user is reported offline (env: ISLANDS_OFFLINE_AFTER)")
	fs.DurationVar(&c.AbandonAfter, "abandon-after", 10*time.Minute, "time with no connected players before a session is purged (env: ISLANDS_ABANDON_AFTER)")
	fs.DurationVar(&c.ReapInterval, "reap-interval", 5*time.Second, "how often the reaper sweeps (env: ISLANDS_REAP_INTERVAL)")
	fs.DurationVar(&c.FinishedRetention, "finished-retention", 30*time.Second, "how long finished sessions stay readable (env: ISLANDS_FINISHED_RETENTION)")
	fs.BoolVar(&c.RejectDuplicateUsers, "reject-duplicate-users", false, "refuse registering a name that is currently online (env: ISLANDS_REJECT_DUPLICATE_USERS)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "postgres DSN for the match archive, empty disables it (env: ISLANDS_DATABASE_URL)")
	fs.BoolVarP(&c.Debug, "debug", "d", false, "enable debug logging (env: ISLANDS_DEBUG)")
}

// ApplyEnv fills every flag not set on the command line from its
// ISLANDS_* environment variable.
func ApplyEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
			}
		}
	})
	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	for name, d := range map[string]time.Duration{
		"keepalive":          c.Keepalive,
		"offline-after":      c.OfflineAfter,
		"abandon-after":      c.AbandonAfter,
		"reap-interval":      c.ReapInterval,
		"finished-retention": c.FinishedRetention,
	} {
		if d <= 0 {
			return fmt.Errorf("--%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// Warnings lists settings that are legal but likely wrong.
func (c *Config) Warnings() []string {
	var out []string
	if c.OfflineAfter <= c.Keepalive {
		out = append(out, fmt.Sprintf("--offline-after (%s) should exceed --keepalive (%s), or connected users will flicker offline", c.OfflineAfter, c.Keepalive))
	}
	if c.ReapInterval > c.OfflineAfter {
		out = append(out, fmt.Sprintf("--reap-interval (%s) is longer than --offline-after (%s)", c.ReapInterval, c.OfflineAfter))
	}
	return out
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}
