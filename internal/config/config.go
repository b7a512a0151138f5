// Package config loads process settings from .env, PUSHLEOPARD_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"flag"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/pkg/errors"
)

const EnvPrefix = "PUSHLEOPARD"

type Config struct {
	DatabaseURL string
	AMQPURL     string
	HTTPAddr    string

	TickInterval      time.Duration
	PageSize          int
	FanoutConcurrency int
	PushRate          float64
	PushTTL           time.Duration
	DeliveryTimeout   time.Duration

	VAPIDSubject    string
	VAPIDPublicKey  string
	VAPIDPrivateKey string

	LogLevel  string
	LogFormat string

	// Args holds positional arguments left after flags.
	Args []string
}

// Load reads ".env" from the working directory when present and then parses
// args.
func Load(name string, args []string) (Config, error) {
	return LoadWithEnvFile(name, ".env", args)
}

func LoadWithEnvFile(name, envFile string, args []string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Wrapf(err, "load %s", envFile)
		}
	}

	var cfg Config
	fset := flag.NewFlagSet(name, flag.ContinueOnError)
	fset.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres connection string")
	fset.StringVar(&cfg.AMQPURL, "amqp-url", "", "AMQP broker url; empty uses the in-process queue")
	fset.StringVar(&cfg.HTTPAddr, "http-addr", ":8080", "HTTP listen address")
	fset.DurationVar(&cfg.TickInterval, "tick-interval", time.Minute, "scheduler tick cadence")
	fset.IntVar(&cfg.PageSize, "page-size", 500, "rows per page when scanning campaigns and subscriptions")
	fset.IntVar(&cfg.FanoutConcurrency, "fanout-concurrency", 8, "concurrent deliveries per campaign")
	fset.Float64Var(&cfg.PushRate, "push-rate", 50, "push requests per second across a dispatch")
	fset.DurationVar(&cfg.PushTTL, "push-ttl", 60*time.Second, "TTL hint sent to the push service")
	fset.DurationVar(&cfg.DeliveryTimeout, "delivery-timeout", 10*time.Second, "upper bound for a single push request")
	fset.StringVar(&cfg.VAPIDSubject, "vapid-subject", "", "VAPID subject, a mailto: address or URL")
	fset.StringVar(&cfg.VAPIDPublicKey, "vapid-public-key", "", "VAPID public key, base64url")
	fset.StringVar(&cfg.VAPIDPrivateKey, "vapid-private-key", "", "VAPID private key, base64url")
	fset.StringVar(&cfg.LogLevel, "log-level", "info", "trace, debug, info, warn or error")
	fset.StringVar(&cfg.LogFormat, "log-format", "json", "json or console")
	_ = fset.String("config", "", "optional config file (key value per line)")

	if err := ff.Parse(fset, args,
		ff.WithEnvVarPrefix(EnvPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}

	cfg.Args = fset.Args()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.TickInterval <= 0:
		return errors.New("tick-interval must be positive")
	case c.PageSize <= 0:
		return errors.New("page-size must be positive")
	case c.FanoutConcurrency <= 0:
		return errors.New("fanout-concurrency must be positive")
	case c.PushRate <= 0:
		return errors.New("push-rate must be positive")
	case c.DeliveryTimeout <= 0:
		return errors.New("delivery-timeout must be positive")
	}
	return nil
}

// RequirePush reports missing settings needed to send pushes.
func (c Config) RequirePush() error {
	if c.VAPIDSubject == "" || c.VAPIDPublicKey == "" || c.VAPIDPrivateKey == "" {
		return errors.New("vapid-subject, vapid-public-key and vapid-private-key are required")
	}
	return nil
}
