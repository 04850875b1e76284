// Package config loads service settings from the environment.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// Config holds every setting of the service. Keys match environment
// variable names, lower-cased.
type Config struct {
	Debug      bool   `mapstructure:"debug"`
	ListenPort string `mapstructure:"functions_customhandler_port"`

	StorageConnectionString string `mapstructure:"storage_connection_string"`
	ClientsTable            string `mapstructure:"clients_table"`
	ProposalsTable          string `mapstructure:"proposals_table"`
	ContractsTable          string `mapstructure:"contracts_table"`
	TransactionsTable       string `mapstructure:"transactions_table"`
	ServicesTable           string `mapstructure:"services_table"`
	ActivityTable           string `mapstructure:"activity_table"`
	EventsQueue             string `mapstructure:"domain_events_queue"`
	QueueConcurrency        int    `mapstructure:"queue_concurrency"`

	RedisConnectionString string        `mapstructure:"redis_connection_string"`
	CacheTTL              time.Duration `mapstructure:"cache_ttl"`
	DeduperTTL            time.Duration `mapstructure:"deduper_ttl"`
	BoardChannel          string        `mapstructure:"board_updates_channel"`

	Auth0TestMode bool          `mapstructure:"auth0_test_mode"`
	Auth0Domain   string        `mapstructure:"auth0_domain"`
	Auth0Audience string        `mapstructure:"auth0_audience"`
	TestJWTSecret string        `mapstructure:"test_jwt_secret"`
	JWKSCacheTTL  time.Duration `mapstructure:"jwks_cache_ttl"`
	RolesClaim    string        `mapstructure:"auth0_roles_claim"`

	// Zero publisher sizes are derived from queue concurrency and CPU count.
	PublisherWorkers        int           `mapstructure:"publisher_workers"`
	PublisherBuffer         int           `mapstructure:"publisher_buffer"`
	PublisherTimeout        time.Duration `mapstructure:"publisher_timeout"`
	PublisherHandoffTimeout time.Duration `mapstructure:"publisher_handoff_timeout"`

	ProjectorBatch      int           `mapstructure:"projector_batch"`
	ProjectorPoll       time.Duration `mapstructure:"projector_poll_interval"`
	ProjectorVisibility time.Duration `mapstructure:"projector_visibility_timeout"`

	Timezone      string `mapstructure:"timezone"`
	BoardTemplate string `mapstructure:"board_template"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("functions_customhandler_port", "8080")
	v.SetDefault("storage_connection_string", "")
	v.SetDefault("clients_table", "Clients")
	v.SetDefault("proposals_table", "Proposals")
	v.SetDefault("contracts_table", "Contracts")
	v.SetDefault("transactions_table", "Transactions")
	v.SetDefault("services_table", "Services")
	v.SetDefault("activity_table", "Activity")
	v.SetDefault("domain_events_queue", "domain-events")
	v.SetDefault("queue_concurrency", 0)
	v.SetDefault("redis_connection_string", "")
	v.SetDefault("cache_ttl", 10*time.Minute)
	v.SetDefault("deduper_ttl", 24*time.Hour)
	v.SetDefault("board_updates_channel", "board-updates")
	v.SetDefault("auth0_test_mode", false)
	v.SetDefault("auth0_domain", "")
	v.SetDefault("auth0_audience", "")
	v.SetDefault("test_jwt_secret", "")
	v.SetDefault("jwks_cache_ttl", 15*time.Minute)
	v.SetDefault("auth0_roles_claim", "https://bizdesk.app/roles")
	v.SetDefault("publisher_workers", 0)
	v.SetDefault("publisher_buffer", 0)
	v.SetDefault("publisher_timeout", 30*time.Second)
	v.SetDefault("publisher_handoff_timeout", 15*time.Millisecond)
	v.SetDefault("projector_batch", 16)
	v.SetDefault("projector_poll_interval", time.Second)
	v.SetDefault("projector_visibility_timeout", 30*time.Second)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("board_template", "")
}

// Load reads configuration from the environment. A config file (YAML, TOML
// or JSON) named by BIZDESK_CONFIG is read first when set; environment
// variables always win.
func Load() (Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	if path := v.GetString("bizdesk_config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Validate reports missing or inconsistent settings for the serve command.
func (c Config) Validate() error {
	var errs []error
	if c.StorageConnectionString == "" {
		errs = append(errs, errors.New("missing STORAGE_CONNECTION_STRING"))
	}
	if c.RedisConnectionString == "" {
		errs = append(errs, errors.New("missing REDIS_CONNECTION_STRING"))
	}
	if c.Auth0TestMode {
		if c.TestJWTSecret == "" {
			errs = append(errs, errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE is on"))
		}
	} else if c.Auth0Domain == "" || c.Auth0Audience == "" {
		errs = append(errs, errors.New("missing Auth0 config"))
	}
	if c.DeduperTTL <= 0 {
		errs = append(errs, errors.New("invalid DEDUPER_TTL: must be positive"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("invalid CACHE_TTL: must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateStorage reports missing settings for commands that only talk to
// the table service and queue.
func (c Config) ValidateStorage() error {
	if c.StorageConnectionString == "" {
		return errors.New("missing STORAGE_CONNECTION_STRING")
	}
	return nil
}

// Location resolves the timezone used for day counts.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ListenAddr is the address the HTTP server binds.
func (c Config) ListenAddr() string {
	return ":" + c.ListenPort
}

// RedisOptions parses a redis URL or the "host:port,password=...,ssl=true"
// form used by managed Redis connection strings.
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}
