// Package config loads the service configuration. Sources are applied in
// order: built-in defaults, an optional YAML file, ETHAUTH_ environment
// variables and finally the command line flags the user set explicitly.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/goliatone/go-ethauth"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "ETHAUTH_"

type Config struct {
	Server   Server   `koanf:"server" json:"server" envPrefix:"SERVER_"`
	Database Database `koanf:"database" json:"database" envPrefix:"DATABASE_"`
	JWT      JWT      `koanf:"jwt" json:"jwt" envPrefix:"JWT_"`
	Nonce    Nonce    `koanf:"nonce" json:"nonce" envPrefix:"NONCE_"`
	Log      Log      `koanf:"log" json:"log" envPrefix:"LOG_"`
	Tracing  Tracing  `koanf:"tracing" json:"tracing" envPrefix:"TRACING_"`

	// PublicURL is the externally reachable base URL, used in emails.
	PublicURL  string `koanf:"public_url" json:"public_url" env:"PUBLIC_URL"`
	UseHashid  bool   `koanf:"use_hashid" json:"use_hashid" env:"USE_HASHID"`
	BcryptCost int    `koanf:"bcrypt_cost" json:"bcrypt_cost" env:"BCRYPT_COST"`
	Debug      bool   `koanf:"debug" json:"debug" env:"DEBUG"`

	Auth ethauth.Policy `koanf:"auth" json:"auth"`
}

type Server struct {
	Addr string `koanf:"addr" json:"addr" env:"ADDR"`
}

type Database struct {
	Driver      string `koanf:"driver" json:"driver" env:"DRIVER"`
	DSN         string `koanf:"dsn" json:"dsn" env:"DSN"`
	AutoMigrate bool   `koanf:"auto_migrate" json:"auto_migrate" env:"AUTO_MIGRATE"`
}

type JWT struct {
	SigningKey string   `koanf:"signing_key" json:"signing_key" env:"SIGNING_KEY"`
	Issuer     string   `koanf:"issuer" json:"issuer" env:"ISSUER"`
	Audience   []string `koanf:"audience" json:"audience" env:"AUDIENCE" envSeparator:","`
	// Expiration in hours
	Expiration int `koanf:"expiration" json:"expiration" env:"EXPIRATION"`
}

type Nonce struct {
	UpperBound int64 `koanf:"upper_bound" json:"upper_bound" env:"UPPER_BOUND"`
}

type Log struct {
	Level  string `koanf:"level" json:"level" env:"LEVEL"`
	Format string `koanf:"format" json:"format" env:"FORMAT"`
}

type Tracing struct {
	Enabled  bool   `koanf:"enabled" json:"enabled" env:"ENABLED"`
	Endpoint string `koanf:"endpoint" json:"endpoint" env:"ENDPOINT"`
}

// Default returns the configuration used when no source sets a value
func Default() *Config {
	return &Config{
		Server: Server{Addr: ":1337"},
		Database: Database{
			Driver:      ethauth.DriverSQLite,
			DSN:         "file:ethauth.db?cache=shared",
			AutoMigrate: true,
		},
		JWT: JWT{
			Issuer:     "ethauth",
			Expiration: 24 * 30,
		},
		Nonce:      Nonce{UpperBound: ethauth.DefaultNonceUpperBound},
		Log:        Log{Level: "info", Format: "json"},
		PublicURL:  "http://localhost:1337",
		BcryptCost: ethauth.DefaultBcryptCost,
		Auth:       *ethauth.DefaultPolicy(),
	}
}

// RegisterFlags adds the command line overrides to fs. Flag names match
// the configuration keys.
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("config", "", "path to a YAML configuration file")
	fs.String("server.addr", def.Server.Addr, "HTTP listen address")
	fs.String("database.driver", def.Database.Driver, "database driver: sqlite or postgres")
	fs.String("database.dsn", def.Database.DSN, "database connection string")
	fs.Bool("database.auto_migrate", def.Database.AutoMigrate, "apply migrations on start")
	fs.String("log.level", def.Log.Level, "log level: debug, info, warn, error")
	fs.String("log.format", def.Log.Format, "log format: json or text")
	fs.Bool("debug", def.Debug, "dump request payloads")
}

// Load builds the configuration. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	if path == "" && fs != nil {
		path, _ = fs.GetString("config")
	}

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("decode config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if fs != nil {
		// without a koanf instance only the flags set by the user are read
		k := koanf.New(".")
		if err := k.Load(posflag.Provider(fs, ".", nil), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
		k.Delete("config")
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("decode flags: %w", err)
		}
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate will run validation rules
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Database),
		validation.Field(&c.JWT),
		validation.Field(&c.Nonce),
		validation.Field(&c.PublicURL, validation.Required),
	)
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
	)
}

func (d Database) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(ethauth.DriverSQLite, ethauth.DriverPostgres)),
		validation.Field(&d.DSN, validation.Required),
	)
}

func (j JWT) Validate() error {
	return validation.ValidateStruct(&j,
		validation.Field(&j.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&j.Expiration, validation.Required, validation.Min(1)),
	)
}

func (n Nonce) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.UpperBound, validation.Min(ethauth.MinNonceUpperBound)),
	)
}
