package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Build            string
		Env              string // DEV (local; default), TEST, QA, PROD
		Debug            bool
		TestMode         bool
		SecretKey        string
		RollbarToken     string
		SendgridAPIKey   string
		DefaultFromEmail mail.Address

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Presence PresenceConfig
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine     string // postgres | sqlite3
		Host       string
		Port       int
		Name       string
		User       string
		Password   string
		DisableTLS bool
		Path       string // sqlite3 only
	}

	RedisConfig struct {
		Address  string // empty: in-memory presence & revocation stores
		Password string
		DB       int
	}

	PresenceConfig struct {
		TTL           time.Duration
		SweepInterval time.Duration
	}
)

// Address returns the postgres "host:port" pair.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewConfig loads the configuration from defaults, an optional `config/.env.<env>` file
// and the environment (variables prefixed with the env name, e.g. `PROD_SECRET_KEY`).
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("app_name", "Triolingo")
	v.SetDefault("build", "develop")
	v.SetDefault("secret_key", "t9o-l!ngo_dev+k3y=(change-me)@x7q2w#vzb8")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("default_from_email", "noreply@localhost")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":3001")
	v.SetDefault("server.debug_host", ":4001")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.jwt_expiration_delta", 7*24*time.Hour)
	v.SetDefault("database.engine", "sqlite3")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "triolingo")
	v.SetDefault("database.user", "triolingo")
	v.SetDefault("database.password", "")
	v.SetDefault("database.disable_tls", env == "DEV" || env == "TEST")
	v.SetDefault("database.path", filepath.Join("data", "triolingo.db"))
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("presence.ttl", 5*time.Minute)
	v.SetDefault("presence.sweep_interval", time.Minute)

	return &Config{
		AppName:          v.GetString("app_name"),
		Build:            v.GetString("build"),
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         env == "TEST",
		SecretKey:        v.GetString("secret_key"),
		RollbarToken:     v.GetString("rollbar_token"),
		SendgridAPIKey:   v.GetString("sendgrid_api_key"),
		DefaultFromEmail: mail.Address{Name: v.GetString("app_name"), Address: v.GetString("default_from_email")},
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugHost:          v.GetString("server.debug_host"),
			ShutdownTimeout:    v.GetDuration("server.shutdown_timeout"),
			JWTExpirationDelta: v.GetDuration("server.jwt_expiration_delta"),
		},
		Database: DatabaseConfig{
			Engine:     v.GetString("database.engine"),
			Host:       v.GetString("database.host"),
			Port:       v.GetInt("database.port"),
			Name:       v.GetString("database.name"),
			User:       v.GetString("database.user"),
			Password:   v.GetString("database.password"),
			DisableTLS: v.GetBool("database.disable_tls"),
			Path:       v.GetString("database.path"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Presence: PresenceConfig{
			TTL:           v.GetDuration("presence.ttl"),
			SweepInterval: v.GetDuration("presence.sweep_interval"),
		},
	}
}
