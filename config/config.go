// Package config loads application settings from a .env file and environment variables.
// Environment variables always take precedence over .env file values.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers understood by db.Setup.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrInvalidConfig is returned by Parse when a required setting is missing or malformed.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all application configuration.
type Config struct {
	// DBDriver selects the storage engine: sqlite (embedded, default) or postgres.
	DBDriver   string
	SQLitePath string

	// PostgreSQL – either set DatabaseURL directly, or the individual fields.
	DatabaseURL string
	DBUser      string
	DBPass      string
	DBHost      string
	DBPort      string
	DBName      string
	DBSSLMode   string

	// JWT signing secret (required).
	JWTSecret string

	// Writer identity seeded into the users table at startup.
	WriterUsername string
	WriterPassword string

	// Server
	Debug      bool
	Port       string
	TLSDomains []string

	// Live broadcast sizing.
	HubQueueSize   int
	ObserverBuffer int

	// MQTT reader bridge; disabled when MQTTBroker is empty.
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string

	// MySQL roster – used only by cmd/seed.
	RosterDSN string
}

// Load reads configuration from a .env file (if present) and then from
// environment variables. Environment variables always win.
func Load() *Config {
	cfg, err := Parse(newViper())
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// Parse applies defaults to v and builds a validated Config from it.
func Parse(v *viper.Viper) (*Config, error) {
	// Defaults
	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("SQLITE_PATH", "tracker.db")
	v.SetDefault("DB_USER", "tracker")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "tracker")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("WRITER_USERNAME", "username")
	v.SetDefault("WRITER_PASSWORD", "password")
	v.SetDefault("PORT", ":5000")
	v.SetDefault("TLS_DOMAINS", "")
	v.SetDefault("DEBUG", false)
	v.SetDefault("HUB_QUEUE_SIZE", 1024)
	v.SetDefault("OBSERVER_BUFFER", 256)
	v.SetDefault("MQTT_TOPIC", "tracker/captures")
	v.SetDefault("MQTT_CLIENT_ID", "tracker-bridge")

	cfg := &Config{
		DBDriver:       strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
		SQLitePath:     v.GetString("SQLITE_PATH"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		DBUser:         v.GetString("DB_USER"),
		DBPass:         v.GetString("DB_PASS"),
		DBHost:         v.GetString("DB_HOST"),
		DBPort:         v.GetString("DB_PORT"),
		DBName:         v.GetString("DB_NAME"),
		DBSSLMode:      v.GetString("DB_SSLMODE"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		WriterUsername: strings.TrimSpace(v.GetString("WRITER_USERNAME")),
		WriterPassword: v.GetString("WRITER_PASSWORD"),
		Debug:          v.GetBool("DEBUG"),
		Port:           v.GetString("PORT"),
		TLSDomains:     splitTrimmed(v.GetString("TLS_DOMAINS")),
		HubQueueSize:   v.GetInt("HUB_QUEUE_SIZE"),
		ObserverBuffer: v.GetInt("OBSERVER_BUFFER"),
		MQTTBroker:     v.GetString("MQTT_BROKER"),
		MQTTTopic:      v.GetString("MQTT_TOPIC"),
		MQTTClientID:   v.GetString("MQTT_CLIENT_ID"),
		RosterDSN:      v.GetString("ROSTER_DSN"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PostgresDSN returns the full PostgreSQL connection string.
// DATABASE_URL takes precedence over individual fields.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser,
		c.DBPass,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

// JWTKey returns the JWT signing key as a byte slice.
func (c *Config) JWTKey() []byte {
	return []byte(c.JWTSecret)
}

// BridgeEnabled reports whether the MQTT reader bridge should be started.
func (c *Config) BridgeEnabled() bool {
	return strings.TrimSpace(c.MQTTBroker) != ""
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("%w: SQLITE_PATH must be set", ErrInvalidConfig)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" && c.DBPass == "" {
			return fmt.Errorf("%w: DATABASE_URL or DB_PASS must be set", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown DB_DRIVER %q", ErrInvalidConfig, c.DBDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET must be set", ErrInvalidConfig)
	}
	if c.HubQueueSize <= 0 || c.ObserverBuffer <= 0 {
		return fmt.Errorf("%w: HUB_QUEUE_SIZE and OBSERVER_BUFFER must be positive", ErrInvalidConfig)
	}
	return nil
}

func newViper() *viper.Viper {
	// Silently load .env – OK if the file doesn't exist (production uses real env vars).
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using environment variables only")
	}

	v := viper.New()
	v.AutomaticEnv()
	return v
}

func splitTrimmed(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
