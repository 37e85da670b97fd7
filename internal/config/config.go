package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Auth         AuthConfig
	Participants ParticipantsConfig
	CheckIn      CheckInConfig
	Sheets       SheetsConfig
}

type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:":8085"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

type DatabaseConfig struct {
	DSN            string        `env:"POSTGRES_DSN"`
	MaxOpenConns   int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns   int           `env:"DB_MAX_IDLE_CONNS" envDefault:"25"`
	MaxLifetime    time.Duration `env:"DB_MAX_LIFETIME" envDefault:"5m"`
	ConnectRetries int           `env:"DB_CONNECT_RETRIES" envDefault:"5"`
	AutoMigrate    bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

// RedisConfig is optional: with an empty Addr the service runs without the
// cross-replica capacity lock and without a participant cache.
type RedisConfig struct {
	Addr        string        `env:"REDIS_ADDR"`
	LockTTL     time.Duration `env:"REGISTRATION_LOCK_TTL" envDefault:"10s"`
	LockWait    time.Duration `env:"REGISTRATION_LOCK_WAIT" envDefault:"3s"`
	LockBackoff time.Duration `env:"REGISTRATION_LOCK_BACKOFF" envDefault:"25ms"`
}

type KafkaConfig struct {
	Enabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	GroupID string   `env:"KAFKA_GROUP_ID" envDefault:"registration-service"`
	Topics  TopicConfig
}

type TopicConfig struct {
	RegistrationCreated       string `env:"KAFKA_TOPIC_REGISTRATION_CREATED" envDefault:"registration.created"`
	RegistrationStatusChanged string `env:"KAFKA_TOPIC_REGISTRATION_STATUS" envDefault:"registration.status_changed"`
	EventSettingsUpdated      string `env:"KAFKA_TOPIC_EVENT_SETTINGS" envDefault:"event.settings.updated"`
}

type AuthConfig struct {
	OIDCIssuer      string `env:"OIDC_ISSUER"`
	EventServiceURL string `env:"EVENT_SERVICE_URL"`
	// InsecureDev trusts the bearer token subject without verifying the signature.
	InsecureDev bool `env:"AUTH_INSECURE_DEV" envDefault:"false"`

	// Client credentials for service-to-service calls (profile and event services).
	KeycloakURL   string `env:"KEYCLOAK_URL"`
	KeycloakRealm string `env:"KEYCLOAK_REALM"`
	ClientID      string `env:"CLIENT_ID"`
	ClientSecret  string `env:"CLIENT_SECRET"`
}

type ParticipantsConfig struct {
	ProfileServiceURL string        `env:"PROFILE_SERVICE_URL"`
	CacheTTL          time.Duration `env:"PROFILE_CACHE_TTL" envDefault:"10m"`
	RequestTimeout    time.Duration `env:"PROFILE_REQUEST_TIMEOUT" envDefault:"10s"`
}

type CheckInConfig struct {
	Secret string `env:"CHECKIN_SECRET_KEY"`
}

type SheetsConfig struct {
	CredentialsFile string `env:"SHEETS_CREDENTIALS_FILE"`
	SpreadsheetID   string `env:"SHEETS_SPREADSHEET_ID"`
	SheetName       string `env:"SHEETS_SHEET_NAME" envDefault:"Registrations"`
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// M2MEnabled reports whether outbound service calls carry a client-credentials token.
func (c *Config) M2MEnabled() bool {
	return c.Auth.KeycloakURL != "" && c.Auth.ClientID != ""
}

// SheetsEnabled reports whether the Google Sheets export sink is configured.
func (c *Config) SheetsEnabled() bool {
	return c.Sheets.CredentialsFile != "" && c.Sheets.SpreadsheetID != ""
}
