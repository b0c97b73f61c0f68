// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	DBUser     string `env:"DB_USER" envDefault:"mailpress"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"mailpress"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBName     string `env:"DB_NAME" envDefault:"mailpress"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// AMQPURL is optional; when empty the server falls back to a no-op
	// publisher and batches are drained by the cron endpoint alone.
	AMQPURL string `env:"AMQP_URL"`

	// CronSecret, when set, must be presented as a bearer token on the cron
	// endpoints.
	CronSecret string `env:"CRON_SECRET"`

	SendGridAPIKey  string `env:"SENDGRID_API_KEY"`
	TrackingBaseURL string `env:"TRACKING_BASE_URL" envDefault:"http://localhost:8080"`

	DefaultDomainCap int           `env:"DEFAULT_DOMAIN_CAP" envDefault:"100"`
	DomainWindow     time.Duration `env:"DOMAIN_WINDOW" envDefault:"1h"`

	BatchSize        int           `env:"BATCH_SIZE" envDefault:"50"`
	StaggerInterval  time.Duration `env:"STAGGER_INTERVAL" envDefault:"10m"`
	ClaimLimit       int           `env:"CLAIM_LIMIT" envDefault:"20"`
	MaxAttempts      int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	FailureThreshold float64       `env:"FAILURE_THRESHOLD" envDefault:"0.2"`
}

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// DSN builds the Postgres connection string from the DB_* pieces.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}
