package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr     string
	LogLevel string

	// PostgresDSN switches the request and audit stores from in-memory to
	// PostgreSQL when set.
	PostgresDSN string

	// RedisURL switches the agreement token index from in-memory to Redis
	// when set. Token entries expire with the agreement link.
	RedisURL string

	// KafkaBrokers enables the audit mirror publisher when non-empty.
	KafkaBrokers    []string
	KafkaAuditTopic string

	JWTSigningKey string

	// MilestonePlanPath points at a YAML milestone plan template. Empty
	// means the built-in default plan.
	MilestonePlanPath string

	// ReviewerSLAWindow is the INITIAL_CONTACT deadline after reviewer
	// assignment.
	ReviewerSLAWindow time.Duration

	// AgreementLinkTTL is the signature window for generated agreement links.
	AgreementLinkTTL time.Duration

	// StrictTransitions rejects status advances off the declared forward
	// path instead of logging a warning.
	StrictTransitions bool
}

// FromEnv builds a Config from environment variables with development
// defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:              envOr("PILOTDESK_ADDR", ":8080"),
		LogLevel:          envOr("PILOTDESK_LOG_LEVEL", "info"),
		PostgresDSN:       os.Getenv("PILOTDESK_POSTGRES_DSN"),
		RedisURL:          os.Getenv("PILOTDESK_REDIS_URL"),
		KafkaAuditTopic:   envOr("PILOTDESK_KAFKA_AUDIT_TOPIC", "pilotdesk.audit"),
		JWTSigningKey:     envOr("PILOTDESK_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		MilestonePlanPath: os.Getenv("PILOTDESK_MILESTONE_PLAN"),
		ReviewerSLAWindow: durationOr("PILOTDESK_REVIEWER_SLA_WINDOW", 48*time.Hour),
		AgreementLinkTTL:  durationOr("PILOTDESK_AGREEMENT_TTL", 30*24*time.Hour),
		StrictTransitions: os.Getenv("PILOTDESK_STRICT_TRANSITIONS") == "true",
	}
	if brokers := os.Getenv("PILOTDESK_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
