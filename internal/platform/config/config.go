package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RedisConfig holds connection tuning for the optional redis backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ArtifactTTL bounds how long redis-held audio artifacts live.
	ArtifactTTL time.Duration
}

// Config captures process-level configuration. Built once in main from
// environment variables so the rest of the code never reads the environment.
type Config struct {
	Addr          string
	DatabaseURL   string
	Redis         RedisConfig
	KafkaBrokers  []string
	AuditTopic    string
	ArtifactDir   string
	JWTSigningKey string
	// VerifierURL is the base URL of the external verification service.
	VerifierURL string
	// VerifyTimeout bounds a single verification round trip. On expiry the
	// check is abandoned with nothing persisted.
	VerifyTimeout time.Duration
	// ReviewThreshold is the confidence below which a check is flagged for
	// supervisor review. Tunable; 0.7 is the operational default.
	ReviewThreshold float64
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:            envOr("GENBA_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		KafkaBrokers:    splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
		AuditTopic:      envOr("AUDIT_TOPIC", "genba.audit"),
		ArtifactDir:     envOr("ARTIFACT_DIR", "/var/lib/genba/artifacts"),
		JWTSigningKey:   os.Getenv("JWT_SIGNING_KEY"),
		VerifierURL:     os.Getenv("VERIFIER_URL"),
		VerifyTimeout:   durationOr("VERIFY_TIMEOUT", 5*time.Second),
		ReviewThreshold: floatOr("REVIEW_THRESHOLD", 0.7),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: intOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
			ArtifactTTL:  durationOr("REDIS_ARTIFACT_TTL", 24*time.Hour),
		},
	}
	if cfg.JWTSigningKey == "" {
		// Development default - must be overridden in production.
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func floatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
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

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
