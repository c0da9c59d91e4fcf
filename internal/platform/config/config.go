package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"riskgate/internal/policy"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
}

// Audit captures the audit pipeline knobs: queue bounds, batching, and the
// configured persistence backends.
type Audit struct {
	QueueCapacity int
	EnqueueWait   time.Duration
	BatchSize     int
	FlushInterval time.Duration

	// FilePath enables the append-only file backend when non-empty.
	FilePath string
}

// Redis holds connection settings shared by the state store, kill switch,
// and audit index. Empty URL disables Redis-backed components.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka holds the optional decision stream settings. No brokers means no
// stream.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Config is the full application configuration, built once in main.
type Config struct {
	Server       Server
	LogLevel     string
	AgentTimeout time.Duration
	Audit        Audit
	Redis        Redis
	PostgresURL  string
	Kafka        Kafka
	Rules        policy.Rules
}

// FromEnv builds the configuration from environment variables so main stays
// lean. Missing variables fall back to production defaults; Validate catches
// values that fell outside their legal range.
func FromEnv() Config {
	rules := policy.DefaultRules()
	rules.ConfidenceAllow = envFloat("RISKGATE_CONFIDENCE_ALLOW", rules.ConfidenceAllow)
	rules.ConfidenceEscalate = envFloat("RISKGATE_CONFIDENCE_ESCALATE", rules.ConfidenceEscalate)
	rules.DisagreementThreshold = envFloat("RISKGATE_DISAGREEMENT_THRESHOLD", rules.DisagreementThreshold)
	rules.HighRiskMin = envFloat("RISKGATE_HIGH_RISK_MIN", rules.HighRiskMin)
	rules.MaxActionsPerUserPerDay = envInt("RISKGATE_MAX_ACTIONS_PER_DAY", rules.MaxActionsPerUserPerDay)
	rules.ConsecutiveHighRiskLimit = envInt("RISKGATE_HIGH_RISK_STREAK_LIMIT", rules.ConsecutiveHighRiskLimit)
	rules.CriticalAgents = envList("RISKGATE_CRITICAL_AGENTS")
	if c := os.Getenv("RISKGATE_RISK_COMBINATOR"); c != "" {
		rules.Combinator = policy.RiskCombinator(c)
	}
	rules.AgentWeights = envWeights("RISKGATE_AGENT_WEIGHTS")

	return Config{
		Server: Server{
			Addr:          envString("RISKGATE_ADDR", ":8080"),
			JWTSigningKey: envString("RISKGATE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     envString("RISKGATE_JWT_ISSUER", "riskgate"),
			JWTAudience:   envString("RISKGATE_JWT_AUDIENCE", "riskgate-admin"),
		},
		LogLevel:     envString("RISKGATE_LOG_LEVEL", "info"),
		AgentTimeout: envDuration("RISKGATE_AGENT_TIMEOUT", 2*time.Second),
		Audit: Audit{
			QueueCapacity: envInt("RISKGATE_AUDIT_QUEUE_CAPACITY", 10000),
			EnqueueWait:   envDuration("RISKGATE_AUDIT_ENQUEUE_WAIT", time.Second),
			BatchSize:     envInt("RISKGATE_AUDIT_BATCH_SIZE", 20),
			FlushInterval: envDuration("RISKGATE_AUDIT_FLUSH_INTERVAL", 5*time.Second),
			FilePath:      os.Getenv("RISKGATE_AUDIT_FILE"),
		},
		Redis: Redis{
			URL:          os.Getenv("RISKGATE_REDIS_URL"),
			PoolSize:     envInt("RISKGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("RISKGATE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("RISKGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("RISKGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("RISKGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		PostgresURL: os.Getenv("RISKGATE_POSTGRES_URL"),
		Kafka: Kafka{
			Brokers: envList("RISKGATE_KAFKA_BROKERS"),
			Topic:   os.Getenv("RISKGATE_KAFKA_TOPIC"),
		},
		Rules: rules,
	}
}

// Validate checks the configuration before anything starts serving.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr must not be empty")
	}
	if c.AgentTimeout <= 0 {
		return fmt.Errorf("agent timeout must be positive, got %v", c.AgentTimeout)
	}
	if c.Audit.QueueCapacity <= 0 {
		return fmt.Errorf("audit queue capacity must be positive, got %d", c.Audit.QueueCapacity)
	}
	if c.Audit.BatchSize <= 0 {
		return fmt.Errorf("audit batch size must be positive, got %d", c.Audit.BatchSize)
	}
	if c.Audit.FlushInterval <= 0 {
		return fmt.Errorf("audit flush interval must be positive, got %v", c.Audit.FlushInterval)
	}
	if c.Audit.EnqueueWait < 0 {
		return fmt.Errorf("audit enqueue wait must be non-negative, got %v", c.Audit.EnqueueWait)
	}
	if err := c.Rules.Validate(); err != nil {
		return err
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// envWeights parses "agent=weight" pairs, e.g. "detection=1.0,network=0.8".
func envWeights(key string) map[string]float64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	out := make(map[string]float64)
	for _, part := range strings.Split(v, ",") {
		name, raw, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		w, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		out[name] = w
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
