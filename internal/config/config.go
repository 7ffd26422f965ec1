package config

import (
	"os"
	"strconv"
	"time"

	"github.com/adpilot/budgetd/internal/models"
)

// Config holds application configuration derived from environment variables.
// Per-tenant decision policy lives in Postgres and is hot-reloaded; the
// values here are service wiring plus the defaults applied to tenants that
// have not overridden them.
type Config struct {
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	RedisAddr     string
	PostgresDSN   string
	ClickHouseDSN string
	// ReloadInterval is how often tenant configuration is refreshed between
	// decision cycles.
	ReloadInterval time.Duration
	ServiceName    string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// BanditSeed pins the sampler RNG; 0 means seed from the clock.
	BanditSeed int64
	// WinnerBuffer is how many candidate-winner events the in-memory sink
	// retains for the /winners endpoint.
	WinnerBuffer int

	// Default decision policy for tenants without explicit overrides.
	DefaultMinObservationHours float64
	DefaultMinObservationSpend float64
	DefaultKillThreshold       float64
	DefaultScaleThreshold      float64
	DefaultTargetROAS          float64
	DefaultTargetCTR           float64
	DefaultBlendCenterHours    float64
	DefaultBlendSteepnessHours float64
	DefaultBlendMaxWeight      float64
	DefaultBanditDecayFactor   float64
	DefaultMaxContextBoost     float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8788")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default")
	// default to 30 seconds between automatic tenant config reloads
	cfg.ReloadInterval = envDuration("RELOAD_INTERVAL", 30*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "budgetd")

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.OTLPEndpoint = getenv("OTLP_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	cfg.BanditSeed = int64(envInt("BANDIT_SEED", 0))
	cfg.WinnerBuffer = envInt("WINNER_BUFFER", 200)

	// Conservative defaults tuned for a B2B service vertical; e-commerce
	// tenants override the observation window and blend center downwards.
	cfg.DefaultMinObservationHours = envFloat("MIN_OBSERVATION_HOURS", 24)
	cfg.DefaultMinObservationSpend = envFloat("MIN_OBSERVATION_SPEND", 100)
	cfg.DefaultKillThreshold = envFloat("KILL_THRESHOLD", 0.25)
	cfg.DefaultScaleThreshold = envFloat("SCALE_THRESHOLD", 0.65)
	cfg.DefaultTargetROAS = envFloat("TARGET_ROAS", 4.0)
	cfg.DefaultTargetCTR = envFloat("TARGET_CTR", 0.02)
	cfg.DefaultBlendCenterHours = envFloat("BLEND_CENTER_HOURS", 24)
	cfg.DefaultBlendSteepnessHours = envFloat("BLEND_STEEPNESS_HOURS", 6)
	cfg.DefaultBlendMaxWeight = envFloat("BLEND_MAX_WEIGHT", 0.95)
	cfg.DefaultBanditDecayFactor = envFloat("BANDIT_DECAY_FACTOR", 0.9)
	cfg.DefaultMaxContextBoost = envFloat("BANDIT_MAX_CONTEXT_BOOST", 1.5)

	return cfg
}

// DefaultTenant builds the tenant policy applied when a tenant row carries no
// overrides. Stage tables always come from the configuration store; there is
// no sensible default stage valuation.
func (c Config) DefaultTenant(id int, name string) models.TenantConfig {
	return models.TenantConfig{
		ID:   id,
		Name: name,
		Blending: models.BlendingConfig{
			Curve:          models.CurveSigmoid,
			CenterHours:    c.DefaultBlendCenterHours,
			SteepnessHours: c.DefaultBlendSteepnessHours,
			MaxWeight:      c.DefaultBlendMaxWeight,
		},
		MinObservationHours: c.DefaultMinObservationHours,
		MinObservationSpend: c.DefaultMinObservationSpend,
		KillThreshold:       c.DefaultKillThreshold,
		ScaleThreshold:      c.DefaultScaleThreshold,
		TargetROAS:          c.DefaultTargetROAS,
		TargetCTR:           c.DefaultTargetCTR,
		Fatigue: models.FatigueConfig{
			BaselineWindow:          3,
			RecentWindow:            3,
			CTRDropWarn:             0.20,
			CTRDropSevere:           0.40,
			FrequencyWarn:           3.5,
			FrequencySevere:         8.0,
			CPIRiseWarn:             0.30,
			CPIRiseSevere:           0.50,
			MaxCriticalHorizonHours: 14 * 24,
		},
		Bandit: models.BanditConfig{
			DecayFactor:      c.DefaultBanditDecayFactor,
			DecayWindowHours: 24,
			MaxContextBoost:  c.DefaultMaxContextBoost,
		},
		WinnerStreak: 3,
		WinnerScore:  0.8,
	}
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
