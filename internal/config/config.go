package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// LLM provider (OpenAI-compatible API)
	LLMAPIKey  string
	LLMBaseURL string
	LLMTimeout time.Duration

	// Model roles
	SimpleModel    string
	ComplexModel   string
	EmbeddingModel string

	// Token budgets
	SimpleMaxTokens     int
	ComplexMaxTokens    int
	ClassifierMaxTokens int

	// Hard caps
	MaxInputLength     int
	MaxHistoryTurns    int
	MaxToolResults     int

	// Cache TTLs. The semantic tier is declared but has no implementing
	// logic; the knobs are parsed so existing deployments keep working.
	ExactCacheTTL     time.Duration
	ToolCacheTTL      time.Duration
	SemanticCacheTTL  time.Duration
	SemanticThreshold float64

	// Rate limits
	GuestPerMinute int
	GuestPerDay    int
	AuthPerMinute  int
	AuthPerDay     int

	// Edge token-bucket limiter (per-IP, in front of the product limiter)
	EdgeRatePerSecond float64
	EdgeBurst         int

	// Feature flags
	AIEnabled        bool
	StreamingEnabled bool
	CachingEnabled   bool
	ChatLogEnabled   bool
	ChatLogPath      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMBaseURL: getEnv("LLM_BASE_URL", ""),
		LLMTimeout: getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),

		SimpleModel:    getEnv("LLM_SIMPLE_MODEL", "llama-3.1-8b-instant"),
		ComplexModel:   getEnv("LLM_COMPLEX_MODEL", "llama-3.3-70b-versatile"),
		EmbeddingModel: getEnv("LLM_EMBEDDING_MODEL", ""),

		SimpleMaxTokens:     getEnvAsInt("LLM_SIMPLE_MAX_TOKENS", 1024),
		ComplexMaxTokens:    getEnvAsInt("LLM_COMPLEX_MAX_TOKENS", 2048),
		ClassifierMaxTokens: getEnvAsInt("LLM_CLASSIFIER_MAX_TOKENS", 2048),

		MaxInputLength:  getEnvAsInt("CHAT_MAX_INPUT_LENGTH", 2000),
		MaxHistoryTurns: getEnvAsInt("CHAT_MAX_HISTORY_TURNS", 10),
		MaxToolResults:  getEnvAsInt("CHAT_MAX_TOOL_RESULTS", 10),

		ExactCacheTTL:     getEnvAsDuration("CACHE_EXACT_TTL", 300*time.Second),
		ToolCacheTTL:      getEnvAsDuration("CACHE_TOOL_TTL", 120*time.Second),
		SemanticCacheTTL:  getEnvAsDuration("CACHE_SEMANTIC_TTL", 3600*time.Second),
		SemanticThreshold: getEnvAsFloat("CACHE_SEMANTIC_THRESHOLD", 0.85),

		GuestPerMinute: getEnvAsInt("RATE_LIMIT_GUEST_PER_MINUTE", 10),
		GuestPerDay:    getEnvAsInt("RATE_LIMIT_GUEST_PER_DAY", 2),
		AuthPerMinute:  getEnvAsInt("RATE_LIMIT_AUTH_PER_MINUTE", 30),
		AuthPerDay:     getEnvAsInt("RATE_LIMIT_AUTH_PER_DAY", 200),

		EdgeRatePerSecond: getEnvAsFloat("EDGE_RATE_PER_SECOND", 5),
		EdgeBurst:         getEnvAsInt("EDGE_BURST", 10),

		AIEnabled:        getEnvAsBool("AI_ENABLED", true),
		StreamingEnabled: getEnvAsBool("STREAMING_ENABLED", true),
		CachingEnabled:   getEnvAsBool("CACHING_ENABLED", true),
		ChatLogEnabled:   getEnvAsBool("CHAT_LOG_ENABLED", true),
		ChatLogPath:      getEnv("CHAT_LOG_PATH", "logs/chat.jsonl"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
