package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	LogFormat      string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	// Conversation state
	StateBackend  string
	StateTable    string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	StaleAfter    time.Duration
	ReaskLock     time.Duration
	MuteFor       time.Duration
	HistoryLimit  int

	// Model dispatch
	BackendsFile        string
	AIProvider          string
	AIModel             string
	OpenRouterAPIKey    string
	OpenRouterReferer   string
	OpenRouterTitle     string
	OpenAIAPIKey        string
	OllamaBase          string
	GeminiAPIKey        string
	GeminiModel         string
	BedrockModelID      string
	LLMMaxAttempts      int
	LLMBaseDelay        time.Duration
	LLMMaxDelay         time.Duration
	LLMFailureThreshold int
	LLMTransientStreak  int
	LLMCooldown         time.Duration
	LLMMaxCooldownWait  time.Duration
	LLMDispatchTimeout  time.Duration
	LLMFallbackText     string
	LLMTemperature      float64
	LLMMaxTokens        int

	// Replies
	ProviderName     string
	ProviderWebsite  string
	ProviderSchedule string
	ProviderAreas    string
	ProviderRates    string
	Persona          string
	AckText          string
	ReplyDelayMin    time.Duration
	ReplyDelayMax    time.Duration

	// WhatsApp gateway (UltraMsg)
	UltraMsgInstanceID string
	UltraMsgToken      string
	UltraMsgBaseURL    string

	// AWS
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	ConversationQueueURL string
	ArchiveBucket        string

	// Admin & HTTP
	AdminJWTSecret   string
	WebhookRateLimit float64
	WebhookRateBurst int
	CORSOrigins      string

	// Booking alerts
	AlertEmailTo      string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		StateBackend:  strings.ToLower(strings.TrimSpace(getEnv("STATE_BACKEND", "memory"))),
		StateTable:    getEnv("STATE_TABLE", "negotiation_state"),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		StaleAfter:    getEnvAsDuration("STALE_AFTER", 12*time.Hour),
		ReaskLock:     getEnvAsDuration("REASK_LOCK", 30*time.Minute),
		MuteFor:       getEnvAsDuration("MUTE_FOR", 12*time.Hour),
		HistoryLimit:  getEnvAsInt("HISTORY_LIMIT", 16),

		BackendsFile:        getEnv("BACKENDS_FILE", ""),
		AIProvider:          strings.ToLower(strings.TrimSpace(getEnv("AI_PROVIDER", ""))),
		AIModel:             getEnv("AI_MODEL", ""),
		OpenRouterAPIKey:    getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterReferer:   getEnv("OPENROUTER_REFERER", ""),
		OpenRouterTitle:     getEnv("OPENROUTER_TITLE", ""),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OllamaBase:          getEnv("OLLAMA_BASE", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		LLMMaxAttempts:      getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
		LLMBaseDelay:        getEnvAsDuration("LLM_BASE_DELAY", 1500*time.Millisecond),
		LLMMaxDelay:         getEnvAsDuration("LLM_MAX_DELAY", 10*time.Second),
		LLMFailureThreshold: getEnvAsInt("LLM_FAILURE_THRESHOLD", 3),
		LLMTransientStreak:  getEnvAsInt("LLM_TRANSIENT_STREAK", 2),
		LLMCooldown:         getEnvAsDuration("LLM_COOLDOWN", 5*time.Minute),
		LLMMaxCooldownWait:  getEnvAsDuration("LLM_MAX_COOLDOWN_WAIT", 20*time.Second),
		LLMDispatchTimeout:  getEnvAsDuration("LLM_DISPATCH_TIMEOUT", 25*time.Second),
		LLMFallbackText:     getEnv("LLM_FALLBACK_TEXT", ""),
		LLMTemperature:      getEnvAsFloat("LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:        getEnvAsInt("LLM_MAX_TOKENS", 300),

		ProviderName:     getEnv("PROVIDER_NAME", ""),
		ProviderWebsite:  getEnv("PROVIDER_WEBSITE", ""),
		ProviderSchedule: getEnv("PROVIDER_SCHEDULE", ""),
		ProviderAreas:    getEnv("PROVIDER_EXTRA_AREAS", ""),
		ProviderRates:    getEnv("PROVIDER_RATES", ""),
		Persona:          getEnv("DEFAULT_PERSONA", ""),
		AckText:          getEnv("ACK_TEXT", ""),
		ReplyDelayMin:    getEnvAsDuration("REPLY_DELAY_MIN", 0),
		ReplyDelayMax:    getEnvAsDuration("REPLY_DELAY_MAX", 0),

		UltraMsgInstanceID: getEnv("ULTRA_INSTANCE_ID", ""),
		UltraMsgToken:      getEnv("ULTRAMSG_TOKEN", ""),
		UltraMsgBaseURL:    getEnv("ULTRAMSG_BASE_URL", "https://api.ultramsg.com"),

		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),
		ArchiveBucket:        getEnv("ARCHIVE_BUCKET", ""),

		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),
		WebhookRateLimit: getEnvAsFloat("WEBHOOK_RATE_LIMIT", 5),
		WebhookRateBurst: getEnvAsInt("WEBHOOK_RATE_BURST", 20),
		CORSOrigins:      getEnv("CORS_ALLOWED_ORIGINS", ""),

		AlertEmailTo:      getEnv("ALERT_EMAIL_TO", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Booking Assistant"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
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
	// Bare numbers are seconds, matching the REPLY_DELAY_* convention.
	if secs, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
