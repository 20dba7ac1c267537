package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	PublicBaseURL  string
	LogLevel       string
	DatabaseURL    string
	UseMemoryStore bool

	// HubSpot CRM
	HubSpotAccessToken string
	HubSpotBaseURL     string
	HubSpotRateLimit   int

	// Twilio WhatsApp channel
	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioBaseURL           string
	ValidateTwilioSignature bool
	ChannelPrefix           string

	// Language model
	LLMProvider         string
	LLMFallbackProvider string
	OpenAIAPIKey        string
	OpenAIModel         string
	GeminiAPIKey        string
	GeminiModel         string
	BedrockModelID      string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Conversation policy
	BusinessContext             string
	SummaryMessageThreshold     int
	SummaryTimeThresholdMinutes int
	HistoryLimit                int

	// Shared rate-limit window (optional)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Per external call type timeouts
	CRMTimeout     time.Duration
	LLMTimeout     time.Duration
	StoreTimeout   time.Duration
	ChannelTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "3000"),
		Env:            getEnv("ENV", "development"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),

		HubSpotAccessToken: getEnv("HUBSPOT_ACCESS_TOKEN", ""),
		HubSpotBaseURL:     getEnv("HUBSPOT_BASE_URL", ""),
		HubSpotRateLimit:   getEnvAsInt("HUBSPOT_RATE_LIMIT", 8),

		TwilioAccountSID:        getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:         getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioBaseURL:           getEnv("TWILIO_BASE_URL", ""),
		ValidateTwilioSignature: getEnvAsBool("VALIDATE_TWILIO_SIGNATURE", true),
		ChannelPrefix:           getEnv("CHANNEL_PREFIX", "whatsapp:"),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		BusinessContext:             getEnv("BUSINESS_CONTEXT", "a general helpful assistant"),
		SummaryMessageThreshold:     getEnvAsInt("SUMMARY_MESSAGE_THRESHOLD", 20),
		SummaryTimeThresholdMinutes: getEnvAsInt("SUMMARY_TIME_THRESHOLD_MINUTES", 5),
		HistoryLimit:                getEnvAsInt("HISTORY_LIMIT", 10),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CRMTimeout:     getEnvAsDuration("CRM_TIMEOUT", 10*time.Second),
		LLMTimeout:     getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		StoreTimeout:   getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
		ChannelTimeout: getEnvAsDuration("CHANNEL_TIMEOUT", 10*time.Second),
	}
}

// Validate reports every missing credential required to start the relay.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.HubSpotAccessToken) == "" {
		problems = append(problems, "HUBSPOT_ACCESS_TOKEN missing")
	}
	if strings.TrimSpace(c.TwilioAccountSID) == "" || strings.TrimSpace(c.TwilioAuthToken) == "" {
		problems = append(problems, "TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN required")
	}
	if !c.UseMemoryStore && strings.TrimSpace(c.DatabaseURL) == "" {
		problems = append(problems, "DATABASE_URL missing")
	}
	for _, provider := range []string{c.LLMProvider, c.LLMFallbackProvider} {
		if provider == "" {
			continue
		}
		if msg := c.providerProblem(provider); msg != "" {
			problems = append(problems, msg)
		}
	}
	if c.LLMProvider == "" {
		problems = append(problems, "LLM_PROVIDER missing")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New("config: " + strings.Join(problems, "; "))
}

func (c *Config) providerProblem(provider string) string {
	switch provider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return "OPENAI_API_KEY missing"
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return "GEMINI_API_KEY missing"
		}
	case "bedrock":
		if c.BedrockModelID == "" {
			return "BEDROCK_MODEL_ID missing"
		}
	default:
		return fmt.Sprintf("unknown LLM provider %q", provider)
	}
	return ""
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
