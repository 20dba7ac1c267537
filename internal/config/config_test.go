package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "OPENAI_MODEL", "BUSINESS_CONTEXT", "SUMMARY_MESSAGE_THRESHOLD", "SUMMARY_TIME_THRESHOLD_MINUTES", "CHANNEL_PREFIX", "LLM_PROVIDER", "HUBSPOT_RATE_LIMIT", "CRM_TIMEOUT"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "3000" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.OpenAIModel != "gpt-3.5-turbo" {
		t.Fatalf("expected default model, got %s", cfg.OpenAIModel)
	}
	if cfg.BusinessContext != "a general helpful assistant" {
		t.Fatalf("unexpected business context %q", cfg.BusinessContext)
	}
	if cfg.SummaryMessageThreshold != 20 || cfg.SummaryTimeThresholdMinutes != 5 {
		t.Fatalf("unexpected summary thresholds %d/%d", cfg.SummaryMessageThreshold, cfg.SummaryTimeThresholdMinutes)
	}
	if cfg.ChannelPrefix != "whatsapp:" {
		t.Fatalf("unexpected channel prefix %q", cfg.ChannelPrefix)
	}
	if cfg.LLMProvider != "openai" {
		t.Fatalf("unexpected provider %q", cfg.LLMProvider)
	}
	if cfg.HubSpotRateLimit != 8 {
		t.Fatalf("expected default rate limit 8, got %d", cfg.HubSpotRateLimit)
	}
	if cfg.CRMTimeout != 10*time.Second {
		t.Fatalf("expected default crm timeout, got %s", cfg.CRMTimeout)
	}
	if !cfg.ValidateTwilioSignature {
		t.Fatalf("expected signature validation enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("SUMMARY_MESSAGE_THRESHOLD", "10")
	t.Setenv("SUMMARY_TIME_THRESHOLD_MINUTES", "15")
	t.Setenv("LLM_PROVIDER", " Gemini ")
	t.Setenv("LLM_TIMEOUT", "45s")
	t.Setenv("VALIDATE_TWILIO_SIGNATURE", "false")
	t.Setenv("HISTORY_LIMIT", "not-a-number")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.SummaryMessageThreshold != 10 || cfg.SummaryTimeThresholdMinutes != 15 {
		t.Fatalf("expected threshold overrides, got %d/%d", cfg.SummaryMessageThreshold, cfg.SummaryTimeThresholdMinutes)
	}
	if cfg.LLMProvider != "gemini" {
		t.Fatalf("expected normalized provider, got %q", cfg.LLMProvider)
	}
	if cfg.LLMTimeout != 45*time.Second {
		t.Fatalf("expected llm timeout override, got %s", cfg.LLMTimeout)
	}
	if cfg.ValidateTwilioSignature {
		t.Fatalf("expected signature validation disabled")
	}
	if cfg.HistoryLimit != 10 {
		t.Fatalf("expected invalid int to fall back to default, got %d", cfg.HistoryLimit)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		HubSpotAccessToken: "hs",
		TwilioAccountSID:   "AC1",
		TwilioAuthToken:    "tok",
		DatabaseURL:        "postgres://",
		LLMProvider:        "openai",
		OpenAIAPIKey:       "sk",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cfg.OpenAIAPIKey = ""
	cfg.DatabaseURL = ""
	cfg.LLMFallbackProvider = "mystery"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"OPENAI_API_KEY", "DATABASE_URL", "mystery"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}

	cfg = &Config{HubSpotAccessToken: "hs", TwilioAccountSID: "AC1", TwilioAuthToken: "tok", UseMemoryStore: true, LLMProvider: "bedrock", BedrockModelID: "anthropic.claude"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory store should not require DATABASE_URL: %v", err)
	}
}
