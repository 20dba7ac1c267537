package conversation

import (
	"context"

	"github.com/personaflow/whatsapp-relay/pkg/logging"
)

// FallbackClient tries primary first and, when configured, fallback on error.
type FallbackClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *logging.Logger
}

// NewFallbackClient wraps primary. A nil fallback disables the second attempt.
func NewFallbackClient(primary, fallback LLMClient, logger *logging.Logger) *FallbackClient {
	if primary == nil {
		panic("conversation: primary llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	logger := logging.FromContext(ctx, c.logger)
	if c.fallback == nil {
		return LLMResponse{}, err
	}
	logger.Warn("primary llm failed, attempting fallback", "error", err)

	// Model ids are provider specific.
	req.Model = ""
	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		logger.Error("fallback llm also failed", "primary_error", err, "fallback_error", fallbackErr)
		return LLMResponse{}, fallbackErr
	}
	logger.Info("fallback llm succeeded after primary failure")
	return fallbackResp, nil
}
