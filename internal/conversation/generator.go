package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var generatorTracer = otel.Tracer("personaflow.internal.conversation")

const summarySystemPrompt = "You are an expert in summarizing conversations. Create a concise, bullet-pointed summary of the following chat history. Focus on key questions, decisions, and outcomes."

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("conversation: llm returned empty text")

// Generator produces replies and summaries with an LLMClient.
type Generator struct {
	client LLMClient
	model  string
}

// NewGenerator wraps client. An empty model defers to the client default.
func NewGenerator(client LLMClient, model string) *Generator {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	return &Generator{client: client, model: model}
}

// GenerateReply completes the assembled prompt turns.
func (g *Generator) GenerateReply(ctx context.Context, turns []ChatMessage) (string, error) {
	ctx, span := generatorTracer.Start(ctx, "conversation.generate_reply")
	defer span.End()

	req := LLMRequest{Model: g.model, Temperature: -1}
	for _, turn := range turns {
		if turn.Role == ChatRoleSystem {
			req.System = append(req.System, turn.Content)
			continue
		}
		req.Messages = append(req.Messages, turn)
	}
	span.SetAttributes(attribute.Int("personaflow.llm.turns", len(req.Messages)))

	text, err := g.complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("conversation: generate reply: %w", err)
	}
	return text, nil
}

// GenerateSummary condenses a rendered transcript into bullet points.
func (g *Generator) GenerateSummary(ctx context.Context, transcript string) (string, error) {
	ctx, span := generatorTracer.Start(ctx, "conversation.generate_summary")
	defer span.End()

	text, err := g.complete(ctx, LLMRequest{
		Model:       g.model,
		System:      []string{summarySystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: transcript}},
		Temperature: -1,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("conversation: generate summary: %w", err)
	}
	return text, nil
}

func (g *Generator) complete(ctx context.Context, req LLMRequest) (string, error) {
	resp, err := g.client.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
