package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/personaflow/whatsapp-relay/internal/conversation"
	"github.com/personaflow/whatsapp-relay/pkg/logging"
)

// RequestIDHeader echoes the correlation id of a webhook request.
const RequestIDHeader = "X-Request-ID"

var webhookTracer = otel.Tracer("personaflow.internal.messaging.webhook")

// Webhook outcomes reported to a WebhookObserver.
const (
	OutcomeProcessed      = "processed"
	OutcomeDiagnostic     = "diagnostic"
	OutcomeUnauthorized   = "unauthorized"
	OutcomeInvalidPayload = "invalid_payload"
	OutcomeDispatchFailed = "dispatch_failed"
	OutcomeError          = "error"
)

// MessageProcessor runs the reply pipeline for a parsed message.
type MessageProcessor interface {
	Process(ctx context.Context, msg conversation.Message) (conversation.Result, error)
}

type WebhookObserver interface {
	ObserveWebhook(outcome string, elapsed time.Duration)
}

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	Validator *SignatureValidator
	// SkipSignature disables request authentication for local development.
	SkipSignature bool
	Parser        *Parser
	Processor     MessageProcessor
	// PublicBaseURL replaces the scheme and host used to verify signatures
	// when the service runs behind a proxy that rewrites them.
	PublicBaseURL string
	Observer      WebhookObserver
	Logger        *logging.Logger
}

// Handler serves the channel webhook.
type Handler struct {
	cfg HandlerConfig
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Processor == nil {
		panic("messaging: processor cannot be nil")
	}
	if cfg.Validator == nil && !cfg.SkipSignature {
		panic("messaging: signature validator cannot be nil")
	}
	if cfg.Parser == nil {
		cfg.Parser = NewParser("")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Handler{cfg: cfg}
}

// ChannelWebhook handles POST /channel/webhook.
func (h *Handler) ChannelWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	// Reuse the router's request id so access and pipeline logs join.
	requestID := chimiddleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)
	logger := h.cfg.Logger.With("request_id", requestID)
	ctx := logging.WithContext(r.Context(), logger)
	ctx, span := webhookTracer.Start(ctx, "messaging.channel.webhook")
	defer span.End()
	span.SetAttributes(attribute.String("personaflow.request_id", requestID))

	outcome := OutcomeError
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("unhandled webhook failure", "panic", fmt.Sprint(rec))
			span.RecordError(fmt.Errorf("panic: %v", rec))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			outcome = OutcomeError
		}
		if h.cfg.Observer != nil {
			h.cfg.Observer.ObserveWebhook(outcome, time.Since(start))
		}
	}()
	logger.Info("channel webhook triggered")

	if !h.cfg.SkipSignature {
		signature := r.Header.Get(SignatureHeader)
		if signature == "" {
			logger.Warn("missing channel signature")
			outcome = OutcomeUnauthorized
			writeError(w, http.StatusUnauthorized, "No Twilio signature provided")
			return
		}
		// An unreadable form cannot be verified against the signature.
		formErr := r.ParseForm()
		if formErr != nil || !h.cfg.Validator.IsValid(h.requestURL(r), r.PostForm, signature) {
			logger.Warn("invalid channel signature", "form_error", formErr)
			span.RecordError(errors.New("invalid channel signature"))
			outcome = OutcomeUnauthorized
			writeError(w, http.StatusUnauthorized, "Invalid Twilio signature")
			return
		}
	} else if err := r.ParseForm(); err != nil {
		logger.Error("failed to parse webhook form", "error", err)
		outcome = OutcomeInvalidPayload
		writeError(w, http.StatusBadRequest, "Invalid message payload")
		return
	}

	msg, err := h.cfg.Parser.Parse(r.PostForm)
	if err != nil {
		if IsDiagnostic(r.PostForm) {
			logger.Info("received channel diagnostic notification", "level", r.PostForm.Get("Level"))
			outcome = OutcomeDiagnostic
			writeOK(w)
			return
		}
		logger.Error("failed to parse channel message", "error", err)
		outcome = OutcomeInvalidPayload
		writeError(w, http.StatusBadRequest, "Invalid message payload")
		return
	}
	span.SetAttributes(attribute.String("personaflow.channel.message_sid", msg.MessageSid))
	logger.Info("parsed channel message", "from", msg.From, "message_sid", msg.MessageSid)

	if _, err := h.cfg.Processor.Process(ctx, msg); err != nil {
		span.RecordError(err)
		if errors.Is(err, conversation.ErrDispatchFailed) {
			logger.Error("failed to send reply", "error", err)
			outcome = OutcomeDispatchFailed
			writeError(w, http.StatusInternalServerError, "Failed to send reply")
			return
		}
		logger.Error("failed to process channel message", "error", err)
		outcome = OutcomeError
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	outcome = OutcomeProcessed
	writeOK(w)
}

// HealthCheck returns a simple health check response.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) requestURL(r *http.Request) string {
	if base := strings.TrimRight(h.cfg.PublicBaseURL, "/"); base != "" {
		return base + r.URL.RequestURI()
	}
	return buildAbsoluteURL(r)
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
