package bootstrap

import (
	"errors"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/personaflow/whatsapp-relay/internal/config"
	"github.com/personaflow/whatsapp-relay/internal/conversation"
	"github.com/personaflow/whatsapp-relay/internal/crm"
	"github.com/personaflow/whatsapp-relay/internal/messaging"
	"github.com/personaflow/whatsapp-relay/internal/observability/metrics"
	"github.com/personaflow/whatsapp-relay/internal/resilience"
	"github.com/personaflow/whatsapp-relay/pkg/logging"
)

const hubspotLimiterKey = "hubspot"

// RelayDeps are the handles opened at startup.
type RelayDeps struct {
	Config  *appconfig.Config
	Logger  *logging.Logger
	Store   conversation.MessageStore
	LLM     conversation.LLMClient
	Redis   *redis.Client
	Metrics *metrics.RelayMetrics
	// CRM and Sender replace the HubSpot and Twilio clients when set.
	CRM    crm.API
	Sender messaging.MessageSender
}

// BuildLimiter returns the CRM rate limiter. The window is shared through
// Redis when a client is available and kept in process otherwise.
func BuildLimiter(cfg *appconfig.Config, redisClient *redis.Client, m *metrics.RelayMetrics, logger *logging.Logger) *resilience.Limiter {
	quota := cfg.HubSpotRateLimit
	if quota <= 0 {
		quota = resilience.DefaultQuota
	}
	var counter resilience.WindowCounter
	if redisClient != nil {
		counter = resilience.NewRedisWindow(redisClient, hubspotLimiterKey, quota, resilience.DefaultWindow)
	} else {
		counter = resilience.NewMemoryWindow(quota, resilience.DefaultWindow)
	}
	return resilience.NewLimiter(counter,
		resilience.WithWaitObserver(m),
		resilience.WithLimiterLogger(logger),
	)
}

// BuildRelay wires the reply pipeline and returns the webhook handler.
func BuildRelay(deps RelayDeps) (*messaging.Handler, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if deps.Store == nil || deps.LLM == nil {
		return nil, errors.New("bootstrap: store and llm client required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	api := deps.CRM
	if api == nil {
		client, err := crm.New(crm.Config{
			BaseURL:     cfg.HubSpotBaseURL,
			AccessToken: cfg.HubSpotAccessToken,
			Timeout:     cfg.CRMTimeout,
		})
		if err != nil {
			return nil, err
		}
		api = client
	}
	limiter := BuildLimiter(cfg, deps.Redis, deps.Metrics, logger)
	resolver := crm.NewResolver(crm.NewThrottledAPI(api, limiter), logger, crm.WithCallTimeout(cfg.CRMTimeout))

	sender := deps.Sender
	if sender == nil {
		sender = messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioBaseURL, cfg.ChannelTimeout)
	}
	dispatcher := messaging.NewDispatcher(sender, cfg.ChannelPrefix, logger, messaging.WithDispatchObserver(deps.Metrics))

	generator := conversation.NewGenerator(deps.LLM, "")
	summarizer := conversation.NewSummarizer(deps.Store, generator, resolver, logger,
		conversation.WithThresholds(cfg.SummaryMessageThreshold, cfg.SummaryTimeThresholdMinutes),
		conversation.WithSummaryTimeouts(cfg.StoreTimeout, cfg.LLMTimeout),
		conversation.WithSummaryObserver(deps.Metrics),
	)
	processor, err := conversation.NewProcessor(conversation.ProcessorConfig{
		Store:           deps.Store,
		Contacts:        resolver,
		Generator:       generator,
		Summarizer:      summarizer,
		Sender:          dispatcher,
		Observer:        deps.Metrics,
		Logger:          logger,
		BusinessContext: cfg.BusinessContext,
		ChannelPrefix:   cfg.ChannelPrefix,
		HistoryLimit:    cfg.HistoryLimit,
		Timeouts: conversation.Timeouts{
			Store: cfg.StoreTimeout,
			LLM:   cfg.LLMTimeout,
		},
	})
	if err != nil {
		return nil, err
	}

	if !cfg.ValidateTwilioSignature {
		logger.Warn("channel signature validation disabled")
	}
	return messaging.NewHandler(messaging.HandlerConfig{
		Validator:     messaging.NewSignatureValidator(cfg.TwilioAuthToken),
		SkipSignature: !cfg.ValidateTwilioSignature,
		Parser:        messaging.NewParser(cfg.ChannelPrefix),
		Processor:     processor,
		PublicBaseURL: cfg.PublicBaseURL,
		Observer:      deps.Metrics,
		Logger:        logger,
	}), nil
}
