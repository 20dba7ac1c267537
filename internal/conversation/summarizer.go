package conversation

import (
	"context"
	"time"

	"github.com/personaflow/whatsapp-relay/internal/crm"
	"github.com/personaflow/whatsapp-relay/pkg/logging"
)

const (
	DefaultSummaryMessageThreshold     = 20
	DefaultSummaryTimeThresholdMinutes = 5
)

// Summary outcomes reported to a SummaryObserver.
const (
	SummaryPosted  = "posted"
	SummaryFailed  = "failed"
	SummarySkipped = "skipped"
)

// SummaryPoster attaches a summary note to the contact owning email.
type SummaryPoster interface {
	PostSummary(ctx context.Context, email, title, summary string) error
}

// SummaryObserver records summarization outcomes.
type SummaryObserver interface {
	ObserveSummary(outcome string)
}

// ShouldSummarize reports whether a conversation of count messages that
// started at first is due for a summary. A non-positive messageThreshold
// disables the count trigger.
func ShouldSummarize(count int, first, now time.Time, messageThreshold, timeThresholdMinutes int) bool {
	if count <= 0 {
		return false
	}
	if messageThreshold > 0 && count%messageThreshold == 0 {
		return true
	}
	elapsedMinutes := now.Sub(first).Minutes()
	return elapsedMinutes >= float64(timeThresholdMinutes) && count > 1
}

// SummaryTitle names a summary note posted at now.
func SummaryTitle(now time.Time) string {
	return "Chat Summary - " + now.Format(time.RFC1123)
}

// Summarizer posts conversation summaries to the CRM once thresholds are met.
// The conversation is re-read in full on every call and concurrent requests
// for the same address may both fire.
type Summarizer struct {
	store                MessageStore
	generator            *Generator
	poster               SummaryPoster
	messageThreshold     int
	timeThresholdMinutes int
	storeTimeout         time.Duration
	llmTimeout           time.Duration
	observer             SummaryObserver
	logger               *logging.Logger
	now                  func() time.Time
}

type SummarizerOption func(*Summarizer)

// WithThresholds overrides the message count and elapsed minute triggers.
func WithThresholds(messages, minutes int) SummarizerOption {
	return func(s *Summarizer) {
		s.messageThreshold = messages
		s.timeThresholdMinutes = minutes
	}
}

// WithSummaryTimeouts bounds the conversation read and the summary
// completion. Zero leaves the call bounded only by the caller's context.
func WithSummaryTimeouts(store, llm time.Duration) SummarizerOption {
	return func(s *Summarizer) {
		s.storeTimeout = store
		s.llmTimeout = llm
	}
}

func WithSummaryObserver(o SummaryObserver) SummarizerOption {
	return func(s *Summarizer) {
		s.observer = o
	}
}

func WithSummarizerClock(now func() time.Time) SummarizerOption {
	return func(s *Summarizer) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSummarizer(store MessageStore, generator *Generator, poster SummaryPoster, logger *logging.Logger, opts ...SummarizerOption) *Summarizer {
	if store == nil || generator == nil || poster == nil {
		panic("conversation: summarizer requires store, generator and poster")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Summarizer{
		store:                store,
		generator:            generator,
		poster:               poster,
		messageThreshold:     DefaultSummaryMessageThreshold,
		timeThresholdMinutes: DefaultSummaryTimeThresholdMinutes,
		logger:               logger,
		now:                  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Summarizer) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveSummary(outcome)
	}
}

// MaybeSummarize posts a summary of the conversation at address when the
// contact has an email and a threshold is met. Failures are logged and
// reported as false; they never affect the reply.
func (s *Summarizer) MaybeSummarize(ctx context.Context, address string, contact *crm.Contact) bool {
	logger := logging.FromContext(ctx, s.logger)
	if contact == nil || contact.Email() == "" {
		return false
	}

	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	messages, err := s.store.FetchFullConversation(storeCtx, address)
	cancel()
	if err != nil {
		logger.Error("failed to load conversation for summary", "error", err)
		s.observe(SummaryFailed)
		return false
	}
	now := s.now()
	if len(messages) == 0 || !ShouldSummarize(len(messages), messages[0].Timestamp, now, s.messageThreshold, s.timeThresholdMinutes) {
		s.observe(SummarySkipped)
		return false
	}

	llmCtx, cancel := withTimeout(ctx, s.llmTimeout)
	summary, err := s.generator.GenerateSummary(llmCtx, TranscriptText(messages))
	cancel()
	if err != nil {
		logger.Error("failed to generate chat summary", "error", err)
		s.observe(SummaryFailed)
		return false
	}
	if err := s.poster.PostSummary(ctx, contact.Email(), SummaryTitle(now), summary); err != nil {
		logger.Error("failed to post chat summary", "contact_id", contact.ID, "error", err)
		s.observe(SummaryFailed)
		return false
	}
	logger.Info("posted chat summary", "contact_id", contact.ID, "messages", len(messages))
	s.observe(SummaryPosted)
	return true
}
