package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/personaflow/whatsapp-relay/internal/crm"
	"github.com/personaflow/whatsapp-relay/pkg/logging"
)

// ErrDispatchFailed is returned when the reply could not be delivered.
var ErrDispatchFailed = errors.New("conversation: reply dispatch failed")

// Reply outcomes reported to a ReplyObserver.
const (
	ReplyGenerated = "generated"
	ReplyApology   = "apology"
)

// ContactFinder resolves the CRM contact for a bare phone number. It never
// fails; an unknown or unreachable contact is nil.
type ContactFinder interface {
	FindByPhone(ctx context.Context, phone string) *crm.Contact
}

// ReplySender delivers a reply on the messaging channel.
type ReplySender interface {
	Send(ctx context.Context, to, from, body string) bool
}

// ConversationSummarizer posts summaries when due.
type ConversationSummarizer interface {
	MaybeSummarize(ctx context.Context, address string, contact *crm.Contact) bool
}

type ReplyObserver interface {
	ObserveReply(outcome string)
}

// Timeouts bounds the store and model calls made while processing. Zero
// leaves the call bounded only by the request context.
type Timeouts struct {
	Store time.Duration
	LLM   time.Duration
}

// ProcessorConfig wires a Processor.
type ProcessorConfig struct {
	Store           MessageStore
	Contacts        ContactFinder
	Generator       *Generator
	Summarizer      ConversationSummarizer
	Sender          ReplySender
	Observer        ReplyObserver
	Logger          *logging.Logger
	BusinessContext string
	ChannelPrefix   string
	HistoryLimit    int
	Timeouts        Timeouts
	Now             func() time.Time
}

// Result describes what happened to one inbound message.
type Result struct {
	ContactID  string
	Persona    string
	Reply      string
	Apology    bool
	Summarized bool
}

// Processor runs the inbound message pipeline.
type Processor struct {
	cfg ProcessorConfig
}

func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("conversation: processor requires a message store")
	case cfg.Contacts == nil:
		return nil, errors.New("conversation: processor requires a contact finder")
	case cfg.Generator == nil:
		return nil, errors.New("conversation: processor requires a generator")
	case cfg.Sender == nil:
		return nil, errors.New("conversation: processor requires a reply sender")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if strings.TrimSpace(cfg.BusinessContext) == "" {
		cfg.BusinessContext = DefaultBusinessContext
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Processor{cfg: cfg}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Process handles a parsed inbound message end to end. The contact lookup
// and the inbound store write run concurrently, so the inbound row is stored
// without a contact id. Only a failed dispatch is returned as an error.
func (p *Processor) Process(ctx context.Context, inbound Message) (Result, error) {
	ctx, span := generatorTracer.Start(ctx, "conversation.process")
	defer span.End()
	logger := logging.FromContext(ctx, p.cfg.Logger)

	inbound.Role = RoleUser
	if inbound.Timestamp.IsZero() {
		inbound.Timestamp = p.cfg.Now().UTC()
	}

	var (
		contact *crm.Contact
		g       errgroup.Group
	)
	g.Go(func() error {
		contact = p.cfg.Contacts.FindByPhone(ctx, strings.TrimPrefix(inbound.From, p.cfg.ChannelPrefix))
		return nil
	})
	g.Go(func() error {
		storeCtx, cancel := withTimeout(ctx, p.cfg.Timeouts.Store)
		defer cancel()
		if err := p.cfg.Store.RecordMessage(storeCtx, inbound); err != nil {
			logger.Error("failed to store inbound message", "message_sid", inbound.MessageSid, "error", err)
			return nil
		}
		logger.Info("stored inbound message", "message_sid", inbound.MessageSid)
		return nil
	})
	_ = g.Wait()

	var result Result
	if contact != nil {
		result.ContactID = contact.ID
		span.SetAttributes(attribute.String("personaflow.crm.contact_id", contact.ID))
	}
	result.Persona = crm.ExtractPersona(contact)

	history := p.history(ctx, logger, inbound)
	turns := BuildPrompt(result.Persona, p.cfg.BusinessContext, history, inbound.Body)

	llmCtx, cancel := withTimeout(ctx, p.cfg.Timeouts.LLM)
	reply, err := p.cfg.Generator.GenerateReply(llmCtx, turns)
	cancel()
	if err != nil {
		logger.Error("failed to generate reply", "error", err)
		span.RecordError(err)
		reply = ApologyMessage
		result.Apology = true
		p.observe(ReplyApology)
	} else {
		p.observe(ReplyGenerated)
	}
	result.Reply = reply

	outbound := ReplyTo(inbound, reply, result.ContactID, p.cfg.Now())
	storeCtx, cancel := withTimeout(ctx, p.cfg.Timeouts.Store)
	err = p.cfg.Store.RecordMessage(storeCtx, outbound)
	cancel()
	if err != nil {
		logger.Error("failed to store assistant message", "message_sid", outbound.MessageSid, "error", err)
	}

	if p.cfg.Summarizer != nil {
		result.Summarized = p.cfg.Summarizer.MaybeSummarize(ctx, inbound.From, contact)
	}

	if !p.cfg.Sender.Send(ctx, inbound.From, inbound.To, reply) {
		span.RecordError(ErrDispatchFailed)
		return result, ErrDispatchFailed
	}
	logger.Info("reply dispatched", "to", inbound.From, "apology", result.Apology)
	return result, nil
}

func (p *Processor) history(ctx context.Context, logger *logging.Logger, inbound Message) []HistoryTurn {
	storeCtx, cancel := withTimeout(ctx, p.cfg.Timeouts.Store)
	defer cancel()
	history, err := p.cfg.Store.FetchRecentHistory(storeCtx, inbound.From, inbound.MessageSid, p.cfg.HistoryLimit)
	if err != nil {
		logger.Error("failed to fetch chat history", "error", err)
		return nil
	}
	return history
}

func (p *Processor) observe(outcome string) {
	if p.cfg.Observer != nil {
		p.cfg.Observer.ObserveReply(outcome)
	}
}
