package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/personaflow/whatsapp-relay/internal/resilience"
	"github.com/personaflow/whatsapp-relay/pkg/logging"
)

// DefaultPersona is used when no contact or contact name is known.
const DefaultPersona = "default persona"

// ErrContactNotFound is returned when an email lookup has no match.
var ErrContactNotFound = errors.New("crm: contact not found")

// Resolver looks up contacts and writes summary notes, retrying transient
// HubSpot failures.
type Resolver struct {
	api     API
	policy  resilience.Policy
	timeout time.Duration
	logger  *logging.Logger
	now     func() time.Time
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithRetryPolicy overrides the default 3-retry exponential policy.
func WithRetryPolicy(p resilience.Policy) ResolverOption {
	return func(r *Resolver) {
		r.policy = p
	}
}

// WithCallTimeout bounds each individual HubSpot call.
func WithCallTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewResolver builds a Resolver over api.
func NewResolver(api API, logger *logging.Logger, opts ...ResolverOption) *Resolver {
	if api == nil {
		panic("crm: api cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Resolver{
		api:    api,
		policy: resilience.DefaultPolicy(),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) retryPolicy(ctx context.Context, op string) resilience.Policy {
	p := r.policy
	logger := logging.FromContext(ctx, r.logger)
	p.OnRetry = func(retry int, delay time.Duration, err error) {
		logger.Warn("retrying hubspot call", "op", op, "retry", retry+1, "delay_ms", delay.Milliseconds(), "error", err)
	}
	return p
}

func (r *Resolver) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Resolver) searchOne(ctx context.Context, property, value string) (*Contact, error) {
	return resilience.Do(ctx, r.retryPolicy(ctx, "search_"+property), func(ctx context.Context) (*Contact, error) {
		callCtx, cancel := r.callContext(ctx)
		defer cancel()
		results, err := r.api.SearchContacts(callCtx, SearchRequest{
			Property:   property,
			Value:      value,
			Properties: ContactProperties,
			Limit:      1,
		})
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			return nil, nil
		}
		contact := results[0]
		return &contact, nil
	})
}

// FindByPhone returns the contact whose phone property matches, or nil. Lookup
// failures are logged and degrade to nil.
func (r *Resolver) FindByPhone(ctx context.Context, phone string) *Contact {
	logger := logging.FromContext(ctx, r.logger)
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	contact, err := r.searchOne(ctx, PropPhone, phone)
	if err != nil {
		logger.Error("hubspot contact lookup by phone failed", "error", err)
		return nil
	}
	if contact == nil {
		logger.Info("no hubspot contact found for phone", "phone", phone)
		return nil
	}
	logger.Info("matched hubspot contact", "contact_id", contact.ID)
	return contact
}

// FindByEmail returns the contact with the given email or ErrContactNotFound.
func (r *Resolver) FindByEmail(ctx context.Context, email string) (*Contact, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("crm: email required")
	}
	contact, err := r.searchOne(ctx, PropEmail, email)
	if err != nil {
		return nil, fmt.Errorf("crm: find contact by email: %w", err)
	}
	if contact == nil {
		return nil, ErrContactNotFound
	}
	return contact, nil
}

// UpdateContact patches contact properties and reports success.
func (r *Resolver) UpdateContact(ctx context.Context, contactID string, properties map[string]string) bool {
	err := resilience.DoErr(ctx, r.retryPolicy(ctx, "update_contact"), func(ctx context.Context) error {
		callCtx, cancel := r.callContext(ctx)
		defer cancel()
		return r.api.UpdateContact(callCtx, contactID, properties)
	})
	if err != nil {
		logging.FromContext(ctx, r.logger).Error("hubspot contact update failed", "contact_id", contactID, "error", err)
		return false
	}
	return true
}

// PostSummary attaches a summary note to the contact identified by email.
// The note is created first, then associated; each step retries on its own.
func (r *Resolver) PostSummary(ctx context.Context, email, title, summary string) error {
	contact, err := r.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	noteID, err := resilience.Do(ctx, r.retryPolicy(ctx, "create_note"), func(ctx context.Context) (string, error) {
		callCtx, cancel := r.callContext(ctx)
		defer cancel()
		return r.api.CreateNote(callCtx, Note{
			Body:      title + "\n\n" + summary,
			Timestamp: r.now(),
		})
	})
	if err != nil {
		return fmt.Errorf("crm: create summary note: %w", err)
	}

	err = resilience.DoErr(ctx, r.retryPolicy(ctx, "associate_note"), func(ctx context.Context) error {
		callCtx, cancel := r.callContext(ctx)
		defer cancel()
		return r.api.AssociateNoteWithContact(callCtx, noteID, contact.ID)
	})
	if err != nil {
		return fmt.Errorf("crm: associate note %s with contact %s: %w", noteID, contact.ID, err)
	}
	logging.FromContext(ctx, r.logger).Info("associated summary note with contact", "note_id", noteID, "contact_id", contact.ID)
	return nil
}

// ExtractPersona describes the contact for prompt steering. A contact without
// a name keeps the default persona as its base, so a nameless contact with a
// tone yields "default persona, tone: X" rather than a bare ", tone: X".
func ExtractPersona(c *Contact) string {
	if c == nil {
		return DefaultPersona
	}
	persona := strings.TrimSpace(c.Property(PropFirstName) + " " + c.Property(PropLastName))
	if persona == "" {
		persona = DefaultPersona
	}
	if tone := c.Property(PropTone); tone != "" {
		persona += ", tone: " + tone
	}
	if prefs := c.Property(PropPreferences); prefs != "" {
		persona += ", preferences: " + prefs
	}
	return persona
}
