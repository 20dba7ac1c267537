package crm

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var crmTracer = otel.Tracer("personaflow.internal.crm")

// Waiter suspends the caller until a call to the guarded service may start.
type Waiter interface {
	Wait(ctx context.Context) error
}

// ThrottledAPI makes every call wait for a rate limiter slot first.
type ThrottledAPI struct {
	next    API
	limiter Waiter
}

// NewThrottledAPI decorates next with limiter.
func NewThrottledAPI(next API, limiter Waiter) *ThrottledAPI {
	if next == nil {
		panic("crm: api cannot be nil")
	}
	if limiter == nil {
		panic("crm: limiter cannot be nil")
	}
	return &ThrottledAPI{next: next, limiter: limiter}
}

var _ API = (*ThrottledAPI)(nil)

func (t *ThrottledAPI) throttle(ctx context.Context, op string) (context.Context, trace.Span, error) {
	ctx, span := crmTracer.Start(ctx, "crm."+op)
	if err := t.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.End()
		return ctx, nil, fmt.Errorf("crm: throttle %s: %w", op, err)
	}
	return ctx, span, nil
}

// SearchContacts implements API.
func (t *ThrottledAPI) SearchContacts(ctx context.Context, req SearchRequest) ([]Contact, error) {
	ctx, span, err := t.throttle(ctx, "search_contacts")
	if err != nil {
		return nil, err
	}
	defer span.End()
	span.SetAttributes(attribute.String("personaflow.crm.property", req.Property))
	contacts, err := t.next.SearchContacts(ctx, req)
	if err != nil {
		span.RecordError(err)
	}
	return contacts, err
}

// CreateNote implements API.
func (t *ThrottledAPI) CreateNote(ctx context.Context, note Note) (string, error) {
	ctx, span, err := t.throttle(ctx, "create_note")
	if err != nil {
		return "", err
	}
	defer span.End()
	id, err := t.next.CreateNote(ctx, note)
	if err != nil {
		span.RecordError(err)
	}
	return id, err
}

// AssociateNoteWithContact implements API.
func (t *ThrottledAPI) AssociateNoteWithContact(ctx context.Context, noteID, contactID string) error {
	ctx, span, err := t.throttle(ctx, "associate_note")
	if err != nil {
		return err
	}
	defer span.End()
	span.SetAttributes(
		attribute.String("personaflow.crm.note_id", noteID),
		attribute.String("personaflow.crm.contact_id", contactID),
	)
	if err := t.next.AssociateNoteWithContact(ctx, noteID, contactID); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// UpdateContact implements API.
func (t *ThrottledAPI) UpdateContact(ctx context.Context, contactID string, properties map[string]string) error {
	ctx, span, err := t.throttle(ctx, "update_contact")
	if err != nil {
		return err
	}
	defer span.End()
	span.SetAttributes(attribute.String("personaflow.crm.contact_id", contactID))
	if err := t.next.UpdateContact(ctx, contactID, properties); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
