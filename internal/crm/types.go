package crm

import (
	"context"
	"strings"
	"time"
)

// Contact properties read by the relay.
const (
	PropFirstName   = "firstname"
	PropLastName    = "lastname"
	PropEmail       = "email"
	PropPhone       = "phone"
	PropTone        = "persona_tone"
	PropPreferences = "persona_preferences"
)

// ContactProperties is the property list requested on every contact search.
var ContactProperties = []string{PropFirstName, PropLastName, PropEmail, PropPhone, PropTone, PropPreferences}

// Contact is an externally owned CRM identity.
type Contact struct {
	ID         string
	Properties map[string]string
}

// Property returns the trimmed property value, or "" when absent.
func (c *Contact) Property(name string) string {
	if c == nil || c.Properties == nil {
		return ""
	}
	return strings.TrimSpace(c.Properties[name])
}

// Email returns the contact's email property.
func (c *Contact) Email() string {
	return c.Property(PropEmail)
}

// SearchRequest is an equality search over one property.
type SearchRequest struct {
	Property   string
	Value      string
	Properties []string
	Limit      int
}

// Note is a CRM engagement note.
type Note struct {
	Body      string
	Timestamp time.Time
}

// API is the subset of the HubSpot API used by the relay.
type API interface {
	SearchContacts(ctx context.Context, req SearchRequest) ([]Contact, error)
	CreateNote(ctx context.Context, note Note) (string, error)
	AssociateNoteWithContact(ctx context.Context, noteID, contactID string) error
	UpdateContact(ctx context.Context, contactID string, properties map[string]string) error
}
