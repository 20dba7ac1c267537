package messaging

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/personaflow/whatsapp-relay/internal/conversation"
)

// DefaultChannelPrefix marks WhatsApp addresses.
const DefaultChannelPrefix = "whatsapp:"

var (
	// ErrMissingField is returned when a required form field is absent or empty.
	ErrMissingField = errors.New("messaging: missing required field")
	// ErrInvalidAddress is returned when From or To lacks the channel prefix.
	ErrInvalidAddress = errors.New("messaging: address missing channel prefix")
)

// HasChannelPrefix reports whether address is a channel address with a
// non-empty number after the prefix.
func HasChannelPrefix(address, prefix string) bool {
	return strings.HasPrefix(address, prefix) && len(address) > len(prefix)
}

// Parser turns webhook form fields into inbound messages.
type Parser struct {
	Prefix string
}

func NewParser(prefix string) *Parser {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Parser{Prefix: prefix}
}

// Parse validates From, To, Body and MessageSid and returns the inbound user
// message. Body is trimmed; a body that is empty after trimming is rejected.
func (p *Parser) Parse(params url.Values) (conversation.Message, error) {
	fields := map[string]string{}
	for _, name := range []string{"From", "To", "Body", "MessageSid"} {
		value := params.Get(name)
		if name == "Body" {
			value = strings.TrimSpace(value)
		}
		if value == "" {
			return conversation.Message{}, fmt.Errorf("%w: %s", ErrMissingField, name)
		}
		fields[name] = value
	}
	for _, name := range []string{"From", "To"} {
		if !HasChannelPrefix(fields[name], p.Prefix) {
			return conversation.Message{}, fmt.Errorf("%w: %s=%q", ErrInvalidAddress, name, fields[name])
		}
	}
	return conversation.Message{
		From:       fields["From"],
		To:         fields["To"],
		Body:       fields["Body"],
		MessageSid: fields["MessageSid"],
		Role:       conversation.RoleUser,
	}, nil
}

// IsDiagnostic reports whether params look like a provider debugger event
// (error or warning notification) rather than a chat message.
func IsDiagnostic(params url.Values) bool {
	return params.Get("Payload") != "" && params.Get("Level") != ""
}
