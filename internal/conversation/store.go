package conversation

import (
	"context"
	"errors"
)

// DefaultHistoryLimit caps the turns replayed into a prompt.
const DefaultHistoryLimit = 10

// ErrDuplicateMessage is returned when a message sid has already been stored.
var ErrDuplicateMessage = errors.New("conversation: duplicate message sid")

// MessageStore persists chat messages. A conversation is every message sent
// from or to an address.
type MessageStore interface {
	// RecordMessage inserts msg. Inserting an existing sid returns
	// ErrDuplicateMessage and leaves the stored row untouched.
	RecordMessage(ctx context.Context, msg Message) error
	// FetchRecentHistory returns up to limit of the most recent turns for
	// address, oldest first, skipping excludeSid and empty bodies.
	FetchRecentHistory(ctx context.Context, address, excludeSid string, limit int) ([]HistoryTurn, error)
	// FetchFullConversation returns every message for address, oldest first.
	FetchFullConversation(ctx context.Context, address string) ([]Message, error)
}
