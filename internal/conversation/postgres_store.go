package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// PgxPool is the subset of pgxpool.Pool the store uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore keeps messages in the messages table.
type PostgresStore struct {
	pool PgxPool
	now  func() time.Time
}

func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool cannot be nil")
	}
	return &PostgresStore{pool: pool, now: time.Now}
}

var _ MessageStore = (*PostgresStore)(nil)

func (s *PostgresStore) RecordMessage(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.MessageSid) == "" {
		return errors.New("conversation: message sid required")
	}
	if !msg.Role.Valid() {
		return fmt.Errorf("conversation: invalid role %q", msg.Role)
	}
	sentAt := msg.Timestamp
	if sentAt.IsZero() {
		sentAt = s.now()
	}
	query := `
		INSERT INTO messages (message_sid, from_address, to_address, body, role, contact_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`
	_, err := s.pool.Exec(ctx, query, msg.MessageSid, msg.From, msg.To, msg.Body, string(msg.Role), msg.ContactID, sentAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateMessage, msg.MessageSid)
		}
		return fmt.Errorf("conversation: insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) FetchRecentHistory(ctx context.Context, address, excludeSid string, limit int) ([]HistoryTurn, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	query := `
		SELECT role, body FROM (
			SELECT id, role, body, sent_at
			FROM messages
			WHERE (from_address = $1 OR to_address = $1)
				AND message_sid <> $2
				AND body <> ''
			ORDER BY sent_at DESC, id DESC
			LIMIT $3
		) recent
		ORDER BY sent_at ASC, id ASC
	`
	rows, err := s.pool.Query(ctx, query, address, excludeSid, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: query recent history: %w", err)
	}
	defer rows.Close()

	var turns []HistoryTurn
	for rows.Next() {
		var role, body string
		if err := rows.Scan(&role, &body); err != nil {
			return nil, fmt.Errorf("conversation: scan history row: %w", err)
		}
		if !Role(role).Valid() || body == "" {
			continue
		}
		turns = append(turns, HistoryTurn{Role: Role(role), Body: body})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate history rows: %w", err)
	}
	return turns, nil
}

func (s *PostgresStore) FetchFullConversation(ctx context.Context, address string) ([]Message, error) {
	query := `
		SELECT message_sid, from_address, to_address, body, role, COALESCE(contact_id, ''), sent_at
		FROM messages
		WHERE from_address = $1 OR to_address = $1
		ORDER BY sent_at ASC, id ASC
	`
	rows, err := s.pool.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("conversation: query conversation: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m    Message
			role string
		)
		if err := rows.Scan(&m.MessageSid, &m.From, &m.To, &m.Body, &role, &m.ContactID, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("conversation: scan conversation row: %w", err)
		}
		m.Role = Role(role)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate conversation rows: %w", err)
	}
	return messages, nil
}
