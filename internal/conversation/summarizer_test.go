package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personaflow/whatsapp-relay/internal/crm"
)

func TestShouldSummarize(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		count int
		first time.Time
		want  bool
	}{
		{"empty", 0, now, false},
		{"count threshold reached", 20, now, true},
		{"one below threshold", 19, now, false},
		{"multiple of threshold", 40, now, true},
		{"time threshold with history", 3, now.Add(-5 * time.Minute), true},
		{"time threshold single message", 1, now.Add(-10 * time.Minute), false},
		{"time threshold not reached", 3, now.Add(-4*time.Minute - 59*time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldSummarize(tc.count, tc.first, now, 20, 5))
		})
	}
	assert.False(t, ShouldSummarize(20, now, now, 0, 5), "zero threshold disables the count trigger")
}

type recordingPoster struct {
	email, title, summary string
	calls                 int
	err                   error
}

func (p *recordingPoster) PostSummary(_ context.Context, email, title, summary string) error {
	p.calls++
	p.email, p.title, p.summary = email, title, summary
	return p.err
}

type outcomeRecorder struct{ outcomes []string }

func (r *outcomeRecorder) ObserveSummary(outcome string) { r.outcomes = append(r.outcomes, outcome) }
func (r *outcomeRecorder) ObserveReply(outcome string)   { r.outcomes = append(r.outcomes, outcome) }

func seedConversation(t *testing.T, store *MemoryStore, n int, start time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := RoleUser
		from, to := "whatsapp:+1555", "whatsapp:+1666"
		if i%2 == 1 {
			role = RoleAssistant
			from, to = to, from
		}
		require.NoError(t, store.RecordMessage(context.Background(), Message{
			From: from, To: to, Body: fmt.Sprintf("msg %d", i), MessageSid: fmt.Sprintf("SM%d", i),
			Role: role, Timestamp: start.Add(time.Duration(i) * time.Second),
		}))
	}
}

func emailContact() *crm.Contact {
	return &crm.Contact{ID: "7", Properties: map[string]string{"email": "ada@example.com"}}
}

func TestMaybeSummarizeFiresAtThreshold(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	seedConversation(t, store, 20, now.Add(-time.Minute))
	poster := &recordingPoster{}
	llm := &stubLLM{text: "- greeting"}
	obs := &outcomeRecorder{}
	s := NewSummarizer(store, NewGenerator(llm, ""), poster, nil, WithSummarizerClock(func() time.Time { return now }), WithSummaryObserver(obs))

	assert.True(t, s.MaybeSummarize(context.Background(), "whatsapp:+1555", emailContact()))
	assert.Equal(t, 1, poster.calls)
	assert.Equal(t, "ada@example.com", poster.email)
	assert.Equal(t, "Chat Summary - Mon, 01 Jan 2024 12:00:00 UTC", poster.title)
	assert.Equal(t, "- greeting", poster.summary)
	assert.Contains(t, llm.requests[0].Messages[0].Content, "user: msg 0\nassistant: msg 1")
	assert.Equal(t, []string{SummaryPosted}, obs.outcomes)
}

func TestMaybeSummarizeBelowThreshold(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	seedConversation(t, store, 19, now.Add(-time.Minute))
	poster := &recordingPoster{}
	s := NewSummarizer(store, NewGenerator(&stubLLM{text: "x"}, ""), poster, nil, WithSummarizerClock(func() time.Time { return now }))

	assert.False(t, s.MaybeSummarize(context.Background(), "whatsapp:+1555", emailContact()))
	assert.Zero(t, poster.calls)
}

func TestMaybeSummarizeTimeTrigger(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	seedConversation(t, store, 2, now.Add(-6*time.Minute))
	poster := &recordingPoster{}
	s := NewSummarizer(store, NewGenerator(&stubLLM{text: "x"}, ""), poster, nil, WithSummarizerClock(func() time.Time { return now }))

	assert.True(t, s.MaybeSummarize(context.Background(), "whatsapp:+1555", emailContact()))
}

func TestMaybeSummarizeRequiresEmail(t *testing.T) {
	store := NewMemoryStore()
	seedConversation(t, store, 20, time.Now())
	poster := &recordingPoster{}
	s := NewSummarizer(store, NewGenerator(&stubLLM{text: "x"}, ""), poster, nil)

	assert.False(t, s.MaybeSummarize(context.Background(), "whatsapp:+1555", nil))
	assert.False(t, s.MaybeSummarize(context.Background(), "whatsapp:+1555", &crm.Contact{ID: "1"}))
	assert.Zero(t, poster.calls)
}

func TestMaybeSummarizeFailuresAreContained(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	seedConversation(t, store, 20, now)
	obs := &outcomeRecorder{}

	s := NewSummarizer(store, NewGenerator(&stubLLM{err: errors.New("llm down")}, ""), &recordingPoster{}, nil,
		WithSummarizerClock(func() time.Time { return now }), WithSummaryObserver(obs))
	assert.False(t, s.MaybeSummarize(context.Background(), "whatsapp:+1555", emailContact()))

	s = NewSummarizer(store, NewGenerator(&stubLLM{text: "x"}, ""), &recordingPoster{err: crm.ErrContactNotFound}, nil,
		WithSummarizerClock(func() time.Time { return now }), WithSummaryObserver(obs))
	assert.False(t, s.MaybeSummarize(context.Background(), "whatsapp:+1555", emailContact()))
	assert.Equal(t, []string{SummaryFailed, SummaryFailed}, obs.outcomes)
}
