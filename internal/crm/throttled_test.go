package crm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWaiter struct {
	calls int
	err   error
}

func (w *countingWaiter) Wait(context.Context) error {
	w.calls++
	return w.err
}

func TestThrottledAPIWaitsBeforeEveryCall(t *testing.T) {
	waiter := &countingWaiter{}
	api := &fakeAPI{}
	throttled := NewThrottledAPI(api, waiter)
	ctx := context.Background()

	_, err := throttled.SearchContacts(ctx, SearchRequest{Property: PropPhone, Value: "1"})
	require.NoError(t, err)
	_, err = throttled.CreateNote(ctx, Note{Body: "n"})
	require.NoError(t, err)
	require.NoError(t, throttled.AssociateNoteWithContact(ctx, "n", "c"))
	require.NoError(t, throttled.UpdateContact(ctx, "c", nil))

	assert.Equal(t, 4, waiter.calls)
	assert.Len(t, api.searches, 1)
	assert.Len(t, api.notes, 1)
}

func TestThrottledAPIStopsWhenLimiterFails(t *testing.T) {
	waiter := &countingWaiter{err: errors.New("exhausted")}
	api := &fakeAPI{}
	throttled := NewThrottledAPI(api, waiter)

	_, err := throttled.SearchContacts(context.Background(), SearchRequest{Property: PropPhone, Value: "1"})
	require.Error(t, err)
	assert.Empty(t, api.searches)
}
