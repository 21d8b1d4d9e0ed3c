package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"streampoints-engine/services/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(testutil.NewTestDB(t, &InboundEvent{}))
}

func TestTryBeginProcessingDeduplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	isNew, err := store.TryBeginProcessing(ctx, "d-1", EventChatMessage, "1", []byte(`{"a":1}`))
	require.NoError(t, err)
	require.True(t, isNew)

	// Redelivery of the same id, even with a different payload, is not new.
	isNew, err = store.TryBeginProcessing(ctx, "d-1", EventChatMessage, "1", []byte(`{"a":2}`))
	require.NoError(t, err)
	require.False(t, isNew)

	event, err := store.Get(ctx, "d-1")
	require.NoError(t, err)
	require.NotNil(t, event)
	require.JSONEq(t, `{"a":1}`, string(event.Payload))
	require.False(t, event.Processed)

	isNew, err = store.TryBeginProcessing(ctx, "d-2", EventChannelFollowed, "1", []byte(`{}`))
	require.NoError(t, err)
	require.True(t, isNew)
}

func TestMarkProcessed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.TryBeginProcessing(ctx, "d-1", EventChatMessage, "1", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, store.MarkProcessed(ctx, "d-1"))

	event, err := store.Get(ctx, "d-1")
	require.NoError(t, err)
	require.True(t, event.Processed)
	require.NotNil(t, event.ProcessedAt)
}

func TestFindStuckOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"d-1", "d-2", "d-3"} {
		_, err := store.TryBeginProcessing(ctx, id, EventChatMessage, "1", []byte(`{}`))
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, store.MarkProcessed(ctx, "d-2"))

	stuck, err := store.FindStuck(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stuck, 2)
	require.Equal(t, "d-1", stuck[0].DeliveryID)
	require.Equal(t, "d-3", stuck[1].DeliveryID)

	stuck, err = store.FindStuck(ctx, 1)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
}

func TestGetUnknownDelivery(t *testing.T) {
	store := newTestStore(t)

	event, err := store.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	require.Nil(t, event)
}
