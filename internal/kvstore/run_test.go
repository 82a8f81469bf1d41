package kvstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunPauseLifecycle(t *testing.T) {
	store, err := NewStore(newFakeClient())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.GetRunPause(ctx, "r1")
	require.True(t, errors.Is(err, ErrNotFound))

	pause := RunPause{
		RunID:      "r1",
		PausedAt:   "Hypothesis",
		Payload:    map[string]any{"question": "which columns?"},
		State:      map[string]any{"sender": "data_science_hypothesis_agent"},
		PausedUnix: 1000,
	}
	require.NoError(t, store.PutRunPause(ctx, pause))

	got, err := store.GetRunPause(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "Hypothesis", got.PausedAt)
	require.Equal(t, int64(1000), got.PausedUnix)

	require.NoError(t, store.ClearRunPause(ctx, "r1"))
	_, err = store.GetRunPause(ctx, "r1")
	require.True(t, errors.Is(err, ErrNotFound))

	// Clearing an already-cleared run is not an error.
	require.NoError(t, store.ClearRunPause(ctx, "r1"))
}

func TestPutRunPauseRequiresRunID(t *testing.T) {
	store, err := NewStore(newFakeClient())
	require.NoError(t, err)
	err = store.PutRunPause(context.Background(), RunPause{})
	require.Error(t, err)
}
