package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pageproxy/pkg/model"
)

func openTestDB(t *testing.T) *EventRepo {
	t.Helper()
	db, err := Open(MemoryDSN, "test_", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return NewEventRepo(db)
}

func TestSaveAndList(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()

	events := []model.Event{
		{ID: "e1", Session: "s1", Target: "t1", Outcome: model.OutcomeProxied, URL: "https://a/", Method: "GET", StatusCode: 200, Timestamp: 1,
			Headers: map[string]string{"accept": "*/*", "x.dotted": "v"}},
		{ID: "e2", Session: "s1", Target: "t1", Outcome: model.OutcomeSkipped, Reason: "no proxy configured", URL: "https://b/", Timestamp: 2},
		{ID: "e3", Session: "s2", Target: "t9", Outcome: model.OutcomeAborted, Error: "dial tcp", Timestamp: 3},
	}
	for _, e := range events {
		require.NoError(t, repo.Save(ctx, e))
	}

	got, err := repo.List(ctx, EventQuery{Session: "s1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[0].ID)
	assert.Equal(t, "e1", got[1].ID)
	assert.Equal(t, map[string]string{"accept": "*/*", "x.dotted": "v"}, got[1].Headers)
	assert.Nil(t, got[0].Headers)

	aborted, err := repo.List(ctx, EventQuery{Outcome: model.OutcomeAborted})
	require.NoError(t, err)
	require.Len(t, aborted, 1)
	assert.Equal(t, "dial tcp", aborted[0].Error)

	limited, err := repo.List(ctx, EventQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "e3", limited[0].ID)
}

func TestDeleteSession(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, model.Event{ID: "e1", Session: "s1"}))
	require.NoError(t, repo.Save(ctx, model.Event{ID: "e2", Session: "s2"}))

	n, err := repo.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rest, err := repo.List(ctx, EventQuery{})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, model.SessionID("s2"), rest[0].Session)
}

func TestSaveDuplicateID(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, model.Event{ID: "dup"}))
	assert.Error(t, repo.Save(ctx, model.Event{ID: "dup"}))
}
