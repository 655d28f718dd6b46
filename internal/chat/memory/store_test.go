package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetchat/sheetchat/internal/chat"
)

func TestCreateStartsEmpty(t *testing.T) {
	store := NewSessionStore()
	session, err := store.Create(context.Background(), chat.CreateSessionInput{FileID: "mock-file-1"})
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "mock-file-1", session.FileID)
	assert.NotNil(t, session.Messages)
	assert.Empty(t, session.Messages)
	assert.Equal(t, []string{}, session.SelectedTables)
	assert.False(t, session.CreatedAt.IsZero())
}

func TestCreateRequiresFileID(t *testing.T) {
	_, err := NewSessionStore().Create(context.Background(), chat.CreateSessionInput{FileID: "  "})
	require.Error(t, err)
}

func TestGetAndUpdateMissingSession(t *testing.T) {
	store := NewSessionStore()
	_, err := store.Get(context.Background(), "missing")
	require.True(t, errors.Is(err, chat.ErrNotFound))
	_, err = store.Update(context.Background(), "missing", chat.SessionUpdate{})
	require.True(t, errors.Is(err, chat.ErrNotFound))
}

func TestUpdateReplacesOnlyProvidedFields(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	session, err := store.Create(ctx, chat.CreateSessionInput{FileID: "f", SelectedTables: []string{"a"}})
	require.NoError(t, err)

	msgs := []chat.Message{{ID: "1", Content: "hi", Sender: chat.SenderUser}}
	updated, err := store.Update(ctx, session.ID, chat.SessionUpdate{Messages: msgs})
	require.NoError(t, err)
	assert.Len(t, updated.Messages, 1)
	assert.Equal(t, []string{"a"}, updated.SelectedTables)

	updated, err = store.Update(ctx, session.ID, chat.SessionUpdate{SelectedTables: []string{"b", "c"}})
	require.NoError(t, err)
	assert.Len(t, updated.Messages, 1)
	assert.Equal(t, []string{"b", "c"}, updated.SelectedTables)
}

func TestStoreHandsOutCopies(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	session, err := store.Create(ctx, chat.CreateSessionInput{FileID: "f"})
	require.NoError(t, err)

	msgs := []chat.Message{{ID: "1", Content: "original", ChartData: []byte(`{"type":"bar"}`)}}
	_, err = store.Update(ctx, session.ID, chat.SessionUpdate{Messages: msgs})
	require.NoError(t, err)
	msgs[0].Content = "mutated"
	msgs[0].ChartData[2] = 'X'

	got, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Messages[0].Content)
	assert.JSONEq(t, `{"type":"bar"}`, string(got.Messages[0].ChartData))

	got.Messages[0].Content = "changed after get"
	again, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Messages[0].Content)
}

func TestListByFileFiltersAndSorts(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 17, 10, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, err := store.Create(ctx, chat.CreateSessionInput{FileID: "f1"})
	require.NoError(t, err)
	_, err = store.Create(ctx, chat.CreateSessionInput{FileID: "f2"})
	require.NoError(t, err)
	third, err := store.Create(ctx, chat.CreateSessionInput{FileID: "f1"})
	require.NoError(t, err)

	sessions, err := store.ListByFile(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first.ID, sessions[0].ID)
	assert.Equal(t, third.ID, sessions[1].ID)

	none, err := store.ListByFile(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
