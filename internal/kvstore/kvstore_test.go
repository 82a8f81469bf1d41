package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStoreRequiresClient(t *testing.T) {
	_, err := NewStore(nil)
	require.EqualError(t, err, "client is required")
}

func TestPutAndListMessagesOrdered(t *testing.T) {
	store, err := NewStore(newFakeClient())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.PutMessage(ctx, "u1", Message{ID: "m1", ConversationID: "c1", Content: "first"}))
	require.NoError(t, store.PutMessage(ctx, "u1", Message{ID: "m2", ConversationID: "c1", Content: "second"}))
	require.NoError(t, store.PutMessage(ctx, "u1", Message{ID: "m3", ConversationID: "c1", Content: "third"}))

	all, err := store.ListMessages(ctx, "u1", "c1", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []string{"m1", "m2", "m3"}, idsOf(all))

	afterFirst, err := store.ListMessages(ctx, "u1", "c1", "m1")
	require.NoError(t, err)
	require.Equal(t, []string{"m2", "m3"}, idsOf(afterFirst))
}

func TestListMessagesAfterUnknownIDReturnsNotFound(t *testing.T) {
	store, err := NewStore(newFakeClient())
	require.NoError(t, err)
	_, err = store.ListMessages(context.Background(), "u1", "c1", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIsMessageNewGatesExactlyOnce(t *testing.T) {
	store, err := NewStore(newFakeClient())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := store.IsMessageNew(ctx, "u1", "c1", "m1")
	require.NoError(t, err)
	require.True(t, first)

	second, err := store.IsMessageNew(ctx, "u1", "c1", "m1")
	require.NoError(t, err)
	require.False(t, second)
}

func TestFileLifecycle(t *testing.T) {
	store, err := NewStore(newFakeClient())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.PutFile(ctx, File{ID: "f1", UserID: "u1", Filename: "a.csv", Mime: "text/csv", Data: []byte("a,b\n1,2")}))
	require.NoError(t, store.PutFile(ctx, File{ID: "f2", UserID: "u1", Filename: "b.csv", Mime: "text/csv"}))

	ids, err := store.ListUserFiles(ctx, "u1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"f1", "f2"}, ids)

	loaded, err := store.GetFile(ctx, "u1", "f1")
	require.NoError(t, err)
	require.Equal(t, "a.csv", loaded.Filename)
	require.Equal(t, []byte("a,b\n1,2"), loaded.Data)

	deleted, err := store.DeleteFile(ctx, "u1", "f1")
	require.NoError(t, err)
	require.Equal(t, "a.csv", deleted.Filename)
	_, err = store.GetFile(ctx, "u1", "f1")
	require.ErrorIs(t, err, ErrNotFound)

	ids, err = store.ListUserFiles(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"f2"}, ids)
}

func TestDeleteFileIdempotent(t *testing.T) {
	store, err := NewStore(newFakeClient())
	require.NoError(t, err)
	_, err = store.DeleteFile(context.Background(), "u1", "never-existed")
	require.NoError(t, err)
}

func TestDeleteConversationFilesCascades(t *testing.T) {
	store, err := NewStore(newFakeClient())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.PutFile(ctx, File{ID: "f1", UserID: "u1", ConversationID: "c1", Filename: "a.csv", Mime: "text/csv"}))
	require.NoError(t, store.PutFile(ctx, File{ID: "f2", UserID: "u1", ConversationID: "c1", Filename: "b.pdf", Mime: "application/pdf"}))
	require.NoError(t, store.PutFile(ctx, File{ID: "f3", UserID: "u1", ConversationID: "c2", Filename: "c.csv", Mime: "text/csv"}))

	deleted, err := store.DeleteConversationFiles(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Len(t, deleted, 2)

	ids, err := store.ListConversationFiles(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Empty(t, ids)

	ids, err = store.ListUserFiles(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"f3"}, ids)
}

func TestSessionMetaRoundTrip(t *testing.T) {
	store, err := NewStore(newFakeClient())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.GetSessionMeta(ctx, "u1", "c1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.PutSessionMeta(ctx, SessionMeta{UserID: "u1", ConversationID: "c1", SocketEpoch: 1}))
	meta, err := store.GetSessionMeta(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Equal(t, int64(1), meta.SocketEpoch)
}

func TestExportBundleLifecycle(t *testing.T) {
	store, err := NewStore(newFakeClient())
	require.NoError(t, err)
	ctx := context.Background()

	status, err := store.GetExportStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, ExportNone, status.Status)

	require.NoError(t, store.PutExportBundle(ctx, ExportBundle{UserID: "u1", Status: ExportProcessing}))
	status, err = store.GetExportStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, ExportProcessing, status.Status)

	ids, err := store.ListExportUserIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, ids)

	require.NoError(t, store.PutExportBundle(ctx, ExportBundle{UserID: "u1", Status: ExportReady, ArtifactLocation: "s3://bucket/u1.zip"}))
	status, err = store.GetExportStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, ExportReady, status.Status)
	require.Equal(t, "s3://bucket/u1.zip", status.ArtifactLocation)

	require.NoError(t, store.ClearExportBundle(ctx, "u1"))
	status, err = store.GetExportStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, ExportNone, status.Status)

	ids, err = store.ListExportUserIDs(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestListConversationsTracksEveryConversationWithAMessage(t *testing.T) {
	store, err := NewStore(newFakeClient())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.PutMessage(ctx, "u1", Message{ID: "m1", ConversationID: "c1"}))
	require.NoError(t, store.PutMessage(ctx, "u1", Message{ID: "m2", ConversationID: "c2"}))
	require.NoError(t, store.PutMessage(ctx, "u1", Message{ID: "m3", ConversationID: "c1"}))

	ids, err := store.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"c1", "c2"}, ids)
}

func idsOf(messages []Message) []string {
	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	return ids
}
