// Package files implements the File/Artifact Service contract (C11):
// upload whitelist validation, async indexing, blob storage, shared-link
// scoping, and cascade delete (§4.11). Grounded on
// siddhantprateek-reefline/pkg/storage's minio-go wrapper for blob bytes
// and internal/kvstore for the durable file handle (§3 "File handle").
package files

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
)

// Whitelist is the set of MIME types §4.11 accepts for upload: images, PDF,
// office docs, markdown, plain text, CSV, and HTML.
var Whitelist = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/msword": true,
	"text/markdown":      true,
	"text/plain":         true,
	"text/csv":           true,
	"text/html":          true,
}

// ErrUnsupportedMime rejects an upload whose MIME type is not in Whitelist.
type ErrUnsupportedMime struct{ Mime string }

func (e ErrUnsupportedMime) Error() string {
	return fmt.Sprintf("files: mime type %q is not accepted for upload", e.Mime)
}

// asyncIndexable is the subset of Whitelist that triggers an async
// indexing pass once uploaded (§4.11: "on PDF, indexing is asynchronously
// requested"; extended here to the other text-bearing formats the
// indexer understands).
var asyncIndexable = map[string]bool{
	"application/pdf": true,
	"text/markdown":   true,
	"text/html":       true,
}

// Service implements upload/download/delete over a Blobs store and a
// Store for metadata, kicking off Indexer in the background for eligible
// uploads.
type Service struct {
	Store   *kvstore.Store
	Blobs   BlobStore
	Indexer Indexer
}

// Upload validates mime against Whitelist, stores the bytes, persists the
// file handle, and — for an indexable mime — starts indexing in the
// background, returning immediately with Indexed=false.
func (s *Service) Upload(ctx context.Context, userID, conversationID, filename, mime string, data []byte, source string) (kvstore.File, error) {
	if !Whitelist[mime] {
		return kvstore.File{}, ErrUnsupportedMime{Mime: mime}
	}

	file := kvstore.File{
		ID:                  uuid.NewString(),
		UserID:              userID,
		ConversationID:      conversationID,
		Filename:            filename,
		Mime:                mime,
		Size:                int64(len(data)),
		Source:              source,
		CreatedAtUnixMillis: time.Now().UnixMilli(),
	}

	blobKey := blobKeyFor(userID, file.ID)
	if s.Blobs != nil {
		if err := s.Blobs.Put(ctx, blobKey, data, mime); err != nil {
			return kvstore.File{}, fmt.Errorf("files: store blob: %w", err)
		}
		file.BlobKey = blobKey
	} else {
		file.Data = data
	}

	if err := s.Store.PutFile(ctx, file); err != nil {
		return kvstore.File{}, fmt.Errorf("files: persist file: %w", err)
	}

	if asyncIndexable[mime] && s.Indexer != nil {
		go s.indexInBackground(file, data)
	}

	return file, nil
}

// indexInBackground runs on its own goroutine; Upload has already
// returned, so failures are recorded on the file handle rather than
// returned to a caller (§4.11: "indexed=true is reported when ready").
func (s *Service) indexInBackground(file kvstore.File, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	ok := s.Indexer.Index(ctx, file, data)
	updated, err := s.Store.GetFile(ctx, file.UserID, file.ID)
	if err != nil {
		return
	}
	updated.Indexed = ok
	if ok {
		updated.VectorIDs = []string{file.ID + ":0"}
	}
	_ = s.Store.PutFile(ctx, updated)
}

// Download returns a file's bytes, reading from the blob store when the
// handle references one.
func (s *Service) Download(ctx context.Context, userID, fileID string) (kvstore.File, []byte, error) {
	file, err := s.Store.GetFile(ctx, userID, fileID)
	if err != nil {
		return kvstore.File{}, nil, err
	}
	if file.BlobKey != "" && s.Blobs != nil {
		data, err := s.Blobs.Get(ctx, file.BlobKey)
		if err != nil {
			return kvstore.File{}, nil, fmt.Errorf("files: load blob: %w", err)
		}
		return file, data, nil
	}
	return file, file.Data, nil
}

// DeleteConversation cascades a chat deletion to every file it owns,
// releasing blobs and vector index entries (§4.11: "deletion of a chat
// transitively deletes its files and their vector indexes").
func (s *Service) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	deleted, err := s.Store.DeleteConversationFiles(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	if s.Blobs == nil {
		return nil
	}
	for _, file := range deleted {
		if file.BlobKey == "" {
			continue
		}
		if err := s.Blobs.Delete(ctx, file.BlobKey); err != nil {
			return fmt.Errorf("files: delete blob for %s: %w", file.ID, err)
		}
	}
	return nil
}

func blobKeyFor(userID, fileID string) string {
	return userID + "/" + fileID
}
