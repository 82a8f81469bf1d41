package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// File is the durable record at file:<user>:<file_id>: the handle described
// by §3 ("File handle") plus wherever its bytes live. C11 owns upload
// validation, the whitelist, and indexing; the store only persists what it
// is given. BlobKey, when set, names the object in the external blob store
// (C11's minio-go client); Data holds the bytes directly for callers that
// don't wire a blob store (e.g. tests).
type File struct {
	ID                  string   `json:"id"`
	UserID              string   `json:"user_id"`
	ConversationID      string   `json:"conversation_id"`
	Filename            string   `json:"filename"`
	Mime                string   `json:"mime"`
	Size                int64    `json:"size"`
	Indexed             bool     `json:"indexed"`
	Source              string   `json:"source,omitempty"`
	VectorIDs           []string `json:"vector_ids,omitempty"`
	BlobKey             string   `json:"blob_key,omitempty"`
	Data                []byte   `json:"data,omitempty"`
	CreatedAtUnixMillis int64    `json:"created_at_unix_millis"`
}

// PutFile persists a file and registers it in the user's file index and,
// when ConversationID is set, the conversation's file index (for cascade
// delete, §4.11).
func (s *Store) PutFile(ctx context.Context, file File) error {
	if file.ID == "" || file.UserID == "" {
		return fmt.Errorf("kvstore: file id and user id are required")
	}
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("kvstore: marshal file: %w", err)
	}
	if err := s.client.Set(ctx, fileKey(file.UserID, file.ID), string(data), 0); err != nil {
		return classify(err)
	}
	if err := s.client.SAdd(ctx, fileIndexKey(file.UserID), file.ID); err != nil {
		return classify(err)
	}
	if file.ConversationID != "" {
		if err := s.client.SAdd(ctx, conversationFileIndexKey(file.UserID, file.ConversationID), file.ID); err != nil {
			return classify(err)
		}
	}
	return nil
}

// GetFile loads a file by id. Returns ErrNotFound when absent.
func (s *Store) GetFile(ctx context.Context, userID, fileID string) (File, error) {
	raw, err := s.client.Get(ctx, fileKey(userID, fileID))
	if err != nil {
		return File{}, classify(err)
	}
	var file File
	if err := json.Unmarshal([]byte(raw), &file); err != nil {
		return File{}, fmt.Errorf("kvstore: unmarshal file %s: %w", fileID, err)
	}
	return file, nil
}

// DeleteFile removes a file and its index entries. Idempotent: deleting an
// already-absent file is not an error. Returns the deleted file (if it
// existed) so callers can release its blob and vector index entries.
func (s *Store) DeleteFile(ctx context.Context, userID, fileID string) (File, error) {
	file, err := s.GetFile(ctx, userID, fileID)
	if err != nil && err != ErrNotFound {
		return File{}, err
	}
	if err := s.client.Del(ctx, fileKey(userID, fileID)); err != nil {
		return File{}, classify(err)
	}
	if err := s.client.SRem(ctx, fileIndexKey(userID), fileID); err != nil {
		return File{}, classify(err)
	}
	if file.ConversationID != "" {
		if err := s.client.SRem(ctx, conversationFileIndexKey(userID, file.ConversationID), fileID); err != nil {
			return File{}, classify(err)
		}
	}
	return file, nil
}

// ListUserFiles returns the ids of every file owned by userID. Order is
// unspecified; callers needing a stable order should sort by CreatedAt
// after loading each File.
func (s *Store) ListUserFiles(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, fileIndexKey(userID))
	if err != nil {
		return nil, classify(err)
	}
	return ids, nil
}

// ListConversationFiles returns the ids of every file attached to
// (userID, conversationID), for cascade delete (§4.11).
func (s *Store) ListConversationFiles(ctx context.Context, userID, conversationID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, conversationFileIndexKey(userID, conversationID))
	if err != nil {
		return nil, classify(err)
	}
	return ids, nil
}

// DeleteConversationFiles removes every file attached to (userID,
// conversationID), e.g. as part of cascading a chat deletion (§4.11).
// Returns the deleted files so the caller can release their blobs.
func (s *Store) DeleteConversationFiles(ctx context.Context, userID, conversationID string) ([]File, error) {
	ids, err := s.ListConversationFiles(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	deleted := make([]File, 0, len(ids))
	for _, id := range ids {
		file, err := s.DeleteFile(ctx, userID, id)
		if err != nil {
			return deleted, err
		}
		deleted = append(deleted, file)
	}
	return deleted, nil
}
