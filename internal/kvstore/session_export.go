package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// SessionMeta is the durable record at session:<user>:<conv>: last-active
// timestamp and the socket epoch used to detect stale connections across
// reconnects.
type SessionMeta struct {
	UserID               string `json:"user_id"`
	ConversationID       string `json:"conversation_id"`
	LastActiveUnixMillis int64  `json:"last_active_unix_millis"`
	SocketEpoch          int64  `json:"socket_epoch"`
}

// PutSessionMeta persists session liveness metadata, overwriting any
// previous value.
func (s *Store) PutSessionMeta(ctx context.Context, meta SessionMeta) error {
	if meta.UserID == "" || meta.ConversationID == "" {
		return fmt.Errorf("kvstore: user id and conversation id are required")
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("kvstore: marshal session meta: %w", err)
	}
	if err := s.client.Set(ctx, sessionMetaKey(meta.UserID, meta.ConversationID), string(data), 0); err != nil {
		return classify(err)
	}
	return nil
}

// GetSessionMeta loads session liveness metadata. Returns ErrNotFound when
// no session has ever connected for this (user, conversation).
func (s *Store) GetSessionMeta(ctx context.Context, userID, conversationID string) (SessionMeta, error) {
	raw, err := s.client.Get(ctx, sessionMetaKey(userID, conversationID))
	if err != nil {
		return SessionMeta{}, classify(err)
	}
	var meta SessionMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return SessionMeta{}, fmt.Errorf("kvstore: unmarshal session meta: %w", err)
	}
	return meta, nil
}

// ExportStatus is the lifecycle state of a user's export bundle (§4.12).
type ExportStatus string

const (
	ExportNone       ExportStatus = "none"
	ExportProcessing ExportStatus = "processing"
	ExportReady      ExportStatus = "ready"
)

// ExportBundle is the durable record at export:<user>.
type ExportBundle struct {
	UserID              string       `json:"user_id"`
	Status              ExportStatus `json:"status"`
	ArtifactLocation    string       `json:"artifact_location,omitempty"`
	CreatedAtUnixMillis int64        `json:"created_at_unix_millis"`
	ExpiresAtUnixMillis int64        `json:"expires_at_unix_millis,omitempty"`
}

// PutExportBundle persists export bundle status and, once ready, its
// artifact location.
func (s *Store) PutExportBundle(ctx context.Context, bundle ExportBundle) error {
	if bundle.UserID == "" {
		return fmt.Errorf("kvstore: user id is required")
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("kvstore: marshal export bundle: %w", err)
	}
	if err := s.client.Set(ctx, exportKey(bundle.UserID), string(data), 0); err != nil {
		return classify(err)
	}
	if err := s.client.SAdd(ctx, exportIndexKey(), bundle.UserID); err != nil {
		return classify(err)
	}
	return nil
}

// ListExportUserIDs returns every user ID with a non-cleared export bundle,
// for a retention sweep to check against ExpiresAtUnixMillis.
func (s *Store) ListExportUserIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, exportIndexKey())
	if err != nil {
		return nil, classify(err)
	}
	return ids, nil
}

// GetExportStatus loads the export bundle for userID. Returns a bundle with
// Status == ExportNone (not ErrNotFound) when the user has never requested
// an export, matching the "none -> processing -> ready -> none" lifecycle
// which treats "no record" and "cleared" identically.
func (s *Store) GetExportStatus(ctx context.Context, userID string) (ExportBundle, error) {
	raw, err := s.client.Get(ctx, exportKey(userID))
	if err != nil {
		if classify(err) == ErrNotFound {
			return ExportBundle{UserID: userID, Status: ExportNone}, nil
		}
		return ExportBundle{}, classify(err)
	}
	var bundle ExportBundle
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return ExportBundle{}, fmt.Errorf("kvstore: unmarshal export bundle: %w", err)
	}
	return bundle, nil
}

// ClearExportBundle transitions a ready bundle back to none, per the export
// lifecycle's terminal step.
func (s *Store) ClearExportBundle(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, exportKey(userID)); err != nil {
		return classify(err)
	}
	if err := s.client.SRem(ctx, exportIndexKey(), userID); err != nil {
		return classify(err)
	}
	return nil
}
