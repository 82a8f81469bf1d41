// Package export implements the Export/Retention contract (C12):
// asynchronous bundle generation for §4.12's `request_export(user_id)`,
// the none -> processing -> ready -> none status lifecycle, and the 24h
// expiry on ready bundles. Bundle packaging follows
// nevindra-oasis/ingest/docx's direct use of archive/zip for OOXML
// containers; no third-party zip library appears anywhere in the pack.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
)

// BundleTTL is how long a ready bundle stays downloadable before the
// retention sweep clears it (§4.12: "ready bundles expire after 24h").
const BundleTTL = 24 * time.Hour

// BlobStore is the narrow surface Service needs to store a packaged
// bundle, mirroring internal/files.BlobStore's shape so a
// *files.MinioBlobStore satisfies it without an import cycle.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// FileSource loads a user's uploaded files for inclusion in a bundle,
// satisfied by internal/files.Service.Download without a direct import.
type FileSource interface {
	Download(ctx context.Context, userID, fileID string) (kvstore.File, []byte, error)
}

// Service builds and serves export bundles. Files is optional; when nil,
// bundles contain conversations and messages only (no file bytes).
type Service struct {
	Store *kvstore.Store
	Blobs BlobStore
	Files FileSource
}

// ErrExportInProgress rejects a second request while one is already
// processing.
var ErrExportInProgress = fmt.Errorf("export: a bundle is already being built")

// RequestExport starts building a bundle for userID in the background,
// returning once the status has flipped to processing (§6.2's
// `POST /export/request` -> 202).
func (s *Service) RequestExport(ctx context.Context, userID string) error {
	current, err := s.Store.GetExportStatus(ctx, userID)
	if err != nil {
		return err
	}
	if current.Status == kvstore.ExportProcessing {
		return ErrExportInProgress
	}

	bundle := kvstore.ExportBundle{
		UserID:              userID,
		Status:              kvstore.ExportProcessing,
		CreatedAtUnixMillis: time.Now().UnixMilli(),
	}
	if err := s.Store.PutExportBundle(ctx, bundle); err != nil {
		return err
	}

	go s.buildInBackground(userID)
	return nil
}

// buildInBackground runs off the request path; failures leave the bundle
// in ExportProcessing rather than silently reverting to ExportNone, so a
// stuck export is visible via GET /export/status rather than disappearing.
func (s *Service) buildInBackground(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	data, err := s.buildZip(ctx, userID)
	if err != nil {
		return
	}

	key := blobKeyFor(userID)
	if s.Blobs != nil {
		if err := s.Blobs.Put(ctx, key, data, "application/zip"); err != nil {
			return
		}
	}

	now := time.Now()
	_ = s.Store.PutExportBundle(ctx, kvstore.ExportBundle{
		UserID:              userID,
		Status:              kvstore.ExportReady,
		ArtifactLocation:    key,
		CreatedAtUnixMillis: now.UnixMilli(),
		ExpiresAtUnixMillis: now.Add(BundleTTL).UnixMilli(),
	})
}

// bundleManifest is the zip's top-level index, one entry per conversation.
type bundleManifest struct {
	UserID        string   `json:"user_id"`
	Conversations []string `json:"conversations"`
	GeneratedAt   int64    `json:"generated_at_unix_millis"`
}

// buildZip walks every conversation userID has ever sent a message in,
// plus every file on record, packaging messages as JSON and files as raw
// bytes (§4.12: "a bundle (conversations, messages, files, artifacts)").
func (s *Service) buildZip(ctx context.Context, userID string) ([]byte, error) {
	conversations, err := s.Store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("export: list conversations: %w", err)
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	manifest := bundleManifest{UserID: userID, Conversations: conversations, GeneratedAt: time.Now().UnixMilli()}
	if err := writeJSONEntry(w, "manifest.json", manifest); err != nil {
		return nil, err
	}

	for _, conversationID := range conversations {
		messages, err := s.Store.ListMessages(ctx, userID, conversationID, "")
		if err != nil {
			return nil, fmt.Errorf("export: list messages for %s: %w", conversationID, err)
		}
		if err := writeJSONEntry(w, fmt.Sprintf("conversations/%s/messages.json", conversationID), messages); err != nil {
			return nil, err
		}
	}

	fileIDs, err := s.Store.ListUserFiles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("export: list files: %w", err)
	}
	for _, fileID := range fileIDs {
		file, err := s.Store.GetFile(ctx, userID, fileID)
		if err != nil {
			continue // a file removed mid-export is omitted, not fatal.
		}
		if err := writeJSONEntry(w, fmt.Sprintf("files/%s.json", fileID), file); err != nil {
			return nil, err
		}
		if s.Files == nil {
			continue
		}
		_, data, err := s.Files.Download(ctx, userID, fileID)
		if err != nil {
			continue
		}
		entry, err := w.Create(fmt.Sprintf("files/%s/%s", fileID, file.Filename))
		if err != nil {
			return nil, fmt.Errorf("export: create zip entry for %s: %w", fileID, err)
		}
		if _, err := entry.Write(data); err != nil {
			return nil, fmt.Errorf("export: write zip entry for %s: %w", fileID, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("export: close zip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writeJSONEntry(w *zip.Writer, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("export: marshal %s: %w", name, err)
	}
	entry, err := w.Create(name)
	if err != nil {
		return fmt.Errorf("export: create zip entry %s: %w", name, err)
	}
	if _, err := entry.Write(data); err != nil {
		return fmt.Errorf("export: write zip entry %s: %w", name, err)
	}
	return nil
}

// Status reports a user's export lifecycle state (§6.2's `GET
// /export/status`).
func (s *Service) Status(ctx context.Context, userID string) (kvstore.ExportBundle, error) {
	return s.Store.GetExportStatus(ctx, userID)
}

// Download returns a ready bundle's bytes, or ErrNotFound if none is
// ready (§6.2's `GET /export/download`).
func (s *Service) Download(ctx context.Context, userID string) ([]byte, error) {
	bundle, err := s.Store.GetExportStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	if bundle.Status != kvstore.ExportReady {
		return nil, kvstore.ErrNotFound
	}
	if s.Blobs == nil {
		return nil, kvstore.ErrNotFound
	}
	return s.Blobs.Get(ctx, bundle.ArtifactLocation)
}

// Clear transitions a bundle back to none and releases its blob (§6.2's
// `DELETE /export`).
func (s *Service) Clear(ctx context.Context, userID string) error {
	bundle, err := s.Store.GetExportStatus(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.Store.ClearExportBundle(ctx, userID); err != nil {
		return err
	}
	if s.Blobs != nil && bundle.ArtifactLocation != "" {
		_ = s.Blobs.Delete(ctx, bundle.ArtifactLocation)
	}
	return nil
}

func blobKeyFor(userID string) string {
	return "exports/" + userID + "/" + uuid.NewString() + ".zip"
}
