package files

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
)

// shareTokenTTL bounds how long a share link stays valid once issued.
const shareTokenTTL = 7 * 24 * time.Hour

// ShareLink scopes a token to the conversation whose files it grants
// read-only access to (§4.11: "shared-link access validates a share token
// and scopes access to files referenced by the shared conversation").
type ShareLink struct {
	Token          string `json:"token"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

// IssueShareLink mints a random token bound to (userID, conversationID)
// and persists it.
func (s *Service) IssueShareLink(ctx context.Context, userID, conversationID string) (ShareLink, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return ShareLink{}, fmt.Errorf("files: generate share token: %w", err)
	}
	link := ShareLink{Token: hex.EncodeToString(raw), UserID: userID, ConversationID: conversationID}
	if err := s.Store.PutShareLink(ctx, kvstore.ShareLink(link), shareTokenTTL); err != nil {
		return ShareLink{}, err
	}
	return link, nil
}

// ResolveSharedFile validates token and returns fileID's bytes only if the
// file belongs to the conversation the token was scoped to (§6.2's
// `GET /share/{token}/files/{id}`).
func (s *Service) ResolveSharedFile(ctx context.Context, token, fileID string) (kvstore.File, []byte, error) {
	link, err := s.Store.GetShareLink(ctx, token)
	if err != nil {
		return kvstore.File{}, nil, err
	}
	file, data, err := s.Download(ctx, link.UserID, fileID)
	if err != nil {
		return kvstore.File{}, nil, err
	}
	if file.ConversationID != link.ConversationID {
		return kvstore.File{}, nil, kvstore.ErrNotFound
	}
	return file, data, nil
}
