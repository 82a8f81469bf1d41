package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ShareLink is the durable record at share:<token>: which conversation a
// share token grants read-only file access to (§4.11, §6.2).
type ShareLink struct {
	Token          string `json:"token"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

func shareLinkKey(token string) string {
	return fmt.Sprintf("share:%s", token)
}

// PutShareLink persists a share token with the given TTL.
func (s *Store) PutShareLink(ctx context.Context, link ShareLink, ttl time.Duration) error {
	if link.Token == "" || link.UserID == "" || link.ConversationID == "" {
		return fmt.Errorf("kvstore: token, user id, and conversation id are required")
	}
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("kvstore: marshal share link: %w", err)
	}
	if err := s.client.Set(ctx, shareLinkKey(link.Token), string(data), ttl); err != nil {
		return classify(err)
	}
	return nil
}

// GetShareLink loads a share link by token. Returns ErrNotFound once the
// token has expired or was never issued.
func (s *Store) GetShareLink(ctx context.Context, token string) (ShareLink, error) {
	raw, err := s.client.Get(ctx, shareLinkKey(token))
	if err != nil {
		return ShareLink{}, classify(err)
	}
	var link ShareLink
	if err := json.Unmarshal([]byte(raw), &link); err != nil {
		return ShareLink{}, fmt.Errorf("kvstore: unmarshal share link: %w", err)
	}
	return link, nil
}
