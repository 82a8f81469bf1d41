package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message is the durable record of one outbound event (§6.1's
// event:"message" frame) keyed by message:<user>:<conv>:<msg_id>.
type Message struct {
	ID                  string         `json:"id"`
	ConversationID      string         `json:"conversation_id"`
	AgentType           string         `json:"agent_type"`
	Content             string         `json:"content"`
	AdditionalKwargs    map[string]any `json:"additional_kwargs,omitempty"`
	CumulativeUsage     map[string]any `json:"cumulative_usage_metadata,omitempty"`
	CreatedAtUnixMillis int64          `json:"created_at_unix_millis"`
}

// PutMessage persists a message and appends it to the conversation's
// ordered index. Overwriting an existing message id updates its content
// but does not move its position in the index.
func (s *Store) PutMessage(ctx context.Context, userID string, msg Message) error {
	if msg.ID == "" || msg.ConversationID == "" {
		return fmt.Errorf("kvstore: message id and conversation id are required")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("kvstore: marshal message: %w", err)
	}
	if err := s.client.Set(ctx, messageKey(userID, msg.ConversationID, msg.ID), string(data), 0); err != nil {
		return classify(err)
	}

	_, indexed, err := s.client.ZScore(ctx, messageIndexKey(userID, msg.ConversationID), msg.ID)
	if err != nil {
		return classify(err)
	}
	if indexed {
		return nil
	}

	seq, err := s.client.Incr(ctx, messageSeqKey(userID, msg.ConversationID))
	if err != nil {
		return classify(err)
	}
	if err := s.client.ZAdd(ctx, messageIndexKey(userID, msg.ConversationID), float64(seq), msg.ID); err != nil {
		return classify(err)
	}
	if err := s.client.SAdd(ctx, conversationIndexKey(userID), msg.ConversationID); err != nil {
		return classify(err)
	}
	return nil
}

// ListConversations returns every conversation ID userID has sent a
// message in.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, conversationIndexKey(userID))
	if err != nil {
		return nil, classify(err)
	}
	return ids, nil
}

// ListMessages returns messages for the conversation in emission order. When
// after is non-empty, only messages appended strictly after that message id
// are returned; if after does not exist in the index, ListMessages returns
// ErrNotFound.
func (s *Store) ListMessages(ctx context.Context, userID, conversationID string, after string) ([]Message, error) {
	minScore := 0.0
	if after != "" {
		score, ok, err := s.client.ZScore(ctx, messageIndexKey(userID, conversationID), after)
		if err != nil {
			return nil, classify(err)
		}
		if !ok {
			return nil, ErrNotFound
		}
		minScore = score + 1
	}

	ids, err := s.client.ZRangeByScore(ctx, messageIndexKey(userID, conversationID), minScore, maxScore)
	if err != nil {
		return nil, classify(err)
	}

	messages := make([]Message, 0, len(ids))
	for _, id := range ids {
		raw, err := s.client.Get(ctx, messageKey(userID, conversationID, id))
		if err != nil {
			if errorsIsNotFound(err) {
				continue // index and payload can race under concurrent writers; skip.
			}
			return nil, classify(err)
		}
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("kvstore: unmarshal message %s: %w", id, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// maxScore is effectively "no upper bound" for ZRangeByScore: message
// sequence counters never reach this magnitude.
const maxScore = 1 << 53

// IsMessageNew atomically checks and marks a message id as delivered for the
// given conversation. Returns true the first time it is called for an id,
// false on every subsequent call — the canonical dedup gate for outbound
// fan-out across reconnects (§4.10.3).
func (s *Store) IsMessageNew(ctx context.Context, userID, conversationID, messageID string) (bool, error) {
	isNew, err := s.client.SetNX(ctx, messageSeenKey(userID, conversationID, messageID), "1", 0)
	if err != nil {
		return false, classify(err)
	}
	return isNew, nil
}

func errorsIsNotFound(err error) bool {
	return err == ErrNotFound
}
