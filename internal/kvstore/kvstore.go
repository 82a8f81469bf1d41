// Package kvstore implements the KV/Blob Store Adapter: namespaced,
// user-scoped operations over messages, files, session metadata, and
// export bundles. It follows the same shape as
// runtime/agent/telemetry's clue adapter and goa-ai's pulse client: a
// narrow Client interface wraps a single third-party backend (here
// redis.Client), and Store layers domain operations on top of it.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound indicates the requested key does not exist.
	ErrNotFound = errors.New("kvstore: not found")
	// ErrConflict indicates a write lost a compare-and-swap race (for example,
	// is_message_new observing the key already set).
	ErrConflict = errors.New("kvstore: conflict")
	// ErrTransientIO indicates a backend failure callers should retry with
	// capped backoff (network blip, connection reset).
	ErrTransientIO = errors.New("kvstore: transient I/O error")
	// ErrPermanentIO indicates a backend failure that will not succeed on retry.
	ErrPermanentIO = errors.New("kvstore: permanent I/O error")
)

type (
	// Client exposes the subset of Redis operations the Store needs. Callers
	// construct a *redis.Client and pass it to NewRedisClient; tests may
	// supply any other implementation.
	Client interface {
		Get(ctx context.Context, key string) (string, error)
		Set(ctx context.Context, key, value string, ttl time.Duration) error
		SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
		Del(ctx context.Context, keys ...string) error
		Incr(ctx context.Context, key string) (int64, error)
		ZAdd(ctx context.Context, key string, score float64, member string) error
		// ZRangeByScore returns members with score in [min, max], ascending.
		ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
		ZScore(ctx context.Context, key, member string) (float64, bool, error)
		SAdd(ctx context.Context, key string, members ...string) error
		SMembers(ctx context.Context, key string) ([]string, error)
		SRem(ctx context.Context, key string, members ...string) error
	}

	// Store implements the C1 KV/Blob Store Adapter contract over a Client.
	Store struct {
		client Client
	}
)

// NewStore constructs a Store. Returns an error if client is nil.
func NewStore(client Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

func messageKey(userID, conversationID, messageID string) string {
	return fmt.Sprintf("message:%s:%s:%s", userID, conversationID, messageID)
}

func messageIndexKey(userID, conversationID string) string {
	return fmt.Sprintf("message-idx:%s:%s", userID, conversationID)
}

// conversationIndexKey names the set of conversation IDs a user has ever
// sent a message in, letting an export walk every conversation without a
// separate conversation-creation record.
func conversationIndexKey(userID string) string {
	return fmt.Sprintf("conversation-idx:%s", userID)
}

func messageSeenKey(userID, conversationID, messageID string) string {
	return fmt.Sprintf("message-seen:%s:%s:%s", userID, conversationID, messageID)
}

func messageSeqKey(userID, conversationID string) string {
	return fmt.Sprintf("message-seq:%s:%s", userID, conversationID)
}

func fileKey(userID, fileID string) string {
	return fmt.Sprintf("file:%s:%s", userID, fileID)
}

func fileIndexKey(userID string) string {
	return fmt.Sprintf("file-idx:%s", userID)
}

func conversationFileIndexKey(userID, conversationID string) string {
	return fmt.Sprintf("file-idx:%s:%s", userID, conversationID)
}

func sessionMetaKey(userID, conversationID string) string {
	return fmt.Sprintf("session:%s:%s", userID, conversationID)
}

func exportKey(userID string) string {
	return fmt.Sprintf("export:%s", userID)
}

// exportIndexKey names the set of user IDs with a non-none export bundle,
// letting a retention sweep enumerate candidates without scanning every
// user key.
func exportIndexKey() string {
	return "export-idx"
}

func runKey(runID string) string {
	return fmt.Sprintf("run:%s", runID)
}
