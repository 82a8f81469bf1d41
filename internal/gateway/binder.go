package gateway

import (
	"sync"

	"github.com/orchestrax/workflow-orchestrator/internal/sandbox"
)

// SandboxFactory lazily constructs the PersistentSandbox for a session,
// given the CSV-bearing file ids referenced by its request (§4.10.2 step 2).
type SandboxFactory func(userID, conversationID string, csvDocIDs []string) *sandbox.PersistentSandbox

// sandboxBinder keys sandbox bindings by (user_id, conversation_id) behind a
// per-key lock, so concurrent requests in one session share one sandbox
// instead of racing to create two (§5 "Sandbox manager map").
type sandboxBinder struct {
	factory SandboxFactory

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	bound map[string]*sandbox.PersistentSandbox
}

func newSandboxBinder(factory SandboxFactory) *sandboxBinder {
	return &sandboxBinder{
		factory: factory,
		locks:   make(map[string]*sync.Mutex),
		bound:   make(map[string]*sandbox.PersistentSandbox),
	}
}

func (b *sandboxBinder) keyLock(key string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[key]
	if !ok {
		l = &sync.Mutex{}
		b.locks[key] = l
	}
	return l
}

// Bind returns the sandbox bound to (userID, conversationID), constructing
// it via factory on first use and returning the cached binding afterward.
func (b *sandboxBinder) Bind(userID, conversationID string, csvDocIDs []string) *sandbox.PersistentSandbox {
	key := sessionKey(userID, conversationID)
	lock := b.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	b.mu.Lock()
	sbx, ok := b.bound[key]
	b.mu.Unlock()
	if ok {
		return sbx
	}

	sbx = b.factory(userID, conversationID, csvDocIDs)
	b.mu.Lock()
	b.bound[key] = sbx
	b.mu.Unlock()
	return sbx
}

// Forget drops a binding, e.g. after the bound sandbox has been destroyed
// by the idle sweeper.
func (b *sandboxBinder) Forget(userID, conversationID string) {
	key := sessionKey(userID, conversationID)
	b.mu.Lock()
	delete(b.bound, key)
	delete(b.locks, key)
	b.mu.Unlock()
}
