package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
)

// fakeStoreClient is an in-memory kvstore.Client, mirroring the fake used in
// internal/kvstore's own tests, kept local since that one is unexported
// outside its package.
type fakeStoreClient struct {
	mu      sync.Mutex
	strings map[string]string
	sets    map[string]map[string]struct{}
}

func newFakeStoreClient() *fakeStoreClient {
	return &fakeStoreClient{
		strings: make(map[string]string),
		sets:    make(map[string]map[string]struct{}),
	}
}

func (f *fakeStoreClient) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.strings[key]
	if !ok {
		return "", kvstore.ErrNotFound
	}
	return v, nil
}

func (f *fakeStoreClient) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strings[key] = value
	return nil
}

func (f *fakeStoreClient) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.strings[key]; ok {
		return false, nil
	}
	f.strings[key] = value
	return true, nil
}

func (f *fakeStoreClient) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.strings, k)
	}
	return nil
}

func (f *fakeStoreClient) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return 0, nil
}

func (f *fakeStoreClient) ZAdd(_ context.Context, key string, score float64, member string) error {
	return nil
}

func (f *fakeStoreClient) ZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	return nil, nil
}

func (f *fakeStoreClient) ZScore(_ context.Context, key, member string) (float64, bool, error) {
	return 0, false, nil
}

func (f *fakeStoreClient) SAdd(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sets[key] == nil {
		f.sets[key] = make(map[string]struct{})
	}
	for _, m := range members {
		f.sets[key][m] = struct{}{}
	}
	return nil
}

func (f *fakeStoreClient) SMembers(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeStoreClient) SRem(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		delete(f.sets[key], m)
	}
	return nil
}
