package kvstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// fakeClient is an in-memory Client used to test Store logic without a real
// Redis backend, mirroring the in-memory stand-ins used elsewhere in the
// tree for narrow store interfaces (runtime/agent/session/inmem).
type fakeClient struct {
	mu         sync.Mutex
	strings    map[string]string
	counterMap map[string]int64
	sortedSets map[string]map[string]float64
	sets       map[string]map[string]struct{}

	forceTransient bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		strings:    make(map[string]string),
		counterMap: make(map[string]int64),
		sortedSets: make(map[string]map[string]float64),
		sets:       make(map[string]map[string]struct{}),
	}
}

func (f *fakeClient) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceTransient {
		return "", ErrTransientIO
	}
	v, ok := f.strings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *fakeClient) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceTransient {
		return ErrTransientIO
	}
	f.strings[key] = value
	return nil
}

func (f *fakeClient) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceTransient {
		return false, ErrTransientIO
	}
	if _, ok := f.strings[key]; ok {
		return false, nil
	}
	f.strings[key] = value
	return true, nil
}

func (f *fakeClient) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.strings, k)
	}
	return nil
}

func (f *fakeClient) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.counterMap[key] + 1
	f.counterMap[key] = n
	return n, nil
}

func (f *fakeClient) ZAdd(_ context.Context, key string, score float64, member string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sortedSets[key] == nil {
		f.sortedSets[key] = make(map[string]float64)
	}
	f.sortedSets[key][member] = score
	return nil
}

func (f *fakeClient) ZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type pair struct {
		member string
		score  float64
	}
	var pairs []pair
	for m, s := range f.sortedSets[key] {
		if s >= min && s <= max {
			pairs = append(pairs, pair{m, s})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.member
	}
	return out, nil
}

func (f *fakeClient) ZScore(_ context.Context, key, member string) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sortedSets[key][member]
	return s, ok, nil
}

func (f *fakeClient) SAdd(_ context.Context, key string, members ...string) error {
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

func (f *fakeClient) SMembers(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeClient) SRem(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		delete(f.sets[key], m)
	}
	return nil
}
