package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeClient is an in-memory Client for testing PersistentSandbox without a
// real gRPC backend.
type fakeClient struct {
	mu    sync.Mutex
	files map[string]map[string][]byte
	seq   int

	createCalls  int
	destroyCalls int

	execCodeFn func(code string) (bool, string)
	execFn     func(cmd string) (string, error)
}

func newFakeClient() *fakeClient {
	return &fakeClient{files: make(map[string]map[string][]byte)}
}

func (f *fakeClient) CreateFromSnapshot(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.createCalls++
	id := fmt.Sprintf("sbx-%d", f.seq)
	f.files[id] = make(map[string][]byte)
	return id, nil
}

func (f *fakeClient) Upload(_ context.Context, sandboxID, path string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files[sandboxID] == nil {
		return ErrSandboxGone
	}
	f.files[sandboxID][path] = data
	return nil
}

func (f *fakeClient) Read(_ context.Context, sandboxID, path string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.files[sandboxID]
	if !ok {
		return nil, false, ErrSandboxGone
	}
	data, ok := m[path]
	return data, ok, nil
}

func (f *fakeClient) Write(_ context.Context, sandboxID, path string, data []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.files[sandboxID]
	if !ok {
		return false, ErrSandboxGone
	}
	m[path] = data
	return true, nil
}

func (f *fakeClient) List(_ context.Context, sandboxID, _ string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.files[sandboxID]
	if !ok {
		return nil, ErrSandboxGone
	}
	entries := make([]Entry, 0, len(m))
	for p, data := range m {
		entries = append(entries, Entry{Path: p, Size: int64(len(data))})
	}
	return entries, nil
}

func (f *fakeClient) Exec(_ context.Context, _, cmd string, _ time.Duration) (string, error) {
	if f.execFn != nil {
		return f.execFn(cmd)
	}
	return "ok", nil
}

func (f *fakeClient) ExecCode(_ context.Context, _, code string, _ time.Duration) (bool, string, error) {
	if f.execCodeFn != nil {
		ok, out := f.execCodeFn(code)
		return ok, out, nil
	}
	return true, "ran: " + code, nil
}

func (f *fakeClient) Destroy(_ context.Context, sandboxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyCalls++
	delete(f.files, sandboxID)
	return nil
}
