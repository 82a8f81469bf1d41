// Package sandbox implements the Sandbox Client Adapter (C2): a thin typed
// wrapper over an external sandbox service consumed over gRPC, following
// the teacher's pattern of keeping a generated/low-level client behind a
// narrow domain interface (runtime/registry's GRPCClientAdapter wrapping a
// registrypb.RegistryClient).
package sandbox

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable indicates the sandbox service could not be reached.
	ErrUnavailable = errors.New("sandbox: service unavailable")
	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout = errors.New("sandbox: operation timed out")
	// ErrQuotaExceeded indicates the caller has exhausted its sandbox quota.
	ErrQuotaExceeded = errors.New("sandbox: quota exceeded")
	// ErrSandboxGone indicates the referenced sandbox no longer exists
	// (evicted, crashed, or otherwise reclaimed by the backend).
	ErrSandboxGone = errors.New("sandbox: sandbox gone")
	// ErrUserCodeError indicates the sandboxed code itself failed (non-zero
	// exit, exception). Surfaced verbatim to callers; never a control-flow
	// failure of the adapter.
	ErrUserCodeError = errors.New("sandbox: user code error")
)

type (
	// Entry describes one file or directory returned by List.
	Entry struct {
		Path  string
		IsDir bool
		Size  int64
	}

	// Client is the C2 contract: a thin typed wrapper over the external
	// sandbox service. Every method is cancellable via ctx.
	Client interface {
		// CreateFromSnapshot provisions a new sandbox from the named
		// snapshot image and returns its id.
		CreateFromSnapshot(ctx context.Context, snapshot string) (sandboxID string, err error)
		// Upload writes bytes to path inside the sandbox, creating parent
		// directories as needed.
		Upload(ctx context.Context, sandboxID, path string, data []byte) error
		// Read returns the bytes at path. ok is false when the file does not
		// exist; this is not reported as an error.
		Read(ctx context.Context, sandboxID, path string) (data []byte, ok bool, err error)
		// Write overwrites path with data, returning ok=false on a sandbox-side
		// write failure (e.g. read-only mount) without erroring.
		Write(ctx context.Context, sandboxID, path string, data []byte) (ok bool, err error)
		// List returns directory entries at path.
		List(ctx context.Context, sandboxID, path string) ([]Entry, error)
		// Exec runs a shell command with an optional timeout (zero means no
		// additional deadline beyond ctx) and returns its combined
		// stdout+stderr.
		Exec(ctx context.Context, sandboxID, cmd string, timeout time.Duration) (combinedOutput string, err error)
		// ExecCode runs a code snippet (the sandbox's default interpreter)
		// and returns whether it succeeded along with combined output.
		ExecCode(ctx context.Context, sandboxID, code string, timeout time.Duration) (ok bool, combinedOutput string, err error)
		// Destroy tears down the sandbox. Idempotent.
		Destroy(ctx context.Context, sandboxID string) error
	}
)
