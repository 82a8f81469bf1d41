package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// truncationMarkerFormat documents the original length when a payload is
// shortened to fit MaxResultLength. Kept short and stable since it appears
// verbatim in LLM-visible tool output.
const truncationMarkerFormat = "\n...[truncated, original length %d]...\n"

// PersistentSandbox binds a sandbox lifecycle to a (user, conversation)
// pair, seeding it with referenced files on first use and shaping every
// textual result for LLM consumption. All operations serialize on mu to
// preserve the single persistent-working-directory illusion; distinct
// PersistentSandbox instances (distinct sessions) run fully in parallel.
type PersistentSandbox struct {
	client   Client
	userID   string
	snapshot string
	seedIDs  []string
	loadSeed func(ctx context.Context, fileID string) (path string, data []byte, err error)

	maxResultLength int
	defaultTimeout  time.Duration

	mu        sync.Mutex
	sandboxID string
	created   bool
}

// NewPersistentSandbox constructs a binding. loadSeed resolves a seed file
// id to its sandbox-relative path and bytes; it is called once per id
// inside ensure(). maxResultLength and defaultTimeout come from Config
// (MaxResultLength, DefaultCodeTimeout); a zero maxResultLength defaults to
// 1000, matching the source behavior.
func NewPersistentSandbox(client Client, userID, snapshot string, seedIDs []string, loadSeed func(ctx context.Context, fileID string) (string, []byte, error), maxResultLength int, defaultTimeout time.Duration) *PersistentSandbox {
	if maxResultLength <= 0 {
		maxResultLength = 1000
	}
	return &PersistentSandbox{
		client:          client,
		userID:          userID,
		snapshot:        snapshot,
		seedIDs:         seedIDs,
		loadSeed:        loadSeed,
		maxResultLength: maxResultLength,
		defaultTimeout:  defaultTimeout,
	}
}

// Ensure is idempotent and lazy: the first call creates the sandbox and
// uploads every seed file; later calls return the cached id without
// talking to the backend again (ensure ∘ ensure == ensure). Exported for
// callers (e.g. the session manager) that want to pre-warm a binding
// before the first tool call.
func (p *PersistentSandbox) Ensure(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureLocked(ctx)
}

// ensureLocked assumes p.mu is already held.
func (p *PersistentSandbox) ensureLocked(ctx context.Context) (string, error) {
	if p.created {
		return p.sandboxID, nil
	}

	id, err := p.client.CreateFromSnapshot(ctx, p.snapshot)
	if err != nil {
		return "", err
	}
	for _, fileID := range p.seedIDs {
		relPath, data, loadErr := p.loadSeed(ctx, fileID)
		if loadErr != nil {
			return "", fmt.Errorf("sandbox: load seed file %s: %w", fileID, loadErr)
		}
		if uploadErr := p.client.Upload(ctx, id, relPath, data); uploadErr != nil {
			return "", fmt.Errorf("sandbox: seed file %s: %w", relPath, uploadErr)
		}
	}

	p.sandboxID = id
	p.created = true
	return id, nil
}

// Cleanup destroys the bound sandbox, if one was created. Safe to call
// even when Ensure was never invoked.
func (p *PersistentSandbox) Cleanup(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.created {
		return nil
	}
	err := p.client.Destroy(ctx, p.sandboxID)
	p.created = false
	p.sandboxID = ""
	return err
}

// withSandbox serializes op against this binding, ensuring the sandbox
// exists first. op's (ok, payload) result is passed through unshaped;
// callers that return free-form text should route through shape() before
// returning to the agent runtime.
func (p *PersistentSandbox) withSandbox(ctx context.Context, op func(ctx context.Context, sandboxID string) (bool, string, error)) (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.ensureLocked(ctx)
	if err != nil {
		return false, fmt.Sprintf("sandbox unavailable: %v", err)
	}
	ok, payload, err := op(ctx, id)
	if err != nil {
		return false, fmt.Sprintf("sandbox error: %v", err)
	}
	return ok, payload
}

// ExecuteCode runs code in the bound sandbox, truncating output for LLM
// consumption. A zero timeout uses the binding's default code timeout.
func (p *PersistentSandbox) ExecuteCode(ctx context.Context, code string, timeout time.Duration) (bool, string) {
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}
	ok, out := p.withSandbox(ctx, func(ctx context.Context, id string) (bool, string, error) {
		ok, output, err := p.client.ExecCode(ctx, id, code, timeout)
		return ok, output, err
	})
	return ok, p.shape(out)
}

// PipInstall installs the given packages via the sandbox's shell, treating
// it as a plain exec of the package manager invocation.
func (p *PersistentSandbox) PipInstall(ctx context.Context, packages []string) (bool, string) {
	if len(packages) == 0 {
		return true, ""
	}
	cmd := "pip install " + strings.Join(packages, " ")
	ok, out := p.withSandbox(ctx, func(ctx context.Context, id string) (bool, string, error) {
		output, err := p.client.Exec(ctx, id, cmd, p.defaultTimeout)
		return err == nil, output, err
	})
	return ok, p.shape(out)
}

// ListFiles lists directory entries at path, rendered as one line per
// entry.
func (p *PersistentSandbox) ListFiles(ctx context.Context, dirPath string) (bool, string) {
	ok, out := p.withSandbox(ctx, func(ctx context.Context, id string) (bool, string, error) {
		entries, err := p.client.List(ctx, id, dirPath)
		if err != nil {
			return false, "", err
		}
		var b strings.Builder
		for _, e := range entries {
			if e.IsDir {
				fmt.Fprintf(&b, "%s/\n", e.Path)
			} else {
				fmt.Fprintf(&b, "%s (%d bytes)\n", e.Path, e.Size)
			}
		}
		return true, b.String(), nil
	})
	return ok, p.shape(out)
}

// ReadFile returns the contents of path as text, or ok=false with a
// one-line diagnostic if the file does not exist.
func (p *PersistentSandbox) ReadFile(ctx context.Context, filePath string) (bool, string) {
	ok, out := p.withSandbox(ctx, func(ctx context.Context, id string) (bool, string, error) {
		data, found, err := p.client.Read(ctx, id, filePath)
		if err != nil {
			return false, "", err
		}
		if !found {
			return false, fmt.Sprintf("file not found: %s", filePath), nil
		}
		return true, string(data), nil
	})
	return ok, p.shape(out)
}

// WriteFile writes content to path inside the sandbox.
func (p *PersistentSandbox) WriteFile(ctx context.Context, filePath, content string) (bool, string) {
	ok, out := p.withSandbox(ctx, func(ctx context.Context, id string) (bool, string, error) {
		wrote, err := p.client.Write(ctx, id, filePath, []byte(content))
		if err != nil {
			return false, "", err
		}
		if !wrote {
			return false, fmt.Sprintf("write failed: %s", filePath), nil
		}
		return true, fmt.Sprintf("wrote %d bytes to %s", len(content), filePath), nil
	})
	return ok, p.shape(out)
}

// GetAllFilesRecursive walks root and returns a flat listing of every file
// beneath it, lexicographically sorted for determinism. Directories are
// walked but not listed.
func (p *PersistentSandbox) GetAllFilesRecursive(ctx context.Context, root string) (bool, string) {
	ok, out := p.withSandbox(ctx, func(ctx context.Context, id string) (bool, string, error) {
		var lines []string
		var walk func(dir string) error
		walk = func(dir string) error {
			entries, err := p.client.List(ctx, id, dir)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.IsDir {
					if err := walk(e.Path); err != nil {
						return err
					}
					continue
				}
				lines = append(lines, e.Path)
			}
			return nil
		}
		if err := walk(root); err != nil {
			return false, "", err
		}
		sort.Strings(lines)
		return true, strings.Join(lines, "\n"), nil
	})
	return ok, p.shape(out)
}

// Exec runs an arbitrary shell command (git, ls, etc.) and returns combined
// output.
func (p *PersistentSandbox) Exec(ctx context.Context, cmd string) (bool, string) {
	ok, out := p.withSandbox(ctx, func(ctx context.Context, id string) (bool, string, error) {
		output, err := p.client.Exec(ctx, id, cmd, p.defaultTimeout)
		return err == nil, output, err
	})
	return ok, p.shape(out)
}

// csvProbeEncodings lists the fixed set of encodings DescribeData tries, in
// order, before giving up.
var csvProbeEncodings = []string{"utf-8", "utf-8-sig", "latin-1"}

// DescribeData profiles a CSV file already present in the sandbox: shape
// (rows x columns), column names, a null count per column, and an inferred
// dtype per column (int, float, or string). It tries each of
// csvProbeEncodings in turn and reports the one that parsed.
func (p *PersistentSandbox) DescribeData(ctx context.Context, filePath string) (bool, string) {
	ok, out := p.withSandbox(ctx, func(ctx context.Context, id string) (bool, string, error) {
		data, found, err := p.client.Read(ctx, id, filePath)
		if err != nil {
			return false, "", err
		}
		if !found {
			return false, fmt.Sprintf("file not found: %s", filePath), nil
		}
		summary, encUsed, err := profileCSV(data)
		if err != nil {
			return false, fmt.Sprintf("could not parse %s with any of %v: %v", filePath, csvProbeEncodings, err), nil
		}
		return true, fmt.Sprintf("encoding=%s\n%s", encUsed, summary), nil
	})
	return ok, p.shape(out)
}

func profileCSV(data []byte) (summary string, encodingUsed string, err error) {
	// All three probe encodings are ASCII-compatible for the delimiter and
	// digit bytes the CSV reader cares about; the encoding loop exists to
	// report which one was assumed, not to transcode.
	for _, enc := range csvProbeEncodings {
		r := csv.NewReader(bufio.NewReader(bytes.NewReader(data)))
		r.FieldsPerRecord = -1
		records, readErr := r.ReadAll()
		if readErr != nil {
			err = readErr
			continue
		}
		if len(records) == 0 {
			return "shape=(0, 0)\ncolumns=[]", enc, nil
		}
		header := records[0]
		rows := records[1:]
		nulls := make([]int, len(header))
		dtypes := make([]string, len(header))
		for colIdx := range header {
			dtypes[colIdx] = "int"
		}
		for _, row := range rows {
			for colIdx := range header {
				var cell string
				if colIdx < len(row) {
					cell = row[colIdx]
				}
				if cell == "" {
					nulls[colIdx]++
					continue
				}
				dtypes[colIdx] = refineDtype(dtypes[colIdx], cell)
			}
		}
		var b strings.Builder
		fmt.Fprintf(&b, "shape=(%d, %d)\n", len(rows), len(header))
		fmt.Fprintf(&b, "columns=%v\n", header)
		for i, col := range header {
			fmt.Fprintf(&b, "  %s: dtype=%s nulls=%d\n", col, dtypes[i], nulls[i])
		}
		return b.String(), enc, nil
	}
	return "", "", err
}

func refineDtype(current, cell string) string {
	if current == "string" {
		return "string"
	}
	if isInt(cell) {
		return current
	}
	if isFloat(cell) {
		if current == "int" {
			return "float"
		}
		return current
	}
	return "string"
}

func isInt(s string) bool {
	if s == "" {
		return false
	}
	start := 0
	if s[0] == '-' {
		start = 1
	}
	if start == len(s) {
		return false
	}
	for i := start; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isFloat(s string) bool {
	dot := strings.Count(s, ".")
	if dot != 1 {
		return false
	}
	parts := strings.SplitN(s, ".", 2)
	intPart, fracPart := parts[0], parts[1]
	if intPart != "" && intPart != "-" && !isInt(intPart) {
		return false
	}
	return fracPart != "" && isInt(fracPart)
}

// shape truncates s to maxResultLength using the head+tail policy: the
// first ⌊L/2⌋ characters and the last L−⌊L/2⌋ characters, joined by a
// delimiter noting the original length (§8 invariant 7).
func (p *PersistentSandbox) shape(s string) string {
	runes := []rune(s)
	if len(runes) <= p.maxResultLength {
		return s
	}
	head := p.maxResultLength / 2
	tail := p.maxResultLength - head
	marker := fmt.Sprintf(truncationMarkerFormat, len(runes))
	return string(runes[:head]) + marker + string(runes[len(runes)-tail:])
}
