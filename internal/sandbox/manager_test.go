package sandbox

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noSeed(context.Context, string) (string, []byte, error) { return "", nil, nil }

func TestEnsureIsIdempotent(t *testing.T) {
	client := newFakeClient()
	ps := NewPersistentSandbox(client, "u1", "data-science-base", nil, noSeed, 1000, time.Second)

	id1, err := ps.Ensure(context.Background())
	require.NoError(t, err)
	id2, err := ps.Ensure(context.Background())
	require.NoError(t, err)

	require.Equal(t, id1, id2)
	require.Equal(t, 1, client.createCalls)
}

func TestEnsureSeedsFiles(t *testing.T) {
	client := newFakeClient()
	loadSeed := func(_ context.Context, fileID string) (string, []byte, error) {
		return "/" + fileID, []byte("contents-of-" + fileID), nil
	}
	ps := NewPersistentSandbox(client, "u1", "data-science-base", []string{"sales.csv"}, loadSeed, 1000, time.Second)

	id, err := ps.Ensure(context.Background())
	require.NoError(t, err)

	data, ok, err := client.Read(context.Background(), id, "/sales.csv")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "contents-of-sales.csv", string(data))
}

func TestCleanupDestroysAndResets(t *testing.T) {
	client := newFakeClient()
	ps := NewPersistentSandbox(client, "u1", "snap", nil, noSeed, 1000, time.Second)

	_, err := ps.Ensure(context.Background())
	require.NoError(t, err)
	require.NoError(t, ps.Cleanup(context.Background()))
	require.Equal(t, 1, client.destroyCalls)

	require.NoError(t, ps.Cleanup(context.Background()))
	require.Equal(t, 1, client.destroyCalls, "cleanup without a live sandbox must not call Destroy again")
}

func TestExecuteCodeShapesLongOutput(t *testing.T) {
	client := newFakeClient()
	long := strings.Repeat("x", 5000)
	client.execCodeFn = func(code string) (bool, string) { return true, long }
	ps := NewPersistentSandbox(client, "u1", "snap", nil, noSeed, 1000, time.Second)

	ok, out := ps.ExecuteCode(context.Background(), "print('x'*5000)", 0)
	require.True(t, ok)
	require.Contains(t, out, "truncated, original length 5000")
	require.Equal(t, 1000+len("\n...[truncated, original length 5000]...\n"), len([]rune(out)))
}

func TestExecuteCodeShortOutputUnshaped(t *testing.T) {
	client := newFakeClient()
	client.execCodeFn = func(code string) (bool, string) { return true, "short" }
	ps := NewPersistentSandbox(client, "u1", "snap", nil, noSeed, 1000, time.Second)

	ok, out := ps.ExecuteCode(context.Background(), "print(1)", 0)
	require.True(t, ok)
	require.Equal(t, "short", out)
}

func TestReadFileNotFound(t *testing.T) {
	client := newFakeClient()
	ps := NewPersistentSandbox(client, "u1", "snap", nil, noSeed, 1000, time.Second)

	ok, out := ps.ReadFile(context.Background(), "/missing.txt")
	require.False(t, ok)
	require.Contains(t, out, "file not found")
}

func TestWriteThenReadFile(t *testing.T) {
	client := newFakeClient()
	ps := NewPersistentSandbox(client, "u1", "snap", nil, noSeed, 1000, time.Second)

	ok, _ := ps.WriteFile(context.Background(), "/out.txt", "hello")
	require.True(t, ok)

	ok, content := ps.ReadFile(context.Background(), "/out.txt")
	require.True(t, ok)
	require.Equal(t, "hello", content)
}

func TestDescribeDataProfilesCSV(t *testing.T) {
	client := newFakeClient()
	ps := NewPersistentSandbox(client, "u1", "snap", nil, noSeed, 1000, time.Second)
	ok, _ := ps.WriteFile(context.Background(), "/sales.csv", "id,amount,region\n1,10.5,us\n2,,eu\n3,30,\n")
	require.True(t, ok)

	ok, summary := ps.DescribeData(context.Background(), "/sales.csv")
	require.True(t, ok)
	require.Contains(t, summary, "shape=(3, 3)")
	require.Contains(t, summary, "amount: dtype=float nulls=1")
	require.Contains(t, summary, "region: dtype=string nulls=1")
	require.Contains(t, summary, "id: dtype=int nulls=0")
}

func TestDescribeDataMissingFile(t *testing.T) {
	client := newFakeClient()
	ps := NewPersistentSandbox(client, "u1", "snap", nil, noSeed, 1000, time.Second)

	ok, out := ps.DescribeData(context.Background(), "/nope.csv")
	require.False(t, ok)
	require.Contains(t, out, "file not found")
}

func TestOperationsSerializePerBinding(t *testing.T) {
	client := newFakeClient()
	started := make(chan struct{})
	release := make(chan struct{})
	client.execCodeFn = func(code string) (bool, string) {
		if code == "slow" {
			close(started)
			<-release
		}
		return true, "done:" + code
	}
	ps := NewPersistentSandbox(client, "u1", "snap", nil, noSeed, 1000, time.Second)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ps.ExecuteCode(context.Background(), "slow", 0)
	}()

	<-started
	// A concurrent call must block until the slow one releases, proving the
	// binding serializes operations.
	done := make(chan struct{})
	go func() {
		ps.ExecuteCode(context.Background(), "fast", 0)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second ExecuteCode completed before the first released the lock")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	wg.Wait()
	<-done
}
