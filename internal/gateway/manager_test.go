package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/orchestrax/workflow-orchestrator/internal/config"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
	"github.com/stretchr/testify/require"
)

func TestManagerConnectRegistersSession(t *testing.T) {
	cfg := config.Default()
	m := NewManager(cfg, mustStore(t), nil)

	conn, _ := wsPair(t)
	s := m.Connect("u1", "c1", conn)
	require.Equal(t, 1, m.Count())

	got, ok := m.Lookup("u1", "c1")
	require.True(t, ok)
	require.Same(t, s, got)
}

func TestManagerDisconnectMarksInactiveButRetainsSession(t *testing.T) {
	cfg := config.Default()
	m := NewManager(cfg, mustStore(t), nil)

	conn, _ := wsPair(t)
	s := m.Connect("u1", "c1", conn)
	m.Disconnect(s)

	require.False(t, s.isActive())
	require.Equal(t, 1, m.Count(), "disconnect must not drop the session immediately; the sweeper reclaims it after RunResumeGrace")
}

func TestManagerSweepReclaimsSessionPastGrace(t *testing.T) {
	cfg := config.Default()
	cfg.RunResumeGrace = config.Duration(time.Millisecond)
	m := NewManager(cfg, mustStore(t), nil)

	conn, _ := wsPair(t)
	s := m.Connect("u1", "c1", conn)
	m.Disconnect(s)

	time.Sleep(5 * time.Millisecond)
	m.Sweep(context.Background())

	require.Equal(t, 0, m.Count())
	_, ok := m.Lookup("u1", "c1")
	require.False(t, ok)
}

func TestManagerSweepLeavesActiveSessionWithinTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.SessionTimeout = config.Duration(time.Hour)
	m := NewManager(cfg, mustStore(t), nil)

	conn, _ := wsPair(t)
	m.Connect("u1", "c1", conn)
	m.Sweep(context.Background())

	require.Equal(t, 1, m.Count())
}

func TestManagerSweepReclaimsIdleActiveSessionPastSessionTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.SessionTimeout = config.Duration(time.Millisecond)
	m := NewManager(cfg, mustStore(t), nil)

	conn, _ := wsPair(t)
	s := m.Connect("u1", "c1", conn)
	s.mu.Lock()
	s.lastActive = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	m.Sweep(context.Background())
	require.Equal(t, 0, m.Count())
}

func mustStore(t *testing.T) *kvstore.Store {
	t.Helper()
	store, err := kvstore.NewStore(newFakeStoreClient())
	require.NoError(t, err)
	return store
}
