package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// RunPause is the durable record at run:<run_id>: the interrupt snapshot the
// Graph Engine (C5) persists when a node suspends and clears on resume
// (§4.5). The gateway does not read it back: a reconnecting session is not
// re-sent the pending interrupt frame from this record.
type RunPause struct {
	RunID      string         `json:"run_id"`
	PausedAt   string         `json:"paused_at"`
	Payload    any            `json:"payload"`
	State      map[string]any `json:"state"`
	PausedUnix int64          `json:"paused_unix_millis"`
}

// PutRunPause persists a run's interrupt snapshot, overwriting any previous
// pause for the same run.
func (s *Store) PutRunPause(ctx context.Context, pause RunPause) error {
	if pause.RunID == "" {
		return fmt.Errorf("kvstore: run id is required")
	}
	data, err := json.Marshal(pause)
	if err != nil {
		return fmt.Errorf("kvstore: marshal run pause: %w", err)
	}
	if err := s.client.Set(ctx, runKey(pause.RunID), string(data), 0); err != nil {
		return classify(err)
	}
	return nil
}

// GetRunPause loads the pending interrupt snapshot for runID. Returns
// ErrNotFound if the run has no pause recorded (never interrupted, or
// already resumed and cleared).
func (s *Store) GetRunPause(ctx context.Context, runID string) (RunPause, error) {
	raw, err := s.client.Get(ctx, runKey(runID))
	if err != nil {
		return RunPause{}, classify(err)
	}
	var pause RunPause
	if err := json.Unmarshal([]byte(raw), &pause); err != nil {
		return RunPause{}, fmt.Errorf("kvstore: unmarshal run pause: %w", err)
	}
	return pause, nil
}

// ClearRunPause removes a run's interrupt snapshot once resume has consumed
// it. Idempotent: clearing an already-cleared run is not an error.
func (s *Store) ClearRunPause(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, runKey(runID)); err != nil {
		return classify(err)
	}
	return nil
}
