package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunSnapshot is the persisted form of a result: everything but the grids.
type RunSnapshot struct {
	RunID      string           `json:"runId"`
	FinishedAt time.Time        `json:"finishedAt"`
	Rows       int              `json:"rows"`
	Cols       int              `json:"cols"`
	Clusters   []ClusterSummary `json:"clusters"`
}

// StateTracker holds the latest segmentation result for the HTTP endpoints.
type StateTracker struct {
	mu        sync.RWMutex
	result    *Result
	snapshot  *RunSnapshot
	runs      int
	cachePath string // path to the snapshot cache file; empty disables persistence
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{}
}

// NewStateTrackerWithCache creates a state tracker that persists the latest
// run snapshot to cachePath. An existing snapshot is loaded, so summaries are
// served after a restart even before the first new run.
func NewStateTrackerWithCache(cachePath string) *StateTracker {
	st := &StateTracker{cachePath: cachePath}
	if cachePath != "" {
		if snap, err := LoadSnapshot(cachePath); err == nil {
			st.snapshot = snap
		}
	}
	return st
}

// Update stores res as the latest result and persists its snapshot.
func (st *StateTracker) Update(res *Result) {
	snap := &RunSnapshot{
		RunID:      res.RunID,
		FinishedAt: res.FinishedAt,
		Rows:       res.Rows,
		Cols:       res.Cols,
		Clusters:   res.Summaries,
	}

	st.mu.Lock()
	st.result = res
	st.snapshot = snap
	st.runs++
	cachePath := st.cachePath
	st.mu.Unlock()

	if cachePath != "" {
		if err := SaveSnapshot(snap, cachePath); err != nil {
			log.Printf("Warning: failed to save run snapshot: %v", err)
		}
	}
}

// Result returns the latest in-memory result, or nil.
func (st *StateTracker) Result() *Result {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.result
}

// Snapshot returns a copy of the latest snapshot, which may come from the
// cache file. ok is false when there is none.
func (st *StateTracker) Snapshot() (RunSnapshot, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.snapshot == nil {
		return RunSnapshot{}, false
	}
	snap := *st.snapshot
	snap.Clusters = append([]ClusterSummary(nil), st.snapshot.Clusters...)
	return snap, true
}

// HasResult returns true once a run has completed in this process.
func (st *StateTracker) HasResult() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.result != nil
}

// Runs returns the number of results stored since start.
func (st *StateTracker) Runs() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.runs
}

// SaveSnapshot writes a RunSnapshot to disk as JSON.
func SaveSnapshot(snap *RunSnapshot, path string) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a RunSnapshot from a JSON file on disk.
func LoadSnapshot(path string) (*RunSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run snapshot: %w", err)
	}
	var snap RunSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal run snapshot: %w", err)
	}
	return &snap, nil
}
