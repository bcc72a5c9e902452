package mesh

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// NewStateTracker
// ---------------------------------------------------------------------------

func TestNewStateTracker(t *testing.T) {
	st := NewStateTracker()
	if st == nil {
		t.Fatal("NewStateTracker returned nil")
	}
	if st.HasResult() {
		t.Error("new tracker HasResult should be false")
	}
	if st.Result() != nil {
		t.Error("new tracker Result should be nil")
	}
	if _, ok := st.Snapshot(); ok {
		t.Error("new tracker should have no snapshot")
	}
	if st.Runs() != 0 {
		t.Errorf("Runs = %d, want 0", st.Runs())
	}
}

// ---------------------------------------------------------------------------
// Update / Snapshot
// ---------------------------------------------------------------------------

func TestStateTracker_Update(t *testing.T) {
	st := NewStateTracker()
	res := flatTestResult(t, 12, 12)
	st.Update(res)

	if !st.HasResult() || st.Result() != res {
		t.Fatal("Update should store the result")
	}
	if st.Runs() != 1 {
		t.Errorf("Runs = %d, want 1", st.Runs())
	}

	snap, ok := st.Snapshot()
	if !ok {
		t.Fatal("Snapshot should be available after Update")
	}
	if snap.RunID != res.RunID || snap.Rows != 12 || snap.Cols != 12 {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.Clusters) != 1 || snap.Clusters[0].Points != 144 {
		t.Errorf("snapshot clusters = %+v", snap.Clusters)
	}

	t.Run("snapshot is a copy", func(t *testing.T) {
		snap.Clusters[0].Points = -5
		again, _ := st.Snapshot()
		if again.Clusters[0].Points != 144 {
			t.Error("mutating a snapshot should not change the tracker")
		}
	})

	t.Run("second update replaces", func(t *testing.T) {
		next := flatTestResult(t, 10, 10)
		st.Update(next)
		if st.Result() != next || st.Runs() != 2 {
			t.Errorf("Result/Runs after second update = %p/%d", st.Result(), st.Runs())
		}
	})
}

// ---------------------------------------------------------------------------
// persistence
// ---------------------------------------------------------------------------

func TestStateTracker_PersistsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "last-run.json")
	st := NewStateTrackerWithCache(path)
	if _, ok := st.Snapshot(); ok {
		t.Fatal("no snapshot expected before the first run")
	}

	res := flatTestResult(t, 12, 12)
	st.Update(res)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot file not written: %v", err)
	}

	restarted := NewStateTrackerWithCache(path)
	if restarted.HasResult() {
		t.Error("a restored tracker has a snapshot but no in-memory result")
	}
	snap, ok := restarted.Snapshot()
	if !ok {
		t.Fatal("snapshot should be restored from the cache file")
	}
	if snap.RunID != res.RunID {
		t.Errorf("restored RunID = %s, want %s", snap.RunID, res.RunID)
	}
	if !snap.FinishedAt.Equal(res.FinishedAt) {
		t.Errorf("restored FinishedAt = %v, want %v", snap.FinishedAt, res.FinishedAt)
	}
}

func TestStateTracker_CorruptCacheIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last-run.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	st := NewStateTrackerWithCache(path)
	if _, ok := st.Snapshot(); ok {
		t.Error("a corrupt cache should be ignored")
	}
}

func TestSaveLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	want := &RunSnapshot{
		RunID:      "abc",
		FinishedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Rows:       480,
		Cols:       640,
		Clusters:   []ClusterSummary{{Index: 0, Kind: KindComponent, Label: 3, Points: 900, Faces: 1700}},
	}
	if err := SaveSnapshot(want, path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	got, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got.RunID != want.RunID || !got.FinishedAt.Equal(want.FinishedAt) || got.Rows != 480 || got.Cols != 640 {
		t.Errorf("round trip = %+v", got)
	}
	if len(got.Clusters) != 1 || got.Clusters[0].Kind != KindComponent || got.Clusters[0].Faces != 1700 {
		t.Errorf("clusters = %+v", got.Clusters)
	}
}

func TestLoadSnapshot_Missing(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("LoadSnapshot of a missing file should fail")
	}
}

// ---------------------------------------------------------------------------
// concurrency
// ---------------------------------------------------------------------------

func TestStateTracker_Concurrency(t *testing.T) {
	st := NewStateTracker()
	res := flatTestResult(t, 8, 8)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			st.Update(res)
		}()
		go func() {
			defer wg.Done()
			_ = st.HasResult()
			_, _ = st.Snapshot()
			_ = st.Runs()
		}()
	}
	wg.Wait()

	if st.Runs() != 50 {
		t.Errorf("Runs = %d, want 50", st.Runs())
	}
}
