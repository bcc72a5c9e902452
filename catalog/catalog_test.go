package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func openTemp(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleRun(id string, finished time.Time) Run {
	return Run{
		ID:         id,
		Source:     "depth.png",
		StartedAt:  finished.Add(-time.Second),
		FinishedAt: finished,
		Rows:       480,
		Cols:       640,
		Clusters:   3,
	}
}

// ---------------------------------------------------------------------------
// Open / migrations
// ---------------------------------------------------------------------------

func TestOpen_MigratesToLatest(t *testing.T) {
	c := openTemp(t)

	migrations, err := migrationsFS()
	require.NoError(t, err)
	version, dirty, err := c.SchemaVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.RecordRun(context.Background(), sampleRun("run-a", time.Now())))
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()
	r, err := c.GetRun(context.Background(), "run-a")
	require.NoError(t, err)
	assert.Equal(t, 3, r.Clusters)
}

func TestMigrateDown_RemovesLatestVersion(t *testing.T) {
	c := openTemp(t)
	migrations, err := migrationsFS()
	require.NoError(t, err)

	require.NoError(t, c.MigrateDown(migrations))
	version, _, err := c.SchemaVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, c.MigrateUp(migrations))
	version, _, err = c.SchemaVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

// ---------------------------------------------------------------------------
// Runs and exports
// ---------------------------------------------------------------------------

func TestRecordRun_RequiresID(t *testing.T) {
	c := openTemp(t)
	err := c.RecordRun(context.Background(), Run{})
	assert.Error(t, err)
}

func TestGetRun_NotFound(t *testing.T) {
	c := openTemp(t)
	_, err := c.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRecordRun_RoundTrip(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	id := uuid.NewString()
	finished := time.UnixMilli(time.Now().UnixMilli())
	want := sampleRun(id, finished)

	require.NoError(t, c.RecordRun(ctx, want))
	got, err := c.GetRun(ctx, id)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	base := time.Now()
	require.NoError(t, c.RecordRun(ctx, sampleRun("old", base.Add(-time.Hour))))
	require.NoError(t, c.RecordRun(ctx, sampleRun("new", base)))

	runs, err := c.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)

	runs, err = c.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecordExport_ListsInOrder(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	require.NoError(t, c.RecordRun(ctx, sampleRun("run", time.Now())))

	inputs := []Export{
		{RunID: "run", ClusterIndex: 0, Format: "obj", Path: "out/cluster_000.obj", Bytes: 120, Points: 9, Faces: 8},
		{RunID: "run", ClusterIndex: 1, Format: "obj", Path: "out/cluster_001.obj", Bytes: 90, Points: 6, Faces: 4},
		{RunID: "run", ClusterIndex: -1, Format: "geojson", Path: "out/footprints.geojson", Bytes: 300},
	}
	for _, e := range inputs {
		id, err := c.RecordExport(ctx, e)
		require.NoError(t, err)
		assert.Positive(t, id)
	}

	got, err := c.ListExports(ctx, "run")
	require.NoError(t, err)
	require.Len(t, got, 3)

	paths := make([]string, len(got))
	for i, e := range got {
		paths[i] = e.Path
	}
	want := []string{"out/cluster_000.obj", "out/cluster_001.obj", "out/footprints.geojson"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("export order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 9, got[0].Points)
	assert.Equal(t, 8, got[0].Faces)
	assert.Equal(t, -1, got[2].ClusterIndex)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestRecordExport_UnknownRunRejected(t *testing.T) {
	c := openTemp(t)
	_, err := c.RecordExport(context.Background(), Export{RunID: "nope", Format: "obj", Path: "x.obj"})
	assert.Error(t, err, "foreign key should reject exports for unknown runs")
}

func TestListExports_EmptyRun(t *testing.T) {
	c := openTemp(t)
	got, err := c.ListExports(context.Background(), "none")
	require.NoError(t, err)
	assert.Empty(t, got)
}
