package main

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kwv/rgbdmesh/catalog"
	"github.com/kwv/rgbdmesh/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// writeDepthPNG writes a 16-bit depth image with every pixel set to raw.
func writeDepthPNG(t *testing.T, dir string, rows, cols int, raw uint16) string {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.SetGray16(x, y, color.Gray16{Y: raw})
		}
	}
	path := filepath.Join(dir, "depth.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

// testApp returns an App over a flat 40x40 frame one metre from the camera,
// exporting into a temp directory.
func testApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	app := NewApp()
	app.Config = mesh.DefaultConfig()
	app.Config.Export.Dir = filepath.Join(dir, "out")
	app.DepthPath = writeDepthPNG(t, dir, 40, 40, 1000)
	return app
}

// ---------------------------------------------------------------------------
// options and config
// ---------------------------------------------------------------------------

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app == nil {
		t.Fatal("NewApp returned nil")
		return
	}
	if app.StateTracker == nil {
		t.Error("StateTracker should be initialized")
	}
	if app.MaxPlanes != -1 || app.MinArea != -1 || app.MinPoints != -1 {
		t.Error("numeric overrides should start unset")
	}
}

func TestApplyOptions(t *testing.T) {
	app := NewApp()
	opts := AppOptions{
		ConfigFile:  "test-config.yaml",
		ColorPath:   "rgb.png",
		DepthPath:   "depth.png",
		OutputDir:   "/test/out",
		CatalogPath: "/test/catalog.db",
		Labeler:     "unionfind",
		MaxPlanes:   4,
		MinArea:     10,
		MinPoints:   20,
		DepthDiff:   0.03,
		HttpPort:    8080,
		MqttMode:    true,
		Serve:       true,
	}

	app.ApplyOptions(opts)

	assert.Equal(t, "test-config.yaml", app.ConfigFile)
	assert.Equal(t, "rgb.png", app.ColorPath)
	assert.Equal(t, "depth.png", app.DepthPath)
	assert.Equal(t, "/test/out", app.OutputDir)
	assert.Equal(t, "/test/catalog.db", app.CatalogPath)
	assert.Equal(t, "unionfind", app.Labeler)
	assert.Equal(t, 4, app.MaxPlanes)
	assert.Equal(t, 10, app.MinArea)
	assert.Equal(t, 20, app.MinPoints)
	assert.Equal(t, 0.03, app.DepthDiff)
	assert.Equal(t, 8080, app.HttpPort)
	assert.True(t, app.MqttMode)
	assert.True(t, app.Serve)
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	app := NewApp()
	config, err := app.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, mesh.DefaultConfig(), config)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `segmentation:
  maxPlanes: 2
  minArea: 50
  minPoints: 75
export:
  dir: /from/config
catalog:
  path: /from/config.db
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	app := NewApp()
	app.ConfigFile = path
	app.OutputDir = filepath.Join(dir, "out")
	app.MinArea = 0
	app.DepthDiff = 0.05

	config, err := app.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, config.Segmentation.MaxPlanes, "unset flag keeps the file value")
	assert.Equal(t, 0, config.Segmentation.MinArea, "zero is a valid override")
	assert.Equal(t, 75, config.Segmentation.MinPoints)
	assert.Equal(t, 0.05, config.Segmentation.DepthDiff)
	assert.Equal(t, filepath.Join(dir, "out"), config.Export.Dir)
	assert.Equal(t, "/from/config.db", config.Catalog.Path)
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	app := NewApp()
	app.MaxPlanes = 300
	_, err := app.loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxPlanes")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	app := NewApp()
	app.ConfigFile = filepath.Join(t.TempDir(), "nope.yaml")
	_, err := app.loadConfig()
	assert.Error(t, err)
}

func TestSetup_MqttWithoutBroker(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	app := NewApp()
	app.MqttMode = true
	err := app.setup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MQTT broker not configured")
}

func TestSetup_OpensCatalog(t *testing.T) {
	app := NewApp()
	app.CatalogPath = filepath.Join(t.TempDir(), "catalog.db")
	require.NoError(t, app.setup())
	defer app.shutdown()
	assert.NotNil(t, app.Catalog)
	assert.Nil(t, app.MQTTClient)
}

// ---------------------------------------------------------------------------
// process
// ---------------------------------------------------------------------------

func TestProcess_FlatFrame(t *testing.T) {
	app := testApp(t)

	res, files, err := app.process(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Summaries, 1)
	s := res.Summaries[0]
	assert.Equal(t, mesh.KindPlane, s.Kind)
	assert.Equal(t, 40*40, s.Points)
	assert.Equal(t, 39*39*2, s.Faces)

	// obj, footprints.geojson and three previews
	assert.Len(t, files, 5)
	for _, f := range files {
		info, err := os.Stat(f.Path)
		require.NoError(t, err, f.Path)
		assert.Equal(t, info.Size(), f.Bytes)
	}
	assert.FileExists(t, filepath.Join(app.Config.Export.Dir, "cluster_000.obj"))

	assert.True(t, app.StateTracker.HasResult())
	assert.Equal(t, res.RunID, app.StateTracker.Result().RunID)
}

func TestProcess_RecordsCatalog(t *testing.T) {
	app := testApp(t)
	app.Config.Export.Formats = []string{mesh.FormatOBJ, mesh.FormatSTL}
	app.Config.Export.Previews = false
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer cat.Close()
	app.Catalog = cat

	res, files, err := app.process(context.Background())
	require.NoError(t, err)

	run, err := cat.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, app.DepthPath, run.Source)
	assert.Equal(t, 1, run.Clusters)
	assert.Equal(t, 40, run.Rows)

	exports, err := cat.ListExports(context.Background(), res.RunID)
	require.NoError(t, err)
	require.Len(t, exports, len(files))
	for i, e := range exports {
		assert.Equal(t, files[i].Path, e.Path)
		assert.Equal(t, files[i].Format, e.Format)
		if e.ClusterIndex == 0 {
			assert.Equal(t, 1600, e.Points)
			assert.Equal(t, 39*39*2, e.Faces)
		}
	}
}

func TestProcess_PublishesResult(t *testing.T) {
	app := testApp(t)
	client := mesh.NewMockClient()
	client.SetConnected(true)
	app.Publisher = mesh.NewPublisher(client, app.Config)

	res, _, err := app.process(context.Background())
	require.NoError(t, err)

	msg, ok := client.LastMessage("rgbdmesh/clusters")
	require.True(t, ok)
	assert.Contains(t, string(msg.Payload), res.RunID)
	_, ok = client.LastMessage("rgbdmesh/clusters/0")
	assert.True(t, ok)
}

func TestProcess_PublishFailureIsNotFatal(t *testing.T) {
	app := testApp(t)
	client := mesh.NewMockClient() // disconnected
	app.Publisher = mesh.NewPublisher(client, app.Config)

	_, _, err := app.process(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, client.GetPublishedMessages())
}

func TestProcess_NoDepth(t *testing.T) {
	app := NewApp()
	app.Config = mesh.DefaultConfig()
	_, _, err := app.process(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--depth")
}

func TestProcess_MissingDepthFile(t *testing.T) {
	app := NewApp()
	app.Config = mesh.DefaultConfig()
	app.DepthPath = filepath.Join(t.TempDir(), "missing.png")
	_, _, err := app.process(context.Background())
	assert.Error(t, err)
	assert.False(t, app.StateTracker.HasResult())
}

func TestRunSegment(t *testing.T) {
	dir := t.TempDir()
	app := NewApp()
	app.DepthPath = writeDepthPNG(t, dir, 20, 20, 1500)
	app.OutputDir = filepath.Join(dir, "out")
	app.MinPoints = 10

	require.NoError(t, app.RunSegment())
	assert.FileExists(t, filepath.Join(dir, "out", "cluster_000.obj"))
	assert.FileExists(t, filepath.Join(dir, "out", "footprints.geojson"))
}

// ---------------------------------------------------------------------------
// MQTT commands
// ---------------------------------------------------------------------------

func TestHandleCommand_RunTriggersSegmentation(t *testing.T) {
	for _, cmd := range []string{"", "run", "SEGMENT"} {
		t.Run("command "+cmd, func(t *testing.T) {
			app := testApp(t)
			app.handleCommand(cmd)
			assert.Eventually(t, func() bool { return app.StateTracker.Runs() == 1 },
				10*time.Second, 20*time.Millisecond)
		})
	}
}

func TestHandleCommand_UnknownIgnored(t *testing.T) {
	app := testApp(t)
	app.handleCommand("reboot")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, app.StateTracker.Runs())
}
