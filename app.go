package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kwv/rgbdmesh/catalog"
	"github.com/kwv/rgbdmesh/mesh"
)

// snapshotFile is written into the export directory by the service so the
// last run's summaries survive a restart.
const snapshotFile = ".last-run.json"

// App encapsulates the application state and dependencies
type App struct {
	Config       *mesh.Config
	StateTracker *mesh.StateTracker
	MQTTClient   *mesh.MQTTClient
	Publisher    *mesh.Publisher
	Catalog      *catalog.Catalog

	// CLI Flags (effectively dependencies)
	ConfigFile  string
	ColorPath   string
	DepthPath   string
	OutputDir   string
	CatalogPath string
	Labeler     string
	MaxPlanes   int
	MinArea     int
	MinPoints   int
	DepthDiff   float64
	HttpPort    int
	MqttMode    bool
	Serve       bool

	runMu sync.Mutex // one segmentation run at a time
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: mesh.NewStateTracker(),
		MaxPlanes:    -1,
		MinArea:      -1,
		MinPoints:    -1,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.ColorPath = opts.ColorPath
	a.DepthPath = opts.DepthPath
	a.OutputDir = opts.OutputDir
	a.CatalogPath = opts.CatalogPath
	a.Labeler = opts.Labeler
	a.MaxPlanes = opts.MaxPlanes
	a.MinArea = opts.MinArea
	a.MinPoints = opts.MinPoints
	a.DepthDiff = opts.DepthDiff
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.Serve = opts.Serve
}

// loadConfig reads the config file, or the defaults when none was given,
// and applies the command line overrides on top.
func (a *App) loadConfig() (*mesh.Config, error) {
	config := mesh.DefaultConfig()
	if a.ConfigFile != "" {
		loaded, err := mesh.LoadConfig(a.ConfigFile)
		if err != nil {
			return nil, err
		}
		config = loaded
		log.Printf("Loaded config from %s", a.ConfigFile)
	}

	if a.OutputDir != "" {
		config.Export.Dir = a.OutputDir
	}
	if a.CatalogPath != "" {
		config.Catalog.Path = a.CatalogPath
	}
	if a.Labeler != "" {
		config.Segmentation.Labeler = a.Labeler
	}
	if a.MaxPlanes >= 0 {
		config.Segmentation.MaxPlanes = a.MaxPlanes
	}
	if a.MinArea >= 0 {
		config.Segmentation.MinArea = a.MinArea
	}
	if a.MinPoints >= 0 {
		config.Segmentation.MinPoints = a.MinPoints
	}
	if a.DepthDiff > 0 {
		config.Segmentation.DepthDiff = a.DepthDiff
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// setup loads the configuration and opens the catalog and MQTT connection
// when they are configured.
func (a *App) setup() error {
	config, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.Config = config

	if config.Catalog.Path != "" {
		cat, err := catalog.Open(config.Catalog.Path)
		if err != nil {
			return err
		}
		a.Catalog = cat
		log.Printf("Export catalog: %s", config.Catalog.Path)
	}

	if a.MqttMode {
		mqttClient, err := mesh.InitMQTT(config, a.handleCommand)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT: %w", err)
		}
		if mqttClient == nil {
			return errors.New("MQTT broker not configured (set mqtt.broker or MQTT_BROKER)")
		}
		a.MQTTClient = mqttClient
		a.Publisher = mesh.NewPublisher(mqttClient.GetClient(), config)
		fmt.Println("MQTT result publisher initialized")
	}
	return nil
}

func (a *App) shutdown() {
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	if a.Catalog != nil {
		if err := a.Catalog.Close(); err != nil {
			log.Printf("Warning: closing catalog: %v", err)
		}
	}
}

// process loads the frame, segments it, writes the exports and records them,
// then hands the result to the state tracker and the MQTT publisher.
func (a *App) process(ctx context.Context) (*mesh.Result, []mesh.ExportedFile, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	config := a.Config
	if a.DepthPath == "" {
		return nil, nil, errors.New("no depth image given (use --depth)")
	}

	frame, err := mesh.LoadFrame(ctx, a.ColorPath, a.DepthPath, config.Camera)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Loaded %dx%d frame from %s", frame.Cols(), frame.Rows(), a.DepthPath)

	labeler, err := mesh.NewComponentLabeler(config.Segmentation)
	if err != nil {
		return nil, nil, err
	}
	res, err := mesh.Segment(frame, config.Segmentation, mesh.NewPlaneFitter(config.Segmentation), labeler)
	if err != nil {
		return nil, nil, err
	}

	if a.Catalog != nil {
		run := catalog.Run{
			ID:         res.RunID,
			Source:     a.DepthPath,
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
			Rows:       res.Rows,
			Cols:       res.Cols,
			Clusters:   len(res.Clusters),
		}
		if err := a.Catalog.RecordRun(ctx, run); err != nil {
			return nil, nil, err
		}
	}

	files, err := mesh.ExportResult(res, config.Export, a.exportRecorder(ctx, res))
	if err != nil {
		return res, files, err
	}

	a.StateTracker.Update(res)

	if a.Publisher != nil {
		if err := a.Publisher.PublishResult(res); err != nil {
			log.Printf("Warning: failed to publish run %s: %v", res.RunID, err)
		}
	}
	return res, files, nil
}

// exportRecorder returns the ExportResult callback that writes one catalog
// row per file. It is a no-op without a catalog.
func (a *App) exportRecorder(ctx context.Context, res *mesh.Result) func(mesh.ExportedFile) error {
	if a.Catalog == nil {
		return nil
	}
	return func(f mesh.ExportedFile) error {
		e := catalog.Export{
			RunID:        res.RunID,
			ClusterIndex: f.ClusterIndex,
			Format:       f.Format,
			Path:         f.Path,
			Bytes:        f.Bytes,
		}
		if f.ClusterIndex >= 0 && f.ClusterIndex < len(res.Summaries) {
			e.Points = res.Summaries[f.ClusterIndex].Points
			e.Faces = res.Summaries[f.ClusterIndex].Faces
		}
		_, err := a.Catalog.RecordExport(ctx, e)
		return err
	}
}

func printReport(res *mesh.Result, files []mesh.ExportedFile) {
	fmt.Printf("\nRun %s (%dx%d, %s)\n", res.RunID, res.Cols, res.Rows, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	fmt.Printf("%d clusters\n", len(res.Summaries))
	for _, s := range res.Summaries {
		fmt.Printf("  [%d] %-9s points=%-7d faces=%-7d", s.Index, s.Kind, s.Points, s.Faces)
		if s.Plane != nil {
			fmt.Printf(" plane=(%.3f, %.3f, %.3f, %.3f)", s.Plane.A, s.Plane.B, s.Plane.C, s.Plane.D)
		}
		fmt.Println()
	}
	if len(files) > 0 {
		fmt.Printf("Wrote %d files to %s\n", len(files), filepath.Dir(files[0].Path))
	}
}

// RunSegment segments one frame, exports it and exits.
func (a *App) RunSegment() error {
	if err := a.setup(); err != nil {
		return err
	}
	defer a.shutdown()

	res, files, err := a.process(context.Background())
	if err != nil {
		return err
	}
	printReport(res, files)
	return nil
}

// handleCommand is the MQTT trigger. "segment", "run" and an empty payload
// re-run the pipeline on the configured frame.
func (a *App) handleCommand(command string) {
	switch strings.ToLower(command) {
	case "", "run", "segment":
		go func() {
			res, files, err := a.process(context.Background())
			if err != nil {
				log.Printf("Error: triggered run failed: %v", err)
				return
			}
			printReport(res, files)
		}()
	default:
		log.Printf("Warning: ignoring unknown command %q", command)
	}
}

// RunService segments the configured frame once, then serves the result over
// HTTP and/or MQTT until interrupted.
func (a *App) RunService() error {
	fmt.Println("Starting rgbdmesh service...")
	if err := a.setup(); err != nil {
		return err
	}
	defer a.shutdown()

	a.StateTracker = mesh.NewStateTrackerWithCache(filepath.Join(a.Config.Export.Dir, snapshotFile))
	if snap, ok := a.StateTracker.Snapshot(); ok {
		log.Printf("Loaded snapshot of run %s (%d clusters)", snap.RunID, len(snap.Clusters))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.DepthPath != "" {
		res, files, err := a.process(ctx)
		if err != nil {
			return err
		}
		printReport(res, files)
	} else {
		log.Printf("Warning: no --depth given; serving the cached snapshot only")
	}

	var server *http.Server
	if a.Serve {
		server = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
			Handler:           newHTTPServer(a.StateTracker, a.Catalog),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[HTTP] Server error: %v", err)
				stop()
			}
		}()
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")
	if a.MQTTClient != nil {
		fmt.Println("\nMQTT:")
		fmt.Printf("  Command topic: %s\n", a.MQTTClient.CommandTopic())
		fmt.Printf("  Publishing to: %s/clusters\n", a.Publisher.Prefix())
	}
	if server != nil {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Println("  GET /health              - Health check")
		fmt.Println("  GET /clusters.json       - Cluster summaries of the last run")
		fmt.Println("  GET /clusters.geojson    - Cluster footprints")
		fmt.Println("  GET /labels.png          - Label preview")
		fmt.Println("  GET /mesh.png            - Textured mesh preview")
		fmt.Println("  GET /clusters.svg        - Vector preview")
		fmt.Println("  GET /clusters/{i}.obj    - Mesh of cluster i")
		fmt.Println("  GET /runs.json           - Recent runs from the catalog")
	}
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down service...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}
	fmt.Println("Service stopped")
	return nil
}
