package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries the parsed command line into the App.
// Negative numeric values mean "keep the value from the config file".
type AppOptions struct {
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
	Segment     bool
	Serve       bool
	MqttMode    bool
}

// Runner is the part of App that main drives.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunSegment() error
	RunService() error
}

func main() {
	err := run(os.Args[1:], os.Stdout, NewApp())
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("rgbdmesh", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "", "Path to configuration file (default: built-in defaults)")
	fs.StringVar(&opts.ColorPath, "color", "", "Color image path or http(s) URL (optional)")
	fs.StringVar(&opts.DepthPath, "depth", "", "16-bit depth image path or http(s) URL")
	fs.StringVar(&opts.OutputDir, "output-dir", "", "Directory for exported meshes and previews (overrides export.dir)")
	fs.StringVar(&opts.CatalogPath, "catalog", "", "SQLite export catalog path (overrides catalog.path)")
	fs.StringVar(&opts.Labeler, "labeler", "", "Connected-component labeler: unionfind or gocv")
	fs.IntVar(&opts.MaxPlanes, "max-planes", -1, "Maximum number of planes to extract")
	fs.IntVar(&opts.MinArea, "min-area", -1, "Minimum component area in pixels")
	fs.IntVar(&opts.MinPoints, "min-points", -1, "Clusters with at most this many points are dropped")
	fs.Float64Var(&opts.DepthDiff, "depth-diff", 0, "Face depth tolerance in metres (default from config)")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port")
	fs.BoolVar(&opts.Segment, "segment", false, "Segment one frame, export the clusters and exit")
	fs.BoolVar(&opts.Serve, "serve", false, "Segment once, then serve the result over HTTP")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Publish results over MQTT and accept re-run commands")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "rgbdmesh version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.Serve:
		return app.RunService()
	case opts.Segment:
		return app.RunSegment()
	case opts.MqttMode:
		return app.RunService()
	}

	fmt.Fprintln(out, "Nothing to do.")
	fmt.Fprintln(out, "Use --segment --depth depth.png [--color color.png] to segment a frame")
	fmt.Fprintln(out, "Use --serve to segment and serve the result over HTTP")
	fmt.Fprintln(out, "Use --mqtt to publish results and listen for re-run commands")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - camera, segmentation, export, MQTT and catalog settings")
	return nil
}
