package main

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kwv/rgbdmesh/catalog"
	"github.com/kwv/rgbdmesh/mesh"
	"github.com/tdewolff/canvas"
)

// recentRuns is how many catalog runs /runs.json returns.
const recentRuns = 20

// newHTTPServer creates an HTTP server with all endpoints. cat may be nil.
func newHTTPServer(stateTracker *mesh.StateTracker, cat *catalog.Catalog) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasResult bool      `json:"hasResult"`
			Runs      int       `json:"runs"`
			RunID     string    `json:"runId,omitempty"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasResult: stateTracker.HasResult(),
			Runs:      stateTracker.Runs(),
		}
		if snap, ok := stateTracker.Snapshot(); ok {
			status.RunID = snap.RunID
		}
		writeJSON(w, status)
	})

	// Summaries are served from the snapshot, which may predate this process.
	mux.HandleFunc("/clusters.json", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := stateTracker.Snapshot()
		if !ok {
			http.Error(w, "No segmentation result available", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, snap)
	})

	mux.HandleFunc("/clusters.geojson", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := stateTracker.Snapshot()
		if !ok {
			http.Error(w, "No segmentation result available", http.StatusServiceUnavailable)
			return
		}
		var buf bytes.Buffer
		if err := mesh.WriteFootprints(&buf, snap.Clusters); err != nil {
			log.Printf("[HTTP] Error encoding footprints: %v", err)
			http.Error(w, "Failed to encode footprints", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(buf.Bytes())
	})

	mux.HandleFunc("/labels.png", func(w http.ResponseWriter, r *http.Request) {
		res := currentResult(w, stateTracker, "/labels.png")
		if res == nil {
			return
		}
		data, err := mesh.EncodePNG(mesh.RenderLabels(res))
		writeRendered(w, "image/png", data, err, "/labels.png")
	})

	mux.HandleFunc("/mesh.png", func(w http.ResponseWriter, r *http.Request) {
		res := currentResult(w, stateTracker, "/mesh.png")
		if res == nil {
			return
		}
		opt := mesh.MeshPreview{Wireframe: r.URL.Query().Get("wireframe") == "true"}
		data, err := mesh.EncodePNG(mesh.RenderMeshPreview(res, opt))
		writeRendered(w, "image/png", data, err, "/mesh.png")
	})

	mux.HandleFunc("/clusters.svg", func(w http.ResponseWriter, r *http.Request) {
		res := currentResult(w, stateTracker, "/clusters.svg")
		if res == nil {
			return
		}
		renderer := mesh.NewVectorRenderer(res)
		renderer.DrawEdges = r.URL.Query().Get("edges") != "false"
		var buf bytes.Buffer
		err := renderer.RenderToSVG(&buf)
		writeRendered(w, "image/svg+xml", buf.Bytes(), err, "/clusters.svg")
	})

	mux.HandleFunc("/clusters.png", func(w http.ResponseWriter, r *http.Request) {
		renderer := mesh.NewVectorRenderer(nil)
		if v := r.URL.Query().Get("dpi"); v != "" {
			dpi, err := strconv.ParseFloat(v, 64)
			if err != nil || dpi <= 0 || dpi > 1200 {
				http.Error(w, "Invalid dpi", http.StatusBadRequest)
				return
			}
			renderer.Resolution = canvas.DPI(dpi)
		}
		res := currentResult(w, stateTracker, "/clusters.png")
		if res == nil {
			return
		}
		renderer.Result = res
		var buf bytes.Buffer
		err := renderer.RenderToPNG(&buf)
		writeRendered(w, "image/png", buf.Bytes(), err, "/clusters.png")
	})

	mux.HandleFunc("GET /clusters/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if !strings.HasSuffix(name, ".obj") {
			http.NotFound(w, r)
			return
		}
		index, err := strconv.Atoi(strings.TrimSuffix(name, ".obj"))
		if err != nil {
			http.Error(w, "Invalid cluster index", http.StatusBadRequest)
			return
		}
		res := currentResult(w, stateTracker, "/clusters/"+name)
		if res == nil {
			return
		}
		if index < 0 || index >= len(res.Clusters) {
			http.Error(w, "Cluster not found", http.StatusNotFound)
			return
		}
		var buf bytes.Buffer
		err = res.Clusters[index].WriteOBJ(&buf)
		writeRendered(w, "model/obj", buf.Bytes(), err, "/clusters/"+name)
	})

	mux.HandleFunc("/runs.json", func(w http.ResponseWriter, r *http.Request) {
		if cat == nil {
			http.Error(w, "Export catalog not configured", http.StatusNotFound)
			return
		}
		runs, err := cat.ListRuns(r.Context(), recentRuns)
		if err != nil {
			log.Printf("[HTTP] Error listing runs: %v", err)
			http.Error(w, "Failed to list runs", http.StatusInternalServerError)
			return
		}
		writeJSON(w, runs)
	})

	return mux
}

// currentResult returns the in-memory result, or writes 503 and returns nil.
// Renderings need the grids, which the snapshot does not carry.
func currentResult(w http.ResponseWriter, stateTracker *mesh.StateTracker, endpoint string) *mesh.Result {
	res := stateTracker.Result()
	if res == nil {
		log.Printf("[HTTP] %s: no result in memory", endpoint)
		http.Error(w, "No segmentation result available", http.StatusServiceUnavailable)
	}
	return res
}

func writeRendered(w http.ResponseWriter, contentType string, data []byte, err error, endpoint string) {
	if err != nil {
		log.Printf("[HTTP] Error rendering %s: %v", endpoint, err)
		http.Error(w, "Failed to render", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(data); err != nil {
		log.Printf("[HTTP] Error writing %s: %v", endpoint, err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding JSON: %v", err)
	}
}
