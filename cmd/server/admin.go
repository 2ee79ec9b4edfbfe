package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"marketmelee.ai/internal/animation"
	"marketmelee.ai/internal/auth"
	"marketmelee.ai/internal/persistence/snapshot"
	"marketmelee.ai/internal/ring"
	"marketmelee.ai/internal/transport/ws"
)

func snapshotHandler(svc *ring.Service, dataDir string, logger *log.Logger) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !auth.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		rw.Header().Set("Content-Type", "application/json")
		snap, err := svc.Snapshot(ctx)
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		path := filepath.Join(dataDir, "snapshots", fmt.Sprintf("%d.snap.zst", time.Now().UnixMilli()))
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Printf("write snapshot: %v", err)
			rw.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		logger.Printf("snapshot written: %s boxers=%d", path, len(snap.Boxers))
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "path": path, "boxers": len(snap.Boxers)})
	}
}

func metricsHandler(svc *ring.Service, anims *animation.Dispatcher, wsSrv *ws.Server) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		m := svc.Metrics()
		a := anims.Stats()
		boxers, boxersErr := svc.Boxers(r.Context())

		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		if boxersErr == nil {
			fmt.Fprintf(rw, "# HELP ringside_boxers Stored boxer records.\n")
			fmt.Fprintf(rw, "# TYPE ringside_boxers gauge\n")
			fmt.Fprintf(rw, "ringside_boxers %d\n", boxers)
		}

		fmt.Fprintf(rw, "# HELP ringside_boxers_created_total Boxers created by this process.\n")
		fmt.Fprintf(rw, "# TYPE ringside_boxers_created_total counter\n")
		fmt.Fprintf(rw, "ringside_boxers_created_total %d\n", m.Created)

		fmt.Fprintf(rw, "# HELP ringside_moves_processed_total Market moves committed.\n")
		fmt.Fprintf(rw, "# TYPE ringside_moves_processed_total counter\n")
		fmt.Fprintf(rw, "ringside_moves_processed_total %d\n", m.Processed)

		fmt.Fprintf(rw, "# HELP ringside_requests_rejected_total Rejected create/move calls by error code.\n")
		fmt.Fprintf(rw, "# TYPE ringside_requests_rejected_total counter\n")
		for _, code := range m.RejectedCodes() {
			fmt.Fprintf(rw, "ringside_requests_rejected_total{code=%q} %d\n", code, m.Rejected[code])
		}

		fmt.Fprintf(rw, "# HELP ringside_transition_log_errors_total Transition log writes that failed.\n")
		fmt.Fprintf(rw, "# TYPE ringside_transition_log_errors_total counter\n")
		fmt.Fprintf(rw, "ringside_transition_log_errors_total %d\n", m.LogErrors)

		fmt.Fprintf(rw, "# HELP ringside_animations_total Animation requests by outcome.\n")
		fmt.Fprintf(rw, "# TYPE ringside_animations_total counter\n")
		fmt.Fprintf(rw, "ringside_animations_total{outcome=%q} %d\n", "delivered", a.Delivered)
		fmt.Fprintf(rw, "ringside_animations_total{outcome=%q} %d\n", "dropped", a.Dropped)
		fmt.Fprintf(rw, "ringside_animations_total{outcome=%q} %d\n", "failed", a.Failed)
		fmt.Fprintf(rw, "ringside_animations_total{outcome=%q} %d\n", "renderer_queue_full", wsSrv.Dropped())

		fmt.Fprintf(rw, "# HELP ringside_renderers Connected renderer websockets.\n")
		fmt.Fprintf(rw, "# TYPE ringside_renderers gauge\n")
		fmt.Fprintf(rw, "ringside_renderers %d\n", wsSrv.Subscribers())
	}
}
