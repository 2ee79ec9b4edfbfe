package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"marketmelee.ai/internal/animation"
	"marketmelee.ai/internal/config"
	"marketmelee.ai/internal/persistence/store"
	"marketmelee.ai/internal/ring"
	"marketmelee.ai/internal/sim/boxer"
	"marketmelee.ai/internal/sim/tuning"
	"marketmelee.ai/internal/transport/ws"
)

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	_ = os.MkdirAll(snaps, 0o755)
	for _, n := range []string{"100.snap.zst", "2000.snap.zst", "junk.snap.zst", "3000.snap.zst.tmp"} {
		_ = os.WriteFile(filepath.Join(snaps, n), nil, 0o644)
	}
	if got := latestSnapshot(dir); got != filepath.Join(snaps, "2000.snap.zst") {
		t.Fatalf("latest=%q", got)
	}
	if got := latestSnapshot(t.TempDir()); got != "" {
		t.Fatalf("empty dir latest=%q", got)
	}
}

func TestBuildAuthenticator(t *testing.T) {
	a, err := buildAuthenticator(&config.AppConfig{})
	if err != nil {
		t.Fatalf("buildAuthenticator: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/boxers", nil)
	if _, err := a.Authenticate(req, nil); err == nil {
		t.Fatalf("remote caller admitted without credentials")
	}
	req.RemoteAddr = "127.0.0.1:1"
	if _, err := a.Authenticate(req, nil); err != nil {
		t.Fatalf("loopback rejected: %v", err)
	}

	a, err = buildAuthenticator(&config.AppConfig{HMACSecret: "s"})
	if err != nil {
		t.Fatalf("buildAuthenticator: %v", err)
	}
	if _, err := a.Authenticate(req, nil); err == nil {
		t.Fatalf("loopback admitted without signature once a secret is set")
	}

	if _, err := buildAuthenticator(&config.AppConfig{JWTPublicKey: "bad", JWTIssuer: "i", JWTAudience: "a"}); err == nil {
		t.Fatalf("expected bad key error")
	}
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()
	b, err := openBackend("sqlite", dir, tuning.Defaults())
	if err != nil {
		t.Fatalf("openBackend: %v", err)
	}
	_ = b.Close()
	if _, err := os.Stat(filepath.Join(dir, "ring.sqlite")); err != nil {
		t.Fatalf("db file: %v", err)
	}
	if _, err := openBackend("redis", dir, tuning.Defaults()); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}

func TestMetricsAndSnapshotHandlers(t *testing.T) {
	ctx := context.Background()
	eng, _ := boxer.NewEngine(tuning.Defaults().Engine)
	wsSrv := ws.NewServer(nil)
	anims := animation.NewDispatcher(wsSrv, 8, nil)
	defer anims.Close()
	svc, err := ring.New(ring.Config{Store: store.New(store.NewMemory()), Engine: eng, Animations: anims})
	if err != nil {
		t.Fatalf("ring.New: %v", err)
	}
	_, _ = svc.CreateBoxer(ctx, "BTC")
	_, _ = svc.CreateBoxer(ctx, "BTC")
	_, _ = svc.ProcessMarketMove(ctx, "BTC", boxer.Signal{PriceDelta: 1})

	rec := httptest.NewRecorder()
	metricsHandler(svc, anims, wsSrv)(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"ringside_boxers 1\n",
		"ringside_boxers_created_total 1\n",
		"ringside_moves_processed_total 1\n",
		`ringside_requests_rejected_total{code="E_ALREADY_EXISTS"} 1`,
		"ringside_renderers 0\n",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}

	dir := t.TempDir()
	h := snapshotHandler(svc, dir, log.New(io.Discard, "", 0))

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote snapshot status=%d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:9"
	rec = httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status=%d body=%s", rec.Code, rec.Body)
	}
	if latestSnapshot(dir) == "" {
		t.Fatalf("snapshot file not written")
	}
}
