package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"marketmelee.ai/internal/animation"
	"marketmelee.ai/internal/config"
	persistlog "marketmelee.ai/internal/persistence/log"
	"marketmelee.ai/internal/persistence/snapshot"
	"marketmelee.ai/internal/persistence/store"
	"marketmelee.ai/internal/ring"
	"marketmelee.ai/internal/sim/boxer"
	"marketmelee.ai/internal/sim/tuning"
	"marketmelee.ai/internal/transport/httpapi"
	"marketmelee.ai/internal/transport/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		addr       = flag.String("addr", cfg.Addr, "http listen address")
		dataDir    = flag.String("data", cfg.DataDir, "runtime data directory")
		tuningPath = flag.String("tuning", cfg.TuningPath, "path to tuning.yaml")
		storeKind  = flag.String("store", cfg.Store, "record backend: sqlite or memory")
		disableLog = flag.Bool("disable_transition_log", false, "do not write the compressed transition log")

		snapPath   = flag.String("snapshot", "", "path to snapshot to restore into an empty store (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", false, "restore latest snapshot from data dir if the store is empty (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	animLogger := log.New(os.Stdout, "[anim] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}
	eng, err := boxer.NewEngine(tune.Engine)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	backend, err := openBackend(*storeKind, *dataDir, tune)
	if err != nil {
		logger.Fatalf("open %s backend: %v", *storeKind, err)
	}
	st := store.New(backend)
	defer st.Close()

	wsSrv := ws.NewServer(logger)
	anims := animation.NewDispatcher(wsSrv, tune.AnimationQueue, animLogger)
	defer anims.Close()

	var transitions ring.TransitionWriter
	if !*disableLog {
		tl := persistlog.NewTransitionLogger(*dataDir)
		defer tl.Close()
		transitions = tl
	}

	svc, err := ring.New(ring.Config{
		Store:       st,
		Engine:      eng,
		Animations:  anims,
		Transitions: transitions,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatalf("ring: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(*dataDir)
	}
	if snapshotToLoad != "" {
		if err := restoreSnapshot(ctx, svc, snapshotToLoad, logger); err != nil {
			logger.Fatalf("restore snapshot: %v", err)
		}
	}

	authn, err := buildAuthenticator(cfg)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	mux := http.NewServeMux()
	httpapi.NewServer(svc, authn, tune.HistoryLimit, logger).Register(mux)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/metrics", metricsHandler(svc, anims, wsSrv))

	if !cfg.Production() {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/snapshot", snapshotHandler(svc, *dataDir, logger))
	} else {
		logger.Printf("admin endpoints disabled (DEPLOY_ENV=%s)", cfg.DeployEnv)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (store=%s tuning=%s)", *addr, *storeKind, svc.TuningDigest()[:12])
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func restoreSnapshot(ctx context.Context, svc *ring.Service, path string, logger *log.Logger) error {
	n, err := svc.Boxers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Printf("store already holds %d boxers; not restoring %s", n, filepath.Base(path))
		return nil
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return err
	}
	if err := svc.Restore(ctx, snap); err != nil {
		return err
	}
	logger.Printf("restored snapshot=%s boxers=%d", filepath.Base(path), len(snap.Boxers))
	return nil
}

func latestSnapshot(dataDir string) string {
	dir := filepath.Join(dataDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestMS uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		ms, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || ms > bestMS {
			bestMS = ms
			best = filepath.Join(dir, name)
		}
	}
	return best
}
