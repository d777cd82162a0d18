// Command worldd runs the world lifecycle daemon: an HTTP admin API over
// the engine registry, backed by memory, sqlite or s3 storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"worldvault.gg/internal/config"
	"worldvault.gg/internal/engine"
	"worldvault.gg/internal/storage"
	"worldvault.gg/internal/storage/s3store"
	"worldvault.gg/internal/storage/sqlitestore"
	"worldvault.gg/internal/template"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to worldd.yaml (empty = defaults, memory storage)")
		listen     = flag.String("listen", "", "http listen address (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger not up yet.
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*listen) != "" {
		cfg.Listen = *listen
	}

	log, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	backend, closeBackend, err := openBackend(cfg.Storage)
	if err != nil {
		log.Fatal("open storage backend", zap.Error(err))
	}
	if closeBackend != nil {
		defer closeBackend()
	}

	var templates *template.Registry
	if strings.TrimSpace(cfg.TemplateDir) != "" {
		templates, err = template.Open(cfg.TemplateDir)
		if err != nil {
			log.Fatal("open template registry", zap.Error(err))
		}
		log.Info("templates loaded",
			zap.String("dir", cfg.TemplateDir),
			zap.Strings("names", templates.Names()))
	}

	reg := engine.New(engine.Options{
		Backend:              backend,
		Templates:            templates,
		Logger:               log,
		DefaultMemoryCeiling: cfg.Cache.MemoryCeilingRegions,
	})

	ctx, cancel := signalContext()
	defer cancel()

	hub := newEventHub(log)
	go hub.run(ctx, reg.Events())

	api := &apiServer{reg: reg, hub: hub, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /metrics", api.handleMetrics)
	mux.HandleFunc("GET /v1/worlds", api.handleList)
	mux.HandleFunc("POST /v1/worlds", api.handleCreate)
	mux.HandleFunc("POST /v1/worlds/load", api.handleLoad)
	mux.HandleFunc("GET /v1/worlds/{id}", api.handleStats)
	mux.HandleFunc("GET /v1/worlds/{id}/chunk", api.handleChunk)
	mux.HandleFunc("POST /v1/worlds/{id}/release", api.handleRelease)
	mux.HandleFunc("DELETE /v1/worlds/{bucket}/{id}", api.handleDelete)
	mux.HandleFunc("GET /v1/events", api.handleEvents)

	if envBool("WV_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.Info("listening", zap.String("addr", cfg.Listen), zap.String("storage", cfg.Storage.Driver))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("serve", zap.Error(err))
	}

	// Flush every loaded world before exiting.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel2()
	if err := reg.Shutdown(ctx2); err != nil {
		log.Error("shutdown release", zap.Error(err))
	}
	log.Info("bye")
}

func openBackend(sc config.Storage) (storage.Backend, func(), error) {
	switch sc.Driver {
	case "memory":
		return storage.NewMemory(), nil, nil
	case "sqlite":
		st, err := sqlitestore.Open(sc.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case "s3":
		client, err := s3store.New(
			sc.S3.Endpoint,
			sc.S3.Bucket,
			os.Getenv("WORLDVAULT_S3_ACCESS_KEY_ID"),
			os.Getenv("WORLDVAULT_S3_SECRET_ACCESS_KEY"),
		)
		if err != nil {
			return nil, nil, err
		}
		return s3store.NewStore(client, sc.S3.Prefix), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver: %s", sc.Driver)
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

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
