// Command concordkv-server is the signal-driven daemon wrapper (spec §1:
// "the signal-handler-driven daemon wrapper" is an external collaborator).
// Per DESIGN NOTES §9's replacement for the source's "signal handler
// setting a shared flag polled by a sleep loop": a dedicated control
// channel the main loop selects on alongside its work, with a goroutine
// translating OS signals into sends on that channel rather than a polled
// flag.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/concordkv/concordkv/internal/arrayengine"
	"github.com/concordkv/concordkv/internal/btreeengine"
	"github.com/concordkv/concordkv/internal/cache"
	"github.com/concordkv/concordkv/internal/config"
	"github.com/concordkv/concordkv/internal/engine"
	"github.com/concordkv/concordkv/internal/hashengine"
	"github.com/concordkv/concordkv/internal/logging"
	"github.com/concordkv/concordkv/internal/lsm"
	"github.com/concordkv/concordkv/internal/metrics"
	"github.com/concordkv/concordkv/internal/rbtreeengine"
)

// control carries translated OS signals to the main loop. A buffered
// channel of size 1 is enough: only the first signal needs to trigger
// shutdown, and signal.Notify never blocks sending to a full channel.
type control chan os.Signal

func main() {
	dataDir := flag.String("data", "", "data directory (overrides CONCORD_DATA_DIR)")
	yamlPath := flag.String("config", "", "optional YAML config overlay")
	collectInterval := flag.Duration("collect-interval", 5*time.Second, "metrics collection interval")
	flag.Parse()

	if *dataDir != "" {
		os.Setenv("CONCORD_DATA_DIR", *dataDir)
	}

	log := logging.NewStdout()

	cfg, err := config.Load(*yamlPath)
	if err != nil {
		log.Error("startup failure", logging.Err(err))
		os.Exit(1)
	}

	mgr, tree, err := buildManager(cfg, log)
	if err != nil {
		log.Error("startup failure", logging.Err(err))
		os.Exit(1)
	}

	active, err := cfg.EngineType()
	if err != nil {
		log.Error("bad arguments", logging.Err(err))
		os.Exit(2)
	}
	if err := mgr.SetActive(active); err != nil {
		log.Error("startup failure", logging.Err(err))
		os.Exit(1)
	}

	reg := metrics.NewRegistry(metrics.DefaultOptions())
	collector := metrics.NewCollector(reg, mgr)
	collector.Run(*collectInterval)
	defer collector.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.Prometheus(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.ListenPort), Handler: mux}

	sig := make(control, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", logging.Int("port", cfg.ListenPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-sig:
		log.Info("shutting down")
	case err := <-serveErr:
		log.Error("server error", logging.Err(err))
	}

	shutdown(srv, mgr, tree, log)
}

func shutdown(srv *http.Server, mgr *engine.Manager, tree *lsm.Tree, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("metrics server shutdown error", logging.Err(err))
	}
	if err := tree.Flush(); err != nil {
		log.Error("flush on shutdown failed", logging.Err(err))
	}
	if err := mgr.Close(); err != nil {
		log.Error("engine shutdown error", logging.Err(err))
	}
	log.Info("server exited")
}

func buildManager(cfg config.Config, log *logging.Logger) (*engine.Manager, *lsm.Tree, error) {
	mgr := engine.NewManager(log)
	mgr.Register(arrayengine.New())
	mgr.Register(rbtreeengine.New())
	mgr.Register(hashengine.New())
	mgr.Register(btreeengine.New())

	tree, err := lsm.Open(cfg.LSMOptions(), log)
	if err != nil {
		return nil, nil, err
	}
	lsmEngine := engine.NewLSMEngine(tree)
	mgr.Register(engine.NewCachedEngine(lsmEngine, cache.New(cfg.CacheOptions())))
	return mgr, tree, nil
}
