// Command sgdmaster runs the parameter-server coordinator: cluster
// membership, the synchronous training loop, and the asynchronous training
// coordinator with its background loss monitor, all exposed over HTTP.
// Logging setup is grounded on the teacher's games_ws_backend/main.go.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/muchq/sgdmaster/internal/asyncmaster"
	"github.com/muchq/sgdmaster/internal/clock"
	"github.com/muchq/sgdmaster/internal/clustercore"
	"github.com/muchq/sgdmaster/internal/config"
	"github.com/muchq/sgdmaster/internal/dataset"
	"github.com/muchq/sgdmaster/internal/httpapi"
	"github.com/muchq/sgdmaster/internal/ratelimit"
	"github.com/muchq/sgdmaster/internal/registry"
	"github.com/muchq/sgdmaster/internal/rpcserver"
	"github.com/muchq/sgdmaster/internal/syncmaster"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.DevMode)

	data, err := loadDataset(cfg)
	if err != nil {
		log.Fatalf("sgdmaster: loading dataset: %v", err)
	}
	slog.Info("sgdmaster: dataset loaded", "examples", data.Len())

	reg := registry.New(cfg.ExpectedNodeCount)
	core := clustercore.New(reg, clock.NewSystemUtcClock())

	sm := syncmaster.New(core, data)
	am := asyncmaster.New(core, data)

	rpc := &rpcserver.Server{Registry: reg, Async: am, MaxSteps: cfg.MaxSteps}

	router := httpapi.NewMucks()
	router.HandleFunc("/healthz", healthzHandler)
	router.HandleFunc("/readyz", readyzHandler(reg))
	router.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	router.HandleFunc("/sgd/v1/worker", rpc.HandleUpgrade)

	appCfg := appConfig{
		Epochs:     cfg.Epochs,
		BatchSize:  cfg.BatchSize,
		MaxSteps:   cfg.MaxSteps,
		CheckEvery: cfg.CheckEvery,
		LeakCoef:   cfg.LeakCoef,
		FeatureDim: featureDim(data),
	}
	router.HandleFunc("/sgd/v1/train/sync", trainSyncHandler(sm, appCfg))
	router.HandleFunc("/sgd/v1/train/async", trainAsyncHandler(am, reg, appCfg))

	router.Add(httpapi.NewJsonContentTypeMiddleware())
	router.Add(ratelimit.New(ratelimit.TokenBucketFactory{}, ratelimit.RemoteIPKeyExtractor{},
		&ratelimit.DefaultConfig{MaxTokens: cfg.RateLimitTokens, RefillRate: cfg.RateLimitRefill, OpCost: 1}))

	server := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	go func() {
		slog.Info("sgdmaster: listening", "port", cfg.Port, "expected_node_count", cfg.ExpectedNodeCount)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("sgdmaster: server failed", "error", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(server)
}

func waitForShutdown(server *http.Server) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("sgdmaster: shutting down")
	if err := server.Shutdown(context.Background()); err != nil {
		slog.Error("sgdmaster: shutdown error", "error", err)
	}
}

func setupLogging(devMode bool) {
	level := slog.LevelInfo
	if devMode {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func loadDataset(cfg config.Config) (*dataset.Dataset, error) {
	if cfg.PostgresConnStr != "" {
		loader, err := dataset.NewPostgresLoader(cfg.PostgresConnStr, cfg.PostgresTable)
		if err != nil {
			return nil, err
		}
		defer loader.Close()
		return loader.Load(context.Background())
	}
	if cfg.DatasetPath != "" {
		f, err := os.Open(cfg.DatasetPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return dataset.LoadCSV(f)
	}
	return dataset.New(nil), nil
}

func featureDim(d *dataset.Dataset) int {
	if d.Len() == 0 {
		return 0
	}
	return d.Slice(dataset.Range{Lo: 0, Hi: 1})[0].Features.Len()
}
