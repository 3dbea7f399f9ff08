package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yakkun/terrain-grid-gen/internal/config"
	"github.com/yakkun/terrain-grid-gen/internal/dat"
	"github.com/yakkun/terrain-grid-gen/internal/elevation"
	"github.com/yakkun/terrain-grid-gen/internal/handler"
	"github.com/yakkun/terrain-grid-gen/internal/metrics"
	"github.com/yakkun/terrain-grid-gen/internal/mosaic"
	"github.com/yakkun/terrain-grid-gen/internal/terrain"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	runtime.GOMAXPROCS(cfg.Performance.GOMAXPROCS)

	ds, _ := cfg.Dataset()
	profile, _ := cfg.Profile()
	m := metrics.New()

	cache := elevation.NewCache(
		elevation.NewDirProvider(cfg.Source.Dir, ds),
		ds,
		elevation.WithLogger(logger.Named("cache")),
		elevation.WithMaxCells(cfg.Source.MaxCells),
		elevation.WithTTL(cfg.Source.CellTTL),
		elevation.WithFetchHook(m.ObserveFetch),
	)
	defer cache.Close()

	mos := mosaic.New(cache, logger.Named("mosaic"))
	enc := dat.NewEncoder(mos,
		dat.WithWorkers(cfg.Generate.BlockWorkers),
		dat.WithLogger(logger.Named("encoder")),
		dat.WithBlockObserver(m.ObserveBlock),
	)
	service := terrain.NewService(mos, enc, terrain.Options{
		OutputDir:    cfg.Output.Dir,
		Spacing:      cfg.Output.Spacing,
		Profile:      profile,
		PollInterval: cfg.Generate.PollInterval,
		PollTimeout:  cfg.Generate.PollTimeout,
		Concurrency:  cfg.Generate.Concurrency,
		Logger:       logger.Named("terrain"),
		OnTile:       m.ObserveTile,
	})

	h := handler.NewHandler(service, m, logger.Named("http"), cfg.Server.RetryAfter)

	server := &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        loggingMiddleware(logger, h.Routes()),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			health := service.GetHealth()
			logger.Info("METRICS",
				zap.String("status", health.Status),
				zap.Int("memory_mb", health.MemoryMB),
				zap.Int("goroutines", health.Goroutines),
				zap.Float64("uptime_s", health.UptimeSeconds),
				zap.Uint64("requests", health.TotalRequests),
				zap.Uint64("tile_requests", health.TileRequests))
		}
	}()

	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(ctx); err != nil {
			logger.Fatal("Could not gracefully shutdown the server", zap.Error(err))
		}
		close(done)
	}()

	logger.Info("Server is ready to handle requests",
		zap.String("addr", server.Addr),
		zap.String("dataset", ds.Name),
		zap.String("source_dir", cfg.Source.Dir),
		zap.String("output_dir", cfg.Output.Dir),
		zap.String("profile", profile.Name),
		zap.Int("spacing", cfg.Output.Spacing),
		zap.Int("gomaxprocs", runtime.GOMAXPROCS(0)))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Could not listen", zap.String("addr", server.Addr), zap.Error(err))
	}

	<-done
	logger.Info("Server stopped")
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000.0),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("bytes", ww.BytesWritten()))
	})
}
