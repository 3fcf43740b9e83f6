package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/ghostkg/internal/api"
	"github.com/nidhogg/ghostkg/internal/cache"
	"github.com/nidhogg/ghostkg/internal/config"
	"github.com/nidhogg/ghostkg/internal/extract"
	"github.com/nidhogg/ghostkg/internal/knowledge"
	"github.com/nidhogg/ghostkg/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting ghostkg...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/ghostkg.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath), zap.String("backend", cfg.Database.Backend))

	// Initialize graph store
	var graph knowledge.GraphStore
	var closeStore func()
	switch cfg.Database.Backend {
	case "memory", "":
		graph = store.NewMemStore(cfg.Logging.StoreContent)
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Database.SQLite.Path, cfg.Logging.StoreContent)
		if err != nil {
			logger.Fatal("sqlite unavailable", zap.Error(err))
		}
		graph = s
		closeStore = func() { s.Close() }
	case "postgres":
		s, err := store.NewPostgresStore(cfg.Database.Postgres.DSN, cfg.Logging.StoreContent, logger)
		if err != nil {
			logger.Fatal("PostgreSQL unavailable", zap.Error(err))
		}
		migrationsDir := cfg.Database.Postgres.MigrationsDir
		if migrationsDir == "" {
			migrationsDir = "migrations"
		}
		if err := s.Migrate(context.Background(), migrationsDir); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
		graph = s
		closeStore = s.Close
	case "neo4j":
		s, err := store.NewNeo4jStore(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, cfg.Logging.StoreContent, logger)
		if err != nil {
			logger.Fatal("Neo4j unavailable", zap.Error(err))
		}
		graph = s
		closeStore = func() { s.Close(context.Background()) }
	default:
		logger.Fatal("unknown database backend", zap.String("backend", cfg.Database.Backend))
	}

	// Initialize result cache
	var resultCache cache.Cache
	var stats api.StatsSource
	if cfg.Cache.Redis.URL != "" {
		shared, err := cache.NewShared(cfg.Cache.Redis.URL, time.Duration(cfg.Cache.Redis.TTLSeconds)*time.Second, logger)
		if err != nil {
			logger.Warn("Redis unavailable, falling back to in-process cache", zap.Error(err))
		} else {
			resultCache = shared
			defer shared.Close()
		}
	}
	if resultCache == nil {
		local := cache.New(cfg.Cache.MaxSize, cfg.Cache.Enabled)
		resultCache = local
		stats = local
	}

	manager := knowledge.NewManager(graph, resultCache, logger)
	if cfg.Extraction.Enabled {
		manager.SetExtractor(extract.NewHeuristic(logger))
		logger.Info("Heuristic extraction enabled")
	}

	// Build HTTP handler
	handler := api.NewHandler(manager, stats, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("ghostkg listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down ghostkg...")
	srv.Shutdown(context.Background())
	if closeStore != nil {
		closeStore()
	}
}
