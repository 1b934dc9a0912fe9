// Command server wires every component (C1-C9) into one HTTP process,
// following the teacher's apps/rag-loader/cmd/loader/main.go shape: load
// config, connect backends, construct the service graph, serve, and shut
// down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/devmesh/retrieval-orchestrator/internal/agent"
	"github.com/devmesh/retrieval-orchestrator/internal/api"
	"github.com/devmesh/retrieval-orchestrator/internal/authgate"
	"github.com/devmesh/retrieval-orchestrator/internal/collab"
	"github.com/devmesh/retrieval-orchestrator/internal/config"
	"github.com/devmesh/retrieval-orchestrator/internal/ess"
	"github.com/devmesh/retrieval-orchestrator/internal/graphstore"
	"github.com/devmesh/retrieval-orchestrator/internal/ingestion"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
	"github.com/devmesh/retrieval-orchestrator/internal/orchestrator"
	"github.com/devmesh/retrieval-orchestrator/internal/tenant"
	"github.com/devmesh/retrieval-orchestrator/internal/vectorstore"
)

func main() {
	logger := obs.NewLogger("retrieval-orchestrator", obs.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger = obs.NewLogger("retrieval-orchestrator", obs.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	db, err := sqlx.Connect("pgx", cfg.VectorDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxConnections)
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	tenants := tenant.New(db, logger)
	vectors := vectorstore.New(db, logger)
	graph := graphstore.New(cfg.GraphURI, &http.Client{Timeout: 30 * time.Second}, logger)

	tokens := authgate.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())
	sessions := authgate.NewSessionStore(rdb, logger, cfg.RefreshTokenTTL())
	limiter := authgate.NewRateLimiter(rdb, logger, cfg.RateLimitN, cfg.RateLimitM, cfg.RateLimitM)
	gate := authgate.NewGate(tokens, sessions, limiter, cfg.RefreshTokenTTL(), logger)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("aws config: %v", err)
	}
	bedrockClient := bedrockruntime.NewFromConfig(awsCfg)
	embedder := collab.NewBedrockEmbedder(bedrockClient, cfg.EmbedModel, cfg.EmbedDim)
	llm := collab.NewBedrockLLM(bedrockClient, cfg.LLMModel, 1024)

	var essClient *ess.Client
	var essBindings *ess.BindingCache
	var coordOpts []ingestion.Option
	if cfg.ESSBaseURL != "" {
		essClient = ess.NewClient(ess.Config{
			BaseURL:    cfg.ESSBaseURL,
			APIKey:     cfg.ESSAPIKey,
			Timeout:    cfg.ESSTimeout,
			MaxRetries: 3,
		}, logger)
		essBindings = ess.NewBindingCache(1024)
		coordOpts = append(coordOpts, ingestion.WithESS(essClient, essBindings))

		if err := essClient.Reachable(ctx); err != nil {
			logger.Warn("ess backend not reachable at startup", map[string]any{"error": err.Error()})
		}
	}

	chunker := ingestion.NewChunker(ingestion.DefaultChunkParams())
	coordinator := ingestion.New(tenants, vectors, graph, embedder, chunker, cfg.EmbedBatchWorkers, logger, coordOpts...)

	orch := orchestrator.New(tenants, vectors, graph, essClient, embedder, logger)

	registry := agent.NewRegistry(agent.BuiltinTools()...)
	services := &agent.Services{
		Vector:       vectors,
		Graph:        graph,
		ESS:          essClient,
		Orchestrator: orch,
		Embedder:     embedder,
		LLM:          llm,
	}
	runtime := agent.New(registry, services, logger)

	router := api.NewRouter(api.Deps{
		Gate:         gate,
		Tenants:      tenants,
		Coordinator:  coordinator,
		Orchestrator: orch,
		Agent:        runtime,
		Logger:       logger,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", map[string]any{"addr": httpServer.Addr})
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", map[string]any{"signal": sig.String()})
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", map[string]any{"error": err.Error()})
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", map[string]any{"error": err.Error()})
	}
}
