// codeintel-server is the code intelligence server: it ingests a source
// repository into a hybrid graph + vector + lexical index and serves tool
// calls from coding agents over newline-delimited JSON-RPC on stdio.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeintel/server/internal/architecture"
	"github.com/codeintel/server/internal/config"
	"github.com/codeintel/server/internal/coordination"
	"github.com/codeintel/server/internal/embedding"
	"github.com/codeintel/server/internal/episode"
	"github.com/codeintel/server/internal/graph"
	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/llm"
	"github.com/codeintel/server/internal/logging"
	"github.com/codeintel/server/internal/mcp"
	"github.com/codeintel/server/internal/mcp/tools"
	"github.com/codeintel/server/internal/metrics"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/orchestrator"
	"github.com/codeintel/server/internal/parser"
	"github.com/codeintel/server/internal/retrieval"
	"github.com/codeintel/server/internal/session"
	"github.com/codeintel/server/internal/vector"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "codeintel-server",
		Short: "Code intelligence server for coding agents",
		Long: "Ingests a source repository into a hybrid graph + vector + lexical index\n" +
			"and serves retrieval, coordination, and architecture tools over stdio JSON-RPC.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to config.yaml (default: search .codeintel/, ., ~/.codeintel/)")

	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			result := cfg.Validate(config.ValidationContextAll)
			if result.HasErrors() {
				return fmt.Errorf("%s", result.Error())
			}
			fmt.Println("configuration OK")
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:      logging.ParseLevel(cfg.Logging.Level),
		OutputFile: cfg.Logging.File,
		JSONFormat: cfg.Logging.Format == "json",
	})
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Slog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.RequireNeo4j(); err != nil {
		return err
	}
	graphStore, err := graph.NewNeo4jBackend(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database)
	if err != nil {
		return fmt.Errorf("connecting to graph store: %w", err)
	}
	defer graphStore.Close(ctx)
	log.Info("graph store connected", "uri", cfg.Neo4j.URI)

	// The vector store and transaction records degrade gracefully: without
	// Postgres the server still answers lexical+graph queries.
	var vectorStore vector.Store
	var txs *vector.TransactionStore
	if pg, pgErr := vector.NewPGStore(ctx, vector.Config{
		Host:     cfg.Storage.PostgresHost,
		Port:     cfg.Storage.PostgresPort,
		Database: cfg.Storage.PostgresDB,
		User:     cfg.Storage.PostgresUser,
		Password: cfg.Storage.PostgresPassword,
		SSLMode:  cfg.Storage.PostgresSSLMode,
	}); pgErr != nil {
		log.Warn("vector store unavailable; running without semantic search", "error", pgErr)
	} else {
		vectorStore = pg
		defer pg.Close()
		if ts, tsErr := vector.NewTransactionStore(ctx, postgresDSN(cfg.Storage)); tsErr != nil {
			log.Warn("transaction store unavailable", "error", tsErr)
		} else {
			txs = ts
			defer ts.Close()
		}
		log.Info("vector store connected", "host", cfg.Storage.PostgresHost)
	}

	m := metrics.New()

	indices := index.NewRegistry(cfg.Server.MaxResidentIndices, index.BuildLoader(graphStore.NodesByLabel))

	coord := coordination.New(graphStore, log)
	if cache := coordination.NewSnapshotCache(cfg.Cache.RedisAddr); cache != nil {
		coord.SetSnapshotCache(cache)
		defer cache.Close()
	}

	episodes := episode.New(graphStore, log)

	embedClient, err := llm.NewClient(llm.Config{APIKey: cfg.API.OpenAIKey, BaseURL: cfg.API.EmbeddingURL})
	if err != nil {
		return err
	}
	var limiter *llm.RateLimiter
	if cfg.Cache.RedisAddr != "" {
		if rl, rlErr := llm.NewRateLimiter(cfg.Cache.RedisAddr); rlErr != nil {
			log.Warn("embedding rate limiter disabled", "error", rlErr)
		} else {
			limiter = rl
			defer rl.Close()
		}
	}
	embedder := embedding.New(embedClient, vectorStore, limiter, embedding.Config{BatchSize: cfg.Server.EmbeddingBatchSize}, log)

	orch := orchestrator.New(
		orchestrator.Config{Workers: cfg.Server.BuildWorkers, Timeout: 30 * time.Second},
		graphStore, vectorStore, parser.NewRegistry(), indices, txs, coord, embedder, log,
	)
	orch.SetMetrics(m)

	sessions := session.NewRegistry(indices, func(pc models.ProjectContext) {
		orch.TriggerBuild(pc, orchestrator.ModeIncremental)
	}, cfg.Session.Watch, log)
	defer sessions.Close()

	retriever := retrieval.New(embedder, indices, log)

	rules := func(workspaceRoot string) architecture.Ruleset {
		return architecture.LoadRules(workspaceRoot, cfg.Architecture.RulesFile)
	}

	handler := mcp.NewHandler(sessions, m, log)
	handler.Register(&tools.SetWorkspace{Sessions: sessions})
	handler.Register(&tools.Rebuild{Orchestrator: orch})
	handler.Register(&tools.Health{Graph: graphStore, Vectors: vectorStore, Indices: indices, Orchestrator: orch, Transactions: txs})
	handler.Register(&tools.GetStatistics{Indices: indices})
	handler.Register(&tools.Query{Retriever: retriever, Graph: graphStore})
	handler.Register(&tools.SemanticSearch{Embedder: embedder})
	handler.Register(&tools.CodeExplain{Indices: indices, Graph: graphStore})
	handler.Register(&tools.ImpactAnalyze{Indices: indices})
	handler.Register(&tools.AgentClaim{Coordination: coord, Metrics: m})
	handler.Register(&tools.AgentRelease{Coordination: coord, Metrics: m})
	handler.Register(&tools.AgentStatus{Coordination: coord, Episodes: episodes})
	handler.Register(&tools.CoordinationOverview{Coordination: coord})
	handler.Register(&tools.TaskComplete{Coordination: coord})
	handler.Register(&tools.EpisodeAdd{Episodes: episodes, Metrics: m})
	handler.Register(&tools.EpisodeRecall{Episodes: episodes})
	handler.Register(&tools.EpisodeReflect{Episodes: episodes})
	handler.Register(&tools.ArchValidate{Rules: rules})
	handler.Register(&tools.ArchSuggest{Rules: rules})

	if cfg.Server.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			log.Info("metrics endpoint listening", "addr", addr)
			if serveErr := http.ListenAndServe(addr, mux); serveErr != nil {
				log.Warn("metrics endpoint stopped", "error", serveErr)
			}
		}()
	}

	go graphStore.WatchPoolHealth(ctx, log, time.Minute)
	go claimSweepLoop(ctx, coord, sessions, cfg.Coordination, log)
	if cfg.Episode.ReflectInterval > 0 {
		go reflectLoop(ctx, episodes, sessions, cfg.Episode, log)
	}

	log.Info("server started", "methods", handler.Methods())
	transport := mcp.NewStdioTransport(handler, os.Stdin, os.Stdout)
	return transport.Run(ctx)
}

// postgresDSN resolves the connection string, preferring an explicit DSN
// over the individual parameters.
func postgresDSN(s config.StorageConfig) string {
	if s.PostgresDSN != "" {
		return s.PostgresDSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.PostgresUser, s.PostgresPassword, s.PostgresHost, s.PostgresPort, s.PostgresDB, s.PostgresSSLMode)
}

// reflectLoop periodically synthesizes reflections for every agent that
// left episodes in a bound project. Off by default; enabled via
// episode.reflect_interval.
func reflectLoop(ctx context.Context, episodes *episode.Engine, sessions *session.Registry, cfg config.EpisodeConfig, log *slog.Logger) {
	ticker := time.NewTicker(cfg.ReflectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, key := range sessions.Sessions() {
				pc, ok := sessions.Resolve(key)
				if !ok {
					continue
				}
				recent, err := episodes.Recall(ctx, episode.RecallQuery{ProjectID: pc.ProjectID, Limit: 50})
				if err != nil {
					continue
				}
				agents := make(map[string]bool)
				for _, ep := range recent {
					agents[ep.AgentID] = true
				}
				for agent := range agents {
					if _, err := episodes.Reflect(ctx, episode.ReflectScope{
						ProjectID: pc.ProjectID,
						AgentID:   agent,
						Limit:     cfg.ReflectLimit,
					}); err != nil {
						log.Warn("scheduled reflection failed", "project_id", pc.ProjectID, "agent_id", agent, "error", err)
					}
				}
			}
		}
	}
}

// claimSweepLoop periodically expires old claims for every bound project.
func claimSweepLoop(ctx context.Context, coord *coordination.Engine, sessions *session.Registry, cfg config.CoordinationConfig, log *slog.Logger) {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, key := range sessions.Sessions() {
				pc, ok := sessions.Resolve(key)
				if !ok {
					continue
				}
				count, err := coord.ExpireOld(ctx, pc.ProjectID, cfg.ClaimMaxAge)
				if err != nil {
					log.Warn("claim expiry sweep failed", "project_id", pc.ProjectID, "error", err)
					continue
				}
				if count > 0 {
					log.Info("expired stale claims", "project_id", pc.ProjectID, "count", count)
				}
			}
		}
	}
}
