// Command orchestratord is the server binary: it loads Config, constructs
// every store and adapter, registers the subgraph catalogue, and starts
// the WebSocket listener (C10) and the §6.2 HTTP surface (C11/C12) on one
// server. Wiring style follows the teacher's constructor-injection
// pattern (NewStore(client), New(opts)) rather than process-wide
// singletons.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orchestrax/workflow-orchestrator/internal/agent"
	"github.com/orchestrax/workflow-orchestrator/internal/config"
	"github.com/orchestrax/workflow-orchestrator/internal/datascience"
	"github.com/orchestrax/workflow-orchestrator/internal/export"
	"github.com/orchestrax/workflow-orchestrator/internal/files"
	"github.com/orchestrax/workflow-orchestrator/internal/gateway"
	"github.com/orchestrax/workflow-orchestrator/internal/graph"
	"github.com/orchestrax/workflow-orchestrator/internal/httpapi"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
	"github.com/orchestrax/workflow-orchestrator/internal/router"
	"github.com/orchestrax/workflow-orchestrator/internal/sandbox"
	"github.com/orchestrax/workflow-orchestrator/internal/subgraph/echo"
	"github.com/orchestrax/workflow-orchestrator/internal/subgraph/research"
	"github.com/orchestrax/workflow-orchestrator/internal/telemetrylog"
	"github.com/orchestrax/workflow-orchestrator/runtime/agent/model"

	anthropicmodel "github.com/orchestrax/workflow-orchestrator/features/model/anthropic"
	openaimodel "github.com/orchestrax/workflow-orchestrator/features/model/openai"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	log := telemetrylog.New(slog.Default())
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("ORCHESTRATORD_CONFIG"))
	if err != nil {
		fatal(ctx, log, "load config", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: envOr("REDIS_ADDR", "localhost:6379")})
	store, err := kvstore.NewStore(kvstore.NewRedisClient(redisClient))
	if err != nil {
		fatal(ctx, log, "construct kv store", err)
	}

	sandboxConn, err := grpc.NewClient(envOr("SANDBOX_ADDR", "localhost:7000"), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fatal(ctx, log, "dial sandbox service", err)
	}
	sandboxClient := sandbox.NewGRPCClient(sandboxConn)

	var blobs files.BlobStore
	if endpoint := os.Getenv("BLOB_ENDPOINT"); endpoint != "" {
		minioBlobs, err := files.NewMinioBlobStore(ctx,
			endpoint,
			os.Getenv("BLOB_ACCESS_KEY"),
			os.Getenv("BLOB_SECRET_KEY"),
			envOr("BLOB_BUCKET", "orchestrator-files"),
			os.Getenv("BLOB_USE_SSL") == "true",
		)
		if err != nil {
			fatal(ctx, log, "construct blob store", err)
		}
		blobs = minioBlobs
	}

	filesService := &files.Service{Store: store, Blobs: blobs, Indexer: files.ContentIndexer{}}
	exportService := &export.Service{Store: store, Blobs: blobs, Files: filesService}

	modelResolver := buildModelResolver(cfg)

	sandboxFactory := func(userID, conversationID string, csvDocIDs []string) *sandbox.PersistentSandbox {
		loadSeed := func(ctx context.Context, fileID string) (string, []byte, error) {
			file, data, err := filesService.Download(ctx, userID, fileID)
			if err != nil {
				return "", nil, err
			}
			return file.Filename, data, nil
		}
		return sandbox.NewPersistentSandbox(sandboxClient, userID, cfg.SandboxSnapshot, csvDocIDs, loadSeed,
			cfg.MaxResultLength, time.Duration(cfg.DefaultCodeTimeout))
	}

	manager := gateway.NewManager(cfg, store, sandboxFactory)
	handler := &gateway.RequestHandler{
		Manager: manager,
		Store:   store,
		Models:  modelResolver,
		BaseCatalogue: func() router.Catalogue {
			cat := router.Catalogue{}
			researchModel, err := modelResolver(defaultProvider(cfg))
			if err == nil {
				cat[echo.SubgraphName] = echo.New()
				cat[research.SubgraphName] = research.New(researchModel, datascience.NewSearchClient(), nil)
			}
			return cat
		},
		DataScience: func(sbx *sandbox.PersistentSandbox, modelClient model.Client) *graph.Subgraph {
			return datascience.New(modelClient, sbx, datascience.NewSearchClient(), nil)
		},
		NodeTimeout: time.Duration(cfg.NodeTimeout),
	}

	server := &gateway.Server{
		Manager:  manager,
		Handler:  handler,
		Upgrader: gateway.NewUpgrader(nil),
	}

	apiHandler := &httpapi.Handler{
		Files:   filesService,
		Export:  exportService,
		Resolve: resolveUserFromHeader,
	}

	mux := http.NewServeMux()
	apiHandler.Mount(mux)
	mux.HandleFunc("/ws", server.ServeWS(resolveSessionFromQuery))

	sweepCtx, stopSweep := context.WithCancel(ctx)
	go runSweeps(sweepCtx, manager, time.Duration(cfg.SessionTimeout)/4)

	sweeper := &export.RetentionSweeper{Service: exportService}
	go sweeper.Run(sweepCtx)

	httpServer := &http.Server{
		Addr:    envOr("LISTEN_ADDR", ":8080"),
		Handler: mux,
	}

	go func() {
		log.Info(ctx, "orchestratord: listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(ctx, log, "serve", err)
		}
	}()

	waitForShutdown(ctx, log, httpServer, stopSweep)
}

// buildModelResolver maps a request's provider name to a concrete
// model.Client, constructed lazily per provider id from cfg.Providers
// (§6.4: base URLs, headers, and model identifiers are configuration).
func buildModelResolver(cfg config.Config) gateway.ModelResolver {
	clients := make(map[string]model.Client, len(cfg.Providers))
	return func(provider string) (model.Client, error) {
		if client, ok := clients[provider]; ok {
			return client, nil
		}
		providerCfg, ok := cfg.Providers[provider]
		if !ok {
			return nil, fmt.Errorf("orchestratord: unknown provider %q", provider)
		}
		defaultModel := providerCfg.DefaultModelByRole["default"]

		var client model.Client
		var err error
		switch provider {
		case "anthropic":
			client, err = anthropicmodel.NewFromAPIKey(providerCfg.APIKey(), defaultModel)
		case "openai":
			client, err = openaimodel.NewFromAPIKey(providerCfg.APIKey(), defaultModel)
		default:
			return nil, fmt.Errorf("orchestratord: unsupported provider %q", provider)
		}
		if err != nil {
			return nil, fmt.Errorf("orchestratord: construct %s client: %w", provider, err)
		}
		clients[provider] = client
		return client, nil
	}
}

func defaultProvider(cfg config.Config) string {
	for name := range cfg.Providers {
		return name
	}
	return "anthropic"
}

// resolveUserFromHeader trusts an X-User-ID header for the HTTP surface;
// the authentication provider itself is an external collaborator
// (spec.md §1) whose contract this repo doesn't implement.
func resolveUserFromHeader(r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	return userID, userID != ""
}

// resolveSessionFromQuery extracts (user_id, conversation_id) from the
// WebSocket upgrade request's query string, the same trust boundary as
// resolveUserFromHeader.
func resolveSessionFromQuery(r *http.Request) (string, string, bool) {
	userID := r.URL.Query().Get("user_id")
	conversationID := r.URL.Query().Get("conversation_id")
	if userID == "" || conversationID == "" {
		return "", "", false
	}
	return userID, conversationID, true
}

// runSweeps calls Manager.Sweep on an interval until ctx is cancelled,
// reclaiming idle sessions (§4.10.1). interval falls back to one minute
// when SessionTimeout is unset or too small to divide sensibly.
func runSweeps(ctx context.Context, manager *gateway.Manager, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			manager.Sweep(ctx)
		}
	}
}

func waitForShutdown(ctx context.Context, log interface {
	Info(ctx context.Context, msg string, keyvals ...any)
}, httpServer *http.Server, stopSweep context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info(ctx, "orchestratord: shutting down")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(ctx context.Context, log interface {
	Error(ctx context.Context, msg string, keyvals ...any)
}, msg string, err error) {
	log.Error(ctx, "orchestratord: "+msg, "error", err)
	os.Exit(1)
}

var _ = agent.Interceptor(nil) // keep internal/agent imported for the Interceptor type used across gateway wiring
