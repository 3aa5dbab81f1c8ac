// Command agentcored wires every package into a running orchestration
// core, the way examples/orchestrator/main.go assembles a single
// runnable agent from its constituent parts.
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

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/itsneelabh/agentcore/audit"
	"github.com/itsneelabh/agentcore/core"
	"github.com/itsneelabh/agentcore/eventbus"
	"github.com/itsneelabh/agentcore/executor"
	"github.com/itsneelabh/agentcore/oracle"
	"github.com/itsneelabh/agentcore/orchestrator"
	"github.com/itsneelabh/agentcore/permission"
	"github.com/itsneelabh/agentcore/planner"
	"github.com/itsneelabh/agentcore/recovery"
	"github.com/itsneelabh/agentcore/registry"
	"github.com/itsneelabh/agentcore/routing"
	"github.com/itsneelabh/agentcore/taskmanager"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "agentcored:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := setupTracing(ctx, "agentcore", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer tp.Shutdown(context.Background())

	logger := core.NewJSONLogger()
	domainCfg := core.DefaultConfig()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parsing REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis at %s: %w", cfg.RedisURL, err)
		}
		defer redisClient.Close()
	}

	recoveryManager := recovery.New(
		recovery.WithFailureThreshold(domainCfg.FailureThreshold),
		recovery.WithLogger(logger),
	)

	var journal eventbus.JournalStore
	if redisClient != nil {
		journal = eventbus.NewRedisJournal(redisClient, "agentcore:events")
	} else {
		journal = eventbus.NewMemoryJournal(1000)
	}
	bus := eventbus.New(
		eventbus.WithJournal(journal),
		eventbus.WithRecoveryRecorder(recoveryManager),
	)

	var auditStore audit.Store
	if redisClient != nil {
		auditStore = audit.NewRedisStore(redisClient, "agentcore:audit")
	} else {
		auditStore = audit.NewMemoryStore()
	}
	auditLog := audit.New(auditStore,
		audit.WithRetention(domainCfg.AuditRetention),
		audit.WithLogger(logger),
	)
	auditLog.StartDailyCleanup()
	defer auditLog.Stop()

	permGate := permission.New(bus, permission.WithLogger(logger))

	// Tool plugins (weather, news, computation, search, memory, ...) are
	// invoked through core.Tool but never implemented here: the core
	// only needs a uniform registry to route and validate against, and
	// ships with none registered.
	toolRegistry := registry.New(logger)

	provider, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building oracle provider: %w", err)
	}
	languageOracle := oracle.New(provider, logger)

	routingClassifier := routing.New(languageOracle, toolRegistry, domainCfg.RoutingCacheTTL,
		routing.WithConfidenceThreshold(domainCfg.RoutingConfidenceThreshold),
		routing.WithLogger(logger),
	)
	defer routingClassifier.Close()

	plan := planner.New(languageOracle, toolRegistry, planner.WithLogger(logger))

	taskManager := taskmanager.New(bus,
		taskmanager.WithMaxConcurrentTasks(domainCfg.MaxConcurrentTasksPerClient),
		taskmanager.WithLogger(logger),
	)

	exec := executor.New(toolRegistry, permGate, bus, auditLog, languageOracle, plan,
		executor.WithMaxRetries(domainCfg.MaxRetries),
		executor.WithStepTimeout(domainCfg.StepTimeout),
		executor.WithLogger(logger),
		executor.WithContextUpdateSource(taskManager),
	)

	monitor := recovery.NewMonitor(recoveryManager, domainCfg.HealthCheckInterval)
	monitor.Start(ctx)
	defer monitor.Stop()

	orch := orchestrator.New(bus, auditLog, permGate, routingClassifier, toolRegistry,
		languageOracle, plan, exec, taskManager, recoveryManager,
		orchestrator.WithMonitor(monitor),
		orchestrator.WithLogger(logger),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/message", messageHandler(orch))
	mux.Handle("/chat/sse", sseHandler(bus, orch))
	mux.Handle("/chat/ws", websocketHandler(bus, orch))
	mux.HandleFunc("/health", healthHandler(recoveryManager))
	mux.HandleFunc("/stats", statsHandler(orch))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: otelhttp.NewHandler(mux, "agentcored"),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("agentcored listening", map[string]interface{}{"port": cfg.Port})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", map[string]interface{}{"error": err.Error()})
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", map[string]interface{}{"error": err.Error()})
	}
	return nil
}
