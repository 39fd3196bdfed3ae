package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netmirror/internal/config"
	"netmirror/internal/handler"
	"netmirror/internal/hub"
	"netmirror/internal/logging"
	"netmirror/internal/repository/sqlite"
	"netmirror/internal/service"
	"netmirror/internal/sidecache"
	"netmirror/internal/supervisor"
	"netmirror/internal/upstream"
	"netmirror/internal/watcher"
)

func main() {
	// Command line flags override the config file and environment
	addr := flag.String("addr", "", "HTTP listen address (default from config, :8000)")
	dbPath := flag.String("db", "", "SQLite database path (default from config, ./network.db)")
	configPath := flag.String("config", "", "Path to config file")
	printConfig := flag.Bool("print-config", false, "Print the effective config as YAML and exit")
	flag.Parse()

	var (
		cfg       *config.Config
		foundPath string
		err       error
	)
	if *configPath != "" {
		cfg, foundPath, err = config.LoadFromPath(*configPath)
	} else {
		cfg, foundPath, err = config.Load()
	}
	if err != nil {
		logging.Fatal().Err(err).Str("path", foundPath).Msg("Failed to load config")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *printConfig {
		if err := cfg.WriteYAML(os.Stdout); err != nil {
			logging.Fatal().Err(err).Msg("Failed to print config")
		}
		return
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logging.Info().Str("config", cfg.Summary()).Str("path", foundPath).Msg("Starting netmirror server")

	// Initialize SQLite repository
	repo, err := sqlite.New(cfg.Database.Path, sqlite.WithBusyTimeout(cfg.Database.BusyTimeout.Duration()))
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open database")
	}
	defer repo.Close()
	logging.Info().Str("path", cfg.Database.Path).Msg("Database opened")

	// One bus for the whole process; subscriptions are made here only
	eventBus := service.NewEventBus()

	live := hub.New(hub.Options{
		SendBuffer:  cfg.Live.SendBuffer,
		CheckOrigin: originChecker(cfg),
	})
	service.BridgeNotifications(eventBus, live)

	client := upstream.New(upstream.Options{
		BaseURL:            cfg.Upstream.URL,
		Token:              cfg.Upstream.Token,
		AuthScheme:         cfg.Upstream.AuthScheme,
		Timeout:            cfg.Upstream.Timeout.Duration(),
		InsecureSkipVerify: cfg.Upstream.InsecureSkipVerify,
		Paginator:          paginatorFor(cfg.Upstream),
	})

	// Initialize services
	reconcileSvc := service.NewReconcileService(repo, client, eventBus, service.CommitMode(cfg.Sync.CommitMode))
	regionSvc := service.NewRegionService(repo, eventBus)
	positionSvc := service.NewPositionService(repo, eventBus, sidecache.New(cfg.PositionCache.Path))
	inventorySvc := service.NewInventoryService(repo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if n, err := positionSvc.ImportCache(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to import position cache")
	} else if n > 0 {
		logging.Info().Int("positions", n).Msg("Imported positions from side-cache")
	}

	router := handler.NewRouter(handler.RouterConfig{
		Inventory:      handler.NewInventoryHandler(inventorySvc, regionSvc, positionSvc, reconcileSvc),
		Live:           live,
		AllowedOrigins: cfg.Live.AllowedOrigins,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:      cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:       cfg.Server.IdleTimeout.Duration(),
	}

	tree := supervisor.NewTree(supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
	})
	tree.AddLiveService(supervisor.NewFunc("live-hub", live.Run))
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout.Duration()))

	if cfg.WatchConfig && foundPath != "" {
		tree.AddLiveService(watcher.New(foundPath, watcher.ConfigReloader(foundPath, client)))
	}

	logging.Info().Str("addr", cfg.Server.Addr).Msg("Server listening")
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor tree stopped")
		os.Exit(1)
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		logging.Warn().Int("services", len(unstopped)).Msg("Some services did not stop in time")
	}
	logging.Info().Msg("Server stopped")
}

func paginatorFor(cfg config.UpstreamConfig) upstream.Paginator {
	if cfg.Pagination == config.PaginationFollow {
		return upstream.FollowNext{Limit: cfg.PageLimit}
	}
	return upstream.SinglePage{Limit: cfg.PageLimit}
}

// originChecker returns nil, meaning any origin, unless origins are listed
func originChecker(cfg *config.Config) func(r *http.Request) bool {
	if cfg.AllowsAnyOrigin() {
		return nil
	}
	allowed := make(map[string]bool, len(cfg.Live.AllowedOrigins))
	for _, o := range cfg.Live.AllowedOrigins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		return allowed[r.Header.Get("Origin")]
	}
}
