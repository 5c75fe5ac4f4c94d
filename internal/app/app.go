// Package app wires configuration, infrastructure, and domain handlers
// together and runs the chosen process mode (api or worker).
package app

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/kuberdock/kuberdock/internal/adminnotify"
	"github.com/kuberdock/kuberdock/internal/config"
	"github.com/kuberdock/kuberdock/internal/httpserver"
	"github.com/kuberdock/kuberdock/internal/lock"
	"github.com/kuberdock/kuberdock/internal/platform"
	"github.com/kuberdock/kuberdock/internal/sse"
	"github.com/kuberdock/kuberdock/internal/telemetry"
	"github.com/kuberdock/kuberdock/internal/version"
	"github.com/kuberdock/kuberdock/pkg/catalog"
	"github.com/kuberdock/kuberdock/pkg/firewallports"
	"github.com/kuberdock/kuberdock/pkg/imageprobe"
	"github.com/kuberdock/kuberdock/pkg/ippool"
	"github.com/kuberdock/kuberdock/pkg/k8s"
	"github.com/kuberdock/kuberdock/pkg/pd"
	"github.com/kuberdock/kuberdock/pkg/pd/cephbackend"
	"github.com/kuberdock/kuberdock/pkg/pd/ebsbackend"
	"github.com/kuberdock/kuberdock/pkg/pd/localbackend"
	"github.com/kuberdock/kuberdock/pkg/pod"
	"github.com/kuberdock/kuberdock/pkg/reconciler"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api or worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting kuberdock",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "kuberdock", version.Version)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry()

	kubeClient, err := newKubeClient(cfg)
	if err != nil {
		return fmt.Errorf("building kubernetes client: %w", err)
	}

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, kubeClient)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb, kubeClient)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// newKubeClient builds the Kubernetes API client from the configured
// credentials: a bearer token, or a client certificate/key pair.
func newKubeClient(cfg *config.Config) (*k8s.Client, error) {
	var opts []k8s.Option
	if cfg.KubeToken != "" {
		opts = append(opts, k8s.WithBearerToken(cfg.KubeToken))
	}
	if cfg.KubeClientCert != "" && cfg.KubeClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.KubeClientCert, cfg.KubeClientKey)
		if err != nil {
			return nil, fmt.Errorf("loading kube client cert: %w", err)
		}
		opts = append(opts, k8s.WithClientCert(cert, cfg.KubeInsecure))
	}
	if cfg.KubeCACertPath != "" {
		caPool, err := loadCAPool(cfg.KubeCACertPath)
		if err != nil {
			return nil, fmt.Errorf("loading kube CA bundle: %w", err)
		}
		opts = append(opts, k8s.WithCACertPool(caPool))
	}
	return k8s.New(cfg.KubeAPIURL, cfg.KubeAPIVersion, opts...), nil
}

// loadCAPool reads a PEM-encoded CA bundle for verifying the Kubernetes
// API server's certificate.
func loadCAPool(path string) (*x509.CertPool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, errors.New("no certificates found in CA bundle")
	}
	return pool, nil
}

// buildPDBackends registers every available persistent-disk backend and
// validates that the configured default is among them.
func buildPDBackends(cfg *config.Config, logger *slog.Logger) (*pd.Registry, error) {
	registry := pd.NewRegistry()

	registry.Register(cephbackend.New(cephbackend.Config{
		Monitors: cfg.CephMonitors,
		Pool:     cfg.CephPool,
		User:     cfg.CephUser,
		Keyring:  cfg.CephKeyring,
	}))
	registry.Register(ebsbackend.New(""))
	registry.Register(localbackend.New(cfg.NodeLocalStoragePrefix))

	if _, err := registry.Get(cfg.PDBackend); err != nil {
		return nil, fmt.Errorf("configured PD_BACKEND %q: %w", cfg.PDBackend, err)
	}
	return registry, nil
}

func ipPoolMode(cfg *config.Config) ippool.Mode {
	switch {
	case cfg.AWS:
		return ippool.ModeAWS
	case cfg.FixedIPPools:
		return ippool.ModeFixed
	default:
		return ippool.ModeFloating
	}
}

func runAPI(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	rdb *redis.Client,
	metricsReg *prometheus.Registry,
	kubeClient *k8s.Client,
) error {
	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)

	lockMgr := lock.New(rdb, logger)
	eventHub := sse.New(rdb, logger)

	catalogStore := catalog.NewStore(db)

	pdBackends, err := buildPDBackends(cfg, logger)
	if err != nil {
		return err
	}
	pdStore := pd.NewStore(db)
	pdService := pd.NewService(pdStore, pdBackends, logger, cfg.PDSeparatorUserID, cfg.PersistentDiskMaxSize)
	pdHandler := pd.NewHandler(pdService, logger, cfg.PDBackend)
	pdHandler.Mount(srv.APIRouter)

	ipStore := ippool.NewStore(db)
	ipService := ippool.NewService(ipStore, kubeClient, logger, ipPoolMode(cfg))
	ipHandler := ippool.NewHandler(ipService, logger)
	ipHandler.Mount(srv.APIRouter)

	imageProbe := imageprobe.NewService(db, cfg.DefaultRegistry, logger)

	podStore := pod.NewStore(db)
	podService := pod.NewService(pod.ServiceConfig{
		Store:         podStore,
		Catalog:       catalogStore,
		PD:            pdService,
		IPPool:        ipService,
		ImageProbe:    imageProbe,
		K8s:           kubeClient,
		Lock:          lockMgr,
		Events:        eventHub,
		Logger:        logger,
		InternalUser:  cfg.KuberdockInternalUser,
		MaxKubesPerContainer: cfg.MaxKubesPerContainer,
		PDBackend:       cfg.PDBackend,
		NodeLocalPrefix: cfg.NodeLocalStoragePrefix,
	})
	podHandler := pod.NewHandler(podService, logger)
	podHandler.Mount(srv.APIRouter)

	fwStore := firewallports.NewStore(db)
	fwHandler := firewallports.NewHandler(fwStore, logger)
	fwHandler.Mount(srv.APIRouter)

	sseHandler := sse.NewHandler(eventHub)
	srv.APIRouter.Get("/stream", sseHandler.ServeHTTP)

	var notifier *adminnotify.Notifier
	if cfg.SlackBotToken != "" {
		notifier = adminnotify.New(cfg.SlackBotToken, cfg.SlackAdminChannel, logger, nil)
		logger.Info("admin notifications enabled", "channel", cfg.SlackAdminChannel)
	} else {
		logger.Info("admin notifications disabled (SLACK_BOT_TOKEN not set)")
	}
	_ = notifier

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	rdb *redis.Client,
	kubeClient *k8s.Client,
) error {
	logger.Info("worker started")

	eventHub := sse.New(rdb, logger)
	recon := reconciler.New(reconciler.Config{
		DB:     db,
		Redis:  rdb,
		K8s:    kubeClient,
		Events: eventHub,
		Logger: logger,
	})
	return recon.Run(ctx)
}
