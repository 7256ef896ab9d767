package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"agenda/backend/internal/api/agendav1"
	"agenda/backend/internal/config"
	"agenda/backend/internal/observability/metrics"
	"agenda/backend/internal/service/scheduling"
	"agenda/backend/internal/store"
	"agenda/backend/internal/store/postgres"
	"agenda/backend/internal/store/rediscache"
	grpcTransport "agenda/backend/internal/transport/grpc"
	"agenda/backend/internal/transport/httpapi"
)

const serviceName = "agenda-server"

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Appointment scheduling and conflict resolution engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(catalogCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)
	return log
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gRPC and HTTP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg.LogLevel))
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("log_level", cfg.LogLevel),
		slog.Bool("auth_enabled", cfg.JWTSecret != ""),
	)

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return err
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	catalogRepo := postgres.NewCatalogRepo(db)
	var (
		catalog store.Catalog      = catalogRepo
		configs store.ConfigSource = catalogRepo
	)
	if redisClient := buildRedisClient(ctx, cfg.RedisURL, log); redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		cache := rediscache.New(redisClient, catalogRepo, catalogRepo, cfg.CacheTTL, log)
		catalog, configs = cache, cache
	}

	m := metrics.NewSchedulingMetrics(prometheus.DefaultRegisterer)

	opts := scheduling.DefaultOptions()
	opts.MaxOccurrences = cfg.MaxOccurrences
	opts.EnforceBusinessHours = cfg.EnforceBusinessHours
	opts.MaxDuration = cfg.MaxDuration
	opts.Logger = log
	opts.Metrics = m
	svc := scheduling.NewService(postgres.NewAppointmentRepo(db), catalog, configs, opts)

	interceptors := []grpc.UnaryServerInterceptor{grpcTransport.DefaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout)}
	if cfg.JWTSecret != "" {
		interceptors = append(interceptors, grpcTransport.AuthInterceptor(cfg.JWTSecret, log))
	}
	if cfg.GRPCRateLimit > 0 {
		interceptors = append(interceptors, grpcTransport.NewRateLimiter(cfg.GRPCRateLimit, cfg.GRPCRateBurst, log).Interceptor())
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	agendav1.RegisterSchedulingServiceServer(grpcServer, grpcTransport.NewSchedulingServer(svc, log))

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Config{
			Queries: svc,
			Ping:    db.PingContext,
			Metrics:   promhttp.Handler(),
			JWTSecret: cfg.JWTSecret,
			Logger:    log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("servers started", slog.String("grpc_addr", cfg.GRPCAddr()), slog.String("http_addr", cfg.HTTPAddr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			shutdown(log, grpcServer, httpServer, cfg.ShutdownTimeout)
			return err
		}
	}
	shutdown(log, grpcServer, httpServer, cfg.ShutdownTimeout)
	return nil
}

// buildRedisClient returns nil when the cache is disabled or Redis is unreachable; the
// service then reads the catalog straight from Postgres.
func buildRedisClient(ctx context.Context, redisURL string, log *slog.Logger) *redis.Client {
	if redisURL == "" {
		log.Info("catalog cache disabled")
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn("invalid redis url, catalog cache disabled", slog.Any("err", err))
		return nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, catalog cache disabled", slog.Any("err", err), slog.String("redis_addr", opts.Addr))
		_ = client.Close()
		return nil
	}
	log.Info("catalog cache enabled", slog.String("redis_addr", opts.Addr))
	return client
}

func shutdown(log *slog.Logger, s *grpc.Server, h *http.Server, timeout time.Duration) {
	log.Info("shutting down servers", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := h.Shutdown(ctx); err != nil {
		log.Warn("http shutdown failed", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
