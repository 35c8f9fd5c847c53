// Command ledgerd serves a single fungible-token ledger over HTTP/JSON and
// gRPC, checkpointing its state to the configured store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/tokenledger/internal/events"
	"github.com/jmerrifield20/tokenledger/internal/handler"
	"github.com/jmerrifield20/tokenledger/internal/health"
	"github.com/jmerrifield20/tokenledger/internal/identity"
	"github.com/jmerrifield20/tokenledger/internal/ledger"
	"github.com/jmerrifield20/tokenledger/internal/metrics"
	"github.com/jmerrifield20/tokenledger/internal/rpc"
	"github.com/jmerrifield20/tokenledger/internal/service"
	"github.com/jmerrifield20/tokenledger/internal/store"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("ledgerd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	if err := loadConfig(logger); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := health.New(health.Config{
		CheckInterval: time.Duration(viper.GetInt("health.check_interval_seconds")) * time.Second,
	}, logger)
	checker.SetMetricsRecord(metrics.RecordHealthCheck)

	// ── Checkpoint store ─────────────────────────────────────────────────────
	st, err := openStore(ctx, checker, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	host := ledger.NewHost()
	cp := store.NewCheckpointer(host, st,
		time.Duration(viper.GetInt("store.checkpoint_interval_seconds"))*time.Second, logger)

	restored, err := cp.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	if !restored {
		if err := bootstrap(host, logger); err != nil {
			return err
		}
	}
	metrics.ObserveLedger(host.Metadata())

	// ── Identity ─────────────────────────────────────────────────────────────
	key, err := identity.LoadOrCreateKey(viper.GetString("auth.key_file"))
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	httpPort := viper.GetInt("server.http_port")
	issuerURL := viper.GetString("auth.issuer")
	if issuerURL == "" {
		issuerURL = fmt.Sprintf("http://localhost:%d", httpPort)
	}
	tokens := identity.NewCallerTokenIssuer(key, issuerURL,
		time.Duration(viper.GetInt("auth.token_ttl_seconds"))*time.Second)

	creds, err := principalsFromConfig(viper.GetViper())
	if err != nil {
		return err
	}
	keyring, err := identity.NewKeyring(creds)
	if err != nil {
		return fmt.Errorf("auth.principals: %w", err)
	}
	if keyring.Len() == 0 {
		logger.Warn("no principals configured; POST /api/v1/auth/token will reject every login")
	}

	// ── Events ───────────────────────────────────────────────────────────────
	hub := events.NewHub(viper.GetInt("events.stream_buffer"), logger)
	publishers := events.Multi{hub}

	var dispatcher *events.Dispatcher
	if brokers := viper.GetStringSlice("events.kafka_brokers"); len(brokers) > 0 {
		kafka := events.NewKafkaPublisher(brokers, viper.GetString("events.kafka_topic"), logger)
		defer kafka.Close()
		dispatcher = events.NewDispatcher(kafka, viper.GetInt("events.queue_size"), 5*time.Second, logger)
		dispatcher.SetResultFunc(func(_ events.Event, err error) { metrics.RecordEventDelivery(err == nil) })
		dispatcher.Start()
		publishers = append(publishers, dispatcher)
		logger.Info("kafka event publisher configured",
			zap.Strings("brokers", brokers),
			zap.String("topic", viper.GetString("events.kafka_topic")),
		)
	} else {
		publishers = append(publishers, events.NewNoopPublisher(logger))
		logger.Info("event publisher: noop (set events.kafka_brokers to enable Kafka)")
	}

	// ── Service ──────────────────────────────────────────────────────────────
	svc := service.NewTokenService(host, logger)
	svc.SetPublisher(publishers)
	svc.SetNotifier(cp)

	// Advisory: an uninitialized ledger is waiting for POST /ledger/init, not broken.
	checker.RegisterAdvisory("ledger", func(context.Context) error {
		if !host.Initialized() {
			return ledger.ErrNotInitialized
		}
		return nil
	})

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	rps := viper.GetInt("server.rate_limit_rps")
	router.Use(handler.RateLimiter(ctx, rps, rps*2))
	router.Use(metrics.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", checker.Handler())
	router.GET("/metrics", metrics.Handler())

	v1 := router.Group("/api/v1")
	handler.NewAuthHandler(keyring, tokens, logger).Register(v1)
	handler.NewLedgerHandler(svc, tokens, logger).Register(v1)
	handler.NewStreamHandler(hub, svc, logger).Register(v1)

	// ── gRPC server ──────────────────────────────────────────────────────────
	grpcPort := viper.GetInt("server.grpc_port")
	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		return fmt.Errorf("gRPC listen on :%d: %w", grpcPort, err)
	}

	rpcSrv := rpc.NewServer(svc, tokens, logger)
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(rpc.LoggingInterceptor(logger), rpcSrv.AuthInterceptor()),
	)
	rpcSrv.Register(grpcServer)

	healthSvc := grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthSvc)
	healthSvc.SetServingStatus(rpc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	// ── Background workers ───────────────────────────────────────────────────
	cpDone := make(chan struct{})
	go func() {
		defer close(cpDone)
		cp.Run(ctx)
	}()
	go checker.Start(ctx)

	// ── Start servers ────────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("ledgerd HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("ledgerd gRPC listening", zap.Int("port", grpcPort))
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Fatal("gRPC serve error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down ledgerd...")
	healthSvc.Shutdown()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()

	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	// Stop workers; the checkpointer writes a final snapshot on its way out.
	cancel()
	<-cpDone

	if dispatcher != nil {
		if err := dispatcher.Close(shutCtx); err != nil {
			logger.Warn("event queue not fully drained", zap.Error(err))
		}
	}

	logger.Info("ledgerd stopped", zap.Uint64("version", host.Version()))
	return nil
}

// openStore builds the checkpoint store selected by store.driver.
func openStore(ctx context.Context, checker *health.Checker, logger *zap.Logger) (store.Store, error) {
	switch driver := viper.GetString("store.driver"); driver {
	case "memory":
		logger.Warn("store driver: memory; ledger state is lost on restart")
		return store.NewMemoryStore(), nil

	case "postgres":
		db, err := pgxpool.New(ctx, viper.GetString("database.url"))
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		pg := store.NewPostgresStore(db, logger)
		checker.Register("postgres", pg.Ping)
		return &poolClosingStore{PostgresStore: pg, pool: db}, nil

	case "sqlite":
		path := viper.GetString("store.sqlite_path")
		sq, err := store.NewSQLiteStore(path, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("store driver: sqlite", zap.String("path", path))
		checker.Register("sqlite", sq.Ping)
		return sq, nil

	default:
		return nil, fmt.Errorf("unknown store.driver %q (want memory, postgres or sqlite)", driver)
	}
}

// poolClosingStore closes the pgx pool together with the store.
type poolClosingStore struct {
	*store.PostgresStore
	pool *pgxpool.Pool
}

func (s *poolClosingStore) Close() error {
	s.pool.Close()
	return nil
}

// bootstrap initializes a fresh ledger from ledger.bootstrap.* when enabled.
func bootstrap(host *ledger.Host, logger *zap.Logger) error {
	if !viper.GetBool("ledger.bootstrap.enabled") {
		logger.Info("ledger awaiting initialization via POST /api/v1/ledger/init")
		return nil
	}
	decimals := viper.GetUint("ledger.bootstrap.decimals")
	if decimals > 255 {
		return fmt.Errorf("ledger.bootstrap.decimals %d out of range", decimals)
	}
	owner := ledger.Principal(viper.GetString("ledger.bootstrap.owner"))
	args := ledger.InitArgs{
		Symbol:      viper.GetString("ledger.bootstrap.symbol"),
		Name:        viper.GetString("ledger.bootstrap.name"),
		TotalSupply: viper.GetUint64("ledger.bootstrap.total_supply"),
		Decimals:    uint8(decimals),
	}
	if err := host.Initialize(owner, args); err != nil {
		return fmt.Errorf("bootstrap ledger: %w", err)
	}
	logger.Info("ledger bootstrapped from config",
		zap.String("owner", owner.String()),
		zap.String("symbol", args.Symbol),
		zap.Uint64("total_supply", args.TotalSupply),
	)
	return nil
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
