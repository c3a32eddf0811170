package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/giftgrove/internal/adminapi"
	"github.com/MarkoPoloResearchLab/giftgrove/internal/broker"
	"github.com/MarkoPoloResearchLab/giftgrove/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/giftgrove/internal/locks"
	"github.com/MarkoPoloResearchLab/giftgrove/internal/logging"
	"github.com/MarkoPoloResearchLab/giftgrove/internal/scheduler"
	"github.com/MarkoPoloResearchLab/giftgrove/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/giftgrove/pkg/gifting"
	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL        = "database-url"
	flagListenAddr         = "listen-addr"
	flagGRPCListenAddr     = "grpc-listen-addr"
	flagAMQPURL            = "amqp-url"
	flagRedisAddr          = "redis-addr"
	flagClaimLeaseTTL      = "claim-lease-ttl"
	flagAutoProcessTimeout = "auto-process-timeout"
	flagReservationRetries = "reservation-retries"
	flagSweepSchedule      = "sweep-schedule"
	flagCardPollSchedule   = "card-poll-schedule"
	flagAllowedOrigins     = "allowed-origins"
	flagJWTSigningKey      = "jwt-signing-key"
	flagJWTIssuer          = "jwt-issuer"
	flagJWTCookieName      = "jwt-cookie-name"
	flagCallbackToken      = "callback-token"
	flagListCacheSize      = "list-cache-size"
	envPrefix              = "GIFTD"
	sqlitePragmas          = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	redisPingTimeout       = 5 * time.Second
)

var configFlags = []string{
	flagDatabaseURL, flagListenAddr, flagGRPCListenAddr, flagAMQPURL, flagRedisAddr,
	flagClaimLeaseTTL, flagAutoProcessTimeout, flagReservationRetries, flagSweepSchedule,
	flagCardPollSchedule, flagAllowedOrigins, flagJWTSigningKey, flagJWTIssuer,
	flagJWTCookieName, flagCallbackToken, flagListCacheSize,
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "giftd: ignoring .env: %v\n", err)
	}
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "giftd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "giftd",
		Short:         "Gift card request lifecycle and tree reservation server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL URL or SQLite path")
	cmd.Flags().String(flagListenAddr, ":8080", "admin HTTP listen address")
	cmd.Flags().String(flagGRPCListenAddr, defaultGRPCListenAddr, "gRPC listen address")
	cmd.Flags().String(flagAMQPURL, "", "RabbitMQ URL for card and email events (empty logs events only)")
	cmd.Flags().String(flagRedisAddr, "", "Redis address or redis:// URL for auto-process locks (empty uses an in-process lock)")
	cmd.Flags().Duration(flagClaimLeaseTTL, 0, "claim lease duration (0 never expires)")
	cmd.Flags().Duration(flagAutoProcessTimeout, defaultAutoProcessTimeout, "auto-process reservation and assignment budget")
	cmd.Flags().Int(flagReservationRetries, defaultReservationRetries, "retries after losing trees to a concurrent reservation")
	cmd.Flags().String(flagSweepSchedule, scheduler.DefaultSweepSchedule, "cron spec for the expired claim sweep (empty disables)")
	cmd.Flags().String(flagCardPollSchedule, scheduler.DefaultCardPollSchedule, "cron spec for the card job poll (empty disables)")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "TAuth JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, "", "expected JWT issuer")
	cmd.Flags().String(flagJWTCookieName, "", "JWT cookie name")
	cmd.Flags().String(flagCallbackToken, "", "shared token for collaborator callbacks (empty disables callbacks)")
	cmd.Flags().Int(flagListCacheSize, 0, "number of cached request listings")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range configFlags {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = v.GetString(flagDatabaseURL)
	cfg.GRPCListenAddr = v.GetString(flagGRPCListenAddr)
	cfg.AMQPURL = v.GetString(flagAMQPURL)
	cfg.RedisAddr = v.GetString(flagRedisAddr)
	cfg.ClaimLeaseTTL = v.GetDuration(flagClaimLeaseTTL)
	cfg.AutoProcessTimeout = v.GetDuration(flagAutoProcessTimeout)
	cfg.ReservationRetries = v.GetInt(flagReservationRetries)
	cfg.SweepSchedule = v.GetString(flagSweepSchedule)
	cfg.CardPollSchedule = v.GetString(flagCardPollSchedule)
	cfg.Admin = adminapi.Config{
		ListenAddr:        v.GetString(flagListenAddr),
		AllowedOrigins:    adminapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		SessionSigningKey: v.GetString(flagJWTSigningKey),
		SessionIssuer:     v.GetString(flagJWTIssuer),
		SessionCookieName: v.GetString(flagJWTCookieName),
		CallbackToken:     v.GetString(flagCallbackToken),
		ListCacheSize:     v.GetInt(flagListCacheSize),
	}
	return cfg.Validate()
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	publisher, err := newPublisher(cfg.AMQPURL, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	options := []gifting.ServiceOption{
		gifting.WithOperationLogger(logging.NewZapOperationLogger(logger)),
		gifting.WithCardQueue(broker.NewCardQueue(publisher, broker.DefaultExchange)),
		gifting.WithEmailSender(broker.NewEmailSender(publisher, broker.DefaultExchange)),
		gifting.WithClaimLeaseTTL(cfg.ClaimLeaseTTL),
		gifting.WithAutoProcessTimeout(cfg.AutoProcessTimeout),
		gifting.WithReservationRetries(cfg.ReservationRetries),
	}
	redisClient, err := newRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		options = append(options,
			gifting.WithLocker(locks.NewRedisLocker(redisClient)),
			gifting.WithCardStatusSource(locks.NewRedisCardStatus(redisClient)))
	} else {
		logger.Warn("redis not configured; auto-process locks are local to this process")
		options = append(options, gifting.WithLocker(locks.NewLocalLocker()))
		cfg.CardPollSchedule = ""
	}

	store := gormstore.New(gormDB)
	clock := func() int64 { return time.Now().UTC().Unix() }
	giftingService, err := gifting.NewService(store, clock, options...)
	if err != nil {
		return fmt.Errorf("gifting service init: %w", err)
	}

	jobs := scheduler.New(giftingService, logger.Named("scheduler"), cfg.schedulerConfig())
	if err := jobs.Start(ctx); err != nil {
		return err
	}
	defer func() { <-jobs.Stop().Done() }()

	lis, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	grpcServer := grpc.NewServer()
	grpcserver.RegisterGiftingServer(grpcServer, grpcserver.NewGiftingServiceServer(giftingService))
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	storeHealth := grpcserver.NewStoreHealth(grpcServer, sqlDB.PingContext, 0, logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		storeHealth.Watch(groupCtx)
		return nil
	})
	group.Go(func() error {
		logger.Info("gRPC server starting", zap.String("listen_addr", cfg.GRPCListenAddr))
		return grpcServer.Serve(lis)
	})
	group.Go(func() error {
		return adminapi.Run(groupCtx, cfg.Admin, giftingService, logger)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown requested")
		grpcServer.GracefulStop()
		return nil
	})
	if err := group.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func newPublisher(amqpURL string, logger *zap.Logger) (broker.Publisher, error) {
	if amqpURL == "" {
		logger.Warn("amqp url not configured; card and email events are only logged")
		return broker.NewLogPublisher(logger), nil
	}
	producer, err := broker.NewProducer(amqpURL, logger.Named("broker"))
	if err != nil {
		return nil, fmt.Errorf("broker init: %w", err)
	}
	return producer, nil
}

func newRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	options := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		options = parsed
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var (
		db  *gorm.DB
		cfg *gorm.Config
	)
	cfg = &gorm.Config{TranslateError: true}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqliteDSN(sqlitePath)), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "giftgrove.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// sqliteDSN adds a busy timeout so concurrent reservations wait for the writer instead of failing.
func sqliteDSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + sqlitePragmas
}

func prepareSchema(db *gorm.DB, driver string) error {
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate %s: %w", driver, err)
	}
	return nil
}
