package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envErr := LoadEnv()
	cfg, err := LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	logger, err := setupLogger(cfg.Logger)
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	defer func() { _ = logger.Sync() }()
	if envErr != nil {
		zap.S().Warnf("%v, relying on system environment variables", envErr)
	}

	if cfg.DevMode {
		zap.S().Info("DEV_MODE=true: running with the in-memory store")
	}
	if cfg.Admin.Token == "" {
		zap.S().Warn("ADMIN_TOKEN is not set: every admin request will be rejected")
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	host, err := openAssetHost(cfg)
	if err != nil {
		return err
	}
	relay, err := NewMediaRelay(host, cfg.Upload)
	if err != nil {
		return err
	}

	srv := NewServer(cfg.Web, store, relay,
		NewCredentialVerifier(cfg.Admin.Token),
		NewCredentialVerifier(cfg.Admin.Password))

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		zap.S().Info("starting lambda handler")
		lambda.Start(newLambdaHandler(srv))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx, net.JoinHostPort(cfg.Web.Host, strconv.Itoa(cfg.Web.Port)))
}

// openStore builds the configured store, wrapped with the Redis list cache
// when REDIS_ADDR is set.
func openStore(cfg *AppConfig) (Store, func(), error) {
	var (
		store   Store
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Database.Type {
	case "memory":
		store = newMemoryStore()
	default:
		db, err := openDatabase(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() {
			_ = db.Close()
			zap.S().Info("database connection closed")
		})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ensureTable(ctx, db, cfg.Database.Type); err != nil {
			closeAll()
			return nil, nil, err
		}
		store = newSQLStore(db, cfg.Database.Type)
	}

	if cfg.Redis.Addr != "" {
		client, err := newRedisClient(cfg.Redis)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() {
			_ = client.Close()
			zap.S().Info("redis connection closed")
		})
		store = newCachedStore(store, newRedisListCache(client, cfg.Redis.TTL))
	}
	return store, closeAll, nil
}

func openAssetHost(cfg *AppConfig) (assetHost, error) {
	if cfg.Cloudinary.Configured() {
		host, err := newCloudinaryHost(cfg.Cloudinary)
		if err != nil {
			return nil, err
		}
		return host, nil
	}
	if cfg.DevMode {
		zap.S().Info("cloudinary not configured: uploads resolve to placeholder images")
		return placeholderHost{}, nil
	}
	return nil, errors.New("cloudinary is not configured")
}
