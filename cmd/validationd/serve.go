package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"katydid-common-validation/pkg/config"
	"katydid-common-validation/pkg/logger"
	sv "katydid-common-validation/pkg/servervalidation"
	"katydid-common-validation/pkg/servervalidation/handoff"
	"katydid-common-validation/pkg/servervalidation/httpapi"
)

const shutdownTimeout = 10 * time.Second

// newGormStore 创建数据库交接存储（测试中替换）
var newGormStore = handoff.NewGormStore

func newServeCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (yaml)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	gin.SetMode(cfg.Server.Mode)

	sched := newScheduler(ctx, cfg.Session, log)
	registry := sv.NewSessionRegistry(log, sv.WithScheduler(sched))
	defer registry.Close()
	if err := registry.SetMaxSessions(cfg.Session.MaxSessions); err != nil {
		return err
	}

	opts := []httpapi.Option{}
	if cfg.Server.JWTSecret != "" {
		opts = append(opts, httpapi.WithJWTSecret(cfg.Server.JWTSecret))
	}
	store, closeStore, err := newHandoffStore(ctx, cfg.Handoff, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if store != nil {
		opts = append(opts, httpapi.WithHandoffStore(store, cfg.Handoff.TTL))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewRouter(httpapi.New(registry, log, opts...)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("validationd listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("dispatch", cfg.Session.Dispatch),
			zap.String("handoff", cfg.Handoff.Driver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info("validationd shutting down")
	return srv.Shutdown(shutdownCtx)
}

// newScheduler manual 模式下由定时器批量执行派发
func newScheduler(ctx context.Context, cfg config.SessionConfig, log *zap.Logger) sv.Scheduler {
	if cfg.Dispatch != config.DispatchManual {
		return sv.GoScheduler{}
	}

	sched := sv.NewManualScheduler()
	go func() {
		ticker := time.NewTicker(cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := sched.RunPending(); n > 0 {
					log.Debug("flushed dispatch passes", zap.Int("count", n))
				}
			}
		}
	}()
	return sched
}

// newHandoffStore 按驱动创建交接存储，driver 为 none 时返回 nil
func newHandoffStore(ctx context.Context, cfg config.HandoffConfig, log *zap.Logger) (sv.SnapshotStore, func(), error) {
	noop := func() {}

	switch cfg.Driver {
	case config.HandoffRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		return handoff.NewRedisStore(client, cfg.Redis.KeyPrefix), func() { _ = client.Close() }, nil

	case config.HandoffGorm:
		db, err := handoff.OpenGorm(cfg.Gorm.Dialect, cfg.Gorm.DSN)
		if err != nil {
			return nil, noop, err
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		store, err := newGormStore(db)
		if err != nil {
			closeDB()
			return nil, noop, err
		}
		go purgeLoop(ctx, store, cfg.TTL, log)
		return store, closeDB, nil

	default:
		return nil, noop, nil
	}
}

// purgeLoop 定期清理过期快照
func purgeLoop(ctx context.Context, store *handoff.GormStore, ttl time.Duration, log *zap.Logger) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				log.Warn("purge expired snapshots failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("purged expired snapshots", zap.Int64("count", n))
			}
		}
	}
}
