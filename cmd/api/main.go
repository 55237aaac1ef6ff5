package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"norvia-broker/internal/accounts"
	"norvia-broker/internal/admin"
	"norvia-broker/internal/auth"
	"norvia-broker/internal/config"
	"norvia-broker/internal/copytrading"
	"norvia-broker/internal/db"
	"norvia-broker/internal/deposits"
	"norvia-broker/internal/events"
	"norvia-broker/internal/health"
	"norvia-broker/internal/httpserver"
	"norvia-broker/internal/ledger"
	"norvia-broker/internal/logger"
	"norvia-broker/internal/marketdata"
	"norvia-broker/internal/notify"
	"norvia-broker/internal/paymentmethods"
	"norvia-broker/internal/plans"
	"norvia-broker/internal/positions"
	"norvia-broker/internal/ratelimit"
	"norvia-broker/internal/verification"
	"norvia-broker/internal/withdrawals"
	"norvia-broker/internal/worker"

	"github.com/redis/go-redis/v9"
)

func main() {
	startedAt := time.Now().UTC()
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("config", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect", err)
	}
	defer pool.Close()
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatal("db migrate", err)
		}
	}

	var rdb *redis.Client
	var limiter ratelimit.Limiter
	memLimiter := ratelimit.NewMemory(cfg.RateLimitPerMinute, time.Minute)
	limiter = memLimiter
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Error("redis unreachable, rate limits stay per-instance", err)
		} else {
			limiter = ratelimit.NewRedis(rdb, cfg.RateLimitPerMinute, time.Minute, "api")
		}
		cancel()
	}

	bus := events.NewBus()
	recorder := notify.NewRecorder(pool)
	sinks := notify.Multi{recorder}
	if tg := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramAdminChatID); tg.Enabled() {
		sinks = append(sinks, tg)
	}
	notifier := notify.NewDispatcher(sinks, log)

	journal := ledger.NewService(pool)
	accountSvc := accounts.NewService(pool, journal)
	authSvc := auth.NewService(pool, accountSvc, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	methods := paymentmethods.NewService(pool)
	if err := methods.SeedDefaults(ctx); err != nil {
		log.Fatal("seed payment methods", err)
	}
	prices := marketdata.NewTickerClient(cfg.PriceFeedURL, cfg.PriceFeedTimeout)
	positionSvc := positions.NewService(pool, accountSvc, prices, bus, notifier, log)
	depositSvc := deposits.NewService(pool, accountSvc, methods, bus, notifier, log, cfg.DepositTTL)
	withdrawalSvc := withdrawals.NewService(pool, accountSvc, methods, bus, notifier, log, cfg.WithdrawalTTL)
	copySvc := copytrading.NewService(pool, accountSvc, bus, notifier, log)
	verificationSvc := verification.NewService(pool, bus, notifier)
	planSvc := plans.NewService(pool, accountSvc, depositSvc, log)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Auth:           auth.NewHandler(authSvc),
		Accounts:       accounts.NewHandler(accountSvc),
		Positions:      positions.NewHandler(positionSvc),
		Deposits:       deposits.NewHandler(depositSvc),
		Withdrawals:    withdrawals.NewHandler(withdrawalSvc),
		PaymentMethods: paymentmethods.NewHandler(methods),
		Copy:           copytrading.NewHandler(copySvc),
		Plans:          plans.NewHandler(planSvc),
		Verification:   verification.NewHandler(verificationSvc),
		Notifications:  notify.NewHandler(recorder),
		Ledger:         ledger.NewHandler(journal),
		Admin:          admin.NewHandler(pool),
		Health:         health.NewHandler(pool, rdb, startedAt),
		WS:             httpserver.NewWSHandler(bus, authSvc, cfg.WebSocketOrigin, log),
		Tokens:         authSvc,
		Limiter:        limiter,
		CORSOrigin:     cfg.WebSocketOrigin,
		Log:            log,
	})

	var wg sync.WaitGroup
	jobs := []worker.Job{
		positions.NewSweeper(positionSvc, cfg.SweepBatch),
		positions.NewMarkRefresher(positionSvc),
		deposits.NewExpirer(depositSvc, cfg.SweepBatch),
		withdrawals.NewExpirer(withdrawalSvc, cfg.SweepBatch),
	}
	for _, job := range jobs {
		wg.Add(1)
		go func(job worker.Job) {
			defer wg.Done()
			worker.Run(ctx, log, cfg.SweepInterval, job)
		}(job)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		memLimiter.RunPruner(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown", err)
		}
	}()

	log.With("addr", cfg.HTTPAddr).With("mode", cfg.AppMode).Info("server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("http server", err)
	}
	wg.Wait()
	log.Info("stopped")
}
