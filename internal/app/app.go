package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/ipwatch/internal/config"
	"github.com/MrSnakeDoc/ipwatch/internal/fetcher"
	"github.com/MrSnakeDoc/ipwatch/internal/httpserver"
	"github.com/MrSnakeDoc/ipwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ipwatch/internal/logger"
	"github.com/MrSnakeDoc/ipwatch/internal/monitor"
	"github.com/MrSnakeDoc/ipwatch/internal/notify"
	"github.com/MrSnakeDoc/ipwatch/internal/redis"
	"github.com/MrSnakeDoc/ipwatch/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/ipwatch/internal/store/redis"
	"github.com/MrSnakeDoc/ipwatch/internal/telemetry"
	"github.com/MrSnakeDoc/ipwatch/internal/version"
)

// initTracing is swapped in tests.
var initTracing = telemetry.Init

type App struct {
	cfg             *config.Config
	logger          logger.Logger
	server          *httpserver.Server
	redisClient     *goredis.Client
	monitor         *monitor.Monitor
	sampler         *scheduler.Sampler
	dispatcher      *notify.Dispatcher
	shutdownTracing func(context.Context) error
}

func New() (a *App, err error) {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	shutdownTracing, err := initTracing(context.Background(), telemetry.Config{
		ServiceName:    "ipwatch",
		ServiceVersion: version.Version,
		Stdout:         cfg.TraceStdout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		if err != nil {
			_ = shutdownTracing(context.Background())
		}
	}()

	// Change notification sinks, delivered in this order
	sinks := []notify.Notifier{notify.NewLogNotifier(loggerClient.Named("notify"))}

	// Redis is an optional mirror - fail fast only when it is configured
	var redisClient *goredis.Client
	var redisPinger deps.Pinger
	if cfg.RedisEnabled() {
		redisClient, err = redis.New(redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			DB:             cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
		}, loggerClient.Named("redis"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() {
			if err != nil {
				_ = redisClient.Close()
			}
		}()

		store := redisstore.NewStore(redisClient, cfg.RedisPrefix, cfg.HistoryCapacity)
		sinks = append(sinks, store)
		redisPinger = store
		loggerClient.Info("redis mirror enabled", logger.String("prefix", cfg.RedisPrefix))
	} else {
		loggerClient.Info("redis not configured, mirror disabled")
	}

	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramChatID, nil)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
		loggerClient.Info("telegram notifications enabled")
	}

	if cfg.EmailEnabled() {
		email, err := notify.NewEmail(notify.EmailOptions{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			To:       cfg.SMTPTo,
			TLS:      cfg.SMTPTLS,
			Timeout:  cfg.NotifyTimeout,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, email)
		loggerClient.Info("email notifications enabled", logger.String("host", cfg.SMTPHost))
	}

	dispatcher := notify.NewDispatcher(cfg.NotifyQueue, cfg.NotifyTimeout, loggerClient.Named("notify"), sinks...)

	source, err := fetcher.New(fetcher.Options{
		URL:       cfg.SourceURL,
		Timeout:   cfg.FetchTimeout,
		UserAgent: version.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	mon, err := monitor.New(source, monitor.Options{
		HistoryCapacity: cfg.HistoryCapacity,
		HistoryMode:     cfg.HistoryMode,
		OnChange:        dispatcher.Hook(),
	}, loggerClient.Named("monitor"))
	if err != nil {
		return nil, err
	}

	sampler, err := scheduler.New(scheduler.Options{
		Interval:        cfg.PollInterval,
		DropOverlapping: cfg.DropOverlapping,
		FetchOnStart:    cfg.FetchOnStart,
	}, func(ctx context.Context) { mon.Tick(ctx) }, loggerClient.Named("sampler"))
	if err != nil {
		return nil, err
	}

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:       loggerClient,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		TimeNow:      time.Now,
		AllowedHosts: cfg.AllowedHosts,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		CORSOrigins:  cfg.CORSOrigins,
		RateBurst:    cfg.RateBurst,
		RatePerMin:   cfg.RatePerMin,
		Monitor:      mon,
		Sampler:      sampler,
		Notifier:     dispatcher,
		Redis:        redisPinger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:             cfg,
		logger:          loggerClient,
		server:          server,
		redisClient:     redisClient,
		monitor:         mon,
		sampler:         sampler,
		dispatcher:      dispatcher,
		shutdownTracing: shutdownTracing,
	}, nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting %s on %s", version.String(), a.cfg.ListenPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The dispatcher outlives the signal so pending events still drain on Stop
	a.dispatcher.Start(context.Background())

	if err := a.sampler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sampler: %w", err)
	}
	a.logger.Info("sampler started",
		logger.Duration("interval", a.cfg.PollInterval),
		logger.Bool("drop_overlapping", a.cfg.DropOverlapping),
		logger.String("source", a.cfg.SourceURL))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
		a.logger.Error("http server failed, shutting down", logger.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	// Halt first so a fetch finishing during Stop cannot touch state
	a.monitor.Halt()
	a.sampler.Stop()
	if err := a.sampler.Wait(shutdownCtx); err != nil {
		a.logger.Warn("in-flight tick did not finish before shutdown", logger.Error(err))
	}

	a.dispatcher.Stop()

	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	if err := a.shutdownTracing(shutdownCtx); err != nil {
		a.logger.Warn("failed to flush traces", logger.Error(err))
	}

	a.logger.Info("✅ ipwatch stopped cleanly")
	_ = a.logger.Sync()
	return runErr
}
