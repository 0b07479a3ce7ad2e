package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"campaign-optimizer/internal/api"
	"campaign-optimizer/internal/config"
	"campaign-optimizer/internal/engine"
	"campaign-optimizer/internal/listener"
	"campaign-optimizer/internal/notify"
	"campaign-optimizer/internal/storage"
	"campaign-optimizer/internal/tracing"
)

func Run(cfg config.Config) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("init tracing")
	}

	// Storage
	store, err := storage.New(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init storage")
	}
	defer store.Close()

	var metrics engine.MetricSource = store
	if cfg.Redis.Addr != "" {
		rdb, err := storage.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("init redis")
		}
		defer rdb.Close()
		metrics = storage.NewCachedMetricSource(store, rdb, cfg.SnapshotTTL())
	}

	// Notifications
	dispatcher, closeNotify := NewDispatcher(cfg)
	defer closeNotify()

	// Engine
	eng := engine.NewEngine(engine.Deps{
		Rules:     store,
		Campaigns: store,
		Metrics:   metrics,
		Notifier:  dispatcher,
	}, engine.SchedulerConfig{
		Workers:     cfg.Optimizer.Workers,
		PageSize:    cfg.Optimizer.PageSize,
		SweepBudget: cfg.SweepBudget(),
		RuleTimeout: cfg.RuleTimeout(),
	})

	// HTTP
	if cfg.Server.TriggerSecret == "" {
		log.Warn().Msg("server.trigger_secret is empty; every authenticated route will answer 401")
	}
	h := api.NewOptimizerHandler(eng)
	r := api.Router(h, cfg.Server.TriggerSecret)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.SweepBudget() + cfg.RuleTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Listener (LISTEN/NOTIFY)
	if cfg.Listener.Channel != "" {
		go listener.ListenAndSweep(rootCtx, store.PgxPool(), eng, cfg.Listener.Channel, cfg.Backoff())
	}

	// Optional in-process cadence
	if iv := cfg.SweepInterval(); iv > 0 {
		log.Info().Dur("interval", iv).Msg("in-process sweep ticker enabled")
		go eng.RunEvery(rootCtx, iv)
	}

	// Server goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	// Wait for signal
	waitForSignal()
	log.Info().Msg("shutdown...")

	// Graceful shutdown
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	_ = srv.Shutdown(shCtx)
	if err := shutdownTracing(shCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown")
	}
}

// NewDispatcher registers a log sink, one webhook sink per configured
// channel and, when brokers are set, a kafka sink.
func NewDispatcher(cfg config.Config) (*notify.Dispatcher, func()) {
	d := notify.NewDispatcher()
	d.Register("log", notify.LogSink{})
	for channel, url := range cfg.Notify.Webhooks {
		if url == "" {
			continue
		}
		d.Register(channel, notify.NewWebhookSink(url, cfg.NotifyTimeout()))
	}

	closeFn := func() {}
	if len(cfg.Kafka.Brokers) > 0 {
		w := notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		d.Register("kafka", notify.NewKafkaSink(w))
		closeFn = func() {
			if err := w.Close(); err != nil {
				log.Error().Err(err).Msg("close kafka writer")
			}
		}
	}
	log.Info().Strs("channels", d.Channels()).Msg("notification channels registered")
	return d, closeFn
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
