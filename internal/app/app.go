package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"newsletter-courier/internal/courier"
	"newsletter-courier/internal/delivery"
	"newsletter-courier/internal/healthcheck"
	"newsletter-courier/internal/metrics"
)

const observeInterval = 15 * time.Second

// App wires the delivery worker(s) against one shared database pool and
// runs them until the context is done.
type App struct {
	db      *sql.DB
	queue   *delivery.Queue
	workers []*delivery.Worker
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
}

func New(cfg Config) (*App, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	queue := delivery.NewQueue(db, cfg.getClaimLease())
	store := delivery.NewStore(db)
	client := courier.New(cfg.getCourierConfig())

	workers := make([]*delivery.Worker, 0, cfg.Worker.Count)
	for i := 0; i < cfg.Worker.Count; i++ {
		workers = append(workers, delivery.NewWorker(queue, store, client, m, cfg.getWorkerConfig()))
	}

	return &App{
		db:      db,
		queue:   queue,
		workers: workers,
		metrics: m,
		logger:  slog.With("pipe", "app"),
		cfg:     cfg,
	}, nil
}

func (a *App) Run(ctx context.Context) {
	if a.cfg.Metrics.Port > 0 {
		metrics.StartServer(a.cfg.Metrics.Port)
	}

	var wg sync.WaitGroup

	if a.cfg.Health.Port > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := healthcheck.NewServer(a.cfg.Health.Port, a.db).ListenAndServe(ctx); err != nil {
				a.logger.Warn(fmt.Sprintf("health check server stopped: %v", err))
			}
		}()
	}

	for _, w := range a.workers {
		wg.Add(1)
		go func(w *delivery.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.observeUntilContextDone(ctx)
	}()

	wg.Wait()
}

func (a *App) Close() error {
	return a.db.Close()
}

// observeUntilContextDone periodically samples the queue backlog and host
// resource usage into the metrics gauges.
func (a *App) observeUntilContextDone(ctx context.Context) {
	ticker := time.NewTicker(observeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, err := a.queue.Pending(ctx)
			if err != nil {
				a.logger.Warn(fmt.Sprintf("failed to sample queue depth: %v", err))
			} else {
				a.metrics.QueueDepthGauge.Set(float64(pending))
			}

			if err := a.metrics.CollectMemoryAndCpu(); err != nil {
				a.logger.Warn(fmt.Sprintf("failed to sample runtime usage: %v", err))
			}
		}
	}
}
