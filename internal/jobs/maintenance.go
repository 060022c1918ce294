package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/match-relay-go/internal/metrics"
	"github.com/openclaw/match-relay-go/internal/service"
	"github.com/openclaw/match-relay-go/internal/store"
)

const (
	maintenanceTimeout = 30 * time.Second
	drainLimit         = 64
	ledgerPruneEvery   = time.Hour
)

// LedgerPruner removes pairing history older than a cutoff.
type LedgerPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type MaintenanceConfig struct {
	Interval        time.Duration
	StaleAfter      time.Duration
	LedgerRetention time.Duration
}

// MaintenanceJob keeps the queue moving between client polls: it sweeps
// abandoned tickets, forms any pairings that became possible, purges
// in-process state and prunes the pairing ledger.
type MaintenanceJob struct {
	queue    *service.QueueService
	cleaners map[string]store.Cleaner
	ledger   LedgerPruner
	cfg      MaintenanceConfig

	lastPrune time.Time
	now       func() time.Time
	done      chan struct{}
	stopped   chan struct{}
}

// NewMaintenanceJob takes named cleaners for lazily expiring in-process
// state. ledger may be nil.
func NewMaintenanceJob(
	queue *service.QueueService,
	cleaners map[string]store.Cleaner,
	ledger LedgerPruner,
	cfg MaintenanceConfig,
) *MaintenanceJob {
	return &MaintenanceJob{
		queue:    queue,
		cleaners: cleaners,
		ledger:   ledger,
		cfg:      cfg,
		now:      time.Now,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (j *MaintenanceJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.cfg.Interval).Msg("maintenance job started")
}

// Stop signals the loop and waits for an in-flight pass to finish.
func (j *MaintenanceJob) Stop() {
	close(j.done)
	<-j.stopped
	log.Info().Msg("maintenance job stopped")
}

func (j *MaintenanceJob) run() {
	defer close(j.stopped)

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	j.tick()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.tick()
		}
	}
}

func (j *MaintenanceJob) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()
	j.RunOnce(ctx)
}

// RunOnce performs a single maintenance pass. Each task logs its own
// failure and never stops the others.
func (j *MaintenanceJob) RunOnce(ctx context.Context) {
	j.runTask(ctx, "sweep", func(ctx context.Context) (int64, error) {
		return j.queue.Sweep(ctx, j.cfg.StaleAfter)
	})
	j.runTask(ctx, "drain", func(ctx context.Context) (int64, error) {
		n, err := j.queue.Drain(ctx, drainLimit)
		return int64(n), err
	})
	j.runTask(ctx, "stats", func(ctx context.Context) (int64, error) {
		_, err := j.queue.Stats(ctx)
		return 0, err
	})

	for name, c := range j.cleaners {
		if c == nil {
			continue
		}
		j.runTask(ctx, name, func(context.Context) (int64, error) {
			return int64(c.Cleanup()), nil
		})
	}

	if j.ledger != nil && j.now().Sub(j.lastPrune) >= ledgerPruneEvery {
		j.lastPrune = j.now()
		j.runTask(ctx, "ledger", func(ctx context.Context) (int64, error) {
			return j.ledger.DeleteOlderThan(ctx, j.now().Add(-j.cfg.LedgerRetention))
		})
	}
}

func (j *MaintenanceJob) runTask(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	start := time.Now()
	count, err := fn(ctx)
	metrics.ObserveSince(metrics.MaintenanceDuration.WithLabelValues(name), start)

	if err != nil {
		if service.IsStoreError(err) {
			metrics.StoreErrors.WithLabelValues("maintenance").Inc()
		}
		log.Error().Err(err).Str("task", name).Msg("maintenance task failed")
	} else if count > 0 {
		log.Debug().Int64("count", count).Str("task", name).Msg("maintenance task done")
	}
}
