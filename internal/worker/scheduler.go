package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/config"
	"github.com/trade-ledger/internal/service"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs jobs on cron specs. A job still running when its next tick
// arrives is skipped for that tick.
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	baseCtx context.Context
}

// NewScheduler creates a stopped scheduler. Jobs receive baseCtx.
func NewScheduler(baseCtx context.Context, log *zap.Logger) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:     log.Named("scheduler"),
		baseCtx: baseCtx,
	}
}

// Add registers job under name. An empty spec leaves the job disabled.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if spec == "" {
		s.log.Info("job disabled", zap.String("job", name))
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return err
	}
	s.log.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", zap.String("job", name), zap.Any("panic", r))
		}
	}()
	start := time.Now()
	if err := job(s.baseCtx); err != nil {
		s.log.Error("job failed", zap.String("job", name), zap.Duration("took", time.Since(start)), zap.Error(err))
		return
	}
	s.log.Debug("job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Jobs are the services the standard jobs run against.
type Jobs struct {
	Portfolio *service.PortfolioService
	Engine    *service.TradingEngine
	Insights  *service.InsightService
	Exits     *SLTPWorker
}

// Register adds the snapshot, signal and exit jobs with the configured specs.
func Register(s *Scheduler, cfg config.SchedulerConfig, jobs Jobs) error {
	if err := s.Add("portfolio_snapshot", cfg.SnapshotSpec, SnapshotJob(jobs.Portfolio)); err != nil {
		return err
	}
	if err := s.Add("signal_scan", cfg.SignalSpec, SignalJob(jobs.Engine, jobs.Insights, s.log)); err != nil {
		return err
	}
	return s.Add("exit_watch", cfg.ExitSpec, ExitJob(jobs.Exits, s.log))
}

// SnapshotJob records a snapshot of the configured holdings.
func SnapshotJob(portfolio *service.PortfolioService) Job {
	return func(ctx context.Context) error {
		_, err := portfolio.RecordConfiguredSnapshot(ctx)
		return err
	}
}

// SignalJob scans the configured chains, then records insights drawn from
// the current aggregates.
func SignalJob(engine *service.TradingEngine, insights *service.InsightService, log *zap.Logger) Job {
	return func(ctx context.Context) error {
		report := engine.ScanSignals(ctx, nil)
		for chain, msg := range report.Errors {
			log.Warn("signal scan failed for chain", zap.String("chain", chain), zap.String("error", msg))
		}
		created, err := insights.AnalyzePerformance(ctx)
		if err != nil {
			return err
		}
		log.Info("signal scan done",
			zap.Int("signals", len(report.Signals)),
			zap.Int("actionable", report.Actionable),
			zap.Int("insights", len(created)))
		return nil
	}
}

// ExitJob runs one stop-loss/take-profit pass.
func ExitJob(w *SLTPWorker, log *zap.Logger) Job {
	return func(ctx context.Context) error {
		n, err := w.Check(ctx)
		if n > 0 {
			log.Info("trades closed by exit watcher", zap.Int("count", n))
		}
		return err
	}
}
