// Package scheduler запускает периодические фоновые задачи сервиса кампаний.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaign-ledger/internal/metrics"
)

// Job описывает периодическую задачу.
type Job interface {
	Name() string
	Interval() time.Duration
	Execute(ctx context.Context) error
}

// Manager регистрирует задачи в gocron и управляет их жизненным циклом.
type Manager struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger
	jobs      []Job
}

// NewManager создаёт менеджер задач.
func NewManager(logger *zap.Logger, jobs ...Job) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Manager{scheduler: s, logger: logger, jobs: jobs}, nil
}

// Run регистрирует задачи, запускает планировщик и останавливает его после
// отмены контекста, дожидаясь завершения текущих запусков.
func (m *Manager) Run(ctx context.Context) error {
	for _, job := range m.jobs {
		if err := m.register(ctx, job); err != nil {
			_ = m.scheduler.Shutdown()
			return err
		}
	}

	m.scheduler.Start()
	m.logger.Info("scheduler started", zap.Int("jobs", len(m.jobs)))

	<-ctx.Done()

	if err := m.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	m.logger.Info("scheduler stopped")
	return nil
}

func (m *Manager) register(ctx context.Context, job Job) error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(job.Interval()),
		gocron.NewTask(func() { m.runJob(ctx, job) }),
		gocron.WithName(job.Name()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", job.Name(), err)
	}
	return nil
}

func (m *Manager) runJob(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	err := job.Execute(ctx)
	metrics.JobDuration.WithLabelValues(job.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.JobRuns.WithLabelValues(job.Name(), "error").Inc()
		m.logger.Error("job failed", zap.String("job", job.Name()), zap.Error(err))
		return
	}
	metrics.JobRuns.WithLabelValues(job.Name(), "ok").Inc()
	m.logger.Debug("job finished",
		zap.String("job", job.Name()),
		zap.Duration("duration", time.Since(start)))
}
