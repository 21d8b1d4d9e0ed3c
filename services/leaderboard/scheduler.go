package leaderboard

import (
	"context"
	"time"

	"streampoints-engine/pkg/config"
	"streampoints-engine/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler enqueues the periodic snapshot job. It is strictly
// single-instance per process; the redis run guard covers multi-instance
// deployments.
type Scheduler struct {
	enqueuer task.Enqueuer
	interval time.Duration
}

func NewScheduler(enqueuer task.Enqueuer, cfg *config.Config) *Scheduler {
	return &Scheduler{
		enqueuer: enqueuer,
		interval: cfg.Leaderboard.SnapshotInterval,
	}
}

// StartScheduler is invoked by FX on service start.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started leaderboard snapshot scheduler",
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.enqueueSnapshot()
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) enqueueSnapshot() {
	info, err := s.enqueuer.Enqueue(
		asynq.NewTask(TypeSnapshot, nil),
		asynq.Queue("low"),
	)
	if err != nil {
		zap.L().Error("[Scheduler] failed to enqueue snapshot task", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] snapshot task enqueued", zap.String("task_id", info.ID))
}
