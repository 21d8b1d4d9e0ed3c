package leaderboard

import (
	"context"
	"errors"

	"streampoints-engine/pkg/errutil"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const TypeSnapshot = "leaderboard:snapshot"

var TaskModule = fx.Module("task.leaderboard",
	fx.Invoke(registerTaskHandler),
)

func registerTaskHandler(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(TypeSnapshot, svc.HandleSnapshotTask)
}

// HandleSnapshotTask runs one snapshot job. A run-guard conflict means a
// previous run is still committing; skip without failing the task so asynq
// does not pile up retries behind it.
func (s *Service) HandleSnapshotTask(ctx context.Context, t *asynq.Task) error {
	result, err := s.CreateSnapshot(ctx)
	if err != nil {
		var be errutil.BaseError
		if errors.As(err, &be) && be.Status() == errutil.StatusConflict {
			zap.L().Warn("snapshot run skipped, previous run still active")
			return nil
		}
		return err
	}

	zap.L().Info("snapshot task finished",
		zap.Time("snapshot_time", result.SnapshotTime),
		zap.Int("accounts_count", result.AccountsCount),
	)
	return nil
}
