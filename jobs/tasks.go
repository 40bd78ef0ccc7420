package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/mmbank/moneymarket/internal/eod"
	jobmetrics "github.com/mmbank/moneymarket/internal/jobs"
	"github.com/mmbank/moneymarket/internal/shared"
)

const (
	// TaskEODRun executes the full day-end batch for the current business date.
	TaskEODRun = "eod:run"
	// TaskBODRun executes day-begin processing after the date has rolled.
	TaskBODRun = "bod:run"
)

// eodLockTTL bounds how long a crashed run can hold the cross-process lock.
const eodLockTTL = 2 * time.Hour

// EODRunPayload carries the operator on whose behalf the batch runs.
type EODRunPayload struct {
	UserID string `json:"user_id"`
}

// NewEODRunTask builds the day-end task for the given operator.
func NewEODRunTask(userID string) (*asynq.Task, error) {
	payload, err := json.Marshal(EODRunPayload{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal eod payload: %w", err)
	}
	return asynq.NewTask(TaskEODRun, payload), nil
}

// NewBODRunTask builds the day-begin task.
func NewBODRunTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskBODRun, nil), nil
}

// EODRunJob drives the day-end orchestrator from the queue. A redis lock
// serialises runs across worker processes; the orchestrator's own mutex only
// covers one process.
type EODRunJob struct {
	orch    *eod.Orchestrator
	locker  *redis.Client
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

func NewEODRunJob(orch *eod.Orchestrator, locker *redis.Client, metrics *jobmetrics.Metrics, logger *slog.Logger) *EODRunJob {
	return &EODRunJob{orch: orch, locker: locker, metrics: metrics, logger: logger}
}

func (j *EODRunJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload EODRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("jobs: decode eod payload: %v: %w", err, asynq.SkipRetry)
	}

	if j.locker != nil {
		acquired, err := j.locker.SetNX(ctx, shared.EODLockKey, "1", eodLockTTL).Result()
		if err != nil {
			j.logger.Warn("eod lock unavailable, proceeding unguarded", slog.Any("error", err))
		} else if !acquired {
			j.logger.Warn("day-end already running in another process, skipping")
			return nil
		} else {
			defer func() {
				if err := j.locker.Del(context.WithoutCancel(ctx), shared.EODLockKey).Err(); err != nil {
					j.logger.Warn("eod lock release", slog.Any("error", err))
				}
			}()
		}
	}

	tracker := j.metrics.Track("eod-run")
	result, err := j.orch.Run(ctx, payload.UserID)
	if err != nil {
		j.logger.Error("scheduled day-end failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("scheduled day-end complete",
		slog.String("date", result.Date.Format("2006-01-02")),
		slog.String("next_date", result.NextDate.Format("2006-01-02")))
	return tracker.End(nil)
}

// BODRunJob drives day-begin processing from the queue.
type BODRunJob struct {
	orch    *eod.Orchestrator
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

func NewBODRunJob(orch *eod.Orchestrator, metrics *jobmetrics.Metrics, logger *slog.Logger) *BODRunJob {
	return &BODRunJob{orch: orch, metrics: metrics, logger: logger}
}

func (j *BODRunJob) Handle(ctx context.Context, task *asynq.Task) error {
	tracker := j.metrics.Track("bod-run")
	result, err := j.orch.RunBOD(ctx)
	if err != nil {
		j.logger.Error("scheduled day-begin failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("scheduled day-begin complete",
		slog.String("date", result.Date.Format("2006-01-02")),
		slog.Int("revaluations_reversed", result.RevaluationsReversed),
		slog.Int("transactions_released", result.TransactionsReleased))
	return tracker.End(nil)
}
