package eod

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmbank/moneymarket/internal/fx"
	"github.com/mmbank/moneymarket/internal/interest"
	"github.com/mmbank/moneymarket/internal/ledger"
	"github.com/mmbank/moneymarket/internal/shared"
)

// LedgerPort reads posting state and releases value-dated work.
type LedgerPort interface {
	ListEntryTranIDs(ctx context.Context, date time.Time) ([]string, error)
	PostedTotals(ctx context.Context, date time.Time) (ledger.DrCrSum, error)
	PostDueValueDated(ctx context.Context, asOf time.Time) (int, error)
}

// BatchPort runs the ledger builds.
type BatchPort interface {
	DropUnverified(ctx context.Context, date time.Time) (int64, error)
	BuildAccountBalances(ctx context.Context, date time.Time) (int, error)
	BuildGLMovements(ctx context.Context, date time.Time) (int, error)
	BuildGLBalances(ctx context.Context, date time.Time) (int, error)
}

// InterestPort runs the accrual engine's day-end work.
type InterestPort interface {
	AdjustBackValued(ctx context.Context, date time.Time) (int, error)
	AccrueDaily(ctx context.Context, date time.Time) (interest.AccrualRun, error)
	PostPendingMovements(ctx context.Context, date time.Time) (int, error)
	BuildAccrualBalances(ctx context.Context, date time.Time) (int, error)
}

// FxPort runs revaluation and its next-day reversal.
type FxPort interface {
	Revalue(ctx context.Context, date time.Time) (fx.RevalResult, error)
	ReverseRevaluations(ctx context.Context, revalDate, onDate time.Time) (int, error)
}

// DatePort owns the business date and the day-end operator parameter.
type DatePort interface {
	SystemDate(ctx context.Context) (time.Time, error)
	IncrementSystemDate(ctx context.Context, userID string) (time.Time, error)
	EODAdminUser(ctx context.Context) string
}

// Orchestrator sequences the nine day-end jobs.
type Orchestrator struct {
	repo     Repository
	ledger   LedgerPort
	batch    BatchPort
	interest InterestPort
	fx       FxPort
	dates    DatePort
	reporter *Reporter
	logger   *slog.Logger

	// Guards against two concurrent day-end runs in one process.
	mu sync.Mutex
}

// NewOrchestrator constructs the Orchestrator.
func NewOrchestrator(repo Repository, ledgerPort LedgerPort, batch BatchPort,
	interestPort InterestPort, fxPort FxPort, dates DatePort, reporter *Reporter, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		repo: repo, ledger: ledgerPort, batch: batch, interest: interestPort,
		fx: fxPort, dates: dates, reporter: reporter, logger: logger,
	}
}

// Validate runs the pre-flight gates: the caller must be the day-end
// administrator, no transaction may sit in Entry status, and the posted
// debits and credits must agree.
func (o *Orchestrator) Validate(ctx context.Context, userID string) error {
	admin := o.dates.EODAdminUser(ctx)
	if !strings.EqualFold(userID, admin) {
		return fmt.Errorf("eod: user %s is not the day-end administrator: %w", userID, shared.ErrBusinessRule)
	}
	date, err := o.dates.SystemDate(ctx)
	if err != nil {
		return err
	}
	ids, err := o.ledger.ListEntryTranIDs(ctx, date)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		return fmt.Errorf("eod: transactions in 'Entry' status must be verified or deleted first: %s: %w",
			strings.Join(ids, ", "), shared.ErrBusinessRule)
	}
	sums, err := o.ledger.PostedTotals(ctx, date)
	if err != nil {
		return err
	}
	if !shared.AmountsEqual(sums.Dr, sums.Cr) {
		return fmt.Errorf("eod: posted debits %.2f and credits %.2f differ by %.2f: %w",
			sums.Dr, sums.Cr, sums.Dr-sums.Cr, shared.ErrBusinessRule)
	}
	return nil
}

// Run executes the full day-end sequence. Jobs already successful for the
// date are skipped, so a failed run resumes from the failed step. The first
// failure aborts the sequence.
func (o *Orchestrator) Run(ctx context.Context, userID string) (RunResult, error) {
	if !o.mu.TryLock() {
		return RunResult{}, fmt.Errorf("eod: day-end already running: %w", shared.ErrDuplicateOperation)
	}
	defer o.mu.Unlock()

	if err := o.Validate(ctx, userID); err != nil {
		return RunResult{}, err
	}
	date, err := o.dates.SystemDate(ctx)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{Date: date}
	o.logger.Info("day-end started", slog.String("date", date.Format("2006-01-02")), slog.String("user", userID))

	for jobNo := 1; jobNo <= JobCount; jobNo++ {
		last, ok, err := o.repo.LastJobLog(ctx, date, jobNo)
		if err != nil {
			return result, err
		}
		if ok && last.Status == StatusSuccess {
			result.Jobs = append(result.Jobs, JobResult{
				JobNo: jobNo, JobName: JobNames[jobNo], Status: StatusSuccess, Detail: "already executed",
			})
			continue
		}

		jr, err := o.executeAndLog(ctx, date, jobNo, userID)
		result.Jobs = append(result.Jobs, jr)
		if err != nil {
			result.FailedAtStep = jobNo
			return result, fmt.Errorf("eod: job %d (%s): %w", jobNo, JobNames[jobNo], err)
		}
	}

	result.NextDate = date.AddDate(0, 0, 1)
	o.logger.Info("day-end complete",
		slog.String("date", date.Format("2006-01-02")),
		slog.String("next", result.NextDate.Format("2006-01-02")))
	return result, nil
}

func (o *Orchestrator) executeAndLog(ctx context.Context, date time.Time, jobNo int, userID string) (JobResult, error) {
	started := time.Now()
	count, detail, err := o.runJob(ctx, date, jobNo, userID)

	log := JobLog{
		RunDate: date, JobNo: jobNo, JobName: JobNames[jobNo],
		Status: StatusSuccess, Detail: detail, RunBy: userID,
		StartedAt: started, FinishedAt: time.Now(),
	}
	jr := JobResult{JobNo: jobNo, JobName: JobNames[jobNo], Status: StatusSuccess, Count: count, Detail: detail}
	if err != nil {
		log.Status = StatusFailed
		log.Detail = err.Error()
		jr.Status = StatusFailed
		jr.Detail = err.Error()
		o.logger.Error("day-end job failed",
			slog.Int("job", jobNo),
			slog.String("name", JobNames[jobNo]),
			slog.Any("error", err))
	} else {
		o.logger.Info("day-end job complete",
			slog.Int("job", jobNo),
			slog.String("name", JobNames[jobNo]),
			slog.Int("count", count))
	}
	if logErr := o.repo.InsertLog(ctx, log); logErr != nil {
		o.logger.Error("day-end log write failed", slog.Any("error", logErr))
	}
	return jr, err
}

func (o *Orchestrator) runJob(ctx context.Context, date time.Time, jobNo int, userID string) (int, string, error) {
	switch jobNo {
	case JobAccountBalances:
		dropped, err := o.batch.DropUnverified(ctx, date)
		if err != nil {
			return 0, "", err
		}
		n, err := o.batch.BuildAccountBalances(ctx, date)
		if err != nil {
			return 0, "", err
		}
		return n, fmt.Sprintf("%d accounts, %d stale entry rows dropped", n, dropped), nil

	case JobInterestAccrual:
		adjusted, err := o.interest.AdjustBackValued(ctx, date)
		if err != nil {
			return 0, "", err
		}
		run, err := o.interest.AccrueDaily(ctx, date)
		if err != nil {
			return 0, "", err
		}
		return run.Accounts, fmt.Sprintf("%d accounts accrued %.2f, %d back-value adjustments",
			run.Accounts, run.Total, adjusted), nil

	case JobAccrualPosting:
		n, err := o.interest.PostPendingMovements(ctx, date)
		return n, fmt.Sprintf("%d accrual legs posted", n), err

	case JobGLMovements:
		n, err := o.batch.BuildGLMovements(ctx, date)
		return n, fmt.Sprintf("%d movements", n), err

	case JobGLBalances:
		n, err := o.batch.BuildGLBalances(ctx, date)
		return n, fmt.Sprintf("%d GL balances", n), err

	case JobAccrualBalances:
		n, err := o.interest.BuildAccrualBalances(ctx, date)
		return n, fmt.Sprintf("%d accrual balances", n), err

	case JobRevaluation:
		res, err := o.fx.Revalue(ctx, date)
		if err != nil {
			return 0, "", err
		}
		return res.EntriesPosted, fmt.Sprintf("%d positions marked, gain %.2f loss %.2f",
			res.EntriesPosted, res.TotalGain, res.TotalLoss), nil

	case JobReports:
		if err := o.reporter.WriteDayEnd(ctx, date); err != nil {
			return 0, "", err
		}
		return 1, "day-end report written", nil

	case JobDateIncrement:
		next, err := o.dates.IncrementSystemDate(ctx, userID)
		if err != nil {
			return 0, "", err
		}
		return 1, "system date moved to " + next.Format("2006-01-02"), nil
	}
	return 0, "", fmt.Errorf("eod: unknown job %d: %w", jobNo, shared.ErrValidation)
}
