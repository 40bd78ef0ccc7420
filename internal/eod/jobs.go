package eod

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmbank/moneymarket/internal/shared"
)

// ExecuteJob runs a single day-end job out of band. The job must not have
// succeeded already for the date and its predecessor must have completed;
// job 1 additionally re-runs the pre-flight gates.
func (o *Orchestrator) ExecuteJob(ctx context.Context, userID string, jobNo int) (JobResult, error) {
	if jobNo < 1 || jobNo > JobCount {
		return JobResult{}, fmt.Errorf("eod: job %d out of range: %w", jobNo, shared.ErrValidation)
	}
	if !o.mu.TryLock() {
		return JobResult{}, fmt.Errorf("eod: day-end already running: %w", shared.ErrDuplicateOperation)
	}
	defer o.mu.Unlock()

	date, err := o.dates.SystemDate(ctx)
	if err != nil {
		return JobResult{}, err
	}

	last, ok, err := o.repo.LastJobLog(ctx, date, jobNo)
	if err != nil {
		return JobResult{}, err
	}
	if ok && last.Status == StatusSuccess {
		return JobResult{}, fmt.Errorf("eod: job %d (%s) already executed for %s: %w",
			jobNo, JobNames[jobNo], date.Format("2006-01-02"), shared.ErrDuplicateOperation)
	}
	if jobNo > 1 {
		prev, ok, err := o.repo.LastJobLog(ctx, date, jobNo-1)
		if err != nil {
			return JobResult{}, err
		}
		if !ok || prev.Status != StatusSuccess {
			return JobResult{}, fmt.Errorf("eod: job %d (%s) requires job %d to complete first: %w",
				jobNo, JobNames[jobNo], jobNo-1, shared.ErrBusinessRule)
		}
	}
	if jobNo == 1 {
		if err := o.Validate(ctx, userID); err != nil {
			return JobResult{}, err
		}
	} else {
		admin := o.dates.EODAdminUser(ctx)
		if !strings.EqualFold(userID, admin) {
			return JobResult{}, fmt.Errorf("eod: user %s is not the day-end administrator: %w",
				userID, shared.ErrBusinessRule)
		}
	}

	jr, err := o.executeAndLog(ctx, date, jobNo, userID)
	if err != nil {
		return jr, fmt.Errorf("eod: job %d (%s): %w", jobNo, JobNames[jobNo], err)
	}
	return jr, nil
}

// JobStatuses reports each job's latest outcome for the current business
// date; jobs without a log entry report as pending.
func (o *Orchestrator) JobStatuses(ctx context.Context) ([]JobResult, error) {
	date, err := o.dates.SystemDate(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]JobResult, 0, JobCount)
	for jobNo := 1; jobNo <= JobCount; jobNo++ {
		jr := JobResult{JobNo: jobNo, JobName: JobNames[jobNo], Status: "Pending"}
		if last, ok, err := o.repo.LastJobLog(ctx, date, jobNo); err != nil {
			return nil, err
		} else if ok {
			jr.Status = last.Status
			jr.Detail = last.Detail
		}
		statuses = append(statuses, jr)
	}
	return statuses, nil
}
