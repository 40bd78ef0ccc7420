// Package eod orchestrates day-end and day-begin processing: pre-validation,
// the ordered job sequence with its run log, single-job execution and the
// business date roll.
package eod

import "time"

// JobStatus is the outcome recorded per job run.
type JobStatus string

const (
	StatusSuccess JobStatus = "Success"
	StatusFailed  JobStatus = "Failed"
)

// Job numbers in execution order.
const (
	JobAccountBalances = 1
	JobInterestAccrual = 2
	JobAccrualPosting  = 3
	JobGLMovements     = 4
	JobGLBalances      = 5
	JobAccrualBalances = 6
	JobRevaluation     = 7
	JobReports         = 8
	JobDateIncrement   = 9
)

// JobNames maps job numbers to their display names.
var JobNames = map[int]string{
	JobAccountBalances: "Account Balance Build",
	JobInterestAccrual: "Interest Accrual",
	JobAccrualPosting:  "Accrual Movement Posting",
	JobGLMovements:     "GL Movement Build",
	JobGLBalances:      "GL Balance Build",
	JobAccrualBalances: "Accrual Balance Build",
	JobRevaluation:     "FX Revaluation",
	JobReports:         "Day-End Reports",
	JobDateIncrement:   "Date Increment",
}

// JobCount is the length of the day-end sequence.
const JobCount = 9

// JobLog is a row in eod_log_table.
type JobLog struct {
	ID         int64
	RunDate    time.Time
	JobNo      int
	JobName    string
	Status     JobStatus
	Detail     string
	RunBy      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// JobResult is one job's outcome within an orchestrated run.
type JobResult struct {
	JobNo   int       `json:"jobNo"`
	JobName string    `json:"jobName"`
	Status  JobStatus `json:"status"`
	Count   int       `json:"count"`
	Detail  string    `json:"detail,omitempty"`
}

// RunResult summarises a full day-end run.
type RunResult struct {
	Date         time.Time   `json:"-"`
	Jobs         []JobResult `json:"jobs"`
	FailedAtStep int         `json:"failedAtStep,omitempty"`
	NextDate     time.Time   `json:"-"`
}
