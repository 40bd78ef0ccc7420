package eod

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the day-end run log and reports.
type Repository interface {
	InsertLog(ctx context.Context, log JobLog) error
	LastJobLog(ctx context.Context, date time.Time, jobNo int) (JobLog, bool, error)
	ListLogs(ctx context.Context, date time.Time) ([]JobLog, error)
	InsertReport(ctx context.Context, date time.Time, body string) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) InsertLog(ctx context.Context, log JobLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO eod_log_table
			(run_date, job_no, job_name, status, detail, run_by, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.RunDate, log.JobNo, log.JobName, string(log.Status), log.Detail,
		log.RunBy, log.StartedAt, log.FinishedAt)
	if err != nil {
		return fmt.Errorf("eod: insert log: %w", err)
	}
	return nil
}

func (r *pgRepository) LastJobLog(ctx context.Context, date time.Time, jobNo int) (JobLog, bool, error) {
	var l JobLog
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, run_date, job_no, job_name, status, detail, run_by, started_at, finished_at
		  FROM eod_log_table WHERE run_date = $1 AND job_no = $2
		 ORDER BY id DESC LIMIT 1`, date, jobNo).Scan(
		&l.ID, &l.RunDate, &l.JobNo, &l.JobName, &status, &l.Detail, &l.RunBy,
		&l.StartedAt, &l.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return JobLog{}, false, nil
	}
	if err != nil {
		return JobLog{}, false, fmt.Errorf("eod: last job log: %w", err)
	}
	l.Status = JobStatus(status)
	return l, true, nil
}

func (r *pgRepository) ListLogs(ctx context.Context, date time.Time) ([]JobLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, run_date, job_no, job_name, status, detail, run_by, started_at, finished_at
		  FROM eod_log_table WHERE run_date = $1 ORDER BY id`, date)
	if err != nil {
		return nil, fmt.Errorf("eod: list logs: %w", err)
	}
	defer rows.Close()

	var logs []JobLog
	for rows.Next() {
		var l JobLog
		var status string
		if err := rows.Scan(&l.ID, &l.RunDate, &l.JobNo, &l.JobName, &status,
			&l.Detail, &l.RunBy, &l.StartedAt, &l.FinishedAt); err != nil {
			return nil, fmt.Errorf("eod: scan log: %w", err)
		}
		l.Status = JobStatus(status)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *pgRepository) InsertReport(ctx context.Context, date time.Time, body string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO eod_report (run_date, body, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (run_date) DO UPDATE SET body = EXCLUDED.body, created_at = NOW()`,
		date, body)
	if err != nil {
		return fmt.Errorf("eod: insert report: %w", err)
	}
	return nil
}
