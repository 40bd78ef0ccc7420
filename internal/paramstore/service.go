// Package paramstore owns the parameter table and the business system date.
// The system date is a stored parameter advanced by day-end processing; it is
// never taken from the device clock.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmbank/moneymarket/internal/shared"
)

// AuditPort records parameter changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes parameter and system date operations.
type Service struct {
	repo            Repository
	audit           AuditPort
	logger          *slog.Logger
	defaultEODAdmin string
}

// NewService constructs the Service.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger, defaultEODAdmin string) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, defaultEODAdmin: defaultEODAdmin}
}

// SystemDate returns the business date. Missing or malformed configuration
// surfaces shared.ErrSystemDateNotSet.
func (s *Service) SystemDate(ctx context.Context) (time.Time, error) {
	param, err := s.repo.Get(ctx, KeySystemDate)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return time.Time{}, shared.ErrSystemDateNotSet
		}
		return time.Time{}, err
	}
	date, err := time.Parse(DateLayout, param.Value)
	if err != nil {
		return time.Time{}, fmt.Errorf("paramstore: parse %q: %w", param.Value, shared.ErrSystemDateNotSet)
	}
	return date, nil
}

// SetSystemDate stores the business date.
func (s *Service) SetSystemDate(ctx context.Context, date time.Time, userID string) error {
	value := date.Format(DateLayout)
	if err := s.repo.Upsert(ctx, Parameter{Key: KeySystemDate, Value: value, UpdatedBy: userID}); err != nil {
		return err
	}
	s.logger.Info("system date set", slog.String("date", value), slog.String("user", userID))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			User:     userID,
			Action:   "paramstore.set_system_date",
			Entity:   "parameter",
			EntityID: KeySystemDate,
			Meta:     map[string]any{"value": value},
		})
	}
	return nil
}

// IncrementSystemDate moves the business date forward one day and stamps the
// day-end completion markers. Returns the new date.
func (s *Service) IncrementSystemDate(ctx context.Context, userID string) (time.Time, error) {
	current, err := s.SystemDate(ctx)
	if err != nil {
		return time.Time{}, err
	}
	next := current.AddDate(0, 0, 1)
	if err := s.SetSystemDate(ctx, next, userID); err != nil {
		return time.Time{}, err
	}
	markers := []Parameter{
		{Key: KeyLastEODDate, Value: current.Format(DateLayout), UpdatedBy: userID},
		{Key: KeyLastEODTimestamp, Value: time.Now().Format(time.RFC3339), UpdatedBy: userID},
		{Key: KeyLastEODUser, Value: userID, UpdatedBy: userID},
	}
	for _, m := range markers {
		if err := s.repo.Upsert(ctx, m); err != nil {
			return time.Time{}, err
		}
	}
	s.logger.Info("system date incremented",
		slog.String("from", current.Format(DateLayout)),
		slog.String("to", next.Format(DateLayout)))
	return next, nil
}

// EODAdminUser returns the configured day-end operator, falling back to the
// application default when the parameter is absent.
func (s *Service) EODAdminUser(ctx context.Context) string {
	param, err := s.repo.Get(ctx, KeyEODAdminUser)
	if err != nil || param.Value == "" {
		return s.defaultEODAdmin
	}
	return param.Value
}

// Get reads an arbitrary parameter.
func (s *Service) Get(ctx context.Context, key string) (Parameter, error) {
	return s.repo.Get(ctx, key)
}

// Set stores an arbitrary parameter.
func (s *Service) Set(ctx context.Context, key, value, userID string) error {
	return s.repo.Upsert(ctx, Parameter{Key: key, Value: value, UpdatedBy: userID})
}
