package fx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mmbank/moneymarket/internal/platform/cache"
	"github.com/mmbank/moneymarket/internal/shared"
)

// RateService resolves exchange rates with a short-lived cache in front of
// fx_rate_master. All pairs are quoted against the base currency.
type RateService struct {
	repo     Repository
	cache    *cache.TTLCache
	baseCcy  string
	logger   *slog.Logger
	validate *validator.Validate
}

// NewRateService constructs the RateService. The cache may be nil.
func NewRateService(repo Repository, c *cache.TTLCache, baseCcy string, logger *slog.Logger) *RateService {
	return &RateService{
		repo:     repo,
		cache:    c,
		baseCcy:  baseCcy,
		logger:   logger,
		validate: validator.New(),
	}
}

// Pair builds the quoted pair for a currency, e.g. USD/BDT.
func (s *RateService) Pair(ccy string) string {
	return ccy + "/" + s.baseCcy
}

// MidRate returns the latest mid rate effective on or before the date. The
// base currency converts at 1.
func (s *RateService) MidRate(ctx context.Context, ccy string, asOf time.Time) (float64, error) {
	rate, err := s.RateInfo(ctx, ccy, asOf)
	if err != nil {
		return 0, err
	}
	return rate.MidRate, nil
}

// RateInfo returns the full rate row.
func (s *RateService) RateInfo(ctx context.Context, ccy string, asOf time.Time) (Rate, error) {
	if ccy == s.baseCcy {
		return Rate{
			CcyPair:     s.baseCcy + "/" + s.baseCcy,
			RateDate:    asOf,
			BuyingRate:  1,
			MidRate:     1,
			SellingRate: 1,
		}, nil
	}

	key := fmt.Sprintf("%s:%s", s.Pair(ccy), asOf.Format("2006-01-02"))
	var cached Rate
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn("rate cache read failed", slog.Any("error", err))
	} else if hit {
		return cached, nil
	}

	rate, err := s.repo.LatestRate(ctx, s.Pair(ccy), asOf)
	if err != nil {
		return Rate{}, err
	}
	if err := s.cache.Set(ctx, key, rate); err != nil {
		s.logger.Warn("rate cache write failed", slog.Any("error", err))
	}
	return rate, nil
}

// ConvertToLCY converts a foreign amount to the base currency at mid, 2dp.
func (s *RateService) ConvertToLCY(ctx context.Context, amount float64, ccy string, asOf time.Time) (float64, error) {
	if amount == 0 {
		return 0, nil
	}
	mid, err := s.MidRate(ctx, ccy, asOf)
	if err != nil {
		return 0, err
	}
	return shared.Round2(amount * mid), nil
}

// IngestRateInput carries a new rate quote.
type IngestRateInput struct {
	Ccy         string    `json:"ccy" validate:"required,len=3,alpha"`
	RateDate    time.Time `json:"rateDate" validate:"required"`
	BuyingRate  float64   `json:"buyingRate" validate:"required,gt=0"`
	MidRate     float64   `json:"midRate" validate:"required,gt=0"`
	SellingRate float64   `json:"sellingRate" validate:"required,gt=0"`
	Source      string    `json:"source"`
}

// Ingest validates and stores a rate quote. Buying must sit below mid, mid
// below selling.
func (s *RateService) Ingest(ctx context.Context, in IngestRateInput) (Rate, error) {
	if err := s.validate.Struct(in); err != nil {
		return Rate{}, fmt.Errorf("fx: %v: %w", err, shared.ErrValidation)
	}
	if in.Ccy == s.baseCcy {
		return Rate{}, fmt.Errorf("fx: base currency is not quoted: %w", shared.ErrValidation)
	}
	if !(in.BuyingRate < in.MidRate && in.MidRate < in.SellingRate) {
		return Rate{}, fmt.Errorf("fx: rates must satisfy buying < mid < selling: %w", shared.ErrBusinessRule)
	}
	rate := Rate{
		CcyPair:     s.Pair(in.Ccy),
		RateDate:    in.RateDate,
		BuyingRate:  in.BuyingRate,
		MidRate:     in.MidRate,
		SellingRate: in.SellingRate,
		Source:      in.Source,
	}
	if err := s.repo.InsertRate(ctx, rate); err != nil {
		return Rate{}, err
	}
	key := fmt.Sprintf("%s:%s", rate.CcyPair, in.RateDate.Format("2006-01-02"))
	_ = s.cache.Invalidate(ctx, key)
	s.logger.Info("rate ingested", slog.String("pair", rate.CcyPair), slog.Float64("mid", rate.MidRate))
	return rate, nil
}
