// Package fx implements the multi-currency engine: weighted average exchange
// position keeping, realised settlement on sales, nostro revaluation and the
// next-day revaluation reversal.
package fx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmbank/moneymarket/internal/sequence"
	"github.com/mmbank/moneymarket/internal/shared"
)

// Leg is a position-book posting appended to an existing ledger transaction.
type Leg struct {
	LineID    string
	AccountNo string
	GLNum     string
	DrCr      string
	Ccy       string
	FcyAmt    float64
	LcyAmt    float64
	TranDate  time.Time
	ValueDate time.Time
	Narration string
}

// LegWriter persists position legs into the ledger.
type LegWriter interface {
	AppendLegs(ctx context.Context, legs []Leg) error
}

// AuditPort records settlement events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives WAE maintenance and settlement.
type Service struct {
	repo    Repository
	rates   *RateService
	legs    LegWriter
	audit   AuditPort
	logger  *slog.Logger
	baseCcy string
}

// NewService constructs the Service.
func NewService(repo Repository, rates *RateService, legs LegWriter, audit AuditPort, logger *slog.Logger, baseCcy string) *Service {
	return &Service{repo: repo, rates: rates, legs: legs, audit: audit, logger: logger, baseCcy: baseCcy}
}

// MixedInput describes the foreign leg of a mixed base/foreign transaction.
// Amounts are absolute; Direction carries the sign.
type MixedInput struct {
	BaseTranID string
	Ccy        string
	FcyAmount  float64
	LcyAmount  float64
	DealRate   float64
	Direction  Direction
	TranDate   time.Time
	ValueDate  time.Time
	UserID     string
}

// BaseTranID strips the -n leg suffix from a line identifier.
func BaseTranID(lineID string) string {
	if idx := strings.LastIndex(lineID, "-"); idx > 0 {
		return lineID[:idx]
	}
	return lineID
}

// WAERate returns the running weighted average rate for a currency, zero when
// the pair has no position yet.
func (s *Service) WAERate(ctx context.Context, ccy string) (float64, error) {
	pos, err := s.repo.GetWAE(ctx, ccy+"/"+s.baseCcy)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return pos.WAERate, nil
}

// Positions returns every running exchange position.
func (s *Service) Positions(ctx context.Context) ([]WAEPosition, error) {
	return s.repo.ListWAEPositions(ctx)
}

// ProcessMixed posts the position-book legs for a mixed transaction and
// maintains the WAE position. A SELL returns the realised settlement, a BUY
// returns nil.
func (s *Service) ProcessMixed(ctx context.Context, in MixedInput) (*Settlement, error) {
	glNum := PositionGL(in.Ccy)
	if glNum == "" {
		return nil, fmt.Errorf("fx: currency %s has no position GL: %w", in.Ccy, shared.ErrBusinessRule)
	}
	if in.FcyAmount <= 0 {
		return nil, fmt.Errorf("fx: FCY amount must be positive: %w", shared.ErrValidation)
	}
	dealRate := in.DealRate
	if dealRate == 0 {
		dealRate = shared.Round4(in.LcyAmount / in.FcyAmount)
	}

	switch in.Direction {
	case DirectionBuy:
		return nil, s.processBuy(ctx, in, glNum, dealRate)
	case DirectionSell:
		return s.processSell(ctx, in, glNum, dealRate)
	default:
		return nil, fmt.Errorf("fx: unknown direction %q: %w", in.Direction, shared.ErrValidation)
	}
}

// processBuy books the FCY acquisition at the deal rate and folds it into the
// weighted average: wae' = (lcy + Δlcy) / (fcy + Δfcy).
func (s *Service) processBuy(ctx context.Context, in MixedInput, glNum string, dealRate float64) error {
	legs := []Leg{
		{
			LineID:    sequence.LineID(in.BaseTranID, 3),
			AccountNo: glNum,
			GLNum:     glNum,
			DrCr:      "C",
			Ccy:       in.Ccy,
			FcyAmt:    in.FcyAmount,
			LcyAmt:    in.LcyAmount,
			TranDate:  in.TranDate,
			ValueDate: in.ValueDate,
			Narration: fmt.Sprintf("Position %s purchase @ %.4f", in.Ccy, dealRate),
		},
		{
			LineID:    sequence.LineID(in.BaseTranID, 4),
			AccountNo: glNum,
			GLNum:     glNum,
			DrCr:      "D",
			Ccy:       s.baseCcy,
			FcyAmt:    0,
			LcyAmt:    in.LcyAmount,
			TranDate:  in.TranDate,
			ValueDate: in.ValueDate,
			Narration: fmt.Sprintf("Position %s purchase mirror", in.Ccy),
		},
	}
	if err := s.legs.AppendLegs(ctx, legs); err != nil {
		return err
	}

	pair := in.Ccy + "/" + s.baseCcy
	pos, err := s.repo.GetWAE(ctx, pair)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	pos.CcyPair = pair
	pos.FcyBalance = shared.Round2(pos.FcyBalance + in.FcyAmount)
	pos.LcyBalance = shared.Round2(pos.LcyBalance + in.LcyAmount)
	if pos.FcyBalance == 0 {
		pos.WAERate = 0
	} else {
		pos.WAERate = shared.Round4(pos.LcyBalance / pos.FcyBalance)
	}
	if err := s.repo.UpsertWAE(ctx, pos); err != nil {
		return err
	}

	s.logger.Info("wae updated on buy",
		slog.String("pair", pair),
		slog.Float64("fcy", pos.FcyBalance),
		slog.Float64("wae", pos.WAERate))
	return nil
}

// processSell books the FCY release at the running WAE rate and realises the
// difference against the deal rate.
func (s *Service) processSell(ctx context.Context, in MixedInput, glNum string, dealRate float64) (*Settlement, error) {
	pair := in.Ccy + "/" + s.baseCcy
	waeRate, err := s.WAERate(ctx, in.Ccy)
	if err != nil {
		return nil, err
	}
	lcyAtWAE := shared.Round2(in.FcyAmount * waeRate)

	legs := []Leg{
		{
			LineID:    sequence.LineID(in.BaseTranID, 3),
			AccountNo: glNum,
			GLNum:     glNum,
			DrCr:      "D",
			Ccy:       in.Ccy,
			FcyAmt:    in.FcyAmount,
			LcyAmt:    lcyAtWAE,
			TranDate:  in.TranDate,
			ValueDate: in.ValueDate,
			Narration: fmt.Sprintf("Position %s sale @ WAE %.4f", in.Ccy, waeRate),
		},
		{
			LineID:    sequence.LineID(in.BaseTranID, 4),
			AccountNo: glNum,
			GLNum:     glNum,
			DrCr:      "C",
			Ccy:       s.baseCcy,
			FcyAmt:    0,
			LcyAmt:    lcyAtWAE,
			TranDate:  in.TranDate,
			ValueDate: in.ValueDate,
			Narration: fmt.Sprintf("Position %s sale mirror", in.Ccy),
		},
	}

	settlementAmt := shared.Round2(in.FcyAmount * (dealRate - waeRate))
	var settlement *Settlement
	if settlementAmt != 0 {
		sType := SettlementGain
		abs := settlementAmt
		if settlementAmt < 0 {
			sType = SettlementLoss
			abs = -settlementAmt
		}

		if sType == SettlementGain {
			legs = append(legs,
				Leg{
					LineID:    sequence.LineID(in.BaseTranID, 5),
					AccountNo: glNum,
					GLNum:     glNum,
					DrCr:      "D",
					Ccy:       s.baseCcy,
					LcyAmt:    abs,
					TranDate:  in.TranDate,
					ValueDate: in.ValueDate,
					Narration: "Settlement gain funding",
				},
				Leg{
					LineID:    sequence.LineID(in.BaseTranID, 6),
					AccountNo: RealisedGainGL,
					GLNum:     RealisedGainGL,
					DrCr:      "C",
					Ccy:       s.baseCcy,
					LcyAmt:    abs,
					TranDate:  in.TranDate,
					ValueDate: in.ValueDate,
					Narration: "Realised FX gain",
				})
		} else {
			legs = append(legs,
				Leg{
					LineID:    sequence.LineID(in.BaseTranID, 5),
					AccountNo: RealisedLossGL,
					GLNum:     RealisedLossGL,
					DrCr:      "D",
					Ccy:       s.baseCcy,
					LcyAmt:    abs,
					TranDate:  in.TranDate,
					ValueDate: in.ValueDate,
					Narration: "Realised FX loss",
				},
				Leg{
					LineID:    sequence.LineID(in.BaseTranID, 6),
					AccountNo: glNum,
					GLNum:     glNum,
					DrCr:      "C",
					Ccy:       s.baseCcy,
					LcyAmt:    abs,
					TranDate:  in.TranDate,
					ValueDate: in.ValueDate,
					Narration: "Settlement loss funding",
				})
		}

		settlement = &Settlement{
			ID:         uuid.NewString(),
			BaseTranID: BaseTranID(in.BaseTranID),
			CcyPair:    pair,
			FcyAmount:  in.FcyAmount,
			DealRate:   dealRate,
			WAERate:    waeRate,
			Amount:     abs,
			Type:       sType,
			Status:     "POSTED",
			Narration: fmt.Sprintf("Settlement %s: FCY %.2f × (Deal %.4f - WAE %.4f) = %.2f",
				sType, in.FcyAmount, dealRate, waeRate, settlementAmt),
			TranDate: in.TranDate,
		}
	}

	if err := s.legs.AppendLegs(ctx, legs); err != nil {
		return nil, err
	}
	if settlement != nil {
		if err := s.repo.InsertSettlement(ctx, *settlement); err != nil {
			return nil, err
		}
		if s.audit != nil {
			_ = s.audit.Record(ctx, shared.AuditLog{
				User:     in.UserID,
				Action:   "fx.settlement",
				Entity:   "settlement",
				EntityID: settlement.ID,
				Meta: map[string]any{
					"pair": pair, "type": string(settlement.Type), "amount": settlement.Amount,
				},
			})
		}
		s.logger.Info("settlement realised",
			slog.String("pair", pair),
			slog.String("type", string(settlement.Type)),
			slog.Float64("amount", settlement.Amount))
	}

	// A sale never moves the weighted average rate, only the balances.
	pos, err := s.repo.GetWAE(ctx, pair)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return settlement, nil
		}
		return nil, err
	}
	pos.FcyBalance = shared.Round2(pos.FcyBalance - in.FcyAmount)
	pos.LcyBalance = shared.Round2(pos.LcyBalance - lcyAtWAE)
	if err := s.repo.UpsertWAE(ctx, pos); err != nil {
		return nil, err
	}
	return settlement, nil
}
