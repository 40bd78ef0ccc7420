package fx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmbank/moneymarket/internal/sequence"
	"github.com/mmbank/moneymarket/internal/shared"
)

// Revaluer marks foreign currency books to market at day end and reverses the
// marks the following morning.
type Revaluer struct {
	repo   Repository
	rates  *RateService
	legs   LegWriter
	logger *slog.Logger
}

// NewRevaluer constructs the Revaluer.
func NewRevaluer(repo Repository, rates *RateService, legs LegWriter, logger *slog.Logger) *Revaluer {
	return &Revaluer{repo: repo, rates: rates, legs: legs, logger: logger}
}

// Revalue marks every open currency position to the mid rate for the date.
// Gains credit the unrealised gain book, losses debit the unrealised loss
// book; the nostro side always takes the other leg.
func (r *Revaluer) Revalue(ctx context.Context, date time.Time) (RevalResult, error) {
	positions, err := r.repo.ListWAEPositions(ctx)
	if err != nil {
		return RevalResult{}, err
	}

	result := RevalResult{RevalDate: date}
	for _, pos := range positions {
		ccy := strings.SplitN(pos.CcyPair, "/", 2)[0]
		glNum := NostroGL(ccy)
		if glNum == "" || pos.FcyBalance == 0 {
			continue
		}

		mid, err := r.rates.MidRate(ctx, ccy, date)
		if err != nil {
			return RevalResult{}, fmt.Errorf("fx: revalue %s: %w", pos.CcyPair, err)
		}

		// Booked value is the WAE carrying amount. When an earlier mark still
		// stands (it was never reversed at start of day) the baseline moves to
		// its MTM so only the increment is posted.
		bookedLcy := pos.LcyBalance
		if prev, ok, err := r.repo.PreviousRevalMtm(ctx, glNum, date); err != nil {
			return RevalResult{}, err
		} else if ok {
			bookedLcy = prev
		}

		mtmLcy := shared.Round2(pos.FcyBalance * mid)
		diff := shared.Round2(mtmLcy - bookedLcy)
		if diff == 0 {
			continue
		}

		entry := RevalEntry{
			TranID:     sequence.RevalID(date),
			RevalDate:  date,
			CcyPair:    pos.CcyPair,
			GLNum:      glNum,
			BookedLcy:  bookedLcy,
			MtmLcy:     mtmLcy,
			Difference: diff,
			Status:     RevalPosted,
		}
		if diff > 0 {
			entry.DrAccount = glNum
			entry.CrAccount = UnrealisedGainGL
		} else {
			entry.DrAccount = UnrealisedLossGL
			entry.CrAccount = glNum
		}

		if err := r.postRevalLegs(ctx, entry, false); err != nil {
			return RevalResult{}, err
		}
		if err := r.repo.InsertRevalEntry(ctx, entry); err != nil {
			return RevalResult{}, err
		}

		if diff > 0 {
			result.TotalGain = shared.Round2(result.TotalGain + diff)
		} else {
			result.TotalLoss = shared.Round2(result.TotalLoss - diff)
		}
		result.EntriesPosted++
		result.Entries = append(result.Entries, entry)

		r.logger.Info("position revalued",
			slog.String("pair", pos.CcyPair),
			slog.Float64("mtm", mtmLcy),
			slog.Float64("difference", diff))
	}
	return result, nil
}

// ReverseRevaluations backs out every revaluation posted on the given date,
// normally called at start of the following day.
func (r *Revaluer) ReverseRevaluations(ctx context.Context, revalDate, onDate time.Time) (int, error) {
	entries, err := r.repo.ListPostedRevals(ctx, revalDate)
	if err != nil {
		return 0, err
	}

	reversed := 0
	for _, entry := range entries {
		reversal := entry
		reversal.TranID = sequence.ReversalID(entry.TranID)
		reversal.RevalDate = onDate
		// Flipped orientation backs the mark out. The reversal row is stored
		// terminal so the next morning's sweep does not pick it up again.
		reversal.DrAccount, reversal.CrAccount = entry.CrAccount, entry.DrAccount
		reversal.Difference = -entry.Difference
		reversal.Status = RevalReversed
		reversal.ReversalTranID = ""

		if err := r.postRevalLegs(ctx, reversal, true); err != nil {
			return reversed, err
		}
		if err := r.repo.InsertRevalEntry(ctx, reversal); err != nil {
			return reversed, err
		}
		if err := r.repo.MarkRevalReversed(ctx, entry.TranID, reversal.TranID, onDate); err != nil {
			return reversed, err
		}
		reversed++
	}

	if reversed > 0 {
		r.logger.Info("revaluations reversed",
			slog.String("reval_date", revalDate.Format("2006-01-02")),
			slog.Int("count", reversed))
	}
	return reversed, nil
}

func (r *Revaluer) postRevalLegs(ctx context.Context, entry RevalEntry, reversal bool) error {
	amount := entry.Difference
	if amount < 0 {
		amount = -amount
	}
	narration := fmt.Sprintf("MTM revaluation %s", entry.CcyPair)
	if reversal {
		narration = fmt.Sprintf("MTM revaluation reversal %s", entry.CcyPair)
	}
	legs := []Leg{
		{
			LineID:    entry.TranID + "-1",
			AccountNo: entry.DrAccount,
			GLNum:     entry.DrAccount,
			DrCr:      "D",
			LcyAmt:    amount,
			TranDate:  entry.RevalDate,
			ValueDate: entry.RevalDate,
			Narration: narration,
		},
		{
			LineID:    entry.TranID + "-2",
			AccountNo: entry.CrAccount,
			GLNum:     entry.CrAccount,
			DrCr:      "C",
			LcyAmt:    amount,
			TranDate:  entry.RevalDate,
			ValueDate: entry.RevalDate,
			Narration: narration,
		},
	}
	return r.legs.AppendLegs(ctx, legs)
}
