package calculator

import (
	"cmp"
	"slices"

	"github.com/mmynk/groupledger/internal/apperrors"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/money"
)

// SplitEven divides total among userIDs.
//
// Every user gets floor(total/n) minor units; the remainder is handed out one
// unit at a time to the users that sort first. The shares come back ordered by
// ascending user id and always sum to total.
func SplitEven(total money.Money, userIDs []string) ([]models.Share, error) {
	if !total.IsPositive() {
		return nil, apperrors.New(apperrors.KindInvalidSplit, "amount must be positive, got %s", total)
	}
	if len(userIDs) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidSplit, "must split among at least one member")
	}

	ids := slices.Clone(userIDs)
	slices.Sort(ids)
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] {
			return nil, apperrors.New(apperrors.KindInvalidSplit, "user %s listed more than once", ids[i])
		}
	}

	parts, err := total.Split(len(ids))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidSplit, err, "failed to split %s", total)
	}

	shares := make([]models.Share, len(ids))
	for i, id := range ids {
		shares[i] = models.Share{UserID: id, Amount: parts[i]}
	}
	return shares, nil
}

// NormalizeShares checks explicit shares against amount and returns them
// sorted by user id.
//
// Shares must be non-negative, no larger than amount, in the amount's
// currency, name each user at most once, and sum to amount exactly.
func NormalizeShares(amount money.Money, shares []models.Share) ([]models.Share, error) {
	if !amount.IsPositive() {
		return nil, apperrors.New(apperrors.KindInvalidSplit, "amount must be positive, got %s", amount)
	}
	if len(shares) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidSplit, "at least one share is required")
	}

	out := slices.Clone(shares)
	slices.SortFunc(out, func(a, b models.Share) int {
		return cmp.Compare(a.UserID, b.UserID)
	})

	total := money.Zero(amount.Currency)
	for i, s := range out {
		if s.UserID == "" {
			return nil, apperrors.New(apperrors.KindInvalidSplit, "share without user")
		}
		if i > 0 && out[i-1].UserID == s.UserID {
			return nil, apperrors.New(apperrors.KindInvalidSplit, "user %s has more than one share", s.UserID)
		}
		if !s.Amount.SameCurrency(amount) {
			return nil, apperrors.New(apperrors.KindInvalidSplit, "share of %s is in %q, expense is in %q", s.UserID, s.Amount.Currency, amount.Currency)
		}
		if s.Amount.IsNegative() {
			return nil, apperrors.New(apperrors.KindInvalidSplit, "share of %s is negative", s.UserID)
		}
		if s.Amount.Cmp(amount) > 0 {
			return nil, apperrors.New(apperrors.KindInvalidSplit, "share of %s exceeds the expense", s.UserID)
		}
		var err error
		total, err = total.CheckedAdd(s.Amount)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInvalidSplit, err, "shares overflow")
		}
	}

	if total.Cmp(amount) != 0 {
		return nil, apperrors.New(apperrors.KindInvalidSplit, "shares sum to %s, expense is %s", total, amount)
	}
	return out, nil
}
