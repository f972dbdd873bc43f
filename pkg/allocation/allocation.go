// Package allocation distributes an integer budget over normalized scores.
//
// Amounts are computed with the largest-remainder method over exact
// rationals: every identity first receives floor(score·budget/total), then
// the units left over go one each to the identities with the largest
// fractional remainders, ties broken by identity in ascending order. The
// amounts always sum to the budget exactly and the result depends only on
// the inputs.
package allocation

import (
	"cmp"
	"math"
	"math/big"
	"slices"

	"github.com/matzehuels/deprank/pkg/errors"
)

// Share is one identity's amount.
type Share struct {
	Identity string
	Amount   int64
	Score    float64
}

// Allocate splits budget over scores. Identities with a zero amount are
// omitted. A zero budget yields no shares. Scores need not sum to one; they
// are normalized by their total.
//
// Allocate fails with ALLOCATION_BUDGET_INVALID for a negative budget or an
// invalid score, and with ALLOCATION_NO_RECIPIENTS when the budget is
// positive but no identity has a positive score.
func Allocate(scores map[string]float64, budget int64) ([]Share, error) {
	if budget < 0 {
		return nil, errors.New(errors.ErrCodeBudgetInvalid, "budget must not be negative, got %d", budget)
	}

	ids := make([]string, 0, len(scores))
	for id, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			return nil, errors.New(errors.ErrCodeBudgetInvalid, "invalid score %v for %s", s, id)
		}
		if s > 0 {
			ids = append(ids, id)
		}
	}
	if budget == 0 {
		return nil, nil
	}
	if len(ids) == 0 {
		return nil, errors.New(errors.ErrCodeNoRecipients, "no identity has a positive score")
	}
	slices.Sort(ids)

	total := new(big.Rat)
	exact := make([]*big.Rat, len(ids))
	for i, id := range ids {
		exact[i] = new(big.Rat).SetFloat64(scores[id])
		total.Add(total, exact[i])
	}

	type part struct {
		idx       int
		amount    int64
		remainder *big.Rat
	}
	parts := make([]part, len(ids))
	bigBudget := new(big.Rat).SetInt64(budget)
	assigned := int64(0)
	for i := range ids {
		q := new(big.Rat).Mul(exact[i], bigBudget)
		q.Quo(q, total)
		floor := new(big.Int).Quo(q.Num(), q.Denom())
		rem := new(big.Rat).Sub(q, new(big.Rat).SetInt(floor))
		parts[i] = part{idx: i, amount: floor.Int64(), remainder: rem}
		assigned += parts[i].amount
	}

	order := make([]int, len(parts))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if c := parts[b].remainder.Cmp(parts[a].remainder); c != 0 {
			return c
		}
		return cmp.Compare(ids[a], ids[b])
	})
	for left := budget - assigned; left > 0; left-- {
		parts[order[0]].amount++
		order = order[1:]
	}

	out := make([]Share, 0, len(ids))
	for i, id := range ids {
		if parts[i].amount == 0 {
			continue
		}
		out = append(out, Share{Identity: id, Amount: parts[i].amount, Score: scores[id]})
	}
	return out, nil
}

// Total sums the amounts of shares.
func Total(shares []Share) int64 {
	var n int64
	for _, s := range shares {
		n += s.Amount
	}
	return n
}
