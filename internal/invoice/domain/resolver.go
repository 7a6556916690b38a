package domain

import (
	"context"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/adbilling/internal/catalog/domain"
)

// AmountResolver derives the pre-tax amount to bill a campaign. ok is false
// when the resolver has no opinion and the next one in a chain should run.
type AmountResolver interface {
	Resolve(ctx context.Context, campaign catalogdomain.Campaign) (amount decimal.Decimal, source AmountSource, ok bool, err error)
}

type AmountResolverFunc func(ctx context.Context, campaign catalogdomain.Campaign) (decimal.Decimal, AmountSource, bool, error)

func (f AmountResolverFunc) Resolve(ctx context.Context, campaign catalogdomain.Campaign) (decimal.Decimal, AmountSource, bool, error) {
	return f(ctx, campaign)
}

// CostDataSpend bills recorded spend when the campaign cost data carries a
// positive spend figure.
var CostDataSpend AmountResolverFunc = func(_ context.Context, campaign catalogdomain.Campaign) (decimal.Decimal, AmountSource, bool, error) {
	spend, ok := campaign.Spend()
	if !ok || !spend.IsPositive() {
		return decimal.Zero, "", false, nil
	}
	return spend, AmountSourceCostData, true, nil
}

// Budget bills the campaign budget.
var Budget AmountResolverFunc = func(_ context.Context, campaign catalogdomain.Campaign) (decimal.Decimal, AmountSource, bool, error) {
	return campaign.Budget, AmountSourceBudget, true, nil
}

// ResolverChain tries each resolver in order and returns the first answer.
type ResolverChain []AmountResolver

func (c ResolverChain) Resolve(ctx context.Context, campaign catalogdomain.Campaign) (decimal.Decimal, AmountSource, bool, error) {
	for _, r := range c {
		amount, source, ok, err := r.Resolve(ctx, campaign)
		if err != nil {
			return decimal.Zero, "", false, err
		}
		if ok {
			return amount, source, true, nil
		}
	}
	return decimal.Zero, "", false, nil
}

// DefaultAmountResolver prefers recorded spend and falls back to budget.
func DefaultAmountResolver() AmountResolver {
	return ResolverChain{CostDataSpend, Budget}
}
