// Package domain holds the payout state machine over partner earnings.
package domain

import (
	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
)

var transitions = map[earningdomain.EarningStatus]map[earningdomain.EarningStatus]struct{}{
	earningdomain.EarningStatusPending: {
		earningdomain.EarningStatusProcessed: {},
		earningdomain.EarningStatusPaid:      {},
		earningdomain.EarningStatusCancelled: {},
	},
	earningdomain.EarningStatusProcessed: {
		earningdomain.EarningStatusPaid:      {},
		earningdomain.EarningStatusCancelled: {},
	},
}

// EnsureEarningCanTransition rejects every move not in the payout table.
// PAID and CANCELLED are terminal.
func EnsureEarningCanTransition(from, to earningdomain.EarningStatus) error {
	if _, ok := earningdomain.ParseEarningStatus(string(to)); !ok {
		return earningdomain.ErrInvalidStatus
	}
	if _, ok := transitions[from][to]; !ok {
		return ErrInvalidPayoutTransition.WithMessage("cannot move payout from %s to %s", from, to)
	}
	return nil
}

// Target maps an action to the status it moves to.
func (a Action) Target() (earningdomain.EarningStatus, bool) {
	switch a {
	case ActionProcess:
		return earningdomain.EarningStatusProcessed, true
	case ActionMarkPaid:
		return earningdomain.EarningStatusPaid, true
	case ActionCancel:
		return earningdomain.EarningStatusCancelled, true
	default:
		return "", false
	}
}
