package domain

import (
	"context"
	"strings"

	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	"github.com/smallbiznis/adbilling/pkg/errs"
)

type Action string

const (
	ActionProcess  Action = "process"
	ActionMarkPaid Action = "mark_paid"
	ActionCancel   Action = "cancel"
)

func ParseAction(value string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(value)))
	_, ok := a.Target()
	return a, ok
}

type ActionRequest struct {
	Action        string `json:"action" validate:"required"`
	TransactionID string `json:"transaction_id" validate:"max=128"`
	PayoutMethod  string `json:"payout_method" validate:"max=32"`
	Notes         string `json:"notes" validate:"max=2000"`
}

type Service interface {
	ApplyAction(ctx context.Context, earningID string, req ActionRequest) (earningdomain.PartnerEarning, error)
}

var (
	ErrInvalidAction           = errs.ValidationField("action", "invalid_payout_action")
	ErrTransactionIDRequired   = errs.ValidationField("transaction_id", "transaction_id_required")
	ErrPayoutMethodRequired    = errs.ValidationField("payout_method", "payout_method_required")
	ErrInvalidPayoutTransition = errs.InvariantViolation("invalid_payout_transition")
)
