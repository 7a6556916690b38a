package domain

// Cascade describes what a payment status change does to linked invoices.
type Cascade int

const (
	CascadeNone Cascade = iota
	// CascadeSettle moves every linked invoice to PAID.
	CascadeSettle
	// CascadeReopen moves every linked invoice back to UNPAID and detaches it.
	CascadeReopen
)

var paymentTransitions = map[PaymentStatus]map[PaymentStatus]Cascade{
	PaymentStatusPending: {
		PaymentStatusCompleted: CascadeSettle,
		PaymentStatusFailed:    CascadeNone,
	},
	PaymentStatusFailed: {
		PaymentStatusPending:   CascadeNone,
		PaymentStatusCompleted: CascadeSettle,
	},
	PaymentStatusCompleted: {
		PaymentStatusRefunded: CascadeReopen,
	},
	PaymentStatusRefunded: {},
}

// EnsurePaymentCanTransition returns the cascade for from -> to, or
// ErrInvalidPaymentTransition. A same-status update is a no-op.
func EnsurePaymentCanTransition(from, to PaymentStatus) (Cascade, error) {
	if from == to {
		return CascadeNone, nil
	}
	next, ok := paymentTransitions[from]
	if !ok {
		return CascadeNone, ErrInvalidPaymentTransition.WithMessage("unknown payment status %s", from)
	}
	cascade, ok := next[to]
	if !ok {
		return CascadeNone, ErrInvalidPaymentTransition.WithMessage("payment cannot move from %s to %s", from, to)
	}
	return cascade, nil
}
