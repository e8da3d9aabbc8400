package store

import (
	"fmt"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/models"
)

// terminalTargets may be reached from any non-terminal state.
var terminalTargets = []consts.LoanStatus{
	consts.StatusRejected,
	consts.StatusCancelled,
	consts.StatusFailed,
}

// transitions is the central lifecycle table. A pair absent here (and
// not a non-terminal→terminal pair) is an illegal transition.
var transitions = map[consts.LoanStatus][]consts.LoanStatus{
	consts.StatusInitialOffer:          {consts.StatusOfferSubmitted},
	consts.StatusOfferSubmitted:        {consts.StatusInitialApprovalSent},
	consts.StatusInitialApprovalSent:   {consts.StatusApproved},
	consts.StatusApproved:              {consts.StatusFinalApprovalReceived},
	consts.StatusFinalApprovalReceived: {consts.StatusClientCreated},
	consts.StatusClientCreated:         {consts.StatusLoanCreated},
	consts.StatusLoanCreated:           {consts.StatusWaitingForLiquidation, consts.StatusDisbursed},
	// WAITING_FOR_LIQUIDATION may close straight to COMPLETED: a
	// takeover payoff settles the loan without a disbursement of its
	// own.
	consts.StatusWaitingForLiquidation: {consts.StatusLoanCreated, consts.StatusDisbursed, consts.StatusCompleted},
	consts.StatusDisbursed:             {consts.StatusCompleted, consts.StatusDisbursementFailureNotificationSent},

	consts.StatusDisbursementFailureNotificationSent: {consts.StatusLoanCreated},

	consts.StatusCompleted: {},
	consts.StatusRejected:  {},
	consts.StatusCancelled: {},
	consts.StatusFailed:    {},
}

// CanTransition reports whether from→to is allowed by the lifecycle table.
func CanTransition(from, to consts.LoanStatus) bool {
	if from.Terminal() {
		return false
	}
	for _, t := range terminalTargets {
		if to == t {
			return true
		}
	}
	for _, t := range transitions[from] {
		if to == t {
			return true
		}
	}
	return false
}

// ValidateTransition returns a ConflictError for an illegal pair.
func ValidateTransition(from, to consts.LoanStatus) error {
	if !CanTransition(from, to) {
		return models.NewConflictError(fmt.Sprintf("illegal transition %s -> %s", from, to))
	}
	return nil
}
