package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/models"
)

var allStatuses = []consts.LoanStatus{
	consts.StatusInitialOffer,
	consts.StatusOfferSubmitted,
	consts.StatusInitialApprovalSent,
	consts.StatusApproved,
	consts.StatusFinalApprovalReceived,
	consts.StatusClientCreated,
	consts.StatusLoanCreated,
	consts.StatusWaitingForLiquidation,
	consts.StatusDisbursed,
	consts.StatusDisbursementFailureNotificationSent,
	consts.StatusCompleted,
	consts.StatusRejected,
	consts.StatusCancelled,
	consts.StatusFailed,
}

func TestHappyPathTransitions(t *testing.T) {
	path := []consts.LoanStatus{
		consts.StatusInitialOffer,
		consts.StatusOfferSubmitted,
		consts.StatusInitialApprovalSent,
		consts.StatusApproved,
		consts.StatusFinalApprovalReceived,
		consts.StatusClientCreated,
		consts.StatusLoanCreated,
		consts.StatusDisbursed,
		consts.StatusCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func TestLiquidationDetour(t *testing.T) {
	assert.True(t, CanTransition(consts.StatusLoanCreated, consts.StatusWaitingForLiquidation))
	assert.True(t, CanTransition(consts.StatusWaitingForLiquidation, consts.StatusLoanCreated))
	assert.True(t, CanTransition(consts.StatusWaitingForLiquidation, consts.StatusDisbursed))
	assert.True(t, CanTransition(consts.StatusWaitingForLiquidation, consts.StatusCompleted))
}

func TestDisbursementFailureRetryLoop(t *testing.T) {
	assert.True(t, CanTransition(consts.StatusDisbursed, consts.StatusDisbursementFailureNotificationSent))
	assert.True(t, CanTransition(consts.StatusDisbursementFailureNotificationSent, consts.StatusLoanCreated))
	assert.False(t, CanTransition(consts.StatusDisbursementFailureNotificationSent, consts.StatusCompleted))
}

func TestTerminalReachableFromAnyNonTerminal(t *testing.T) {
	for _, from := range allStatuses {
		for _, terminal := range []consts.LoanStatus{consts.StatusRejected, consts.StatusCancelled, consts.StatusFailed} {
			got := CanTransition(from, terminal)
			if from.Terminal() {
				assert.False(t, got, "%s -> %s", from, terminal)
			} else {
				assert.True(t, got, "%s -> %s", from, terminal)
			}
		}
	}
}

func TestTerminalStatesAdmitNothing(t *testing.T) {
	for _, from := range []consts.LoanStatus{consts.StatusCompleted, consts.StatusRejected, consts.StatusCancelled, consts.StatusFailed} {
		for _, to := range allStatuses {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestSkippingStatesIsIllegal(t *testing.T) {
	cases := []struct{ from, to consts.LoanStatus }{
		{consts.StatusInitialOffer, consts.StatusDisbursed},
		{consts.StatusInitialOffer, consts.StatusApproved},
		{consts.StatusOfferSubmitted, consts.StatusLoanCreated},
		{consts.StatusApproved, consts.StatusDisbursed},
		{consts.StatusDisbursed, consts.StatusLoanCreated},
		{consts.StatusLoanCreated, consts.StatusInitialOffer},
	}
	for _, tc := range cases {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestValidateTransitionConflict(t *testing.T) {
	err := ValidateTransition(consts.StatusCancelled, consts.StatusLoanCreated)
	require.Error(t, err)

	var cerr *models.CustomError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, consts.CodeStateConflict, cerr.ProtocolCode)

	assert.NoError(t, ValidateTransition(consts.StatusInitialOffer, consts.StatusOfferSubmitted))
}
