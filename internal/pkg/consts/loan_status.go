package consts

// LoanStatus is the lifecycle state of a loan application record.
type LoanStatus string

const (
	StatusInitialOffer          LoanStatus = "INITIAL_OFFER"
	StatusOfferSubmitted        LoanStatus = "OFFER_SUBMITTED"
	StatusInitialApprovalSent   LoanStatus = "INITIAL_APPROVAL_SENT"
	StatusApproved              LoanStatus = "APPROVED"
	StatusFinalApprovalReceived LoanStatus = "FINAL_APPROVAL_RECEIVED"
	StatusClientCreated         LoanStatus = "CLIENT_CREATED"
	StatusLoanCreated           LoanStatus = "LOAN_CREATED"
	StatusWaitingForLiquidation LoanStatus = "WAITING_FOR_LIQUIDATION"
	StatusDisbursed             LoanStatus = "DISBURSED"
	StatusCompleted             LoanStatus = "COMPLETED"
	StatusRejected              LoanStatus = "REJECTED"
	StatusCancelled             LoanStatus = "CANCELLED"
	StatusFailed                LoanStatus = "FAILED"

	StatusDisbursementFailureNotificationSent LoanStatus = "DISBURSEMENT_FAILURE_NOTIFICATION_SENT"
)

// Terminal reports whether s admits no further transitions.
func (s LoanStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// InactiveStatuses are the terminal states that release an application
// number for reuse. COMPLETED and FAILED records keep the number occupied.
var InactiveStatuses = []LoanStatus{StatusCancelled, StatusRejected}
