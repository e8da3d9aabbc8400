package consts

const (
	LoanApplicationCollection = "loan_applications"
)

// SensitiveKeys are request header keys masked before logging.
var SensitiveKeys = []string{"Authorization", "X-Api-Key", "Cookie"}

// Stages tag a loan's errorLog entries and the gateway-edge
// diagnostics emitted before a record is resolved.
const (
	StageVerify        = "VERIFY"
	StageDispatch      = "DISPATCH"
	StageOffer         = "OFFER"
	StageCharges       = "CHARGES"
	StageFinalApproval = "FINAL_APPROVAL"
	StageClientCreate  = "CLIENT_CREATE"
	StageLoanCreate    = "LOAN_CREATE"
	StageDisbursement  = "DISBURSEMENT"
	StageCancellation  = "CANCELLATION"
	StageLiquidation   = "LIQUIDATION"
	StageCallback      = "CALLBACK"
)
