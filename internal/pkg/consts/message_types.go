package consts

// MessageType is the Header.MessageType discriminator of the employer protocol.
type MessageType string

// Inbound message types.
const (
	LoanChargesRequest                MessageType = "LOAN_CHARGES_REQUEST"
	LoanOfferRequest                  MessageType = "LOAN_OFFER_REQUEST"
	LoanFinalApprovalNotification     MessageType = "LOAN_FINAL_APPROVAL_NOTIFICATION"
	LoanCancellationNotification      MessageType = "LOAN_CANCELLATION_NOTIFICATION"
	TopUpPayoffBalanceRequest         MessageType = "TOP_UP_PAY_0FF_BALANCE_REQUEST"
	TopUpOfferRequest                 MessageType = "TOP_UP_OFFER_REQUEST"
	TakeoverPayoffBalanceRequest      MessageType = "TAKEOVER_PAY_OFF_BALANCE_REQUEST"
	LoanTakeoverOfferRequest          MessageType = "LOAN_TAKEOVER_OFFER_REQUEST"
	TakeoverPaymentNotification       MessageType = "TAKEOVER_PAYMENT_NOTIFICATION"
	LoanRestructureBalanceRequest     MessageType = "LOAN_RESTRUCTURE_BALANCE_REQUEST"
	LoanRestructureAffordabilityRequest MessageType = "LOAN_RESTRUCTURE_AFFORDABILITY_REQUEST"
)

// Outbound message types.
const (
	ResponseMessage                 MessageType = "RESPONSE"
	LoanChargesResponse             MessageType = "LOAN_CHARGES_RESPONSE"
	LoanInitialApprovalNotification MessageType = "LOAN_INITIAL_APPROVAL_NOTIFICATION"
	LoanDisbursementNotification    MessageType = "LOAN_DISBURSEMENT_NOTIFICATION"
	LoanTopUpBalanceResponse        MessageType = "LOAN_TOP_UP_BALANCE_RESPONSE"
	LoanTakeoverBalanceResponse     MessageType = "LOAN_TAKEOVER_BALANCE_RESPONSE"
	PaymentAcknowledgmentNotification MessageType = "PAYMENT_ACKNOWLEDGMENT_NOTIFICATION"
)
