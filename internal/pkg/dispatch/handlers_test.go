package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/ledger"
	"github.com/uswegem/miracore/internal/pkg/models"
	"github.com/uswegem/miracore/internal/pkg/utils"
)

func TestLoanChargesSynchronousBreakdown(t *testing.T) {
	f := newFixture(t)
	f.store.On("RecordInquiry", mock.Anything, mock.Anything).Return(nil)
	msg := inbound(consts.LoanChargesRequest, `<MessageDetails>
  <CheckNumber>CHK778899</CheckNumber>
  <NetSalary>1200000</NetSalary>
  <OneThirdAmount>400000</OneThirdAmount>
  <DesiredDeductibleAmount>350000</DesiredDeductibleAmount>
  <RequestedAmount>3000000</RequestedAmount>
  <Tenure>24</Tenure>
  <ProductCode>PL001</ProductCode>
</MessageDetails>`)

	signed, err := f.handlers.HandleLoanCharges(context.Background(), msg)
	require.NoError(t, err)

	var charges models.ChargesResponse
	header := f.decodeSigned(t, signed, &charges)
	assert.Equal(t, string(consts.LoanChargesResponse), header.MessageType)
	assert.Equal(t, "ESS_UTUMISHI", header.Receiver)
	assert.Equal(t, "CHK778899", charges.CheckNumber)
	assert.Equal(t, 24, charges.Tenure)

	expected := f.calc.Compute(3000000, 24)
	assert.InDelta(t, decimalToFloat(expected.EMI), charges.MonthlyReturnAmount, 0.01)
	assert.InDelta(t, decimalToFloat(expected.TotalAmountToPay), charges.TotalAmountToPay, 0.01)
	assert.InDelta(t, decimalToFloat(expected.NetLoanAmount), charges.NetLoanAmount, 0.01)
	assert.Greater(t, charges.EligibleAmount, 0.0)

	// The inquiry leaves a check-number-keyed snapshot, not an
	// application record.
	f.store.AssertNotCalled(t, "CreateOrReuse", mock.Anything, mock.Anything)
	require.Len(t, f.store.Calls, 1)
	snapshot := f.store.Calls[0].Arguments.Get(1).(models.LoanApplication)
	assert.Equal(t, "CHK778899", snapshot.CheckNumber)
	assert.Equal(t, "PL001", snapshot.ProductCode)
	assert.Equal(t, 24, snapshot.TenureMonths)
	assert.Equal(t, 1200000.0, snapshot.Metadata.EmploymentData["netSalary"])
}

func TestLoanChargesSnapshotFailureDoesNotBlockQuote(t *testing.T) {
	f := newFixture(t)
	f.store.On("RecordInquiry", mock.Anything, mock.Anything).Return(errors.New("primary stepped down"))
	msg := inbound(consts.LoanChargesRequest, `<MessageDetails>
  <CheckNumber>CHK778899</CheckNumber>
  <NetSalary>1200000</NetSalary>
  <OneThirdAmount>400000</OneThirdAmount>
  <RequestedAmount>3000000</RequestedAmount>
  <Tenure>24</Tenure>
  <ProductCode>PL001</ProductCode>
</MessageDetails>`)

	signed, err := f.handlers.HandleLoanCharges(context.Background(), msg)
	require.NoError(t, err)

	var charges models.ChargesResponse
	header := f.decodeSigned(t, signed, &charges)
	assert.Equal(t, string(consts.LoanChargesResponse), header.MessageType)
	assert.Equal(t, "CHK778899", charges.CheckNumber)
}

func TestLoanOfferTwoPhaseFlow(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.LoanOfferRequest, offerDetailsXML)

	f.store.On("CreateOrReuse", mock.Anything, mock.Anything).
		Return(func(app models.LoanApplication) models.LoanApplication { return app }, nil)
	f.store.On("Transition", mock.Anything, "APP2026001", consts.StatusInitialOffer, consts.StatusOfferSubmitted, mock.Anything).Return(nil)

	signed, err := f.handlers.HandleLoanOffer(context.Background(), msg)
	require.NoError(t, err)

	var details models.ResponseDetails
	f.decodeSigned(t, signed, &details)
	assert.Equal(t, consts.CodeSuccess, details.ResponseCode)
	assert.Equal(t, "APP2026001", details.ApplicationNumber)

	tasks := f.sched.captured()
	require.Len(t, tasks, 1)
	assert.Equal(t, consts.StageOffer, tasks[0].kind)
	assert.Equal(t, "APP2026001", tasks[0].applicationNumber)

	recorded := f.events.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, consts.StatusOfferSubmitted, recorded[0].ToStatus)

	// Second phase: the scheduled follow-up delivers the initial
	// approval callback and advances the record.
	f.store.On("ByApplicationNumber", mock.Anything, "APP2026001", false).Return(&models.LoanApplication{
		ApplicationNumber: "APP2026001",
		LoanNumberAlias:   "LN20260831AB12CD34",
		RequestedAmount:   5000000,
		TenureMonths:      36,
		Status:            consts.StatusOfferSubmitted,
	}, nil)
	f.callbacks.On("Send", mock.Anything, consts.LoanInitialApprovalNotification, "APP2026001", mock.Anything).Return(nil)
	f.store.On("Transition", mock.Anything, "APP2026001", consts.StatusOfferSubmitted, consts.StatusInitialApprovalSent, mock.Anything).Return(nil)

	require.Empty(t, f.sched.runAll(context.Background()))
	f.callbacks.AssertExpectations(t)

	sent := f.callbacks.Calls[0].Arguments.Get(3).(models.InitialApprovalNotification)
	assert.Equal(t, "APPROVED", sent.Approval)
	assert.Equal(t, 36, sent.Tenure)
	assert.Greater(t, sent.MonthlyReturnAmount, 0.0)
	assert.NotEmpty(t, sent.LoanNumber)
	assert.Greater(t, sent.TotalAmountToPay, 5000000.0)
}

func TestLoanOfferDuplicateConverges(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.LoanOfferRequest, offerDetailsXML)

	existing := models.LoanApplication{
		ApplicationNumber: "APP2026001",
		LoanNumberAlias:   "LN20260830EXISTING",
		Status:            consts.StatusOfferSubmitted,
	}
	f.store.On("CreateOrReuse", mock.Anything, mock.Anything).Return(existing, nil)

	signed, err := f.handlers.HandleLoanOffer(context.Background(), msg)
	require.NoError(t, err)

	var details models.ResponseDetails
	f.decodeSigned(t, signed, &details)
	assert.Equal(t, consts.CodeSuccess, details.ResponseCode)
	assert.Equal(t, "APP2026001", details.ApplicationNumber)

	// No second follow-up, no transition, no event for a replayed offer.
	assert.Empty(t, f.sched.captured())
	assert.Empty(t, f.events.recorded())
	f.store.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLoanOfferBeyondAffordableCeiling(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.LoanOfferRequest, `<MessageDetails>
  <ApplicationNumber>APP2026002</ApplicationNumber>
  <CheckNumber>CHK778899</CheckNumber>
  <FirstName>Neema</FirstName>
  <Surname>Mollel</Surname>
  <BankAccountNumber>0150987654321</BankAccountNumber>
  <NetSalary>1200000</NetSalary>
  <OneThirdAmount>400000</OneThirdAmount>
  <DesiredDeductibleAmount>350000</DesiredDeductibleAmount>
  <RequestedAmount>20000000</RequestedAmount>
  <Tenure>36</Tenure>
  <ProductCode>PL001</ProductCode>
</MessageDetails>`)

	_, err := f.handlers.HandleLoanOffer(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, consts.CodeSchemaViolation, utils.ProtocolCode(err))
	f.store.AssertNotCalled(t, "CreateOrReuse", mock.Anything, mock.Anything)
}

func TestFinalApprovalRejectedTerminates(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.LoanFinalApprovalNotification, `<MessageDetails>
  <ApplicationNumber>APP2026001</ApplicationNumber>
  <LoanNumber>LN20260831AB12CD34</LoanNumber>
  <Approval>REJECTED</Approval>
  <Reason>employer declined</Reason>
</MessageDetails>`)

	record := &models.LoanApplication{
		ApplicationNumber: "APP2026001",
		LoanNumberAlias:   "LN20260831AB12CD34",
		Status:            consts.StatusInitialApprovalSent,
	}
	f.store.On("ByApplicationNumber", mock.Anything, "APP2026001", false).Return(record, nil)
	f.store.On("TransitionTerminal", mock.Anything, "APP2026001", consts.StatusInitialApprovalSent, consts.StatusRejected, consts.ActorEmployer, "employer declined").Return(nil)

	signed, err := f.handlers.HandleFinalApproval(context.Background(), msg)
	require.NoError(t, err)

	var details models.ResponseDetails
	f.decodeSigned(t, signed, &details)
	assert.Equal(t, consts.CodeSuccess, details.ResponseCode)
	assert.Empty(t, f.sched.captured())
	f.store.AssertExpectations(t)
}

func TestFinalApprovalLoanNumberMismatch(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.LoanFinalApprovalNotification, `<MessageDetails>
  <ApplicationNumber>APP2026001</ApplicationNumber>
  <LoanNumber>LN20260831WRONG000</LoanNumber>
  <Approval>APPROVED</Approval>
</MessageDetails>`)

	f.store.On("ByApplicationNumber", mock.Anything, "APP2026001", false).Return(&models.LoanApplication{
		ApplicationNumber: "APP2026001",
		LoanNumberAlias:   "LN20260831AB12CD34",
		Status:            consts.StatusInitialApprovalSent,
	}, nil)

	_, err := f.handlers.HandleFinalApproval(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, consts.CodeUnknownLoan, utils.ProtocolCode(err))
}

func TestFinalApprovalProvisionsThroughDisbursement(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.LoanFinalApprovalNotification, `<MessageDetails>
  <ApplicationNumber>APP2026001</ApplicationNumber>
  <LoanNumber>LN20260831AB12CD34</LoanNumber>
  <Approval>APPROVED</Approval>
  <FSPReferenceNumber>REF1756600000AB12CD</FSPReferenceNumber>
</MessageDetails>`)

	pending := &models.LoanApplication{
		ApplicationNumber: "APP2026001",
		CheckNumber:       "CHK778899",
		LoanNumberAlias:   "LN20260831AB12CD34",
		RequestedAmount:   5000000,
		TenureMonths:      36,
		Status:            consts.StatusInitialApprovalSent,
		Metadata: models.Metadata{
			ApplicantData: map[string]interface{}{
				"firstName": "Neema", "surname": "Mollel", "mobileNumber": "255700111222",
			},
		},
	}
	approved := &models.LoanApplication{
		ApplicationNumber: "APP2026001",
		CheckNumber:       "CHK778899",
		LoanNumberAlias:   "LN20260831AB12CD34",
		FSPReference:      "REF1756600000AB12CD",
		RequestedAmount:   5000000,
		TenureMonths:      36,
		Status:            consts.StatusApproved,
		Metadata:          pending.Metadata,
	}

	f.store.On("ByApplicationNumber", mock.Anything, "APP2026001", false).Return(pending, nil).Once()
	f.store.On("AssignFSPReference", mock.Anything, "APP2026001", "REF1756600000AB12CD").Return(nil)
	f.store.On("Transition", mock.Anything, "APP2026001", consts.StatusInitialApprovalSent, consts.StatusApproved, mock.Anything).Return(nil)

	signed, err := f.handlers.HandleFinalApproval(context.Background(), msg)
	require.NoError(t, err)
	var details models.ResponseDetails
	f.decodeSigned(t, signed, &details)
	require.Equal(t, consts.CodeSuccess, details.ResponseCode)

	tasks := f.sched.captured()
	require.Len(t, tasks, 1)
	require.Equal(t, consts.StageFinalApproval, tasks[0].kind)

	// Provisioning chain mocks: the follow-up reads the record twice,
	// once before provisioning and once before disbursing.
	f.store.On("ByApplicationNumber", mock.Anything, "APP2026001", false).Return(approved, nil)
	f.store.On("Transition", mock.Anything, "APP2026001", consts.StatusApproved, consts.StatusFinalApprovalReceived, mock.Anything).Return(nil)
	f.ledger.On("SearchClientByExternalID", mock.Anything, "CHK778899").Return(nil, nil)
	f.ledger.On("CreateClient", mock.Anything, mock.Anything).Return(&ledger.ClientResource{ID: 55}, nil)
	f.ledger.On("CreateOnboarding", mock.Anything, int64(55), mock.Anything).Return(nil)
	f.store.On("SetFields", mock.Anything, "APP2026001", mock.Anything).Return(nil)
	f.store.On("Transition", mock.Anything, "APP2026001", consts.StatusFinalApprovalReceived, consts.StatusClientCreated, mock.Anything).Return(nil)
	f.ledger.On("CreateLoan", mock.Anything, mock.Anything).Return(&ledger.LoanResource{ID: 900, AccountNo: "000900"}, nil)
	f.ledger.On("ApproveLoan", mock.Anything, int64(900), 5000000.0, mock.Anything).Return(nil)
	f.store.On("Transition", mock.Anything, "APP2026001", consts.StatusClientCreated, consts.StatusLoanCreated, mock.Anything).Return(nil)
	f.ledger.On("DisburseLoan", mock.Anything, int64(900), 5000000.0, mock.Anything).Return(nil)
	f.store.On("Transition", mock.Anything, "APP2026001", consts.StatusLoanCreated, consts.StatusDisbursed, mock.Anything).Return(nil)
	active := &ledger.LoanResource{ID: 900}
	active.Status.Active = true
	f.ledger.On("GetLoan", mock.Anything, int64(900), false).Return(active, nil)
	f.callbacks.On("Send", mock.Anything, consts.LoanDisbursementNotification, "APP2026001", mock.Anything).Return(nil)

	require.Empty(t, f.sched.runAll(context.Background()))
	f.ledger.AssertExpectations(t)
	f.callbacks.AssertExpectations(t)

	loanReq := f.ledger.Calls[3].Arguments.Get(1).(ledger.LoanCreateRequest)
	assert.Equal(t, int64(55), loanReq.ClientID)
	assert.Equal(t, "LN20260831AB12CD34", loanReq.ExternalID)
	assert.Equal(t, 36, loanReq.NumberOfRepayments)
}

func TestProvisionSkipsCancelledRecord(t *testing.T) {
	f := newFixture(t)
	f.store.On("ByApplicationNumber", mock.Anything, "APP2026001", false).
		Return(nil, models.NewNotFoundError("no active record"))

	require.NoError(t, f.handlers.provisionLoan(context.Background(), "APP2026001"))
	f.ledger.AssertNotCalled(t, "CreateLoan", mock.Anything, mock.Anything)
}

func TestDisburseFailureVerificationPullsBack(t *testing.T) {
	f := newFixture(t)
	record := &models.LoanApplication{
		ApplicationNumber: "APP2026001",
		LoanNumberAlias:   "LN20260831AB12CD34",
		RequestedAmount:   5000000,
		TenureMonths:      36,
		Status:            consts.StatusLoanCreated,
	}
	f.store.On("ByApplicationNumber", mock.Anything, "APP2026001", false).Return(record, nil)
	f.ledger.On("DisburseLoan", mock.Anything, int64(900), 5000000.0, mock.Anything).Return(nil)
	f.store.On("Transition", mock.Anything, "APP2026001", consts.StatusLoanCreated, consts.StatusDisbursed, mock.Anything).Return(nil)
	inactive := &ledger.LoanResource{ID: 900}
	f.ledger.On("GetLoan", mock.Anything, int64(900), false).Return(inactive, nil)
	f.store.On("Transition", mock.Anything, "APP2026001", consts.StatusDisbursed, consts.StatusDisbursementFailureNotificationSent, mock.Anything).Return(nil)
	f.store.On("Transition", mock.Anything, "APP2026001", consts.StatusDisbursementFailureNotificationSent, consts.StatusLoanCreated, mock.Anything).Return(nil)

	err := f.handlers.disburse(context.Background(), "APP2026001", consts.LoanOfferRequest, "LN20260831AB12CD34", 900)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inactive after disbursement")
	f.callbacks.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.store.AssertExpectations(t)
}

func TestTakeoverOriginRoutesThroughLiquidation(t *testing.T) {
	f := newFixture(t)
	record := &models.LoanApplication{
		ApplicationNumber: "APP2026003",
		LoanNumberAlias:   "LN20260831TKVR0001",
		RequestedAmount:   4000000,
		TenureMonths:      24,
		Status:            consts.StatusWaitingForLiquidation,
	}
	f.store.On("Transition", mock.Anything, "APP2026003", consts.StatusLoanCreated, consts.StatusWaitingForLiquidation, mock.Anything).Return(nil)
	f.store.On("ByApplicationNumber", mock.Anything, "APP2026003", false).Return(record, nil)
	f.ledger.On("DisburseLoan", mock.Anything, int64(901), 4000000.0, mock.Anything).Return(nil)
	f.store.On("Transition", mock.Anything, "APP2026003", consts.StatusWaitingForLiquidation, consts.StatusDisbursed, mock.Anything).Return(nil)
	active := &ledger.LoanResource{ID: 901}
	active.Status.Active = true
	f.ledger.On("GetLoan", mock.Anything, int64(901), false).Return(active, nil)
	f.callbacks.On("Send", mock.Anything, consts.LoanDisbursementNotification, "APP2026003", mock.Anything).Return(nil)

	err := f.handlers.disburse(context.Background(), "APP2026003", consts.LoanTakeoverOfferRequest, "LN20260831TKVR0001", 901)
	require.NoError(t, err)
	f.store.AssertExpectations(t)
}

func TestCancellationTerminatesAndRejectsOnLedger(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.LoanCancellationNotification, `<MessageDetails>
  <ApplicationNumber>APP2026001</ApplicationNumber>
  <Reason>changed my mind</Reason>
</MessageDetails>`)

	record := &models.LoanApplication{
		ApplicationNumber: "APP2026001",
		LoanNumberAlias:   "LN20260831AB12CD34",
		LedgerLoanID:      "900",
		Status:            consts.StatusLoanCreated,
	}
	f.store.On("ByApplicationNumber", mock.Anything, "APP2026001", false).Return(record, nil)
	f.store.On("TransitionTerminal", mock.Anything, "APP2026001", consts.StatusLoanCreated, consts.StatusCancelled, consts.ActorEmployee, "changed my mind").Return(nil)
	f.ledger.On("RejectLoan", mock.Anything, int64(900), mock.Anything, "changed my mind").Return(nil)

	signed, err := f.handlers.HandleCancellation(context.Background(), msg)
	require.NoError(t, err)

	var details models.ResponseDetails
	f.decodeSigned(t, signed, &details)
	assert.Equal(t, consts.CodeSuccess, details.ResponseCode)

	tasks := f.sched.captured()
	require.Len(t, tasks, 1)
	assert.Equal(t, consts.StageCancellation, tasks[0].kind)
	require.Empty(t, f.sched.runAll(context.Background()))
	f.ledger.AssertExpectations(t)
}

func TestCancellationAfterDisbursementConflicts(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.LoanCancellationNotification, `<MessageDetails>
  <ApplicationNumber>APP2026001</ApplicationNumber>
  <Reason>too late anyway</Reason>
</MessageDetails>`)

	record := &models.LoanApplication{
		ApplicationNumber: "APP2026001",
		LedgerLoanID:      "900",
		Status:            consts.StatusDisbursed,
	}
	f.store.On("ByApplicationNumber", mock.Anything, "APP2026001", false).Return(record, nil)
	f.dedup.On("Seen", mock.Anything, mock.Anything).Return(false, nil)

	signed := f.dispatcher.Dispatch(context.Background(), msg)

	var details models.ResponseDetails
	f.decodeSigned(t, signed, &details)
	assert.Equal(t, consts.CodeStateConflict, details.ResponseCode)

	// The record keeps its state and the ledger is never touched.
	f.store.AssertNotCalled(t, "TransitionTerminal", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.sched.captured())
	f.ledger.AssertNotCalled(t, "RejectLoan", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancellationAfterCompletionConflicts(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.LoanCancellationNotification, `<MessageDetails>
  <ApplicationNumber>APP2026001</ApplicationNumber>
  <Reason>changed my mind</Reason>
</MessageDetails>`)

	record := &models.LoanApplication{
		ApplicationNumber: "APP2026001",
		Status:            consts.StatusCompleted,
	}
	f.store.On("ByApplicationNumber", mock.Anything, "APP2026001", false).Return(record, nil)

	_, err := f.handlers.HandleCancellation(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, consts.CodeStateConflict, utils.ProtocolCode(err))
	assert.Contains(t, err.Error(), "COMPLETED")
}

func TestPayoffBalanceReadsLiveLedgerPosition(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.TopUpPayoffBalanceRequest, `<MessageDetails><LoanNumber>LN20260831AB12CD34</LoanNumber></MessageDetails>`)

	record := &models.LoanApplication{
		ApplicationNumber: "APP2026001",
		LoanNumberAlias:   "LN20260831AB12CD34",
		FSPReference:      "REF1756600000AB12CD",
		LedgerLoanID:      "900",
		Status:            consts.StatusDisbursed,
	}
	f.store.On("ByLoanNumber", mock.Anything, "LN20260831AB12CD34").Return(record, nil)
	loan := &ledger.LoanResource{ID: 900}
	loan.Summary.TotalOutstanding = 3456789.12
	loan.Timeline.ExpectedMaturityDate = "2028-08-31"
	f.ledger.On("GetLoan", mock.Anything, int64(900), true).Return(loan, nil)

	signed, err := f.handlers.HandleTopUpBalance(context.Background(), msg)
	require.NoError(t, err)

	var balance models.PayoffBalanceResponse
	header := f.decodeSigned(t, signed, &balance)
	assert.Equal(t, string(consts.LoanTopUpBalanceResponse), header.MessageType)
	assert.Equal(t, "LN20260831AB12CD34", balance.LoanNumber)
	assert.Equal(t, "REF1756600000AB12CD", balance.FSPReferenceNumber)
	assert.InDelta(t, 3456789.12, balance.TotalPayoffAmount, 0.001)
	assert.Equal(t, "2028-08-31", balance.FinalPaymentDate)
}

func TestPayoffBalanceWithoutLedgerAccountConflicts(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.TakeoverPayoffBalanceRequest, `<MessageDetails><LoanNumber>LN20260831AB12CD34</LoanNumber></MessageDetails>`)

	f.store.On("ByLoanNumber", mock.Anything, "LN20260831AB12CD34").Return(&models.LoanApplication{
		ApplicationNumber: "APP2026001",
		Status:            consts.StatusOfferSubmitted,
	}, nil)

	_, err := f.handlers.HandleTakeoverBalance(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, consts.CodeStateConflict, utils.ProtocolCode(err))
}

func TestTakeoverPaymentCompletesAndAcknowledges(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.TakeoverPaymentNotification, `<MessageDetails>
  <LoanNumber>LN20260831AB12CD34</LoanNumber>
  <PaymentReference>PAY20260831XYZ</PaymentReference>
  <Amount>3456789.12</Amount>
</MessageDetails>`)

	record := &models.LoanApplication{
		ApplicationNumber: "APP2026001",
		LoanNumberAlias:   "LN20260831AB12CD34",
		LedgerLoanID:      "900",
		Status:            consts.StatusDisbursed,
	}
	f.store.On("ByLoanNumber", mock.Anything, "LN20260831AB12CD34").Return(record, nil)
	f.store.On("Transition", mock.Anything, "APP2026001", consts.StatusDisbursed, consts.StatusCompleted, mock.Anything).Return(nil)
	settled := &ledger.LoanResource{ID: 900}
	f.ledger.On("GetLoan", mock.Anything, int64(900), false).Return(settled, nil)

	signed, err := f.handlers.HandleTakeoverPayment(context.Background(), msg)
	require.NoError(t, err)

	var ack models.PaymentAcknowledgment
	header := f.decodeSigned(t, signed, &ack)
	assert.Equal(t, string(consts.PaymentAcknowledgmentNotification), header.MessageType)
	assert.Equal(t, "RECEIVED", ack.Status)
	assert.Equal(t, "PAY20260831XYZ", ack.PaymentReference)

	tasks := f.sched.captured()
	require.Len(t, tasks, 1)
	assert.Equal(t, consts.StageLiquidation, tasks[0].kind)
	require.Empty(t, f.sched.runAll(context.Background()))
}

func TestTakeoverReconciliationFlagsRemainingBalance(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.TakeoverPaymentNotification, `<MessageDetails>
  <LoanNumber>LN20260831AB12CD34</LoanNumber>
  <PaymentReference>PAY20260831XYZ</PaymentReference>
  <Amount>1000000</Amount>
</MessageDetails>`)

	record := &models.LoanApplication{
		ApplicationNumber: "APP2026001",
		LoanNumberAlias:   "LN20260831AB12CD34",
		LedgerLoanID:      "900",
		Status:            consts.StatusDisbursed,
	}
	f.store.On("ByLoanNumber", mock.Anything, "LN20260831AB12CD34").Return(record, nil)
	f.store.On("Transition", mock.Anything, "APP2026001", consts.StatusDisbursed, consts.StatusCompleted, mock.Anything).Return(nil)
	short := &ledger.LoanResource{ID: 900}
	short.Summary.TotalOutstanding = 2456789.12
	f.ledger.On("GetLoan", mock.Anything, int64(900), false).Return(short, nil)

	_, err := f.handlers.HandleTakeoverPayment(context.Background(), msg)
	require.NoError(t, err)

	errs := f.sched.runAll(context.Background())
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "outstanding balance")
}

func TestRestructureAffordabilitySynchronous(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.LoanRestructureAffordabilityRequest, `<MessageDetails>
  <CheckNumber>CHK778899</CheckNumber>
  <NetSalary>1200000</NetSalary>
  <DeductibleAmount>300000</DeductibleAmount>
  <Tenure>48</Tenure>
</MessageDetails>`)

	signed, err := f.handlers.HandleRestructureAffordability(context.Background(), msg)
	require.NoError(t, err)

	var charges models.ChargesResponse
	header := f.decodeSigned(t, signed, &charges)
	assert.Equal(t, string(consts.LoanChargesResponse), header.MessageType)
	assert.Equal(t, 48, charges.Tenure)
	assert.Greater(t, charges.EligibleAmount, 0.0)
	assert.LessOrEqual(t, charges.MonthlyReturnAmount, 300000.0+1)
}

func TestFollowUpErrorsAreNotSwallowedByHandler(t *testing.T) {
	f := newFixture(t)
	f.store.On("ByApplicationNumber", mock.Anything, "APP2026009", false).Return(&models.LoanApplication{
		ApplicationNumber: "APP2026009",
		RequestedAmount:   2000000,
		TenureMonths:      12,
		Status:            consts.StatusOfferSubmitted,
	}, nil)
	f.callbacks.On("Send", mock.Anything, consts.LoanInitialApprovalNotification, "APP2026009", mock.Anything).
		Return(fmt.Errorf("counterparty unreachable"))

	err := f.handlers.sendInitialApproval(context.Background(), "APP2026009", "LN20260831ZZ99YY88")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "counterparty unreachable")
	f.store.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
