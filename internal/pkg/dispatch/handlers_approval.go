package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/envelope"
	"github.com/uswegem/miracore/internal/pkg/events"
	"github.com/uswegem/miracore/internal/pkg/ledger"
	"github.com/uswegem/miracore/internal/pkg/logger"
	"github.com/uswegem/miracore/internal/pkg/models"
)

// HandleFinalApproval receives the employer's decision on a previously
// offered loan. REJECTED terminates the record; APPROVED acknowledges
// synchronously and kicks off the ledger provisioning chain as a
// follow-up, ending in a signed disbursement callback.
func (h *Handlers) HandleFinalApproval(ctx context.Context, msg *envelope.ParsedMessage) (string, error) {
	var req models.FinalApprovalNotification
	if err := h.decode(msg, &req); err != nil {
		return "", err
	}

	record, err := h.store.ByApplicationNumber(ctx, req.ApplicationNumber, false)
	if err != nil {
		return "", err
	}
	if record.LoanNumberAlias != "" && record.LoanNumberAlias != req.LoanNumber {
		return "", models.NewNotFoundError(fmt.Sprintf("loan number %s does not match application %s", req.LoanNumber, req.ApplicationNumber))
	}

	if req.Approval == "REJECTED" {
		if err := h.store.TransitionTerminal(ctx, record.ApplicationNumber, record.Status, consts.StatusRejected, consts.ActorEmployer, req.Reason); err != nil {
			return "", err
		}
		h.events.PublishStatusChange(ctx, events.StatusChanged{
			ApplicationNumber: record.ApplicationNumber,
			LoanNumber:        record.LoanNumberAlias,
			FromStatus:        record.Status,
			ToStatus:          consts.StatusRejected,
			Actor:             consts.ActorEmployer,
		})
		return h.ack(msg, record.ApplicationNumber)
	}

	reference := req.FSPReferenceNumber
	if reference == "" {
		reference = newFSPReference()
	}
	if err := h.store.AssignFSPReference(ctx, record.ApplicationNumber, reference); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	if err := h.store.Transition(ctx, record.ApplicationNumber, record.Status, consts.StatusApproved, bson.M{"approvalReceivedAt": now}); err != nil {
		return "", err
	}
	h.events.PublishStatusChange(ctx, events.StatusChanged{
		ApplicationNumber: record.ApplicationNumber,
		LoanNumber:        record.LoanNumberAlias,
		FromStatus:        record.Status,
		ToStatus:          consts.StatusApproved,
		Actor:             consts.ActorEmployer,
	})

	applicationNumber := record.ApplicationNumber
	h.scheduler.ScheduleFollowUp(consts.StageFinalApproval, applicationNumber, h.followUpDelay, func(taskCtx context.Context) error {
		return h.provisionLoan(taskCtx, applicationNumber)
	})

	return h.ack(msg, applicationNumber)
}

// provisionLoan walks an approved application through the ledger:
// client onboarding, loan creation and approval, disbursement, then
// the signed disbursement callback. Each step commits its state
// transition before the next ledger call so a mid-chain failure
// resumes from the committed state, never repeating completed steps.
func (h *Handlers) provisionLoan(ctx context.Context, applicationNumber string) error {
	record, err := h.store.ByApplicationNumber(ctx, applicationNumber, false)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if record.Status != consts.StatusApproved {
		return nil
	}

	if err := h.store.Transition(ctx, applicationNumber, consts.StatusApproved, consts.StatusFinalApprovalReceived, nil); err != nil {
		return err
	}

	clientID, err := h.ensureClient(ctx, record)
	if err != nil {
		h.store.AppendError(ctx, applicationNumber, consts.StageClientCreate, err.Error())
		return err
	}
	now := time.Now().UTC()
	if err := h.store.SetFields(ctx, applicationNumber, bson.M{"ledgerClientId": strconv.FormatInt(clientID, 10)}); err != nil {
		return err
	}
	if err := h.store.Transition(ctx, applicationNumber, consts.StatusFinalApprovalReceived, consts.StatusClientCreated, bson.M{"clientCreatedAt": now}); err != nil {
		return err
	}

	loan, err := h.ledger.CreateLoan(ctx, ledger.LoanCreateRequest{
		ClientID:              clientID,
		ProductID:             h.productID,
		Principal:             record.RequestedAmount,
		LoanTermFrequency:     record.TenureMonths,
		LoanTermFrequencyType: 2,
		NumberOfRepayments:    record.TenureMonths,
		InterestRatePerPeriod: decimalToFloat(h.calc.AnnualRate.Div(decimal.NewFromInt(12)).Round(4)),
		ExternalID:            record.LoanNumberAlias,
		SubmittedOnDate:       now.Format(ledgerDateFormat),
		ExpectedDisbursementDate: now.Format(ledgerDateFormat),
		DateFormat:            "dd MMMM yyyy",
		Locale:                "en",
	})
	if err != nil {
		h.store.AppendError(ctx, applicationNumber, consts.StageLoanCreate, err.Error())
		return err
	}
	loanID := loan.LoanID()
	if err := h.ledger.ApproveLoan(ctx, loanID, record.RequestedAmount, now.Format(ledgerDateFormat)); err != nil {
		h.store.AppendError(ctx, applicationNumber, consts.StageLoanCreate, err.Error())
		return err
	}
	if err := h.store.SetFields(ctx, applicationNumber, bson.M{
		"ledgerLoanId":        strconv.FormatInt(loanID, 10),
		"ledgerAccountNumber": loan.AccountNo,
	}); err != nil {
		return err
	}
	if err := h.store.Transition(ctx, applicationNumber, consts.StatusClientCreated, consts.StatusLoanCreated, bson.M{"loanCreatedAt": time.Now().UTC()}); err != nil {
		return err
	}

	return h.disburse(ctx, applicationNumber, record.OriginalMessageType, record.LoanNumberAlias, loanID)
}

// ensureClient finds the applicant on the ledger by check number or
// onboards them.
func (h *Handlers) ensureClient(ctx context.Context, record *models.LoanApplication) (int64, error) {
	existing, err := h.ledger.SearchClientByExternalID(ctx, record.CheckNumber)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ClientID(), nil
	}

	now := time.Now().UTC()
	created, err := h.ledger.CreateClient(ctx, ledger.ClientCreateRequest{
		FirstName:      metaString(record.Metadata.ApplicantData, "firstName"),
		MiddleName:     metaString(record.Metadata.ApplicantData, "middleName"),
		LastName:       metaString(record.Metadata.ApplicantData, "surname"),
		ExternalID:     record.CheckNumber,
		MobileNo:       metaString(record.Metadata.ApplicantData, "mobileNumber"),
		EmailAddress:   metaString(record.Metadata.ApplicantData, "email"),
		OfficeID:       h.officeID,
		Active:         true,
		ActivationDate: now.Format(ledgerDateFormat),
		DateFormat:     "dd MMMM yyyy",
		Locale:         "en",
	})
	if err != nil {
		return 0, err
	}
	clientID := created.ClientID()

	onboarding := map[string]interface{}{
		"checkNumber":    record.CheckNumber,
		"nin":            metaString(record.Metadata.ApplicantData, "nin"),
		"voteCode":       metaString(record.Metadata.EmploymentData, "voteCode"),
		"voteName":       metaString(record.Metadata.EmploymentData, "voteName"),
		"designation":    metaString(record.Metadata.EmploymentData, "designationName"),
		"employmentDate": metaString(record.Metadata.EmploymentData, "employmentDate"),
		"retirementDate": metaString(record.Metadata.EmploymentData, "retirementDate"),
	}
	if err := h.ledger.CreateOnboarding(ctx, clientID, onboarding); err != nil {
		// Onboarding is a supplementary sub-resource; a failure here
		// must not abandon an already-created client.
		logger.Warn(ctx, "onboarding for client %d failed: %v", clientID, err)
	}
	return clientID, nil
}

// disburse pushes a created loan out the door. Takeover-originated
// applications pass through WAITING_FOR_LIQUIDATION first: the old
// FSP's balance must be settled before funds move.
func (h *Handlers) disburse(ctx context.Context, applicationNumber string, origin consts.MessageType, loanNumber string, loanID int64) error {
	now := time.Now().UTC()
	from := consts.StatusLoanCreated

	if origin == consts.LoanTakeoverOfferRequest {
		if err := h.store.Transition(ctx, applicationNumber, consts.StatusLoanCreated, consts.StatusWaitingForLiquidation, bson.M{"liquidationRequestedAt": now}); err != nil {
			return err
		}
		from = consts.StatusWaitingForLiquidation
	}

	record, err := h.store.ByApplicationNumber(ctx, applicationNumber, false)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}

	if err := h.ledger.DisburseLoan(ctx, loanID, record.RequestedAmount, now.Format(ledgerDateFormat)); err != nil {
		h.store.AppendError(ctx, applicationNumber, consts.StageDisbursement, err.Error())
		return err
	}
	if err := h.store.Transition(ctx, applicationNumber, from, consts.StatusDisbursed, bson.M{"disbursedAt": now}); err != nil {
		return err
	}
	h.events.PublishStatusChange(ctx, events.StatusChanged{
		ApplicationNumber: applicationNumber,
		LoanNumber:        loanNumber,
		FromStatus:        from,
		ToStatus:          consts.StatusDisbursed,
		Actor:             consts.ActorFSP,
	})

	// Read the loan back. A disbursement the ledger reversed or never
	// activated is pulled back to LOAN_CREATED for a retry, with the
	// failure notified upstream.
	verify, err := h.ledger.GetLoan(ctx, loanID, false)
	if err == nil && verify != nil && !verify.Status.Active {
		if terr := h.store.Transition(ctx, applicationNumber, consts.StatusDisbursed, consts.StatusDisbursementFailureNotificationSent, bson.M{"failureNotifiedAt": time.Now().UTC()}); terr != nil {
			return terr
		}
		if terr := h.store.Transition(ctx, applicationNumber, consts.StatusDisbursementFailureNotificationSent, consts.StatusLoanCreated, nil); terr != nil {
			return terr
		}
		return fmt.Errorf("ledger reports loan %d inactive after disbursement", loanID)
	}

	terms := h.calc.Compute(record.RequestedAmount, record.TenureMonths)
	notification := models.DisbursementNotification{
		ApplicationNumber:  applicationNumber,
		LoanNumber:         loanNumber,
		FSPReferenceNumber: record.FSPReference,
		DisbursementDate:   now.Format("2006-01-02"),
		TotalAmountToPay:   decimalToFloat(terms.TotalAmountToPay),
		DisbursedAmount:    decimalToFloat(terms.NetLoanAmount),
	}
	return h.callbacks.Send(ctx, consts.LoanDisbursementNotification, applicationNumber, notification)
}

// HandleCancellation terminates an active application on the
// employee's behalf. Once the funds have left (disbursed or later)
// the cancellation is refused with a conflict citing the current
// state. The ledger-side reject runs as a tolerated follow-up: its
// failure must not block the local cancellation.
func (h *Handlers) HandleCancellation(ctx context.Context, msg *envelope.ParsedMessage) (string, error) {
	var req models.CancellationNotification
	if err := h.decode(msg, &req); err != nil {
		return "", err
	}

	record, err := h.store.ByApplicationNumber(ctx, req.ApplicationNumber, false)
	if err != nil {
		return "", err
	}

	switch record.Status {
	case consts.StatusDisbursed, consts.StatusDisbursementFailureNotificationSent, consts.StatusCompleted, consts.StatusFailed:
		return "", models.NewConflictError(fmt.Sprintf("application %s is %s and can no longer be cancelled", record.ApplicationNumber, record.Status))
	}

	if err := h.store.TransitionTerminal(ctx, record.ApplicationNumber, record.Status, consts.StatusCancelled, consts.ActorEmployee, req.Reason); err != nil {
		return "", err
	}
	h.events.PublishStatusChange(ctx, events.StatusChanged{
		ApplicationNumber: record.ApplicationNumber,
		LoanNumber:        record.LoanNumberAlias,
		FromStatus:        record.Status,
		ToStatus:          consts.StatusCancelled,
		Actor:             consts.ActorEmployee,
	})

	if loanID, ok := parseLedgerID(record.LedgerLoanID); ok {
		applicationNumber := record.ApplicationNumber
		reason := req.Reason
		h.scheduler.ScheduleFollowUp(consts.StageCancellation, applicationNumber, h.followUpDelay, func(taskCtx context.Context) error {
			return h.ledger.RejectLoan(taskCtx, loanID, time.Now().UTC().Format(ledgerDateFormat), reason)
		})
	}

	return h.ack(msg, record.ApplicationNumber)
}

func metaString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func parseLedgerID(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
