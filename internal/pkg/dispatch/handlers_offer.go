package dispatch

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/emicalc"
	"github.com/uswegem/miracore/internal/pkg/envelope"
	"github.com/uswegem/miracore/internal/pkg/events"
	"github.com/uswegem/miracore/internal/pkg/models"
)

// HandleLoanOffer runs the standard offer flow: create the application
// record idempotently, acknowledge immediately, then deliver the
// initial approval decision as a scheduled signed callback.
func (h *Handlers) HandleLoanOffer(ctx context.Context, msg *envelope.ParsedMessage) (string, error) {
	var req models.LoanOfferRequest
	if err := h.decode(msg, &req); err != nil {
		return "", err
	}
	return h.processOffer(ctx, msg, &req, consts.LoanOfferRequest, nil)
}

// HandleTopUpOffer is the offer flow for an employee topping up an
// existing loan. The existing loan number rides along in the record
// metadata; settlement of the running balance happens on the ledger at
// disbursement time.
func (h *Handlers) HandleTopUpOffer(ctx context.Context, msg *envelope.ParsedMessage) (string, error) {
	var req models.TopUpOfferRequest
	if err := h.decode(msg, &req); err != nil {
		return "", err
	}
	extra := map[string]interface{}{"existingLoanNumber": req.LoanNumber}
	return h.processOffer(ctx, msg, &req.LoanOfferRequest, consts.TopUpOfferRequest, extra)
}

// HandleTakeoverOffer is the offer flow for taking over another FSP's
// loan. The record is tagged so the provisioning follow-up routes
// through WAITING_FOR_LIQUIDATION before disbursing.
func (h *Handlers) HandleTakeoverOffer(ctx context.Context, msg *envelope.ParsedMessage) (string, error) {
	var req models.TakeoverOfferRequest
	if err := h.decode(msg, &req); err != nil {
		return "", err
	}
	extra := map[string]interface{}{
		"existingLoanNumber": req.LoanNumber,
		"takeoverBalance":    req.TakeoverBalance,
		"releasingFSPCode":   req.FSP1Code,
	}
	return h.processOffer(ctx, msg, &req.LoanOfferRequest, consts.LoanTakeoverOfferRequest, extra)
}

func (h *Handlers) processOffer(ctx context.Context, msg *envelope.ParsedMessage, offer *models.LoanOfferRequest, msgType consts.MessageType, extraTerms map[string]interface{}) (string, error) {
	terms := h.calc.Compute(offer.RequestedAmount, offer.Tenure)

	maxEMI := emicalc.MaxAffordableEMI(offer.DesiredDeductibleAmount, offer.OneThirdAmount, offer.NetSalary)
	if terms.EMI.GreaterThan(maxEMI) {
		return "", models.NewValidationError("requested amount exceeds affordable deduction ceiling")
	}

	app := models.LoanApplication{
		ApplicationNumber:   offer.ApplicationNumber,
		CheckNumber:         offer.CheckNumber,
		LoanNumberAlias:     newLoanNumber(),
		ProductCode:         offer.ProductCode,
		RequestedAmount:     offer.RequestedAmount,
		TenureMonths:        offer.Tenure,
		OriginalMessageType: msgType,
		Status:              consts.StatusInitialOffer,
		Metadata: models.Metadata{
			ApplicantData: map[string]interface{}{
				"firstName":         offer.FirstName,
				"middleName":        offer.MiddleName,
				"surname":           offer.Surname,
				"sex":               offer.Sex,
				"nin":               offer.NIN,
				"mobileNumber":      offer.MobileNumber,
				"email":             offer.Email,
				"bankAccountNumber": offer.BankAccountNumber,
				"swiftCode":         offer.SwiftCode,
			},
			EmploymentData: map[string]interface{}{
				"voteCode":          offer.VoteCode,
				"voteName":          offer.VoteName,
				"designationName":   offer.DesignationName,
				"employmentDate":    offer.EmploymentDate,
				"retirementDate":    offer.RetirementDate,
				"termsOfEmployment": offer.TermsOfEmployment,
				"basicSalary":       offer.BasicSalary,
				"netSalary":         offer.NetSalary,
				"oneThirdAmount":    offer.OneThirdAmount,
			},
			LoanTerms: mergeTerms(map[string]interface{}{
				"requestedAmount":     offer.RequestedAmount,
				"tenure":              offer.Tenure,
				"emi":                 decimalToFloat(terms.EMI),
				"totalAmountToPay":    decimalToFloat(terms.TotalAmountToPay),
				"netLoanAmount":       decimalToFloat(terms.NetLoanAmount),
				"processingFee":       decimalToFloat(terms.ProcessingFee),
				"insurance":           decimalToFloat(terms.Insurance),
				"desiredDeductible":   offer.DesiredDeductibleAmount,
				"salaryAccountNumber": offer.SalaryAccountNumber,
				"fundingType":         offer.FundingType,
			}, extraTerms),
		},
	}

	record, err := h.store.CreateOrReuse(ctx, app)
	if err != nil {
		return "", err
	}

	// A reused active record means a duplicate submission: converge on
	// the existing record without scheduling a second follow-up.
	if record.LoanNumberAlias != app.LoanNumberAlias {
		return h.ack(msg, record.ApplicationNumber)
	}

	if err := h.store.Transition(ctx, record.ApplicationNumber, consts.StatusInitialOffer, consts.StatusOfferSubmitted, nil); err != nil {
		return "", err
	}
	h.events.PublishStatusChange(ctx, events.StatusChanged{
		ApplicationNumber: record.ApplicationNumber,
		LoanNumber:        record.LoanNumberAlias,
		FromStatus:        consts.StatusInitialOffer,
		ToStatus:          consts.StatusOfferSubmitted,
	})

	applicationNumber := record.ApplicationNumber
	loanNumber := record.LoanNumberAlias
	h.scheduler.ScheduleFollowUp(consts.StageOffer, applicationNumber, h.followUpDelay, func(taskCtx context.Context) error {
		return h.sendInitialApproval(taskCtx, applicationNumber, loanNumber)
	})

	return h.ack(msg, applicationNumber)
}

// sendInitialApproval is the asynchronous half of the offer flow. It
// re-checks the record first: a cancellation may have landed between
// the acknowledgment and this firing.
func (h *Handlers) sendInitialApproval(ctx context.Context, applicationNumber, loanNumber string) error {
	record, err := h.store.ByApplicationNumber(ctx, applicationNumber, false)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if record.Status != consts.StatusOfferSubmitted {
		return nil
	}

	terms := h.calc.Compute(record.RequestedAmount, record.TenureMonths)
	notification := models.InitialApprovalNotification{
		ApplicationNumber:   applicationNumber,
		LoanNumber:          loanNumber,
		FSPReferenceNumber:  record.FSPReference,
		Approval:            "APPROVED",
		TotalAmountToPay:    decimalToFloat(terms.TotalAmountToPay),
		OtherCharges:        decimalToFloat(terms.OtherCharges),
		MonthlyReturnAmount: decimalToFloat(terms.EMI),
		NetLoanAmount:       decimalToFloat(terms.NetLoanAmount),
		Tenure:              record.TenureMonths,
	}
	if err := h.callbacks.Send(ctx, consts.LoanInitialApprovalNotification, applicationNumber, notification); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := h.store.Transition(ctx, applicationNumber, consts.StatusOfferSubmitted, consts.StatusInitialApprovalSent, bson.M{"offerSentAt": now}); err != nil {
		return err
	}
	h.events.PublishStatusChange(ctx, events.StatusChanged{
		ApplicationNumber: applicationNumber,
		LoanNumber:        loanNumber,
		FromStatus:        consts.StatusOfferSubmitted,
		ToStatus:          consts.StatusInitialApprovalSent,
	})
	return nil
}

func mergeTerms(base, extra map[string]interface{}) map[string]interface{} {
	for k, v := range extra {
		base[k] = v
	}
	return base
}
