package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/envelope"
	"github.com/uswegem/miracore/internal/pkg/events"
	"github.com/uswegem/miracore/internal/pkg/logger"
	"github.com/uswegem/miracore/internal/pkg/models"
)

// HandleTopUpBalance answers a payoff balance inquiry ahead of a
// top-up offer.
func (h *Handlers) HandleTopUpBalance(ctx context.Context, msg *envelope.ParsedMessage) (string, error) {
	return h.payoffBalance(ctx, msg, consts.LoanTopUpBalanceResponse)
}

// HandleTakeoverBalance answers a payoff balance inquiry from another
// FSP preparing to take the loan over.
func (h *Handlers) HandleTakeoverBalance(ctx context.Context, msg *envelope.ParsedMessage) (string, error) {
	return h.payoffBalance(ctx, msg, consts.LoanTakeoverBalanceResponse)
}

// HandleRestructureBalance answers the balance inquiry of a
// restructure flow. The wire contract has no restructure-specific
// response type; the top-up balance shape carries the same fields.
func (h *Handlers) HandleRestructureBalance(ctx context.Context, msg *envelope.ParsedMessage) (string, error) {
	return h.payoffBalance(ctx, msg, consts.LoanTopUpBalanceResponse)
}

// payoffBalance resolves the loan by its alias, reads the live
// outstanding position from the ledger and responds synchronously.
func (h *Handlers) payoffBalance(ctx context.Context, msg *envelope.ParsedMessage, responseType consts.MessageType) (string, error) {
	var req models.PayoffBalanceRequest
	if err := h.decode(msg, &req); err != nil {
		return "", err
	}

	record, err := h.store.ByLoanNumber(ctx, req.LoanNumber)
	if err != nil {
		return "", err
	}
	loanID, ok := parseLedgerID(record.LedgerLoanID)
	if !ok {
		return "", models.NewConflictError(fmt.Sprintf("loan %s has no ledger account yet", req.LoanNumber))
	}

	loan, err := h.ledger.GetLoan(ctx, loanID, true)
	if err != nil {
		return "", err
	}

	response := models.PayoffBalanceResponse{
		LoanNumber:         req.LoanNumber,
		FSPReferenceNumber: record.FSPReference,
		TotalPayoffAmount:  loan.Summary.TotalOutstanding,
		OutstandingBalance: loan.Summary.TotalOutstanding,
		FinalPaymentDate:   loan.Timeline.ExpectedMaturityDate,
	}
	return h.codec.Sign(responseType, msg.Header.Sender, response)
}

// HandleTakeoverPayment records the releasing payment from the FSP
// taking this loan over: the local record closes as COMPLETED and the
// payment is acknowledged synchronously with its own signed
// notification rather than a generic response.
func (h *Handlers) HandleTakeoverPayment(ctx context.Context, msg *envelope.ParsedMessage) (string, error) {
	var req models.TakeoverPaymentNotification
	if err := h.decode(msg, &req); err != nil {
		return "", err
	}

	record, err := h.store.ByLoanNumber(ctx, req.LoanNumber)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	extra := bson.M{
		"completedAt":                   now,
		"metadata.loanTerms.takeoverPaymentRef":    req.PaymentReference,
		"metadata.loanTerms.takeoverPaymentAmount": req.Amount,
	}
	if err := h.store.Transition(ctx, record.ApplicationNumber, record.Status, consts.StatusCompleted, extra); err != nil {
		return "", err
	}
	h.events.PublishStatusChange(ctx, events.StatusChanged{
		ApplicationNumber: record.ApplicationNumber,
		LoanNumber:        record.LoanNumberAlias,
		FromStatus:        record.Status,
		ToStatus:          consts.StatusCompleted,
		Actor:             consts.ActorFSP,
	})

	// Reconcile against the ledger off the request path: a remaining
	// outstanding balance after the takeover payment is an operations
	// problem, not the counterparty's.
	if loanID, ok := parseLedgerID(record.LedgerLoanID); ok {
		applicationNumber := record.ApplicationNumber
		h.scheduler.ScheduleFollowUp(consts.StageLiquidation, applicationNumber, h.followUpDelay, func(taskCtx context.Context) error {
			loan, err := h.ledger.GetLoan(taskCtx, loanID, false)
			if err != nil {
				return err
			}
			if loan.Summary.TotalOutstanding > 0 {
				logger.Warn(taskCtx, "loan %d still carries %0.2f outstanding after takeover payment", loanID, loan.Summary.TotalOutstanding)
				return fmt.Errorf("outstanding balance %0.2f remains after takeover payment", loan.Summary.TotalOutstanding)
			}
			return nil
		})
	}

	acknowledgment := models.PaymentAcknowledgment{
		LoanNumber:       req.LoanNumber,
		PaymentReference: req.PaymentReference,
		Status:           "RECEIVED",
	}
	return h.codec.Sign(consts.PaymentAcknowledgmentNotification, msg.Header.Sender, acknowledgment)
}
