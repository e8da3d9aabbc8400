package dispatch

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/emicalc"
	"github.com/uswegem/miracore/internal/pkg/envelope"
	"github.com/uswegem/miracore/internal/pkg/logger"
	"github.com/uswegem/miracore/internal/pkg/models"
)

// Handlers implements the per-message-type protocol logic. Handlers
// are pure with respect to the transport: they receive a verified,
// decoded message and own everything after that: store writes, ledger
// calls and follow-up scheduling.
type Handlers struct {
	codec     *envelope.Codec
	store     LoanStore
	ledger    LedgerService
	scheduler FollowUpScheduler
	callbacks CallbackSender
	events    EventSink
	calc      *emicalc.Calculator
	validate  *validator.Validate

	followUpDelay time.Duration
	maxTenure     int
	productID     int64
	officeID      int64
}

type HandlersConfig struct {
	FollowUpDelay time.Duration
	MaxTenure     int
	ProductID     int64
	OfficeID      int64
}

func NewHandlers(
	codec *envelope.Codec,
	store LoanStore,
	ledgerClient LedgerService,
	followUps FollowUpScheduler,
	callbacks CallbackSender,
	events EventSink,
	calc *emicalc.Calculator,
	cfg HandlersConfig,
) *Handlers {
	if cfg.FollowUpDelay <= 0 {
		cfg.FollowUpDelay = 5 * time.Second
	}
	if cfg.MaxTenure <= 0 {
		cfg.MaxTenure = 96
	}
	if cfg.ProductID == 0 {
		cfg.ProductID = 1
	}
	if cfg.OfficeID == 0 {
		cfg.OfficeID = 1
	}
	return &Handlers{
		codec:         codec,
		store:         store,
		ledger:        ledgerClient,
		scheduler:     followUps,
		callbacks:     callbacks,
		events:        events,
		calc:          calc,
		validate:      validator.New(),
		followUpDelay: cfg.FollowUpDelay,
		maxTenure:     cfg.MaxTenure,
		productID:     cfg.ProductID,
		officeID:      cfg.OfficeID,
	}
}

// decode unmarshals the MessageDetails element into the typed struct
// for the message and enforces its required-field schema. A schema
// violation short-circuits to a signed 80xx before any handler logic.
func (h *Handlers) decode(msg *envelope.ParsedMessage, out interface{}) error {
	if err := xml.Unmarshal(msg.Details, out); err != nil {
		return models.NewStructuralError(fmt.Sprintf("unparseable message details: %v", err), consts.CodeMalformedEnvelope)
	}
	if err := h.validate.Struct(out); err != nil {
		return models.NewValidationError(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return fmt.Sprintf("missing or invalid fields: %s", strings.Join(fields, ", "))
	}
	return err.Error()
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// ack is the immediate signed acknowledgment every two-phase flow
// returns before any ledger work starts.
func (h *Handlers) ack(msg *envelope.ParsedMessage, applicationNumber string) (string, error) {
	return h.codec.SignResponse(msg.Header, consts.CodeSuccess, applicationNumber, "")
}

func newLoanNumber() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "LN" + time.Now().UTC().Format("20060102") + id[:8]
}

func newFSPReference() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return fmt.Sprintf("REF%d%s", time.Now().Unix(), id[:6])
}

const ledgerDateFormat = "02 January 2006"

// HandleLoanCharges answers a pre-offer affordability inquiry
// synchronously with the full cost breakdown, and keeps a snapshot of
// the inquiry so the employee's first protocol contact leaves a
// record even before an application number exists.
func (h *Handlers) HandleLoanCharges(ctx context.Context, msg *envelope.ParsedMessage) (string, error) {
	var req models.LoanChargesRequest
	if err := h.decode(msg, &req); err != nil {
		return "", err
	}

	tenure := req.Tenure
	if tenure <= 0 || tenure > h.maxTenure {
		tenure = h.maxTenure
	}

	maxEMI := emicalc.MaxAffordableEMI(firstPositive(req.DesiredDeductibleAmount, req.DeductibleAmount), req.OneThirdAmount, req.NetSalary)
	eligible := h.calc.MaxPrincipal(maxEMI, tenure)

	amount := req.RequestedAmount
	if amount <= 0 {
		amount, _ = eligible.Float64()
	}
	terms := h.calc.Compute(amount, tenure)

	// Best effort: a store hiccup must not fail the quote.
	snapshot := models.LoanApplication{
		CheckNumber:     req.CheckNumber,
		ProductCode:     req.ProductCode,
		RequestedAmount: amount,
		TenureMonths:    tenure,
		Metadata: models.Metadata{EmploymentData: map[string]interface{}{
			"netSalary":               req.NetSalary,
			"oneThirdAmount":          req.OneThirdAmount,
			"deductibleAmount":        req.DeductibleAmount,
			"desiredDeductibleAmount": req.DesiredDeductibleAmount,
		}},
	}
	if err := h.store.RecordInquiry(ctx, snapshot); err != nil {
		logger.Warn(ctx, "stage %s: inquiry snapshot for %s not recorded: %v", consts.StageCharges, req.CheckNumber, err)
	}

	response := models.ChargesResponse{
		CheckNumber:             req.CheckNumber,
		DesiredDeductibleAmount: req.DesiredDeductibleAmount,
		TotalInsurance:          decimalToFloat(terms.Insurance),
		TotalProcessingFees:     decimalToFloat(terms.ProcessingFee),
		OtherCharges:            decimalToFloat(terms.OtherCharges),
		NetLoanAmount:           decimalToFloat(terms.NetLoanAmount),
		TotalAmountToPay:        decimalToFloat(terms.TotalAmountToPay),
		MonthlyReturnAmount:     decimalToFloat(terms.EMI),
		EligibleAmount:          decimalToFloat(eligible),
		Tenure:                  tenure,
		InterestRate:            decimalToFloat(terms.AnnualInterestRate),
	}
	return h.codec.Sign(consts.LoanChargesResponse, msg.Header.Sender, response)
}

// HandleRestructureAffordability answers a restructure affordability
// inquiry with the maximum serviceable amount, charges-response shaped.
func (h *Handlers) HandleRestructureAffordability(ctx context.Context, msg *envelope.ParsedMessage) (string, error) {
	var req models.RestructureAffordabilityRequest
	if err := h.decode(msg, &req); err != nil {
		return "", err
	}

	tenure := req.Tenure
	if tenure <= 0 || tenure > h.maxTenure {
		tenure = h.maxTenure
	}

	maxEMI := emicalc.MaxAffordableEMI(req.DeductibleAmount, 0, req.NetSalary)
	eligible := h.calc.MaxPrincipal(maxEMI, tenure)
	terms := h.calc.Compute(decimalToFloat(eligible), tenure)

	response := models.ChargesResponse{
		CheckNumber:         req.CheckNumber,
		TotalInsurance:      decimalToFloat(terms.Insurance),
		TotalProcessingFees: decimalToFloat(terms.ProcessingFee),
		OtherCharges:        decimalToFloat(terms.OtherCharges),
		NetLoanAmount:       decimalToFloat(terms.NetLoanAmount),
		TotalAmountToPay:    decimalToFloat(terms.TotalAmountToPay),
		MonthlyReturnAmount: decimalToFloat(terms.EMI),
		EligibleAmount:      decimalToFloat(eligible),
		Tenure:              tenure,
		InterestRate:        decimalToFloat(terms.AnnualInterestRate),
	}
	return h.codec.Sign(consts.LoanChargesResponse, msg.Header.Sender, response)
}

// isNotFound lets follow-up tasks treat a record that went inactive
// between scheduling and firing as a normal skip.
func isNotFound(err error) bool {
	var cerr *models.CustomError
	return errors.As(err, &cerr) && cerr.ProtocolCode == consts.CodeUnknownLoan
}

func decimalToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
