package emicalc

import (
	"github.com/shopspring/decimal"
)

// Terms is the computed cost breakdown for a requested loan.
type Terms struct {
	Principal          decimal.Decimal
	EMI                decimal.Decimal
	TotalAmountToPay   decimal.Decimal
	TotalInterest      decimal.Decimal
	ProcessingFee      decimal.Decimal
	Insurance          decimal.Decimal
	OtherCharges       decimal.Decimal
	NetLoanAmount      decimal.Decimal
	TenureMonths       int
	AnnualInterestRate decimal.Decimal
}

// Calculator performs the loan cost arithmetic. Rates are percentages
// (24.0 means 24% p.a.).
type Calculator struct {
	AnnualRate    decimal.Decimal
	ProcessingPct decimal.Decimal
	InsurancePct  decimal.Decimal
}

func New(annualRate, processingPct, insurancePct float64) *Calculator {
	return &Calculator{
		AnnualRate:    decimal.NewFromFloat(annualRate),
		ProcessingPct: decimal.NewFromFloat(processingPct),
		InsurancePct:  decimal.NewFromFloat(insurancePct),
	}
}

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
	three   = decimal.NewFromInt(3)
	one     = decimal.NewFromInt(1)
)

// monthlyRate is the periodic rate as a fraction.
func (c *Calculator) monthlyRate() decimal.Decimal {
	return c.AnnualRate.Div(hundred).Div(twelve)
}

// EMI computes the equal monthly installment for principal over tenure
// months using the standard annuity formula.
func (c *Calculator) EMI(principal decimal.Decimal, tenureMonths int) decimal.Decimal {
	if tenureMonths <= 0 || principal.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	r := c.monthlyRate()
	if r.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(tenureMonths))).Round(2)
	}
	factor := one.Add(r).Pow(decimal.NewFromInt(int64(tenureMonths)))
	numerator := principal.Mul(r).Mul(factor)
	denominator := factor.Sub(one)
	return numerator.Div(denominator).Round(2)
}

// Compute derives the full cost breakdown for a requested amount.
func (c *Calculator) Compute(requested float64, tenureMonths int) Terms {
	principal := decimal.NewFromFloat(requested)
	emi := c.EMI(principal, tenureMonths)
	total := emi.Mul(decimal.NewFromInt(int64(tenureMonths))).Round(2)
	processing := principal.Mul(c.ProcessingPct).Div(hundred).Round(2)
	insurance := principal.Mul(c.InsurancePct).Div(hundred).Round(2)
	net := principal.Sub(processing).Sub(insurance)

	return Terms{
		Principal:          principal,
		EMI:                emi,
		TotalAmountToPay:   total,
		TotalInterest:      total.Sub(principal).Round(2),
		ProcessingFee:      processing,
		Insurance:          insurance,
		OtherCharges:       processing.Add(insurance).Round(2),
		NetLoanAmount:      net,
		TenureMonths:       tenureMonths,
		AnnualInterestRate: c.AnnualRate,
	}
}

// MaxAffordableEMI resolves the deduction ceiling for an applicant. The
// explicit deductible amount takes precedence; the protocol's
// one-third amount is next; absent both, one third of net salary.
func MaxAffordableEMI(deductibleAmount, oneThirdAmount, netSalary float64) decimal.Decimal {
	if deductibleAmount > 0 {
		return decimal.NewFromFloat(deductibleAmount)
	}
	if oneThirdAmount > 0 {
		return decimal.NewFromFloat(oneThirdAmount)
	}
	return decimal.NewFromFloat(netSalary).Div(three).Round(2)
}

// MaxPrincipal inverts the annuity formula: the largest principal whose
// EMI over tenure months stays within maxEMI.
func (c *Calculator) MaxPrincipal(maxEMI decimal.Decimal, tenureMonths int) decimal.Decimal {
	if tenureMonths <= 0 || maxEMI.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	r := c.monthlyRate()
	if r.IsZero() {
		return maxEMI.Mul(decimal.NewFromInt(int64(tenureMonths))).Round(2)
	}
	factor := one.Add(r).Pow(decimal.NewFromInt(int64(tenureMonths)))
	return maxEMI.Mul(factor.Sub(one)).Div(r.Mul(factor)).Round(2)
}
