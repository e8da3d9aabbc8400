package models

import "encoding/xml"

// Typed MessageDetails bodies for inbound protocol messages. The
// `validate` tags are the per-message-type required-field schema the
// dispatcher enforces before a handler runs.

type LoanChargesRequest struct {
	XMLName                 xml.Name `xml:"MessageDetails"`
	CheckNumber             string   `xml:"CheckNumber" validate:"required"`
	DesignationCode         string   `xml:"DesignationCode"`
	BasicSalary             float64  `xml:"BasicSalary"`
	NetSalary               float64  `xml:"NetSalary" validate:"required,gt=0"`
	OneThirdAmount          float64  `xml:"OneThirdAmount"`
	DeductibleAmount        float64  `xml:"DeductibleAmount"`
	RequestedAmount         float64  `xml:"RequestedAmount"`
	DesiredDeductibleAmount float64  `xml:"DesiredDeductibleAmount"`
	Tenure                  int      `xml:"Tenure"`
	RetirementDate          string   `xml:"RetirementDate"`
	TermsOfEmployment       string   `xml:"TermsOfEmployment"`
	ProductCode             string   `xml:"ProductCode" validate:"required"`
	VoteCode                string   `xml:"VoteCode"`
}

type LoanOfferRequest struct {
	XMLName                 xml.Name `xml:"MessageDetails"`
	ApplicationNumber       string   `xml:"ApplicationNumber" validate:"required"`
	CheckNumber             string   `xml:"CheckNumber" validate:"required"`
	FirstName               string   `xml:"FirstName" validate:"required"`
	MiddleName              string   `xml:"MiddleName"`
	Surname                 string   `xml:"Surname" validate:"required"`
	Sex                     string   `xml:"Sex"`
	NIN                     string   `xml:"NIN"`
	BankAccountNumber       string   `xml:"BankAccountNumber" validate:"required"`
	SwiftCode               string   `xml:"SwiftCode"`
	NearestBranchCode       string   `xml:"NearestBranchCode"`
	MobileNumber            string   `xml:"MobileNumber"`
	Email                   string   `xml:"EmailAddress"`
	EmploymentDate          string   `xml:"EmploymentDate"`
	RetirementDate          string   `xml:"RetirementDate"`
	TermsOfEmployment       string   `xml:"TermsOfEmployment"`
	VoteCode                string   `xml:"VoteCode"`
	VoteName                string   `xml:"VoteName"`
	DesignationName         string   `xml:"DesignationName"`
	BasicSalary             float64  `xml:"BasicSalary"`
	NetSalary               float64  `xml:"NetSalary" validate:"required,gt=0"`
	OneThirdAmount          float64  `xml:"OneThirdAmount"`
	RequestedAmount         float64  `xml:"RequestedAmount" validate:"required,gt=0"`
	DesiredDeductibleAmount float64  `xml:"DesiredDeductibleAmount"`
	Tenure                  int      `xml:"Tenure" validate:"required,gt=0"`
	ProductCode             string   `xml:"ProductCode" validate:"required"`
	InterestRate            float64  `xml:"InterestRate"`
	SalaryAccountNumber     string   `xml:"SalaryAccountNumber"`
	FundingType             string   `xml:"FundingType"`
}

type FinalApprovalNotification struct {
	XMLName           xml.Name `xml:"MessageDetails"`
	ApplicationNumber string   `xml:"ApplicationNumber" validate:"required"`
	LoanNumber        string   `xml:"LoanNumber" validate:"required"`
	Approval          string   `xml:"Approval" validate:"required,oneof=APPROVED REJECTED"`
	FSPReferenceNumber string  `xml:"FSPReferenceNumber"`
	Reason            string   `xml:"Reason"`
	TotalAmountToPay  float64  `xml:"TotalAmountToPay"`
	OtherCharges      float64  `xml:"OtherCharges"`
}

type CancellationNotification struct {
	XMLName           xml.Name `xml:"MessageDetails"`
	ApplicationNumber string   `xml:"ApplicationNumber" validate:"required"`
	LoanNumber        string   `xml:"LoanNumber"`
	Reason            string   `xml:"Reason" validate:"required"`
}

type PayoffBalanceRequest struct {
	XMLName     xml.Name `xml:"MessageDetails"`
	LoanNumber  string   `xml:"LoanNumber" validate:"required"`
	CheckNumber string   `xml:"CheckNumber"`
	VoteCode    string   `xml:"VoteCode"`
	DeductionAmount float64 `xml:"DeductionAmount"`
}

type TopUpOfferRequest struct {
	LoanOfferRequest
	LoanNumber string `xml:"LoanNumber" validate:"required"`
}

type TakeoverOfferRequest struct {
	LoanOfferRequest
	LoanNumber      string  `xml:"LoanNumber" validate:"required"`
	TakeoverBalance float64 `xml:"TakeoverBalance"`
	FSP1Code        string  `xml:"FSP1Code"`
}

type TakeoverPaymentNotification struct {
	XMLName          xml.Name `xml:"MessageDetails"`
	LoanNumber       string   `xml:"LoanNumber" validate:"required"`
	PaymentReference string   `xml:"PaymentReference" validate:"required"`
	Amount           float64  `xml:"Amount" validate:"required,gt=0"`
	PaymentDate      string   `xml:"PaymentDate"`
	Remarks          string   `xml:"Remarks"`
}

type RestructureAffordabilityRequest struct {
	XMLName          xml.Name `xml:"MessageDetails"`
	CheckNumber      string   `xml:"CheckNumber" validate:"required"`
	LoanNumber       string   `xml:"LoanNumber"`
	NetSalary        float64  `xml:"NetSalary"`
	DeductibleAmount float64  `xml:"DeductibleAmount"`
	Tenure           int      `xml:"Tenure"`
}
