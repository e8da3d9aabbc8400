package models

import "encoding/xml"

// Typed MessageDetails bodies for outbound protocol messages.

// ResponseDetails is the generic synchronous acknowledgment body.
type ResponseDetails struct {
	XMLName            xml.Name `xml:"MessageDetails"`
	ResponseCode       int      `xml:"ResponseCode"`
	Description        string   `xml:"Description"`
	ApplicationNumber  string   `xml:"ApplicationNumber,omitempty"`
	FSPReferenceNumber string   `xml:"FSPReferenceNumber,omitempty"`
}

type ChargesResponse struct {
	XMLName            xml.Name `xml:"MessageDetails"`
	CheckNumber        string   `xml:"CheckNumber"`
	DesiredDeductibleAmount float64 `xml:"DesiredDeductibleAmount,omitempty"`
	TotalInsurance     float64  `xml:"TotalInsurance"`
	TotalProcessingFees float64 `xml:"TotalProcessingFees"`
	OtherCharges       float64  `xml:"OtherCharges"`
	NetLoanAmount      float64  `xml:"NetLoanAmount"`
	TotalAmountToPay   float64  `xml:"TotalAmountToPay"`
	MonthlyReturnAmount float64 `xml:"MonthlyReturnAmount"`
	EligibleAmount     float64  `xml:"EligibleAmount"`
	Tenure             int      `xml:"Tenure"`
	InterestRate       float64  `xml:"InterestRate"`
}

type InitialApprovalNotification struct {
	XMLName             xml.Name `xml:"MessageDetails"`
	ApplicationNumber   string   `xml:"ApplicationNumber"`
	LoanNumber          string   `xml:"LoanNumber"`
	FSPReferenceNumber  string   `xml:"FSPReferenceNumber"`
	Approval            string   `xml:"Approval"`
	Reason              string   `xml:"Reason,omitempty"`
	TotalAmountToPay    float64  `xml:"TotalAmountToPay"`
	OtherCharges        float64  `xml:"OtherCharges"`
	MonthlyReturnAmount float64  `xml:"MonthlyReturnAmount"`
	NetLoanAmount       float64  `xml:"NetLoanAmount"`
	Tenure              int      `xml:"Tenure"`
}

type DisbursementNotification struct {
	XMLName            xml.Name `xml:"MessageDetails"`
	ApplicationNumber  string   `xml:"ApplicationNumber"`
	LoanNumber         string   `xml:"LoanNumber"`
	FSPReferenceNumber string   `xml:"FSPReferenceNumber"`
	DisbursementDate   string   `xml:"DisbursementDate"`
	TotalAmountToPay   float64  `xml:"TotalAmountToPay"`
	DisbursedAmount    float64  `xml:"DisbursedAmount"`
}

type PayoffBalanceResponse struct {
	XMLName            xml.Name `xml:"MessageDetails"`
	LoanNumber         string   `xml:"LoanNumber"`
	FSPReferenceNumber string   `xml:"FSPReferenceNumber"`
	TotalPayoffAmount  float64  `xml:"TotalPayoffAmount"`
	OutstandingBalance float64  `xml:"OutstandingBalance"`
	FinalPaymentDate   string   `xml:"FinalPaymentDate"`
	LastDeductionDate  string   `xml:"LastDeductionDate,omitempty"`
	LastPayDate        string   `xml:"LastPayDate,omitempty"`
}

type PaymentAcknowledgment struct {
	XMLName          xml.Name `xml:"MessageDetails"`
	LoanNumber       string   `xml:"LoanNumber"`
	PaymentReference string   `xml:"PaymentReference"`
	Status           string   `xml:"Status"`
	Remarks          string   `xml:"Remarks,omitempty"`
}
