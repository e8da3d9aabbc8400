package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/uswegem/miracore/internal/pkg/consts"
)

// LoanApplication is one row per employer-protocol application number.
// An application number identifies at most one active record; cancelled
// and rejected records are retained for audit and never block re-creation.
type LoanApplication struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	ApplicationNumber string             `bson:"applicationNumber"`
	CheckNumber       string             `bson:"checkNumber"`
	LoanNumberAlias   string             `bson:"loanNumberAlias,omitempty"`
	FSPReference      string             `bson:"fspReferenceNumber,omitempty"`

	LedgerClientID      string `bson:"ledgerClientId,omitempty"`
	LedgerLoanID        string `bson:"ledgerLoanId,omitempty"`
	LedgerAccountNumber string `bson:"ledgerAccountNumber,omitempty"`

	ProductCode     string  `bson:"productCode,omitempty"`
	RequestedAmount float64 `bson:"requestedAmount,omitempty"`
	TenureMonths    int     `bson:"tenureMonths,omitempty"`

	OriginalMessageType consts.MessageType `bson:"originalMessageType"`
	Status              consts.LoanStatus  `bson:"status"`

	RejectedBy         consts.Actor `bson:"rejectedBy,omitempty"`
	RejectionReason    string       `bson:"rejectionReason,omitempty"`
	CancelledBy        consts.Actor `bson:"cancelledBy,omitempty"`
	CancellationReason string       `bson:"cancellationReason,omitempty"`

	OfferSentAt            *time.Time `bson:"offerSentAt,omitempty"`
	ApprovalReceivedAt     *time.Time `bson:"approvalReceivedAt,omitempty"`
	ClientCreatedAt        *time.Time `bson:"clientCreatedAt,omitempty"`
	LoanCreatedAt          *time.Time `bson:"loanCreatedAt,omitempty"`
	DisbursedAt            *time.Time `bson:"disbursedAt,omitempty"`
	CompletedAt            *time.Time `bson:"completedAt,omitempty"`
	LiquidationRequestedAt *time.Time `bson:"liquidationRequestedAt,omitempty"`
	FailureNotifiedAt      *time.Time `bson:"failureNotifiedAt,omitempty"`

	ErrorLog []ErrorEntry `bson:"errorLog,omitempty"`
	Metadata Metadata     `bson:"metadata,omitempty"`

	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type ErrorEntry struct {
	Stage     string    `bson:"stage"`
	Error     string    `bson:"error"`
	Timestamp time.Time `bson:"timestamp"`
}

// Metadata is the semi-structured bag holding protocol payload snapshots
// and the callback delivery audit trail.
type Metadata struct {
	ApplicantData  map[string]interface{} `bson:"applicantData,omitempty"`
	EmploymentData map[string]interface{} `bson:"employmentData,omitempty"`
	LoanTerms      map[string]interface{} `bson:"loanTerms,omitempty"`
	CallbacksSent  []CallbackRecord       `bson:"callbacksSent,omitempty"`
}

// CallbackRecord is one outbound delivery attempt, success or failure.
type CallbackRecord struct {
	MessageType consts.MessageType `bson:"messageType"`
	Timestamp   time.Time          `bson:"timestamp"`
	Success     bool               `bson:"success"`
	Error       string             `bson:"error,omitempty"`
	Payload     string             `bson:"payload,omitempty"`
}
