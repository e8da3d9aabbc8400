package dispatch

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/events"
	"github.com/uswegem/miracore/internal/pkg/ledger"
	"github.com/uswegem/miracore/internal/pkg/models"
	"github.com/uswegem/miracore/internal/pkg/scheduler"
)

// LoanStore is the slice of the loan application repository the
// handlers depend on.
type LoanStore interface {
	CreateOrReuse(ctx context.Context, app models.LoanApplication) (models.LoanApplication, error)
	RecordInquiry(ctx context.Context, snapshot models.LoanApplication) error
	Transition(ctx context.Context, applicationNumber string, from, to consts.LoanStatus, extra bson.M) error
	TransitionTerminal(ctx context.Context, applicationNumber string, from, to consts.LoanStatus, actor consts.Actor, reason string) error
	ByApplicationNumber(ctx context.Context, applicationNumber string, includeInactive bool) (*models.LoanApplication, error)
	ByLoanNumber(ctx context.Context, loanNumber string) (*models.LoanApplication, error)
	AppendError(ctx context.Context, applicationNumber, stage, message string)
	AppendCallback(ctx context.Context, applicationNumber string, record models.CallbackRecord) error
	SetFields(ctx context.Context, applicationNumber string, fields bson.M) error
	AssignFSPReference(ctx context.Context, applicationNumber, reference string) error
}

// LedgerService is the slice of the core banking client the handlers
// and follow-ups call.
type LedgerService interface {
	CreateClient(ctx context.Context, req ledger.ClientCreateRequest) (*ledger.ClientResource, error)
	SearchClientByExternalID(ctx context.Context, externalID string) (*ledger.ClientResource, error)
	CreateOnboarding(ctx context.Context, clientID int64, payload map[string]interface{}) error
	CreateLoan(ctx context.Context, req ledger.LoanCreateRequest) (*ledger.LoanResource, error)
	ApproveLoan(ctx context.Context, loanID int64, approvedAmount float64, approvedOnDate string) error
	DisburseLoan(ctx context.Context, loanID int64, amount float64, disbursedOnDate string) error
	RejectLoan(ctx context.Context, loanID int64, rejectedOnDate, note string) error
	GetLoan(ctx context.Context, loanID int64, withAssociations bool) (*ledger.LoanResource, error)
}

// FollowUpScheduler queues the asynchronous half of the two-phase
// notification pattern.
type FollowUpScheduler interface {
	ScheduleFollowUp(kind, applicationNumber string, delay time.Duration, task scheduler.Task)
}

// CallbackSender delivers a signed outbound envelope to the
// counterparty and records the attempt in the loan's audit trail.
type CallbackSender interface {
	Send(ctx context.Context, msgType consts.MessageType, applicationNumber string, details interface{}) error
}

// EventSink receives lifecycle transition events.
type EventSink interface {
	PublishStatusChange(ctx context.Context, event events.StatusChanged)
}

// DedupChecker remembers inbound message ids.
type DedupChecker interface {
	Seen(ctx context.Context, msgID string) (bool, error)
}
