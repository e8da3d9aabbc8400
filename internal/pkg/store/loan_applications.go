package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/db"
	"github.com/uswegem/miracore/internal/pkg/logger"
	"github.com/uswegem/miracore/internal/pkg/models"
)

// LoanApplicationRepository persists the per-application lifecycle
// record. All writes are atomic conditional updates against the
// collection; the store is the sole synchronization point for
// concurrent protocol messages about the same application.
type LoanApplicationRepository struct {
	repo *MongoRepository[models.LoanApplication]
}

func NewLoanApplicationRepository() *LoanApplicationRepository {
	collection := db.MDB.Database.Collection(consts.LoanApplicationCollection)
	return &LoanApplicationRepository{repo: NewMongoRepository[models.LoanApplication](collection)}
}

// NewLoanApplicationRepositoryWithCollection wires an explicit
// collection, used by tests and maintenance tooling.
func NewLoanApplicationRepositoryWithCollection(collection *mongo.Collection) *LoanApplicationRepository {
	return &LoanApplicationRepository{repo: NewMongoRepository[models.LoanApplication](collection)}
}

// activeFilter excludes terminal-inactive records so a cancelled or
// rejected application never blocks a fresh record under the same number.
func activeFilter(applicationNumber string) bson.M {
	return bson.M{
		"applicationNumber": applicationNumber,
		"status":            bson.M{"$nin": consts.InactiveStatuses},
	}
}

// CreateOrReuse is the idempotent create: an atomic upsert keyed on the
// application number with the active filter. Concurrent duplicate
// submissions converge on a single active record; the existing record
// is returned untouched when one is already active.
func (r *LoanApplicationRepository) CreateOrReuse(ctx context.Context, app models.LoanApplication) (models.LoanApplication, error) {
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	if app.Status == "" {
		app.Status = consts.StatusInitialOffer
	}
	update := bson.M{"$setOnInsert": app}
	result, err := r.repo.UpsertReturning(ctx, activeFilter(app.ApplicationNumber), update)
	if err != nil {
		return models.LoanApplication{}, fmt.Errorf("loan application upsert: %w", err)
	}
	return result, nil
}

// RecordInquiry upserts the pre-application snapshot written when a
// charges inquiry arrives before any offer. The snapshot is keyed on
// the check number, carries no application number yet, and is never
// used to resolve a loan for later protocol messages; the offer path
// creates its own record under the application number.
func (r *LoanApplicationRepository) RecordInquiry(ctx context.Context, snapshot models.LoanApplication) error {
	now := time.Now().UTC()
	filter := bson.M{
		"checkNumber":       snapshot.CheckNumber,
		"applicationNumber": "",
		"status":            consts.StatusInitialOffer,
	}
	update := bson.M{
		"$set": bson.M{
			"productCode":             snapshot.ProductCode,
			"requestedAmount":         snapshot.RequestedAmount,
			"tenureMonths":            snapshot.TenureMonths,
			"metadata.employmentData": snapshot.Metadata.EmploymentData,
			"updatedAt":               now,
		},
		"$setOnInsert": bson.M{
			"checkNumber":         snapshot.CheckNumber,
			"applicationNumber":   "",
			"status":              consts.StatusInitialOffer,
			"originalMessageType": consts.LoanChargesRequest,
			"createdAt":           now,
		},
	}
	if _, err := r.repo.UpsertReturning(ctx, filter, update); err != nil {
		return fmt.Errorf("inquiry snapshot upsert: %w", err)
	}
	return nil
}

// Transition moves the record from one status to another through a
// conditional update. The pair is validated against the lifecycle table
// first; a raced or stale record surfaces as a ConflictError, never a
// silent overwrite. extra fields are $set together with the status.
func (r *LoanApplicationRepository) Transition(ctx context.Context, applicationNumber string, from, to consts.LoanStatus, extra bson.M) error {
	if err := ValidateTransition(from, to); err != nil {
		return err
	}

	filter := activeFilter(applicationNumber)
	filter["status"] = from

	set := bson.M{"status": to, "updatedAt": time.Now().UTC()}
	for k, v := range extra {
		set[k] = v
	}

	matched, err := r.repo.Update(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("loan application transition: %w", err)
	}
	if matched == 0 {
		current, lookupErr := r.ByApplicationNumber(ctx, applicationNumber, true)
		if lookupErr != nil {
			return models.NewNotFoundError(fmt.Sprintf("no loan application %s", applicationNumber))
		}
		return models.NewConflictError(fmt.Sprintf("application %s is in state %s, expected %s", applicationNumber, current.Status, from))
	}
	return nil
}

// TransitionTerminal applies a terminal transition and records exactly
// one actor/reason pair. The actor is validated against the fixed enum
// before anything is written.
func (r *LoanApplicationRepository) TransitionTerminal(ctx context.Context, applicationNumber string, from, to consts.LoanStatus, actor consts.Actor, reason string) error {
	if !consts.ValidActor(actor) {
		return models.NewValidationError(fmt.Sprintf("unknown actor %q", actor))
	}

	extra := bson.M{}
	switch to {
	case consts.StatusRejected:
		extra["rejectedBy"] = actor
		extra["rejectionReason"] = reason
	case consts.StatusCancelled:
		extra["cancelledBy"] = actor
		extra["cancellationReason"] = reason
	case consts.StatusFailed:
		// FAILED keeps its cause in the errorLog, not a reason pair.
	default:
		return models.NewValidationError(fmt.Sprintf("%s is not a terminal status", to))
	}

	return r.Transition(ctx, applicationNumber, from, to, extra)
}

// ByApplicationNumber resolves the single active record for an
// application number. With includeInactive it also returns cancelled or
// rejected records (most recent first), for audit lookups.
func (r *LoanApplicationRepository) ByApplicationNumber(ctx context.Context, applicationNumber string, includeInactive bool) (*models.LoanApplication, error) {
	filter := activeFilter(applicationNumber)
	if includeInactive {
		filter = bson.M{"applicationNumber": applicationNumber}
	}
	app, err := r.repo.Read(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError(fmt.Sprintf("no loan application %s", applicationNumber))
		}
		return nil, err
	}
	return &app, nil
}

// ByLoanNumber resolves by the FSP loan-number alias, the primary
// cross-system correlation key. Returns the record in any state.
func (r *LoanApplicationRepository) ByLoanNumber(ctx context.Context, loanNumber string) (*models.LoanApplication, error) {
	app, err := r.repo.Read(ctx, bson.M{"loanNumberAlias": loanNumber})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError(fmt.Sprintf("no loan with number %s", loanNumber))
		}
		return nil, err
	}
	return &app, nil
}

// ByLedgerLoanID resolves by the Ledger-side loan id. Returns the
// record in any state.
func (r *LoanApplicationRepository) ByLedgerLoanID(ctx context.Context, ledgerLoanID string) (*models.LoanApplication, error) {
	app, err := r.repo.Read(ctx, bson.M{"ledgerLoanId": ledgerLoanID})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError(fmt.Sprintf("no loan with ledger id %s", ledgerLoanID))
		}
		return nil, err
	}
	return &app, nil
}

// ByFSPReference resolves by the FSP reference number assigned at
// approval. Active records only.
func (r *LoanApplicationRepository) ByFSPReference(ctx context.Context, reference string) (*models.LoanApplication, error) {
	filter := bson.M{
		"fspReferenceNumber": reference,
		"status":             bson.M{"$nin": consts.InactiveStatuses},
	}
	app, err := r.repo.Read(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError(fmt.Sprintf("no loan with FSP reference %s", reference))
		}
		return nil, err
	}
	return &app, nil
}

// AppendError pushes a diagnostics entry onto the loan's errorLog.
// Logging failures here are swallowed: diagnostics must never fail the
// operation that produced them.
func (r *LoanApplicationRepository) AppendError(ctx context.Context, applicationNumber, stage, message string) {
	entry := models.ErrorEntry{Stage: stage, Error: message, Timestamp: time.Now().UTC()}
	_, err := r.repo.Update(ctx,
		bson.M{"applicationNumber": applicationNumber},
		bson.M{"$push": bson.M{"errorLog": entry}},
	)
	if err != nil {
		logger.Error(ctx, "failed to append error log for %s: %v", applicationNumber, err)
	}
}

// AppendCallback records one outbound delivery attempt in the loan's
// callback audit trail.
func (r *LoanApplicationRepository) AppendCallback(ctx context.Context, applicationNumber string, record models.CallbackRecord) error {
	_, err := r.repo.Update(ctx,
		bson.M{"applicationNumber": applicationNumber},
		bson.M{"$push": bson.M{"metadata.callbacksSent": record}},
	)
	return err
}

// SetFields applies a plain $set to the active record, used for Ledger
// linkage ids and per-stage timestamps.
func (r *LoanApplicationRepository) SetFields(ctx context.Context, applicationNumber string, fields bson.M) error {
	fields["updatedAt"] = time.Now().UTC()
	matched, err := r.repo.Update(ctx, activeFilter(applicationNumber), bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if matched == 0 {
		return models.NewNotFoundError(fmt.Sprintf("no active loan application %s", applicationNumber))
	}
	return nil
}

// AssignFSPReference sets the FSP reference once. A second assignment
// with a different value is a ConflictError (duplicate FSP reference).
func (r *LoanApplicationRepository) AssignFSPReference(ctx context.Context, applicationNumber, reference string) error {
	filter := activeFilter(applicationNumber)
	filter["$or"] = bson.A{
		bson.M{"fspReferenceNumber": bson.M{"$exists": false}},
		bson.M{"fspReferenceNumber": reference},
	}
	matched, err := r.repo.Update(ctx, filter, bson.M{"$set": bson.M{
		"fspReferenceNumber": reference,
		"updatedAt":          time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if matched == 0 {
		if _, lookupErr := r.ByApplicationNumber(ctx, applicationNumber, false); lookupErr != nil {
			return lookupErr
		}
		return models.NewConflictError(fmt.Sprintf("application %s already carries a different FSP reference", applicationNumber))
	}
	return nil
}
