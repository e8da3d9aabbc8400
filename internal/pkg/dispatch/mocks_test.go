package dispatch

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/xml"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/emicalc"
	"github.com/uswegem/miracore/internal/pkg/envelope"
	"github.com/uswegem/miracore/internal/pkg/events"
	"github.com/uswegem/miracore/internal/pkg/ledger"
	"github.com/uswegem/miracore/internal/pkg/models"
	"github.com/uswegem/miracore/internal/pkg/scheduler"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateOrReuse(ctx context.Context, app models.LoanApplication) (models.LoanApplication, error) {
	args := m.Called(ctx, app)
	if fn, ok := args.Get(0).(func(models.LoanApplication) models.LoanApplication); ok {
		return fn(app), args.Error(1)
	}
	return args.Get(0).(models.LoanApplication), args.Error(1)
}

func (m *mockStore) RecordInquiry(ctx context.Context, snapshot models.LoanApplication) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *mockStore) Transition(ctx context.Context, applicationNumber string, from, to consts.LoanStatus, extra bson.M) error {
	args := m.Called(ctx, applicationNumber, from, to, extra)
	return args.Error(0)
}

func (m *mockStore) TransitionTerminal(ctx context.Context, applicationNumber string, from, to consts.LoanStatus, actor consts.Actor, reason string) error {
	args := m.Called(ctx, applicationNumber, from, to, actor, reason)
	return args.Error(0)
}

func (m *mockStore) ByApplicationNumber(ctx context.Context, applicationNumber string, includeInactive bool) (*models.LoanApplication, error) {
	args := m.Called(ctx, applicationNumber, includeInactive)
	if record := args.Get(0); record != nil {
		return record.(*models.LoanApplication), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) ByLoanNumber(ctx context.Context, loanNumber string) (*models.LoanApplication, error) {
	args := m.Called(ctx, loanNumber)
	if record := args.Get(0); record != nil {
		return record.(*models.LoanApplication), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) AppendError(ctx context.Context, applicationNumber, stage, message string) {
	m.Called(ctx, applicationNumber, stage, message)
}

func (m *mockStore) AppendCallback(ctx context.Context, applicationNumber string, record models.CallbackRecord) error {
	args := m.Called(ctx, applicationNumber, record)
	return args.Error(0)
}

func (m *mockStore) SetFields(ctx context.Context, applicationNumber string, fields bson.M) error {
	args := m.Called(ctx, applicationNumber, fields)
	return args.Error(0)
}

func (m *mockStore) AssignFSPReference(ctx context.Context, applicationNumber, reference string) error {
	args := m.Called(ctx, applicationNumber, reference)
	return args.Error(0)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) CreateClient(ctx context.Context, req ledger.ClientCreateRequest) (*ledger.ClientResource, error) {
	args := m.Called(ctx, req)
	if resource := args.Get(0); resource != nil {
		return resource.(*ledger.ClientResource), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedger) SearchClientByExternalID(ctx context.Context, externalID string) (*ledger.ClientResource, error) {
	args := m.Called(ctx, externalID)
	if resource := args.Get(0); resource != nil {
		return resource.(*ledger.ClientResource), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedger) CreateOnboarding(ctx context.Context, clientID int64, payload map[string]interface{}) error {
	args := m.Called(ctx, clientID, payload)
	return args.Error(0)
}

func (m *mockLedger) CreateLoan(ctx context.Context, req ledger.LoanCreateRequest) (*ledger.LoanResource, error) {
	args := m.Called(ctx, req)
	if resource := args.Get(0); resource != nil {
		return resource.(*ledger.LoanResource), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedger) ApproveLoan(ctx context.Context, loanID int64, approvedAmount float64, approvedOnDate string) error {
	args := m.Called(ctx, loanID, approvedAmount, approvedOnDate)
	return args.Error(0)
}

func (m *mockLedger) DisburseLoan(ctx context.Context, loanID int64, amount float64, disbursedOnDate string) error {
	args := m.Called(ctx, loanID, amount, disbursedOnDate)
	return args.Error(0)
}

func (m *mockLedger) RejectLoan(ctx context.Context, loanID int64, rejectedOnDate, note string) error {
	args := m.Called(ctx, loanID, rejectedOnDate, note)
	return args.Error(0)
}

func (m *mockLedger) GetLoan(ctx context.Context, loanID int64, withAssociations bool) (*ledger.LoanResource, error) {
	args := m.Called(ctx, loanID, withAssociations)
	if resource := args.Get(0); resource != nil {
		return resource.(*ledger.LoanResource), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockCallbacks struct {
	mock.Mock
}

func (m *mockCallbacks) Send(ctx context.Context, msgType consts.MessageType, applicationNumber string, details interface{}) error {
	args := m.Called(ctx, msgType, applicationNumber, details)
	return args.Error(0)
}

type mockDedup struct {
	mock.Mock
}

func (m *mockDedup) Seen(ctx context.Context, msgID string) (bool, error) {
	args := m.Called(ctx, msgID)
	return args.Bool(0), args.Error(1)
}

// fakeScheduler captures follow-up tasks so tests can fire them
// deterministically after asserting the synchronous response.
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []capturedTask
}

type capturedTask struct {
	kind              string
	applicationNumber string
	task              scheduler.Task
}

func (s *fakeScheduler) ScheduleFollowUp(kind, applicationNumber string, delay time.Duration, task scheduler.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, capturedTask{kind: kind, applicationNumber: applicationNumber, task: task})
}

func (s *fakeScheduler) captured() []capturedTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedTask(nil), s.tasks...)
}

// runAll fires every captured task, including ones tasks schedule in
// turn, and returns the collected errors.
func (s *fakeScheduler) runAll(ctx context.Context) []error {
	var errs []error
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return errs
		}
		next := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()

		if err := next.task(ctx); err != nil {
			errs = append(errs, err)
		}
	}
}

type recordingEvents struct {
	mu     sync.Mutex
	events []events.StatusChanged
}

func (r *recordingEvents) PublishStatusChange(ctx context.Context, event events.StatusChanged) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEvents) recorded() []events.StatusChanged {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.StatusChanged(nil), r.events...)
}

type fixture struct {
	codec      *envelope.Codec
	store      *mockStore
	ledger     *mockLedger
	sched      *fakeScheduler
	callbacks  *mockCallbacks
	events     *recordingEvents
	calc       *emicalc.Calculator
	handlers   *Handlers
	dispatcher *Dispatcher
	dedup      *mockDedup
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fixture{
		codec:     envelope.NewCodecWithKeys("FL7456", "TESTFSP", key, &key.PublicKey),
		store:     &mockStore{},
		ledger:    &mockLedger{},
		sched:     &fakeScheduler{},
		callbacks: &mockCallbacks{},
		events:    &recordingEvents{},
		dedup:     &mockDedup{},
		calc:      emicalc.New(24, 2.5, 1),
	}
	f.handlers = NewHandlers(f.codec, f.store, f.ledger, f.sched, f.callbacks, f.events, f.calc, HandlersConfig{
		FollowUpDelay: time.Millisecond,
		MaxTenure:     96,
	})
	f.dispatcher = NewDispatcher(f.codec, f.dedup, f.handlers)
	return f
}

func inbound(msgType consts.MessageType, details string) *envelope.ParsedMessage {
	return &envelope.ParsedMessage{
		Header: models.Header{
			Sender:      "ESS_UTUMISHI",
			Receiver:    "TESTFSP",
			FSPCode:     "FL7456",
			MsgId:       "ESS" + string(msgType) + "001",
			MessageType: string(msgType),
		},
		Details: []byte(details),
	}
}

// decodeSigned verifies an outbound envelope with the fixture's own
// key pair and decodes its MessageDetails into out.
func (f *fixture) decodeSigned(t *testing.T, signed string, out interface{}) models.Header {
	t.Helper()
	msg, err := f.codec.Verify([]byte(signed))
	require.NoError(t, err)
	require.NoError(t, xml.Unmarshal(msg.Details, out))
	return msg.Header
}

const offerDetailsXML = `<MessageDetails>
  <ApplicationNumber>APP2026001</ApplicationNumber>
  <CheckNumber>CHK778899</CheckNumber>
  <FirstName>Neema</FirstName>
  <MiddleName>A</MiddleName>
  <Surname>Mollel</Surname>
  <Sex>F</Sex>
  <NIN>19900101000123</NIN>
  <BankAccountNumber>0150987654321</BankAccountNumber>
  <SwiftCode>MIRATZTZ</SwiftCode>
  <MobileNumber>255700111222</MobileNumber>
  <EmailAddress>neema@example.org</EmailAddress>
  <VoteCode>V401</VoteCode>
  <VoteName>Ministry of Health</VoteName>
  <DesignationName>Nurse</DesignationName>
  <BasicSalary>1500000</BasicSalary>
  <NetSalary>1200000</NetSalary>
  <OneThirdAmount>400000</OneThirdAmount>
  <RequestedAmount>5000000</RequestedAmount>
  <DesiredDeductibleAmount>350000</DesiredDeductibleAmount>
  <Tenure>36</Tenure>
  <ProductCode>PL001</ProductCode>
</MessageDetails>`
