package dispatch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/models"
)

func TestDispatchDuplicateAcknowledgedWithoutProcessing(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.LoanOfferRequest, offerDetailsXML)
	f.dedup.On("Seen", mock.Anything, msg.Header.MsgId).Return(true, nil)

	signed := f.dispatcher.Dispatch(context.Background(), msg)

	var details models.ResponseDetails
	header := f.decodeSigned(t, signed, &details)
	assert.Equal(t, consts.CodeDuplicateMessage, details.ResponseCode)
	assert.Equal(t, "ESS_UTUMISHI", header.Receiver)
	f.store.AssertNotCalled(t, "CreateOrReuse", mock.Anything, mock.Anything)
	assert.Empty(t, f.sched.captured())
}

func TestDispatchUnknownTypeForwarded(t *testing.T) {
	f := newFixture(t)
	msg := inbound("PRODUCT_DETAIL_REQUEST", "<MessageDetails></MessageDetails>")
	f.dedup.On("Seen", mock.Anything, mock.Anything).Return(false, nil)

	signed := f.dispatcher.Dispatch(context.Background(), msg)

	var details models.ResponseDetails
	f.decodeSigned(t, signed, &details)
	assert.Equal(t, consts.CodeSuccess, details.ResponseCode)
}

func TestDispatchDedupFailureDoesNotBlockTraffic(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.LoanChargesRequest, `<MessageDetails>
  <CheckNumber>CHK778899</CheckNumber>
  <NetSalary>1200000</NetSalary>
  <OneThirdAmount>400000</OneThirdAmount>
  <RequestedAmount>3000000</RequestedAmount>
  <Tenure>24</Tenure>
  <ProductCode>PL001</ProductCode>
</MessageDetails>`)
	f.dedup.On("Seen", mock.Anything, mock.Anything).Return(false, fmt.Errorf("redis down"))
	f.store.On("RecordInquiry", mock.Anything, mock.Anything).Return(nil)

	signed := f.dispatcher.Dispatch(context.Background(), msg)

	var charges models.ChargesResponse
	header := f.decodeSigned(t, signed, &charges)
	assert.Equal(t, string(consts.LoanChargesResponse), header.MessageType)
	assert.Equal(t, "CHK778899", charges.CheckNumber)
}

func TestDispatchSchemaViolationSigned(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.LoanChargesRequest, "<MessageDetails></MessageDetails>")
	f.dedup.On("Seen", mock.Anything, mock.Anything).Return(false, nil)

	signed := f.dispatcher.Dispatch(context.Background(), msg)

	var details models.ResponseDetails
	f.decodeSigned(t, signed, &details)
	assert.Equal(t, consts.CodeSchemaViolation, details.ResponseCode)
	assert.Equal(t, consts.ResponseDescription(consts.CodeSchemaViolation), details.Description)
}

func TestDispatchUnknownLoanSigned(t *testing.T) {
	f := newFixture(t)
	msg := inbound(consts.TopUpPayoffBalanceRequest, `<MessageDetails><LoanNumber>LN00000000</LoanNumber></MessageDetails>`)
	f.dedup.On("Seen", mock.Anything, mock.Anything).Return(false, nil)
	f.store.On("ByLoanNumber", mock.Anything, "LN00000000").Return(nil, models.NewNotFoundError("no loan LN00000000"))

	signed := f.dispatcher.Dispatch(context.Background(), msg)

	var details models.ResponseDetails
	f.decodeSigned(t, signed, &details)
	assert.Equal(t, consts.CodeUnknownLoan, details.ResponseCode)
}

func TestDispatchRegisteredTypesCoverProtocol(t *testing.T) {
	f := newFixture(t)
	types := f.dispatcher.RegisteredTypes()
	require.Len(t, types, 11)
	assert.Contains(t, types, consts.LoanOfferRequest)
	assert.Contains(t, types, consts.LoanFinalApprovalNotification)
	assert.Contains(t, types, consts.LoanRestructureAffordabilityRequest)
}
