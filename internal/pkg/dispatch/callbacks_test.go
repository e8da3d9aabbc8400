package dispatch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/models"
)

func TestCallbackDeliveredAndAudited(t *testing.T) {
	f := newFixture(t)

	var gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f.store.On("AppendCallback", mock.Anything, "APP2026001", mock.Anything).Return(nil)
	sender := NewESSCallbackSender(f.codec, server.URL, "ESS_UTUMISHI", 2*time.Second, f.store)

	notification := models.InitialApprovalNotification{
		ApplicationNumber: "APP2026001",
		LoanNumber:        "LN20260831AB12CD34",
		Approval:          "APPROVED",
	}
	err := sender.Send(context.Background(), consts.LoanInitialApprovalNotification, "APP2026001", notification)
	require.NoError(t, err)

	assert.Equal(t, "application/xml", gotContentType)

	// The delivered payload is a verifiable signed envelope.
	msg, err := f.codec.Verify(gotBody)
	require.NoError(t, err)
	assert.Equal(t, string(consts.LoanInitialApprovalNotification), msg.Header.MessageType)
	assert.Equal(t, "ESS_UTUMISHI", msg.Header.Receiver)

	f.store.AssertExpectations(t)
	audited := f.store.Calls[0].Arguments.Get(2).(models.CallbackRecord)
	assert.True(t, audited.Success)
	assert.Empty(t, audited.Error)
	assert.NotEmpty(t, audited.Payload)
}

func TestCallbackFailureAuditedWithError(t *testing.T) {
	f := newFixture(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	f.store.On("AppendCallback", mock.Anything, "APP2026001", mock.Anything).Return(nil)
	sender := NewESSCallbackSender(f.codec, server.URL, "ESS_UTUMISHI", 2*time.Second, f.store)

	err := sender.Send(context.Background(), consts.LoanDisbursementNotification, "APP2026001", models.DisbursementNotification{
		ApplicationNumber: "APP2026001",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")

	audited := f.store.Calls[0].Arguments.Get(2).(models.CallbackRecord)
	assert.False(t, audited.Success)
	assert.Equal(t, "upstream unavailable", audited.Error)
	assert.Equal(t, consts.LoanDisbursementNotification, audited.MessageType)
}

func TestCallbackUnreachableEndpointAudited(t *testing.T) {
	f := newFixture(t)
	f.store.On("AppendCallback", mock.Anything, "APP2026001", mock.Anything).Return(nil)

	sender := NewESSCallbackSender(f.codec, "http://127.0.0.1:1", "ESS_UTUMISHI", time.Second, f.store)
	err := sender.Send(context.Background(), consts.LoanInitialApprovalNotification, "APP2026001", models.InitialApprovalNotification{})
	require.Error(t, err)

	audited := f.store.Calls[0].Arguments.Get(2).(models.CallbackRecord)
	assert.False(t, audited.Success)
	assert.NotEmpty(t, audited.Error)
}
