package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/envelope"
	"github.com/uswegem/miracore/internal/pkg/logger"
	"github.com/uswegem/miracore/internal/pkg/models"
)

// ESSCallbackSender posts signed envelopes to the employer system's
// callback endpoint. Every attempt, delivered or not, lands in the
// loan record's callbacksSent audit trail so reconciliation and
// re-send tooling can see what left the gateway.
type ESSCallbackSender struct {
	codec    *envelope.Codec
	url      string
	receiver string
	http     *http.Client
	store    LoanStore
}

func NewESSCallbackSender(codec *envelope.Codec, url, receiver string, timeout time.Duration, store LoanStore) *ESSCallbackSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ESSCallbackSender{
		codec:    codec,
		url:      url,
		receiver: receiver,
		http:     &http.Client{Timeout: timeout},
		store:    store,
	}
}

func (s *ESSCallbackSender) Send(ctx context.Context, msgType consts.MessageType, applicationNumber string, details interface{}) error {
	payload, err := s.codec.Sign(msgType, s.receiver, details)
	if err != nil {
		s.audit(ctx, applicationNumber, msgType, "", false, err)
		return fmt.Errorf("signing %s callback: %w", msgType, err)
	}

	deliveryErr := s.post(ctx, payload)
	s.audit(ctx, applicationNumber, msgType, payload, deliveryErr == nil, deliveryErr)
	if deliveryErr != nil {
		return fmt.Errorf("delivering %s callback: %w", msgType, deliveryErr)
	}
	return nil
}

func (s *ESSCallbackSender) post(ctx context.Context, payload string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/xml")

	res, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return errors.New(strings.TrimSpace(string(body)))
	}
	return nil
}

func (s *ESSCallbackSender) audit(ctx context.Context, applicationNumber string, msgType consts.MessageType, payload string, success bool, deliveryErr error) {
	record := models.CallbackRecord{
		MessageType: msgType,
		Timestamp:   time.Now().UTC(),
		Success:     success,
		Payload:     payload,
	}
	if deliveryErr != nil {
		record.Error = deliveryErr.Error()
	}
	if err := s.store.AppendCallback(ctx, applicationNumber, record); err != nil {
		logger.Error(ctx, "failed to audit %s callback for %s: %v", msgType, applicationNumber, err)
	}
}
