package dispatch

import (
	"context"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/envelope"
	"github.com/uswegem/miracore/internal/pkg/logger"
	"github.com/uswegem/miracore/internal/pkg/utils"
)

// HandlerFunc processes a verified message and returns the signed
// synchronous response. Handlers own all side effects past the
// transport: store writes, ledger calls, follow-up scheduling.
type HandlerFunc func(ctx context.Context, msg *envelope.ParsedMessage) (string, error)

// Dispatcher routes verified envelopes to handlers keyed purely on
// Header.MessageType. Unrecognized types pass to a generic forwarding
// path; replayed MsgIds are acknowledged without re-running a handler.
type Dispatcher struct {
	codec    *envelope.Codec
	dedup    DedupChecker
	handlers map[consts.MessageType]HandlerFunc
}

func NewDispatcher(codec *envelope.Codec, dedup DedupChecker, h *Handlers) *Dispatcher {
	return &Dispatcher{
		codec: codec,
		dedup: dedup,
		handlers: map[consts.MessageType]HandlerFunc{
			consts.LoanChargesRequest:            h.HandleLoanCharges,
			consts.LoanOfferRequest:              h.HandleLoanOffer,
			consts.LoanFinalApprovalNotification: h.HandleFinalApproval,
			consts.LoanCancellationNotification:  h.HandleCancellation,
			consts.TopUpPayoffBalanceRequest:     h.HandleTopUpBalance,
			consts.TopUpOfferRequest:             h.HandleTopUpOffer,
			consts.TakeoverPayoffBalanceRequest:  h.HandleTakeoverBalance,
			consts.LoanTakeoverOfferRequest:      h.HandleTakeoverOffer,
			consts.TakeoverPaymentNotification:   h.HandleTakeoverPayment,
			consts.LoanRestructureBalanceRequest: h.HandleRestructureBalance,
			consts.LoanRestructureAffordabilityRequest: h.HandleRestructureAffordability,
		},
	}
}

// Dispatch routes one verified message and always yields a signed
// envelope, success or failure.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *envelope.ParsedMessage) string {
	if d.dedup != nil {
		seen, err := d.dedup.Seen(ctx, msg.Header.MsgId)
		if err != nil {
			// A broken dedup cache must not block traffic.
			logger.Warn(ctx, "msg id dedup check failed: %v", err)
		} else if seen {
			logger.Info(ctx, "duplicate message %s (%s) acknowledged without processing", msg.Header.MsgId, msg.Header.MessageType)
			return d.respond(ctx, msg, consts.CodeDuplicateMessage, "")
		}
	}

	handler, ok := d.handlers[consts.MessageType(msg.Header.MessageType)]
	if !ok {
		// Generic forwarding path for message types this gateway does
		// not process itself.
		logger.Info(ctx, "forwarding unhandled message type %s (msg %s)", msg.Header.MessageType, msg.Header.MsgId)
		return d.respond(ctx, msg, consts.CodeSuccess, "")
	}

	response, err := handler(ctx, msg)
	if err != nil {
		logger.Error(ctx, "stage %s: handler for %s failed (%s): %v", consts.StageDispatch, msg.Header.MessageType, utils.GetErrorCode(err), err)
		return d.respond(ctx, msg, utils.ProtocolCode(err), "")
	}
	return response
}

func (d *Dispatcher) respond(ctx context.Context, msg *envelope.ParsedMessage, code int, applicationNumber string) string {
	signed, err := d.codec.SignResponse(msg.Header, code, applicationNumber, "")
	if err != nil {
		// Signing only fails on marshal errors, which cannot happen for
		// ResponseDetails; log loudly anyway.
		logger.Error(ctx, "failed to sign %d response: %v", code, err)
		return ""
	}
	return signed
}

// RegisteredTypes lists the message types with dedicated handlers.
func (d *Dispatcher) RegisteredTypes() []consts.MessageType {
	types := make([]consts.MessageType, 0, len(d.handlers))
	for t := range d.handlers {
		types = append(types, t)
	}
	return types
}
