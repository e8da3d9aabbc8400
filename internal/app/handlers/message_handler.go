package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/dispatch"
	"github.com/uswegem/miracore/internal/pkg/envelope"
	"github.com/uswegem/miracore/internal/pkg/logger"
	"github.com/uswegem/miracore/internal/pkg/models"
	"github.com/uswegem/miracore/internal/pkg/utils"
)

// MessageHandler is the single protocol ingress: every signed envelope
// from the employer system lands here. Anything that reaches this
// handler is answered with a signed envelope, never a bare HTTP error.
type MessageHandler struct {
	codec      *envelope.Codec
	dispatcher *dispatch.Dispatcher
}

func NewMessageHandler(codec *envelope.Codec, dispatcher *dispatch.Dispatcher) *MessageHandler {
	return &MessageHandler{codec: codec, dispatcher: dispatcher}
}

func (h *MessageHandler) ReceiveMessage(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		logger.Warn(ctx, "unreadable or empty request body: %v", err)
		h.respondError(c, models.Header{}, consts.CodeMalformedEnvelope)
		return
	}

	msg, err := h.codec.Verify(body)
	if err != nil {
		logger.Warn(ctx, "stage %s: envelope verification failed (%s): %v", consts.StageVerify, utils.GetErrorCode(err), err)
		h.respondError(c, models.Header{}, utils.ProtocolCode(err))
		return
	}

	response := h.dispatcher.Dispatch(ctx, msg)
	c.Data(http.StatusOK, "application/xml", []byte(response))
}

func (h *MessageHandler) respondError(c *gin.Context, header models.Header, code int) {
	signed, err := h.codec.SignResponse(header, code, "", "")
	if err != nil {
		logger.Error(c.Request.Context(), "failed to sign %d response: %v", code, err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(signed))
}
