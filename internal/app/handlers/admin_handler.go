package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/uswegem/miracore/internal/pkg/dispatch"
	"github.com/uswegem/miracore/internal/pkg/ledger"
	"github.com/uswegem/miracore/internal/pkg/logger"
	"github.com/uswegem/miracore/internal/pkg/scheduler"
)

// AdminHandler exposes read-only introspection into the gateway's
// resilience state plus the two reset operations. Administrative
// collaborators see aggregated state, not individual stack traces.
type AdminHandler struct {
	ledgerClient *ledger.Client
	followUps    *scheduler.Scheduler
	dispatcher   *dispatch.Dispatcher
}

func NewAdminHandler(ledgerClient *ledger.Client, followUps *scheduler.Scheduler, dispatcher *dispatch.Dispatcher) *AdminHandler {
	return &AdminHandler{
		ledgerClient: ledgerClient,
		followUps:    followUps,
		dispatcher:   dispatcher,
	}
}

func (h *AdminHandler) Status(c *gin.Context) {
	tokenExpiry := ""
	if at := h.ledgerClient.Tokens.ExpiresAt(); !at.IsZero() {
		tokenExpiry = at.UTC().Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, gin.H{
		"circuitBreakers": h.ledgerClient.Breakers.States(),
		"tokenValid":      h.ledgerClient.Tokens.Valid(),
		"tokenExpiresAt":  tokenExpiry,
		"queueDepth":      h.followUps.QueueDepth(),
		"lastErrors":      h.ledgerClient.LastErrors(),
		"handledTypes":    h.dispatcher.RegisteredTypes(),
	})
}

func (h *AdminHandler) ClearAuthCache(c *gin.Context) {
	h.ledgerClient.Tokens.Invalidate()
	logger.Info(c.Request.Context(), "ledger auth cache cleared")
	c.JSON(http.StatusOK, gin.H{"message": "auth cache cleared"})
}

func (h *AdminHandler) ResetBreakers(c *gin.Context) {
	h.ledgerClient.Breakers.Reset()
	logger.Info(c.Request.Context(), "circuit breakers reset")
	c.JSON(http.StatusOK, gin.H{"message": "circuit breakers reset"})
}
