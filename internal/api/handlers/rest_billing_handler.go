package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ugacribs/rentpay/internal/services"
)

// RestBillingHandler exposes the daily billing runs for manual triggering and
// replay. The underlying runs are idempotent, so repeating a request is safe.
type RestBillingHandler struct {
	billingRuns services.IBillingRunService
}

// NewRestBillingHandler creates a new RestBillingHandler.
func NewRestBillingHandler(billingRuns services.IBillingRunService) *RestBillingHandler {
	return &RestBillingHandler{billingRuns: billingRuns}
}

type billingRunRequest struct {
	RunDate string `json:"run_date"` // 2006-01-02, defaults to today
}

func (h *RestBillingHandler) runDate(c *gin.Context) (time.Time, bool) {
	var req billingRunRequest
	_ = c.ShouldBindJSON(&req) // Body is optional
	runDate, err := parseDateField(req.RunDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run_date, expected YYYY-MM-DD"})
		return time.Time{}, false
	}
	return runDate, true
}

// RunRecurringBilling handles POST /v1/admin/billing/run
func (h *RestBillingHandler) RunRecurringBilling(c *gin.Context) {
	runDate, ok := h.runDate(c)
	if !ok {
		return
	}

	report, err := h.billingRuns.RunRecurringBilling(c.Request.Context(), runDate)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Billing run failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// RunLateFees handles POST /v1/admin/billing/latefees
func (h *RestBillingHandler) RunLateFees(c *gin.Context) {
	runDate, ok := h.runDate(c)
	if !ok {
		return
	}

	report, err := h.billingRuns.RunLateFees(c.Request.Context(), runDate)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Late fee run failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}
