package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ugacribs/rentpay/internal/services"
)

// RestLedgerHandler handles REST requests for ledgers, balances, aging and
// statements.
type RestLedgerHandler struct {
	ledger     services.ILedgerService
	statements services.IStatementService
}

// NewRestLedgerHandler creates a new RestLedgerHandler.
func NewRestLedgerHandler(ledger services.ILedgerService, statements services.IStatementService) *RestLedgerHandler {
	return &RestLedgerHandler{
		ledger:     ledger,
		statements: statements,
	}
}

// asOfQuery parses the optional ?as_of=YYYY-MM-DD query, defaulting to today.
func asOfQuery(c *gin.Context) (time.Time, bool) {
	raw := c.Query("as_of")
	if raw == "" {
		return time.Now().UTC(), true
	}
	asOf, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid as_of, expected YYYY-MM-DD"})
		return time.Time{}, false
	}
	return asOf, true
}

// GetLedger handles GET /v1/lease/:id/ledger
func (h *RestLedgerHandler) GetLedger(c *gin.Context) {
	leaseID, ok := leaseIDParam(c)
	if !ok {
		return
	}

	// Existence check first so an unknown lease is a 404, not an empty list.
	if _, err := h.ledger.FindLease(c.Request.Context(), leaseID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Lease not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve ledger"})
		}
		return
	}

	txns, err := h.ledger.ListTransactions(c.Request.Context(), leaseID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve ledger"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txns})
}

// GetBalance handles GET /v1/lease/:id/balance
func (h *RestLedgerHandler) GetBalance(c *gin.Context) {
	leaseID, ok := leaseIDParam(c)
	if !ok {
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), leaseID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Lease not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute balance"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"lease_id": leaseID.String(), "balance": balance})
}

// GetAging handles GET /v1/lease/:id/aging
func (h *RestLedgerHandler) GetAging(c *gin.Context) {
	leaseID, ok := leaseIDParam(c)
	if !ok {
		return
	}
	asOf, ok := asOfQuery(c)
	if !ok {
		return
	}

	aging, err := h.ledger.Aging(c.Request.Context(), leaseID, asOf)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Lease not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute aging"})
		}
		return
	}
	c.JSON(http.StatusOK, aging)
}

// GetStatement handles GET /v1/lease/:id/statement
// Responds with plain text when the client asks for it, JSON otherwise.
func (h *RestLedgerHandler) GetStatement(c *gin.Context) {
	leaseID, ok := leaseIDParam(c)
	if !ok {
		return
	}
	asOf, ok := asOfQuery(c)
	if !ok {
		return
	}

	st, err := h.statements.RenderStatement(c.Request.Context(), leaseID, asOf)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Lease not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render statement"})
		}
		return
	}

	if strings.Contains(c.GetHeader("Accept"), "text/plain") {
		c.String(http.StatusOK, st.Text())
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetAgingReport handles GET /v1/admin/report/aging
func (h *RestLedgerHandler) GetAgingReport(c *gin.Context) {
	asOf, ok := asOfQuery(c)
	if !ok {
		return
	}

	report, err := h.statements.BuildAgingReport(c.Request.Context(), asOf)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build aging report"})
		return
	}
	c.JSON(http.StatusOK, report)
}
