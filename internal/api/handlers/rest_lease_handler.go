package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ugacribs/rentpay/internal/services"
	"github.com/ugacribs/rentpay/internal/utils"
)

// RestLeaseHandler handles REST requests for the lease lifecycle.
type RestLeaseHandler struct {
	leaseService services.ILeaseService
	ledger       services.ILedgerService
}

// NewRestLeaseHandler creates a new RestLeaseHandler.
func NewRestLeaseHandler(leaseService services.ILeaseService, ledger services.ILedgerService) *RestLeaseHandler {
	return &RestLeaseHandler{
		leaseService: leaseService,
		ledger:       ledger,
	}
}

// leaseIDParam parses the :id path parameter. Writes the error response
// itself; callers just bail on ok == false.
func leaseIDParam(c *gin.Context) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lease ID format"})
		return utils.SixID{}, false
	}
	return id, true
}

// parseDateField parses a 2006-01-02 date, defaulting to today when empty.
func parseDateField(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", value)
}

type createLeaseRequest struct {
	TenantID       string `json:"tenant_id" binding:"required"`
	UnitID         string `json:"unit_id" binding:"required"`
	TenantEmail    string `json:"tenant_email"`
	CurrencyCode   string `json:"currency_code" binding:"required"`
	MonthlyRent    int64  `json:"monthly_rent" binding:"required"`
	LateFeeBase    int64  `json:"late_fee_base"`
	RentDueDay     int    `json:"rent_due_day" binding:"required"`
	OpeningBalance int64  `json:"opening_balance"`
}

// CreateLease handles POST /v1/admin/lease
func (h *RestLeaseHandler) CreateLease(c *gin.Context) {
	var req createLeaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	tenantID, err := utils.ParseSixID(req.TenantID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant ID format"})
		return
	}
	unitID, err := utils.ParseSixID(req.UnitID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid unit ID format"})
		return
	}

	lease, err := h.leaseService.CreateLease(c.Request.Context(), services.CreateLeaseParams{
		TenantID:       tenantID,
		UnitID:         unitID,
		TenantEmail:    req.TenantEmail,
		CurrencyCode:   req.CurrencyCode,
		MonthlyRent:    req.MonthlyRent,
		LateFeeBase:    req.LateFeeBase,
		RentDueDay:     req.RentDueDay,
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidState) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create lease"})
		}
		return
	}
	c.JSON(http.StatusCreated, lease)
}

// GetLease handles GET /v1/lease/:id
func (h *RestLeaseHandler) GetLease(c *gin.Context) {
	leaseID, ok := leaseIDParam(c)
	if !ok {
		return
	}

	lease, err := h.ledger.FindLease(c.Request.Context(), leaseID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Lease not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve lease"})
		}
		return
	}
	c.JSON(http.StatusOK, lease)
}

type signLeaseRequest struct {
	SigningDate string `json:"signing_date"` // 2006-01-02, defaults to today
}

// SignLease handles POST /v1/admin/lease/:id/sign
func (h *RestLeaseHandler) SignLease(c *gin.Context) {
	leaseID, ok := leaseIDParam(c)
	if !ok {
		return
	}
	var req signLeaseRequest
	_ = c.ShouldBindJSON(&req) // Body is optional; signing then dates from today
	signedAt, err := parseDateField(req.SigningDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signing_date, expected YYYY-MM-DD"})
		return
	}

	lease, err := h.leaseService.SignLease(c.Request.Context(), leaseID, signedAt)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Lease not found"})
		case errors.Is(err, services.ErrInvalidState):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign lease"})
		}
		return
	}
	c.JSON(http.StatusOK, lease)
}

type terminateLeaseRequest struct {
	TerminationDate string `json:"termination_date"` // 2006-01-02, defaults to today
}

// TerminateLease handles POST /v1/admin/lease/:id/terminate
func (h *RestLeaseHandler) TerminateLease(c *gin.Context) {
	leaseID, ok := leaseIDParam(c)
	if !ok {
		return
	}
	var req terminateLeaseRequest
	_ = c.ShouldBindJSON(&req) // Body is optional
	at, err := parseDateField(req.TerminationDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid termination_date, expected YYYY-MM-DD"})
		return
	}

	lease, err := h.leaseService.TerminateLease(c.Request.Context(), leaseID, at)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Lease not found"})
		case errors.Is(err, services.ErrInvalidState):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to terminate lease"})
		}
		return
	}
	c.JSON(http.StatusOK, lease)
}

type adjustmentRequest struct {
	Amount      int64  `json:"amount" binding:"required"`
	Description string `json:"description" binding:"required"`
}

// PostAdjustment handles POST /v1/admin/lease/:id/adjustment
func (h *RestLeaseHandler) PostAdjustment(c *gin.Context) {
	leaseID, ok := leaseIDParam(c)
	if !ok {
		return
	}
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	txn, err := h.leaseService.PostAdjustment(c.Request.Context(), leaseID, req.Amount, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Lease not found"})
		case errors.Is(err, services.ErrInvalidState):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to post adjustment"})
		}
		return
	}
	c.JSON(http.StatusCreated, txn)
}

// DeleteLease handles DELETE /v1/admin/lease/:id
func (h *RestLeaseHandler) DeleteLease(c *gin.Context) {
	leaseID, ok := leaseIDParam(c)
	if !ok {
		return
	}

	err := h.leaseService.DeleteLeasePermanently(c.Request.Context(), leaseID)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Lease not found"})
		case errors.Is(err, services.ErrInvalidState):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete lease"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": leaseID.String()})
}
