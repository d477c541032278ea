package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ugacribs/rentpay/internal/models"
	"github.com/ugacribs/rentpay/internal/services"
	"github.com/ugacribs/rentpay/internal/utils"
)

// RestPaymentHandler handles payment initiation, status and provider
// callbacks.
type RestPaymentHandler struct {
	paymentService services.IPaymentService
}

// NewRestPaymentHandler creates a new RestPaymentHandler.
func NewRestPaymentHandler(paymentService services.IPaymentService) *RestPaymentHandler {
	return &RestPaymentHandler{paymentService: paymentService}
}

type initiatePaymentRequest struct {
	Gateway     string `json:"gateway" binding:"required"`
	PayerHandle string `json:"payer_handle" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
}

// InitiatePayment handles POST /v1/lease/:id/payment
func (h *RestPaymentHandler) InitiatePayment(c *gin.Context) {
	leaseID, ok := leaseIDParam(c)
	if !ok {
		return
	}
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	attempt, err := h.paymentService.InitiatePayment(
		c.Request.Context(), leaseID, models.PaymentGatewayName(req.Gateway), req.PayerHandle, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Lease not found"})
		case errors.Is(err, services.ErrInvalidState):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to initiate payment"})
		}
		return
	}
	c.JSON(http.StatusAccepted, attempt)
}

// ListPayments handles GET /v1/lease/:id/payment
func (h *RestPaymentHandler) ListPayments(c *gin.Context) {
	leaseID, ok := leaseIDParam(c)
	if !ok {
		return
	}

	attempts, err := h.paymentService.ListAttempts(c.Request.Context(), leaseID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list payments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": attempts})
}

// GetPayment handles GET /v1/payment/:id
func (h *RestPaymentHandler) GetPayment(c *gin.Context) {
	attemptID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment ID format"})
		return
	}

	attempt, err := h.paymentService.FindAttempt(c.Request.Context(), attemptID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve payment"})
		}
		return
	}
	c.JSON(http.StatusOK, attempt)
}

// HandleGatewayCallback handles POST /v1/callback/:gateway
// The providers expect a 200 for anything they should not redeliver, so only
// internal failures return a 5xx.
func (h *RestPaymentHandler) HandleGatewayCallback(c *gin.Context) {
	gatewayName := models.PaymentGatewayName(c.Param("gateway"))
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read callback body"})
		return
	}

	err = h.paymentService.HandleCallback(c.Request.Context(), gatewayName, body)
	if err != nil {
		if errors.Is(err, services.ErrMalformedCallback) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process callback"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
