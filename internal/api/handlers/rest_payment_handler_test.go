package handlers_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ugacribs/rentpay/internal/api/handlers"
	"github.com/ugacribs/rentpay/internal/models"
	"github.com/ugacribs/rentpay/internal/services"
	"github.com/ugacribs/rentpay/internal/utils"
)

func newPaymentRouter(paymentSvc *MockPaymentService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewRestPaymentHandler(paymentSvc)
	r := gin.New()
	r.POST("/v1/lease/:id/payment", handler.InitiatePayment)
	r.GET("/v1/lease/:id/payment", handler.ListPayments)
	r.GET("/v1/payment/:id", handler.GetPayment)
	r.POST("/v1/callback/:gateway", handler.HandleGatewayCallback)
	return r
}

func TestRestPaymentHandler_InitiatePayment_Accepted(t *testing.T) {
	mockPaymentSvc := new(MockPaymentService)
	r := newPaymentRouter(mockPaymentSvc)

	leaseID := utils.NewSixID()
	attempt := &models.PaymentAttempt{
		LeaseID:     leaseID,
		Gateway:     models.GatewayMTNMoMo,
		PayerHandle: "256772123456",
		Amount:      500_000,
		Status:      models.PaymentPending,
	}
	attempt.GenID()

	mockPaymentSvc.On("InitiatePayment", mock.Anything, leaseID,
		models.GatewayMTNMoMo, "256772123456", int64(500_000)).Return(attempt, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/lease/"+leaseID.String()+"/payment", jsonBody(t, gin.H{
		"gateway":      "mtn_momo",
		"payer_handle": "256772123456",
		"amount":       500_000,
	}))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"pending"`)
	mockPaymentSvc.AssertExpectations(t)
}

func TestRestPaymentHandler_InitiatePayment_UnsignedLease(t *testing.T) {
	mockPaymentSvc := new(MockPaymentService)
	r := newPaymentRouter(mockPaymentSvc)

	leaseID := utils.NewSixID()
	mockPaymentSvc.On("InitiatePayment", mock.Anything, leaseID,
		mock.Anything, mock.Anything, mock.Anything).Return(nil, services.ErrInvalidState)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/lease/"+leaseID.String()+"/payment", jsonBody(t, gin.H{
		"gateway":      "airtel_money",
		"payer_handle": "256752123456",
		"amount":       100_000,
	}))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRestPaymentHandler_InitiatePayment_MissingFields(t *testing.T) {
	mockPaymentSvc := new(MockPaymentService)
	r := newPaymentRouter(mockPaymentSvc)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/lease/"+utils.NewSixID().String()+"/payment",
		jsonBody(t, gin.H{"gateway": "mtn_momo"}))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockPaymentSvc.AssertNotCalled(t, "InitiatePayment",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRestPaymentHandler_GetPayment_NotFound(t *testing.T) {
	mockPaymentSvc := new(MockPaymentService)
	r := newPaymentRouter(mockPaymentSvc)

	attemptID := utils.NewSixID()
	mockPaymentSvc.On("FindAttempt", mock.Anything, attemptID).Return(nil, mongo.ErrNoDocuments)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/payment/"+attemptID.String(), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRestPaymentHandler_ListPayments(t *testing.T) {
	mockPaymentSvc := new(MockPaymentService)
	r := newPaymentRouter(mockPaymentSvc)

	leaseID := utils.NewSixID()
	attempt := models.PaymentAttempt{LeaseID: leaseID, Status: models.PaymentCompleted, Amount: 500_000}
	attempt.GenID()
	mockPaymentSvc.On("ListAttempts", mock.Anything, leaseID).
		Return([]models.PaymentAttempt{attempt}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/lease/"+leaseID.String()+"/payment", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), attempt.ID.String())
}

func TestRestPaymentHandler_Callback_Received(t *testing.T) {
	mockPaymentSvc := new(MockPaymentService)
	r := newPaymentRouter(mockPaymentSvc)

	body := []byte(`{"externalId":"c0ffee","status":"SUCCESSFUL"}`)
	mockPaymentSvc.On("HandleCallback", mock.Anything, models.GatewayMTNMoMo, body).Return(nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/callback/mtn_momo", bytes.NewBuffer(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received":true`)
	mockPaymentSvc.AssertExpectations(t)
}

func TestRestPaymentHandler_Callback_Malformed(t *testing.T) {
	mockPaymentSvc := new(MockPaymentService)
	r := newPaymentRouter(mockPaymentSvc)

	mockPaymentSvc.On("HandleCallback", mock.Anything, models.GatewayAirtelMoney, mock.Anything).
		Return(services.ErrMalformedCallback)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/callback/airtel_money", bytes.NewBufferString("not json"))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
