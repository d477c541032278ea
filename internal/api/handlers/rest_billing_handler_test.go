package handlers_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ugacribs/rentpay/internal/api/handlers"
	"github.com/ugacribs/rentpay/internal/services"
)

func newBillingRouter(billingSvc *MockBillingRunService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewRestBillingHandler(billingSvc)
	r := gin.New()
	r.POST("/v1/admin/billing/run", handler.RunRecurringBilling)
	r.POST("/v1/admin/billing/latefees", handler.RunLateFees)
	return r
}

func TestRestBillingHandler_RunRecurringBilling_WithDate(t *testing.T) {
	mockBillingSvc := new(MockBillingRunService)
	r := newBillingRouter(mockBillingSvc)

	runDate := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	report := &services.RunReport{RunDate: runDate, Total: 3, Successful: 2, Skipped: 1}
	mockBillingSvc.On("RunRecurringBilling", mock.Anything, runDate).Return(report, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/admin/billing/run",
		jsonBody(t, gin.H{"run_date": "2025-06-15"}))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"successful":2`)
	mockBillingSvc.AssertExpectations(t)
}

func TestRestBillingHandler_RunRecurringBilling_NoBodyDefaultsToToday(t *testing.T) {
	mockBillingSvc := new(MockBillingRunService)
	r := newBillingRouter(mockBillingSvc)

	report := &services.RunReport{Total: 0}
	mockBillingSvc.On("RunRecurringBilling", mock.Anything, mock.MatchedBy(func(d time.Time) bool {
		return time.Since(d) < time.Minute
	})).Return(report, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/admin/billing/run", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockBillingSvc.AssertExpectations(t)
}

func TestRestBillingHandler_RunRecurringBilling_BadDate(t *testing.T) {
	mockBillingSvc := new(MockBillingRunService)
	r := newBillingRouter(mockBillingSvc)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/admin/billing/run",
		jsonBody(t, gin.H{"run_date": "15/06/2025"}))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockBillingSvc.AssertNotCalled(t, "RunRecurringBilling", mock.Anything, mock.Anything)
}

func TestRestBillingHandler_RunLateFees(t *testing.T) {
	mockBillingSvc := new(MockBillingRunService)
	r := newBillingRouter(mockBillingSvc)

	runDate := time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC)
	report := &services.RunReport{RunDate: runDate, Total: 2, Successful: 1, Skipped: 1}
	mockBillingSvc.On("RunLateFees", mock.Anything, runDate).Return(report, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/admin/billing/latefees",
		jsonBody(t, gin.H{"run_date": "2025-06-20"}))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockBillingSvc.AssertExpectations(t)
}

func TestRestBillingHandler_RunLateFees_RunError(t *testing.T) {
	mockBillingSvc := new(MockBillingRunService)
	r := newBillingRouter(mockBillingSvc)

	mockBillingSvc.On("RunLateFees", mock.Anything, mock.Anything).
		Return(nil, errors.New("mongo: connection reset"))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/admin/billing/latefees",
		jsonBody(t, gin.H{"run_date": "2025-06-20"}))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
