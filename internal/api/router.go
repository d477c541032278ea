package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ugacribs/rentpay/internal/api/handlers"
	"github.com/ugacribs/rentpay/internal/api/middleware"
	"github.com/ugacribs/rentpay/internal/config"
	"github.com/ugacribs/rentpay/internal/email"
	"github.com/ugacribs/rentpay/internal/gateway"
	"github.com/ugacribs/rentpay/internal/models"
	"github.com/ugacribs/rentpay/internal/services"
	"github.com/ugacribs/rentpay/internal/storage"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, emailSender email.Sender) *gin.Engine {
	// Initialize services needed by API handlers HERE
	ledgerService := services.NewLedgerService(db)
	leaseService := services.NewLeaseService(db, ledgerService)
	settingsService := services.NewSettingsService(db, cfg, rdb)
	billingRunService := services.NewBillingRunService(cfg, ledgerService, settingsService)
	notificationService := services.NewNotificationService(cfg, emailSender)

	gateways := gateway.Registry{
		models.GatewayMTNMoMo:     gateway.NewMTNMoMoGateway(cfg),
		models.GatewayAirtelMoney: gateway.NewAirtelMoneyGateway(cfg),
	}
	paymentService := services.NewPaymentService(db, ledgerService, gateways, notificationService)

	// The statement archive is optional; without a bucket the statement
	// endpoints still render, only archiving is unavailable.
	var archive storage.IStatementStorage
	if cfg.AwsS3Bucket != "" {
		var err error
		archive, err = storage.NewS3Storage(cfg)
		if err != nil {
			log.Fatalf("CRITICAL: Failed to initialize S3 storage for API: %v", err)
		}
	}
	statementService := services.NewStatementService(cfg, ledgerService, archive, settingsService)

	r := gin.Default()

	// Initialize Middleware
	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Apply global middleware first (order matters)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	// Initialize handlers
	leaseHandler := handlers.NewRestLeaseHandler(leaseService, ledgerService)
	ledgerHandler := handlers.NewRestLedgerHandler(ledgerService, statementService)
	paymentHandler := handlers.NewRestPaymentHandler(paymentService)
	billingHandler := handlers.NewRestBillingHandler(billingRunService)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Provider webhooks authenticate by correlation ID, not JWT; an
		// unguessable UUID is the shared secret.
		v1.POST("/callback/:gateway", paymentHandler.HandleGatewayCallback)

		// Authenticated routes (rate limiting already applied globally)
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.GET("/lease/:id", leaseHandler.GetLease)
			authRequired.GET("/lease/:id/ledger", ledgerHandler.GetLedger)
			authRequired.GET("/lease/:id/balance", ledgerHandler.GetBalance)
			authRequired.GET("/lease/:id/aging", ledgerHandler.GetAging)
			authRequired.GET("/lease/:id/statement", ledgerHandler.GetStatement)

			authRequired.POST("/lease/:id/payment", paymentHandler.InitiatePayment)
			authRequired.GET("/lease/:id/payment", paymentHandler.ListPayments)
			authRequired.GET("/payment/:id", paymentHandler.GetPayment)
		}

		// Admin routes
		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			adminRequired.POST("/lease", leaseHandler.CreateLease)
			adminRequired.POST("/lease/:id/sign", leaseHandler.SignLease)
			adminRequired.POST("/lease/:id/terminate", leaseHandler.TerminateLease)
			adminRequired.POST("/lease/:id/adjustment", leaseHandler.PostAdjustment)
			adminRequired.DELETE("/lease/:id", leaseHandler.DeleteLease)

			adminRequired.POST("/billing/run", billingHandler.RunRecurringBilling)
			adminRequired.POST("/billing/latefees", billingHandler.RunLateFees)
			adminRequired.GET("/report/aging", ledgerHandler.GetAgingReport)
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine.
// Requires Redis for the getTestEmail endpoint used by end-to-end tests.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				fmt.Println("Shutdown signal sent successfully.")
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}
		case "getTestEmail":
			var args []string // Expect ["kind", "email"], e.g. ["receipt", "tenant@example.com"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [kind, email]"})
				return
			}
			kind := args[0]
			emailAddr := args[1]
			redisKey := fmt.Sprintf("mockemail:%s:%s", emailAddr, kind)

			// Poll Redis briefly for the key
			var emailJsonData string
			var getErr error
			found := false
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			for i := 0; i < 10; i++ { // Poll up to ~2 seconds
				emailJsonData, getErr = rdb.Get(ctx, redisKey).Result()
				if getErr == nil {
					found = true
					rdb.Del(ctx, redisKey) // Delete after fetching
					break
				}
				if getErr != redis.Nil {
					log.Printf("Service API: Error getting key %s from Redis: %v", redisKey, getErr)
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
					return
				}
				time.Sleep(200 * time.Millisecond)
			}

			if !found {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", redisKey)})
				return
			}

			var emailData map[string]interface{}
			if err := json.Unmarshal([]byte(emailJsonData), &emailData); err != nil {
				log.Printf("Service API: Error unmarshalling email data from key %s: %v", redisKey, err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}

			c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
