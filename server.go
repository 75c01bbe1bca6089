package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/equity_backend/config"
	"github.com/mmdatafocus/equity_backend/metrics"
	"github.com/mmdatafocus/equity_backend/models"
	"github.com/mmdatafocus/equity_backend/utils"
	"github.com/mmdatafocus/equity_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultPort = "3000"

func init() {
	// JSON responses carry amounts as numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// services is everything the business routes need once the database is ready.
type services struct {
	store    workflow.Store
	recorder *workflow.ReportRecorder
	sales    *workflow.ShareSaleProcessor
}

type app struct {
	logger   *logrus.Logger
	services atomic.Pointer[services]
}

func newServices(store workflow.Store, logger *logrus.Logger, events workflow.EventPublisher) *services {
	return &services{
		store:    store,
		recorder: workflow.NewReportRecorder(store, logger, events),
		sales:    workflow.NewShareSaleProcessor(store, logger, events),
	}
}

func newRouter(a *app) *gin.Engine {
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(metrics.GinMiddleware())
	r.Use(cors.New(corsConfigFromEnv()))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		limit := config.IntFromEnv("RATE_LIMIT_MAX_REQUESTS", 600)
		window := time.Duration(config.IntFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
		r.Use(NewRateLimiter(config.GetRedisDB, int64(limit), window).RateLimitMiddleware)
	}

	r.Use(customErrorLogger(a.logger))
	r.Use(gin.CustomRecovery(a.recoverPanic))

	r.GET("/health", healthHandler)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/daily-report", a.dailyReportHandler)
	r.POST("/sell-shares", a.sellSharesHandler)
	r.GET("/money-pool", a.moneyPoolHandler)
	r.GET("/employees/:employee_id/shares", a.employeeSharesHandler)
	r.GET("/reports/export", a.reportExportHandler)
	r.NoRoute(customNotFoundHandler)
	return r
}

func corsConfigFromEnv() cors.Config {
	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Deny all cross-origin requests when no allowlist is configured.
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id", headerIdempotencyKey)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id", headerIdempotentReplayed)
	return corsConfig
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func (a *app) recoverPanic(c *gin.Context, recovered any) {
	cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	a.logger.WithFields(logrus.Fields{
		"field":          "recovery",
		"path":           c.Request.URL.Path,
		"correlation_id": cid,
	}).Errorf("panic: %v", recovered)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": msgUnexpected})
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// connectServices brings up the database and publishes the ledger services.
// Until it returns, business routes answer "Server not configured".
func (a *app) connectServices() error {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()

	// AutoMigrate can run DDL that blocks tables; allow running it as a separate job instead.
	if !config.SkipMigrations() {
		if err := models.MigrateTable(db); err != nil {
			return err
		}
	} else {
		a.logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	contract, err := models.ResolveSchemaContract(db)
	if err != nil {
		return err
	}
	a.logger.WithFields(logrus.Fields{
		"field":    "schema",
		"reports":  models.ReportSchemaCandidates[contract.Report].Version,
		"employee": models.EmployeeSchemaCandidates[contract.Employee].Version,
	}).Info("resolved schema contract")

	var events workflow.EventPublisher
	if topic := config.LedgerEventsTopic(); topic != "" {
		events = workflow.PubSubPublisher{Topic: topic}
	}
	a.services.Store(newServices(workflow.NewGormStore(db, contract), a.logger, events))
	return nil
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	a := &app{logger: logger}
	r := newRouter(a)

	// Start listening immediately; /health must answer while dependencies come up.
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	if config.RedisConfigured() {
		go config.ConnectRedisWithRetry(sigCtx)
	}

	if config.DatabaseConfigured() {
		go func() {
			if err := a.connectServices(); err != nil {
				logger.WithFields(logrus.Fields{"field": "startup"}).Fatal("database schema is not usable: " + err.Error())
			}
		}()
	} else {
		logger.WithFields(logrus.Fields{"field": "startup"}).Warn("DB_HOST not set; only /health is served")
	}

	log.Printf("Backend running on port %s", port)

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	config.ClosePubSub()
	config.CloseRedis()
	if db := config.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
