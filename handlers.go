package main

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/equity_backend/config"
	"github.com/mmdatafocus/equity_backend/models/reports"
	"github.com/mmdatafocus/equity_backend/utils"
	"github.com/mmdatafocus/equity_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

const (
	msgNotConfigured = "Server not configured"
	msgUnexpected    = "Unexpected server error"

	moneyPoolLockKey = "lock:money-pool"

	headerIdempotencyKey     = "Idempotency-Key"
	headerIdempotentReplayed = "Idempotent-Replayed"
)

type errorResponse struct {
	err     error
	status  int
	message string
}

var dailyReportErrors = []errorResponse{
	{workflow.ErrInvalidReport, http.StatusBadRequest, "business_id and date required"},
	{workflow.ErrInvalidNumbers, http.StatusBadRequest, "Invalid numbers"},
	{workflow.ErrPoolInsufficient, http.StatusBadRequest, "Pool insufficient"},
	{workflow.ErrMoneyPoolQuery, http.StatusInternalServerError, "Money pool query failed"},
	{workflow.ErrPoolWrite, http.StatusInternalServerError, "Failed to update money pool"},
}

var sellSharesErrors = []errorResponse{
	{workflow.ErrInvalidSaleInput, http.StatusBadRequest, "Invalid input"},
	{workflow.ErrInvalidShares, http.StatusBadRequest, "Invalid shares"},
	{workflow.ErrLedgerQuery, http.StatusInternalServerError, "Ledger query failed"},
	{workflow.ErrInsufficientShares, http.StatusBadRequest, "Not enough shares"},
	{workflow.ErrCompanyValueMissing, http.StatusInternalServerError, "Company value not found"},
	{workflow.ErrShareConfigMissing, http.StatusInternalServerError, "Share config not found"},
	{workflow.ErrInvalidSharePrice, http.StatusInternalServerError, "Invalid share price"},
	{workflow.ErrMoneyPoolQuery, http.StatusInternalServerError, "Money pool query failed"},
	{workflow.ErrMoneyPoolEmpty, http.StatusInternalServerError, "Money pool empty"},
	{workflow.ErrInsufficientCash, http.StatusBadRequest, "Company cash insufficient"},
	{workflow.ErrLedgerWrite, http.StatusInternalServerError, "Failed to update ledger"},
	{workflow.ErrPoolWrite, http.StatusInternalServerError, "Failed to update money pool"},
	{workflow.ErrIdempotencyReused, http.StatusUnprocessableEntity, "Idempotency key reused"},
}

func lookupError(table []errorResponse, err error) (int, string) {
	for _, e := range table {
		if errors.Is(err, e.err) {
			return e.status, e.message
		}
	}
	return http.StatusInternalServerError, msgUnexpected
}

func (a *app) logRequestError(c *gin.Context, funcName string, data any, err error) {
	ctx := c.Request.Context()
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	fields := logrus.Fields{
		"module":         "handlers",
		"funcName":       funcName,
		"correlation_id": cid,
		"data":           data,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	a.logger.WithFields(fields).Error(err.Error())
}

// withPoolLock takes the Redis pool lock when Redis is up. The database lock taken
// inside the transaction is what guarantees correctness; this only keeps writers
// from piling up on it.
func (a *app) withPoolLock(ctx context.Context, fn func()) {
	release, err := utils.ObtainLock(ctx, moneyPoolLockKey, 30*time.Second, "handlers", "withPoolLock")
	if err != nil {
		a.logger.WithFields(logrus.Fields{"field": "withPoolLock"}).Warn("proceeding without redis lock: " + err.Error())
		fn()
		return
	}
	defer release()
	fn()
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type dailyReportRequest struct {
	BusinessId utils.FlexString  `json:"business_id" binding:"required"`
	Date       utils.FlexString  `json:"date" binding:"required"`
	Income     utils.FlexDecimal `json:"income"`
	Expense    utils.FlexDecimal `json:"expense"`
	PoolTaken  utils.FlexDecimal `json:"pool_taken"`
}

func (a *app) dailyReportHandler(c *gin.Context) {
	var req dailyReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			a.logger.WithFields(logrus.Fields{"field": "dailyReportHandler", "missing": utils.ProcessValidationErrors(err)}).Debug("invalid daily report")
		}
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "business_id and date required"})
		return
	}

	in := workflow.DailyReportInput{
		BusinessId: req.BusinessId.String(),
		Date:       req.Date.String(),
		Income:     req.Income.OrZero(),
		Expense:    req.Expense.OrZero(),
		PoolTaken:  req.PoolTaken.OrZero(),
	}
	err := in.Validate()
	if err == nil && (req.Income.Invalid || req.Expense.Invalid || req.PoolTaken.Invalid) {
		err = workflow.ErrInvalidNumbers
	}
	if err != nil {
		status, message := lookupError(dailyReportErrors, err)
		c.JSON(status, gin.H{"ok": false, "error": message})
		return
	}

	svc := a.services.Load()
	if svc == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": msgNotConfigured})
		return
	}

	var result *workflow.DailyReportResult
	record := func() { result, err = svc.recorder.Record(c.Request.Context(), in) }
	if in.PoolTaken.IsPositive() {
		a.withPoolLock(c.Request.Context(), record)
	} else {
		record()
	}

	if err != nil {
		var insertErr *workflow.ReportInsertError
		if errors.As(err, &insertErr) {
			a.logRequestError(c, "dailyReportHandler", in, err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Report insert failed", "details": insertErr.Details()})
			return
		}
		status, message := lookupError(dailyReportErrors, err)
		if status >= http.StatusInternalServerError {
			a.logRequestError(c, "dailyReportHandler", in, err)
		}
		c.JSON(status, gin.H{"ok": false, "error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "pool_updated": result.PoolUpdated})
}

type sellSharesRequest struct {
	EmployeeId utils.FlexString  `json:"employee_id" binding:"required"`
	Shares     utils.FlexDecimal `json:"shares"`
}

func (a *app) sellSharesHandler(c *gin.Context) {
	var req sellSharesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	in := workflow.SaleInput{
		EmployeeId:     req.EmployeeId.String(),
		IdempotencyKey: strings.TrimSpace(c.GetHeader(headerIdempotencyKey)),
	}
	if req.Shares.Set {
		shares := req.Shares.Value
		in.Shares = &shares
	}
	// A non-numeric value parses as zero and is refused as a non-positive share count.
	err := in.Validate()
	if err != nil {
		status, message := lookupError(sellSharesErrors, err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	svc := a.services.Load()
	if svc == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgNotConfigured})
		return
	}

	var result *workflow.SaleResult
	a.withPoolLock(c.Request.Context(), func() {
		result, err = svc.sales.Sell(c.Request.Context(), in)
	})
	if err != nil {
		status, message := lookupError(sellSharesErrors, err)
		if status >= http.StatusInternalServerError {
			a.logRequestError(c, "sellSharesHandler", in, err)
		}
		c.JSON(status, gin.H{"error": message})
		return
	}

	if result.Replayed {
		c.Header(headerIdempotentReplayed, "true")
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"sold_shares": result.SoldShares,
		"price":       result.Price,
		"amount":      result.Amount,
	})
}

func (a *app) moneyPoolHandler(c *gin.Context) {
	svc := a.services.Load()
	if svc == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgNotConfigured})
		return
	}
	latest, err := svc.store.LatestMoneyPool(c.Request.Context())
	if err != nil {
		a.logRequestError(c, "moneyPoolHandler", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Money pool query failed"})
		return
	}
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Money pool empty"})
		return
	}
	c.JSON(http.StatusOK, latest)
}

func (a *app) employeeSharesHandler(c *gin.Context) {
	svc := a.services.Load()
	if svc == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgNotConfigured})
		return
	}
	employeeId := c.Param("employee_id")
	holding, err := svc.sales.Holding(c.Request.Context(), employeeId)
	if err != nil {
		a.logRequestError(c, "employeeSharesHandler", employeeId, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ledger query failed"})
		return
	}

	resp := gin.H{
		"employee_id": holding.EmployeeId,
		"available":   holding.Balance.Available,
		"locked":      holding.Balance.Locked,
	}
	if holding.Price != nil {
		resp["price"] = *holding.Price
		resp["value"] = *holding.Value
	} else {
		resp["value"] = decimal.Zero
	}
	c.JSON(http.StatusOK, resp)
}

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

func (a *app) reportExportHandler(c *gin.Context) {
	businessId := c.Query("business_id")
	month := c.Query("month")
	if businessId == "" || !monthPattern.MatchString(month) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "business_id and month (YYYY-MM) required"})
		return
	}
	svc := a.services.Load()
	if svc == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgNotConfigured})
		return
	}

	data, err := svc.store.ListReportsByMonth(c.Request.Context(), businessId, month)
	if err != nil {
		a.logRequestError(c, "reportExportHandler", businessId, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Report query failed"})
		return
	}

	c.Header("Content-Type", reports.ContentTypeXLSX)
	c.Header("Content-Disposition", "attachment; filename="+reports.MonthlyReportFilename(businessId, month))
	if err := reports.WriteMonthlyReport(c.Writer, data); err != nil {
		config.LogError(a.logger, "handlers", "reportExportHandler", "write workbook", businessId, err)
	}
}
