package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mmdatafocus/projects_backend/config"
	"github.com/mmdatafocus/projects_backend/middlewares"
	"github.com/mmdatafocus/projects_backend/models"
	"github.com/mmdatafocus/projects_backend/models/reports"
	"github.com/mmdatafocus/projects_backend/utils"
	"github.com/mmdatafocus/projects_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

/* response helpers */

func respondError(c *gin.Context, err error) {
	var invalidState *models.InvalidStateError
	switch {
	case errors.As(err, &invalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func respondBindError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

// respondTransition maps the boolean state-machine outcome: ok=false is a 409
// with the entry's current status so the client can message the user.
func respondTransition(c *gin.Context, timesheet *models.Timesheet, ok bool, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "transition not allowed",
			"status": timesheet.Status,
		})
		return
	}
	c.JSON(http.StatusOK, timesheet)
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryDateRange(c *gin.Context) (time.Time, time.Time, bool) {
	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from is required (YYYY-MM-DD)"})
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to is required (YYYY-MM-DD)"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func requireBusiness(c *gin.Context) bool {
	if businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context()); !ok || businessId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	return true
}

/* auth */

type loginRequest struct {
	BusinessId string `json:"business_id" binding:"required"`
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		db := config.GetDB()
		var staff models.Staff
		err := db.WithContext(c.Request.Context()).
			Where("business_id = ? AND email = ?", req.BusinessId, req.Email).
			First(&staff).Error
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if !utils.DereferencePtr(staff.IsActive, true) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if err := utils.ComparePassword(staff.Password, req.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		role := "staff"
		if utils.DereferencePtr(staff.IsAdmin) {
			role = "admin"
		}
		token, err := utils.JwtGenerate(staff.ID, staff.BusinessId, role)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "staff_id": staff.ID, "role": role})
	}
}

/* allocations */

func createAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		var input models.NewResourceAllocation
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		ctx := c.Request.Context()

		// advisory pre-check; creation proceeds regardless, the caller decides
		conflicts, err := models.CheckCapacityConflicts(ctx, &models.ResourceAllocation{
			StaffId:              input.StaffId,
			StartDate:            input.StartDate,
			EndDate:              input.EndDate,
			AllocationPercentage: input.AllocationPercentage,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		allocation, err := models.CreateResourceAllocation(ctx, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"allocation": allocation, "conflicts": conflicts})
	}
}

func updateAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewResourceAllocation
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		allocation, err := models.UpdateResourceAllocation(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, allocation)
	}
}

func allocationTransitionHandler(transition func(context.Context, int) (*models.ResourceAllocation, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		allocation, err := transition(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, allocation)
	}
}

func getAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		allocation, err := models.GetResourceAllocation(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, allocation)
	}
}

func listAllocationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		var staffId, projectId *int
		if v, err := strconv.Atoi(c.Query("staff_id")); err == nil {
			staffId = &v
		}
		if v, err := strconv.Atoi(c.Query("project_id")); err == nil {
			projectId = &v
		}
		allocations, err := models.GetResourceAllocations(c.Request.Context(), staffId, projectId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, allocations)
	}
}

func deleteAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		allocation, err := models.DeleteResourceAllocation(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, allocation)
	}
}

func allocationConflictsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		allocation, err := models.GetResourceAllocation(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		conflicts, err := models.CheckCapacityConflicts(ctx, allocation)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, conflicts)
	}
}

/* capacity */

func staffCapacityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		staffId, ok := pathId(c)
		if !ok {
			return
		}
		from, to, ok := queryDateRange(c)
		if !ok {
			return
		}
		rows, err := models.GetCapacityRange(c.Request.Context(), staffId, from, to)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

type leaveRequest struct {
	Date      time.Time `json:"date" binding:"required"`
	LeaveType string    `json:"leave_type" binding:"required"`
}

func markLeaveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		staffId, ok := pathId(c)
		if !ok {
			return
		}
		var req leaveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		leaveType, err := models.ParseLeaveType(req.LeaveType)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		row, err := models.MarkCapacityAsLeave(c.Request.Context(), staffId, req.Date, leaveType)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

type workingDayRequest struct {
	Date  time.Time `json:"date" binding:"required"`
	Hours string    `json:"hours" binding:"required"`
}

func markWorkingDayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		staffId, ok := pathId(c)
		if !ok {
			return
		}
		var req workingDayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		hours, err := utils.ParseDecimal(req.Hours)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid hours"})
			return
		}
		row, err := models.MarkCapacityAsWorkingDay(c.Request.Context(), staffId, req.Date, hours)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

func rebuildCapacityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		if isAdmin, ok := utils.GetIsAdminFromContext(c.Request.Context()); !ok || !isAdmin {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		from, to, ok := queryDateRange(c)
		if !ok {
			return
		}
		if err := workflow.RebuildCapacityForBusiness(c.Request.Context(), from, to); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

/* timesheets */

func createTimesheetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		var input models.NewTimesheet
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		timesheet, err := models.CreateTimesheet(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, timesheet)
	}
}

func updateTimesheetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewTimesheet
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		timesheet, allowed, err := models.UpdateTimesheet(c.Request.Context(), id, &input)
		respondTransition(c, timesheet, allowed, err)
	}
}

func submitTimesheetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		timesheet, allowed, err := models.SubmitTimesheet(c.Request.Context(), id)
		respondTransition(c, timesheet, allowed, err)
	}
}

func reviewTimesheetHandler(review func(context.Context, int, int) (*models.Timesheet, bool, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		approverId, ok := utils.GetUserIdFromContext(c.Request.Context())
		if !ok || approverId <= 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		timesheet, allowed, err := review(c.Request.Context(), id, approverId)
		respondTransition(c, timesheet, allowed, err)
	}
}

func invoiceTimesheetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		timesheet, allowed, err := models.InvoiceTimesheet(c.Request.Context(), id)
		respondTransition(c, timesheet, allowed, err)
	}
}

func deleteTimesheetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		timesheet, allowed, err := models.DeleteTimesheet(c.Request.Context(), id)
		respondTransition(c, timesheet, allowed, err)
	}
}

func listTimesheetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		var staffId, projectId *int
		if v, err := strconv.Atoi(c.Query("staff_id")); err == nil {
			staffId = &v
		}
		if v, err := strconv.Atoi(c.Query("project_id")); err == nil {
			projectId = &v
		}
		var status *models.TimesheetStatus
		if s := c.Query("status"); s != "" {
			parsed, err := models.ParseTimesheetStatus(s)
			if err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			status = &parsed
		}
		var from, to *time.Time
		if v, err := time.Parse("2006-01-02", c.Query("from")); err == nil {
			from = &v
		}
		if v, err := time.Parse("2006-01-02", c.Query("to")); err == nil {
			to = &v
		}
		timesheets, err := models.GetTimesheets(c.Request.Context(), staffId, projectId, status, from, to)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, timesheets)
	}
}

func getTimesheetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		id, ok := pathId(c)
		if !ok {
			return
		}
		timesheet, err := models.GetTimesheet(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, timesheet)
	}
}

/* reports */

func utilizationReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		from, to, ok := queryDateRange(c)
		if !ok {
			return
		}
		data, err := reports.GetUtilizationReport(c.Request.Context(), from, to)
		if err != nil {
			respondError(c, err)
			return
		}
		if c.Query("format") == "xlsx" {
			c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			c.Header("Content-Disposition", "attachment; filename=utilization.xlsx")
			if err := reports.ExportUtilizationExcel(c.Writer, data); err != nil {
				c.Status(http.StatusInternalServerError)
			}
			return
		}
		c.JSON(http.StatusOK, data)
	}
}

func projectTimeReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		from, to, ok := queryDateRange(c)
		if !ok {
			return
		}
		data, err := reports.GetProjectTimeReport(c.Request.Context(), from, to)
		if err != nil {
			respondError(c, err)
			return
		}
		if c.Query("format") == "xlsx" {
			c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			c.Header("Content-Disposition", "attachment; filename=project-time.xlsx")
			if err := reports.ExportProjectTimeExcel(c.Writer, data); err != nil {
				c.Status(http.StatusInternalServerError)
			}
			return
		}
		c.JSON(http.StatusOK, data)
	}
}

/* entity scaffolding */

func createHandler[I any, O any](create func(context.Context, *I) (*O, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		var input I
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		result, err := create(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/auth/login", loginHandler())

	r.POST("/staff", createHandler(models.CreateStaff))
	r.GET("/staff", func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		staff, err := models.GetAllStaff(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, staff)
	})
	r.GET("/staff/:id/capacity", staffCapacityHandler())
	r.POST("/staff/:id/capacity/leave", markLeaveHandler())
	r.POST("/staff/:id/capacity/working-day", markWorkingDayHandler())

	r.POST("/projects", createHandler(models.CreateProject))
	r.GET("/projects", func(c *gin.Context) {
		if !requireBusiness(c) {
			return
		}
		projects, err := models.GetProjects(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, projects)
	})
	r.POST("/tasks", createHandler(models.CreateTask))

	r.POST("/allocations", createAllocationHandler())
	r.GET("/allocations", listAllocationsHandler())
	r.GET("/allocations/:id", getAllocationHandler())
	r.PUT("/allocations/:id", updateAllocationHandler())
	r.DELETE("/allocations/:id", deleteAllocationHandler())
	r.POST("/allocations/:id/confirm", allocationTransitionHandler(models.ConfirmResourceAllocation))
	r.POST("/allocations/:id/cancel", allocationTransitionHandler(models.CancelResourceAllocation))
	r.GET("/allocations/:id/conflicts", allocationConflictsHandler())

	r.POST("/timesheets", createTimesheetHandler())
	r.GET("/timesheets", listTimesheetsHandler())
	r.GET("/timesheets/:id", getTimesheetHandler())
	r.PUT("/timesheets/:id", updateTimesheetHandler())
	r.DELETE("/timesheets/:id", deleteTimesheetHandler())
	r.POST("/timesheets/:id/submit", submitTimesheetHandler())
	r.POST("/timesheets/:id/approve", reviewTimesheetHandler(models.ApproveTimesheet))
	r.POST("/timesheets/:id/reject", reviewTimesheetHandler(models.RejectTimesheet))
	r.POST("/timesheets/:id/invoice", invoiceTimesheetHandler())

	r.GET("/reports/utilization", utilizationReportHandler())
	r.GET("/reports/project-time", projectTimeReportHandler())
	// Ops tooling (admin only): rebuild the capacity ledger for a range.
	r.POST("/internal/ops/capacity/rebuild", rebuildCapacityHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<minInt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
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

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
