package main

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-approval-api/api/swagger"
	"github.com/noah-isme/sma-approval-api/internal/handler"
	"github.com/noah-isme/sma-approval-api/internal/middleware"
	"github.com/noah-isme/sma-approval-api/internal/models"
	"github.com/noah-isme/sma-approval-api/pkg/config"
	"github.com/noah-isme/sma-approval-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-approval-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-approval-api/pkg/middleware/requestid"
)

type routeDeps struct {
	auth    middleware.TokenValidator
	metrics middleware.RequestObserver
	audit   middleware.AuditWriter

	authHandler    *handler.AuthHandler
	records        *handler.RecordHandler
	writes         *handler.WriteHandler
	summaries      *handler.SummaryHandler
	changeRequests *handler.ChangeRequestHandler
	ops            *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", deps.ops.Health)
	r.GET("/ready", deps.ops.Ready)
	r.GET("/metrics", deps.ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := "/" + strings.Trim(cfg.APIPrefix, "/")
	api := r.Group(prefix)
	api.POST("/auth/login", deps.authHandler.Login)

	read := api.Group("")
	read.Use(middleware.JWT(deps.auth))
	write := api.Group("")
	write.Use(middleware.OptionalJWT(deps.auth))

	read.GET("/classes", deps.records.ListClasses)
	write.POST("/classes", deps.records.CreateClass)
	read.GET("/subjects", deps.records.ListSubjects)
	write.POST("/subjects", deps.records.CreateSubject)

	read.GET("/students", deps.records.ListStudents)
	read.GET("/students/:id", deps.records.GetStudent)
	write.POST("/students", deps.writes.WriteStudents)
	write.PUT("/students/:id", deps.writes.UpdateStudent)

	read.GET("/marks", deps.summaries.ListMarks)
	read.GET("/marks/summary", deps.summaries.MarksSummary)
	write.POST("/marks", deps.writes.WriteMarks)

	read.GET("/attendance", deps.records.ListAttendance)
	write.POST("/attendance", deps.writes.WriteAttendance)
	write.POST("/attendance/class", deps.writes.MarkClassAttendance)

	read.GET("/fees", deps.records.ListFees)
	write.POST("/fees", deps.writes.WriteFees)

	read.GET("/monthly-tests", deps.records.ListMonthlyTests)
	read.GET("/monthly-tests/:id/summary", deps.summaries.TestSummary)
	write.POST("/monthly-tests", deps.writes.WriteMonthlyTests)
	write.PUT("/monthly-tests/:id", deps.writes.UpdateMonthlyTest)

	read.GET("/test-marks", deps.summaries.ListTestMarks)
	write.POST("/test-marks", deps.writes.WriteTestMarks)

	requests := read.Group("/change-requests")
	requests.GET("", deps.changeRequests.List)
	requests.GET("/pending", deps.changeRequests.ListPending)
	requests.GET("/approved", deps.changeRequests.ListApproved)
	requests.GET("/rejected", deps.changeRequests.ListRejected)
	requests.GET("/pending-count", deps.changeRequests.PendingCount)
	requests.GET("/summary", deps.changeRequests.Summary)
	requests.GET("/by-object", deps.changeRequests.ByObject)
	requests.GET("/:id", deps.changeRequests.Get)

	write.POST("/change-requests", deps.changeRequests.Submit)

	review := requests.Group("")
	review.Use(middleware.RequireReviewer())
	review.GET("/export",
		middleware.Audit(deps.audit, models.AuditActionChangeRequestExport, "change_requests", logr),
		deps.changeRequests.Export)
	review.POST("/:id/approve", deps.changeRequests.Approve)
	review.POST("/:id/reject", deps.changeRequests.Reject)
	review.POST("/bulk-approve", deps.changeRequests.BulkApprove)
	review.POST("/bulk-reject", deps.changeRequests.BulkReject)

	return r
}
