package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/hrnotify/anniversary-notifier/internal/api/handlers/employee"
	"github.com/hrnotify/anniversary-notifier/internal/api/handlers/health"
	"github.com/hrnotify/anniversary-notifier/internal/api/handlers/queuectl"
	"github.com/hrnotify/anniversary-notifier/internal/metrics"
	"github.com/hrnotify/anniversary-notifier/internal/middlewares"
)

func New(employees *employee.Handler, queues *queuectl.Handler, healthz *health.Handler) *ginext.Engine {
	e := ginext.New()
	e.Use(middlewares.CORSMiddleware())
	e.Use(middlewares.MetricsMiddleware())
	e.Use(ginext.Logger())
	e.Use(ginext.Recovery())

	api := e.Group("/api/v1")

	emp := api.Group("/employees")
	{
		emp.POST("/", employees.Create)
		emp.GET("/", employees.GetAll)
		emp.GET("/:id", employees.GetByID)
		emp.DELETE("/:id", employees.Delete)
	}

	q := api.Group("/queue")
	{
		q.GET("/stats", queues.GetStats)
		q.POST("/trigger-scheduler", queues.TriggerScheduler)
		q.POST("/trigger-recovery", queues.TriggerRecovery)
		q.GET("/failed-jobs", queues.GetFailedJobs)
		q.POST("/failed-jobs/retry-all", queues.RetryAllFailedJobs)
		q.POST("/failed-jobs/:id/retry", queues.RetryFailedJob)
		q.DELETE("/failed-jobs/:id", queues.RemoveFailedJob)
	}

	e.GET("/health", healthz.Health)
	e.GET("/health/ready", healthz.Ready)
	e.GET("/health/live", healthz.Live)
	e.GET("/metrics", metrics.Handler())

	return e
}
