package api

import (
	"time"

	"github.com/aethra/daicho/internal/auth"
	"github.com/aethra/daicho/internal/config"
	"github.com/aethra/daicho/internal/ui"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(h *Handler, renderer *ui.Renderer, cfg *config.Config, loginLimiter *limiter.Limiter, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(logger), Recovery(logger))
	r.HTMLRender = renderer

	// When credentials are used, specific origins must be provided (not *)
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "Content-Disposition"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	// Health check (no auth required)
	r.GET("/api/health", h.Health)

	r.GET("/setup", h.SetupPage)
	r.POST("/setup", h.Setup)
	r.GET("/login", h.LoginPage)
	r.POST("/login", h.LoginRateLimit(loginLimiter), h.Login)

	// ==========================================================================
	// PAGES - server-rendered, session cookie required
	// ==========================================================================
	app := r.Group("/")
	app.Use(h.Session())
	{
		app.POST("/logout", h.Logout)
		app.GET("/", h.Dashboard)

		accounts := app.Group("/accounts")
		{
			accounts.GET("", h.Require(auth.ActionView, auth.ResourceAccount), h.ListAccounts)
			accounts.GET("/new", h.Require(auth.ActionCreate, auth.ResourceAccount), h.NewAccount)
			accounts.POST("", h.Require(auth.ActionCreate, auth.ResourceAccount), h.CreateAccount)
			accounts.GET("/:id", h.Require(auth.ActionView, auth.ResourceAccount), h.ShowAccount)
			accounts.GET("/:id/edit", h.Require(auth.ActionEdit, auth.ResourceAccount), h.EditAccount)
			accounts.POST("/:id", h.Require(auth.ActionEdit, auth.ResourceAccount), h.UpdateAccount)
			accounts.POST("/:id/delete", h.Require(auth.ActionDelete, auth.ResourceAccount), h.DeleteAccount)
		}

		contacts := app.Group("/contacts")
		{
			contacts.GET("", h.Require(auth.ActionView, auth.ResourceContact), h.ListContacts)
			contacts.GET("/new", h.Require(auth.ActionCreate, auth.ResourceContact), h.NewContact)
			contacts.POST("", h.Require(auth.ActionCreate, auth.ResourceContact), h.CreateContact)
			contacts.GET("/:id", h.Require(auth.ActionView, auth.ResourceContact), h.ShowContact)
			contacts.GET("/:id/edit", h.Require(auth.ActionEdit, auth.ResourceContact), h.EditContact)
			contacts.POST("/:id", h.Require(auth.ActionEdit, auth.ResourceContact), h.UpdateContact)
			contacts.POST("/:id/delete", h.Require(auth.ActionDelete, auth.ResourceContact), h.DeleteContact)
		}

		// Staff management is admin only
		employees := app.Group("/employees")
		employees.Use(h.Require(auth.ActionView, auth.ResourceEmployee))
		{
			employees.GET("", h.ListEmployees)
			employees.GET("/new", h.Require(auth.ActionCreate, auth.ResourceEmployee), h.NewEmployee)
			employees.POST("", h.Require(auth.ActionCreate, auth.ResourceEmployee), h.CreateEmployee)
			employees.GET("/:id/edit", h.Require(auth.ActionEdit, auth.ResourceEmployee), h.EditEmployee)
			employees.POST("/:id", h.Require(auth.ActionEdit, auth.ResourceEmployee), h.UpdateEmployee)
			employees.POST("/:id/delete", h.Require(auth.ActionDelete, auth.ResourceEmployee), h.DeleteEmployee)
		}

		projects := app.Group("/projects")
		{
			projects.GET("", h.Require(auth.ActionView, auth.ResourceProject), h.ListProjects)
			projects.GET("/new", h.Require(auth.ActionCreate, auth.ResourceProject), h.NewProject)
			projects.POST("", h.Require(auth.ActionCreate, auth.ResourceProject), h.CreateProject)
			projects.GET("/:id", h.Require(auth.ActionView, auth.ResourceProject), h.ShowProject)
			projects.GET("/:id/edit", h.Require(auth.ActionEdit, auth.ResourceProject), h.EditProject)
			projects.POST("/:id", h.Require(auth.ActionEdit, auth.ResourceProject), h.UpdateProject)
			projects.POST("/:id/delete", h.Require(auth.ActionDelete, auth.ResourceProject), h.DeleteProject)

			projects.POST("/:id/stakeholders", h.Require(auth.ActionEdit, auth.ResourceProject), h.AddStakeholder)
			projects.POST("/:id/stakeholders/:sid/delete", h.Require(auth.ActionEdit, auth.ResourceProject), h.RemoveStakeholder)

			projects.POST("/:id/tasks", h.Require(auth.ActionCreate, auth.ResourceTask), h.CreateTask)
			projects.POST("/:id/tasks/:tid", h.Require(auth.ActionEdit, auth.ResourceTask), h.UpdateTask)
			projects.POST("/:id/tasks/:tid/delete", h.Require(auth.ActionDelete, auth.ResourceTask), h.DeleteTask)

			projects.POST("/:id/comments", h.Require(auth.ActionCreate, auth.ResourceComment), h.CreateComment)
			projects.POST("/:id/comments/:cid/delete", h.Require(auth.ActionDelete, auth.ResourceComment), h.DeleteComment)
		}

		invoices := app.Group("/invoices")
		{
			invoices.GET("", h.Require(auth.ActionView, auth.ResourceInvoice), h.ListInvoices)
			invoices.GET("/new", h.Require(auth.ActionCreate, auth.ResourceInvoice), h.NewInvoice)
			invoices.POST("", h.Require(auth.ActionCreate, auth.ResourceInvoice), h.CreateInvoice)
			invoices.GET("/:id", h.Require(auth.ActionView, auth.ResourceInvoice), h.ShowInvoice)
			invoices.GET("/:id/edit", h.Require(auth.ActionEdit, auth.ResourceInvoice), h.EditInvoice)
			invoices.POST("/:id", h.Require(auth.ActionEdit, auth.ResourceInvoice), h.UpdateInvoice)
			invoices.POST("/:id/status", h.Require(auth.ActionEdit, auth.ResourceInvoice), h.SetInvoiceStatus)
			invoices.POST("/:id/delete", h.Require(auth.ActionDelete, auth.ResourceInvoice), h.DeleteInvoice)
		}

		attendance := app.Group("/attendance")
		{
			attendance.GET("", h.Require(auth.ActionView, auth.ResourceAttendance), h.Attendance)
			attendance.POST("/clock-in", h.Require(auth.ActionCreate, auth.ResourceAttendance), h.ClockIn)
			attendance.POST("/clock-out", h.Require(auth.ActionCreate, auth.ResourceAttendance), h.ClockOut)
			attendance.POST("/:id", h.Require(auth.ActionEdit, auth.ResourceAttendance), h.CorrectAttendance)
		}

		app.GET("/calendar", h.Require(auth.ActionView, auth.ResourceCalendar), h.Calendar)

		templates := app.Group("/templates")
		{
			templates.GET("", h.Require(auth.ActionView, auth.ResourceTemplate), h.Templates)
			templates.POST("", h.Require(auth.ActionCreate, auth.ResourceTemplate), h.UploadTemplate)
			templates.GET("/:id/download", h.Require(auth.ActionView, auth.ResourceTemplate), h.DownloadTemplate)
			templates.POST("/:id/delete", h.Require(auth.ActionDelete, auth.ResourceTemplate), h.DeleteTemplate)
			templates.POST("/:id/generate", h.Require(auth.ActionCreate, auth.ResourceTemplate), h.GenerateDocument)
		}
		app.GET("/documents/:id/download", h.Require(auth.ActionView, auth.ResourceTemplate), h.DownloadDocument)

		exports := app.Group("/exports")
		{
			exports.GET("/accounts.csv", h.Require(auth.ActionExport, auth.ResourceAccount), h.ExportAccounts)
			exports.GET("/contacts.csv", h.Require(auth.ActionExport, auth.ResourceContact), h.ExportContacts)
			exports.GET("/invoices.csv", h.Require(auth.ActionExport, auth.ResourceInvoice), h.ExportInvoicesCSV)
			exports.GET("/invoices.xlsx", h.Require(auth.ActionExport, auth.ResourceInvoice), h.ExportInvoicesXLSX)
			exports.GET("/attendance.xlsx", h.Require(auth.ActionExport, auth.ResourceAttendance), h.ExportAttendance)
		}
	}

	// ==========================================================================
	// JSON API - same session, used by the page widgets
	// ==========================================================================
	api := r.Group("/api")
	api.Use(h.Session())
	{
		events := api.Group("/calendar/events")
		{
			events.GET("", h.Require(auth.ActionView, auth.ResourceCalendar), h.ListEvents)
			events.POST("", h.Require(auth.ActionCreate, auth.ResourceCalendar), h.CreateEvent)
			events.PUT("/:id", h.Require(auth.ActionEdit, auth.ResourceCalendar), h.UpdateEvent)
			events.PATCH("/:id/move", h.Require(auth.ActionEdit, auth.ResourceCalendar), h.MoveEvent)
			events.DELETE("/:id", h.Require(auth.ActionDelete, auth.ResourceCalendar), h.DeleteEvent)
		}

		api.GET("/projects/:id/tasks", h.Require(auth.ActionView, auth.ResourceTask), h.ListTasks)
		api.GET("/projects/:id/comments", h.Require(auth.ActionView, auth.ResourceComment), h.ListComments)
		api.POST("/projects/:id/tasks/reorder", h.Require(auth.ActionEdit, auth.ResourceTask), h.ReorderTasks)
		api.POST("/tasks/:id/status", h.Require(auth.ActionEdit, auth.ResourceTask), h.SetTaskStatus)
		api.GET("/postal-code", h.PostalCode)
		api.GET("/revenue", h.Require(auth.ActionView, auth.ResourceProject), h.Revenue)
	}

	r.NoRoute(h.NoRoute)

	return r
}
