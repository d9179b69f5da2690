package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"curanova-server/internal/handlers"
	"curanova-server/internal/middleware"
	"curanova-server/internal/models"
)

// Dependencies bundles everything the HTTP surface needs.
type Dependencies struct {
	JWTSecret string
	Identity  middleware.PatientResolver
	Gatherer  prometheus.Gatherer

	Diagnostics  *handlers.DiagnosticHandler
	Appointments *handlers.AppointmentHandler
	Chat         *handlers.ChatHandler
	Predictions  *handlers.PredictionHandler
	Tests        *handlers.TestHandler
	Patients     *handlers.PatientHandler
	Webhooks     *handlers.WebhookHandler

	// Ping reports database health; nil skips the check.
	Ping func() error
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	api := router.Group("/api/v1")

	// Webhooks authenticate with their own signature.
	api.POST("/webhooks/identity", deps.Webhooks.Identity)

	// Token only: the patient row may not exist yet.
	authenticated := api.Group("")
	authenticated.Use(middleware.AuthMiddleware(deps.JWTSecret))
	{
		authenticated.GET("/onboarding/status", deps.Patients.OnboardingStatus)
		authenticated.GET("/tests/catalog", deps.Tests.Catalog)
	}

	patient := api.Group("")
	patient.Use(middleware.AuthMiddleware(deps.JWTSecret), middleware.PatientMiddleware(deps.Identity))
	{
		patient.GET("/patients/me", deps.Patients.GetProfile)
		patient.POST("/onboarding", deps.Patients.CompleteOnboarding)

		patient.POST("/chat", deps.Chat.Chat)
		patient.POST("/predict/:model", deps.Predictions.Predict)

		diagnostics := patient.Group("/diagnostics")
		{
			diagnostics.POST("", deps.Diagnostics.CreateDiagnostic)
			diagnostics.GET("", deps.Diagnostics.ListDiagnostics)
			diagnostics.GET("/:id", deps.Diagnostics.GetDiagnostic)
		}

		appointments := patient.Group("/appointments")
		{
			appointments.POST("", deps.Appointments.BookAppointment)
			appointments.GET("", deps.Appointments.ListAppointments)
			appointments.PATCH("", deps.Appointments.UpdateAppointment)
		}

		patient.GET("/tests/:id/result", deps.Tests.ResultURL)
	}

	provider := api.Group("/provider")
	provider.Use(middleware.AuthMiddleware(deps.JWTSecret), middleware.RoleAuthMiddleware(models.RoleProvider))
	{
		provider.POST("/tests/:id/start", deps.Tests.StartTest)
		provider.PUT("/tests/:id/result", deps.Tests.AttachResult)
		provider.POST("/tests/:id/result/upload", deps.Tests.UploadResult)
		provider.POST("/appointments/:id/complete", deps.Appointments.CompleteAppointment)
	}

	router.GET("/health", func(c *gin.Context) {
		if deps.Ping != nil {
			if err := deps.Ping(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "database": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
}
