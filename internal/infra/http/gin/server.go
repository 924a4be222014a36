package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"staysane/internal/infra/config"
	"staysane/internal/infra/obs"
)

type BookingHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	ListMine(c *gin.Context)
	Cancel(c *gin.Context)
	UploadProof(c *gin.Context)
	History(c *gin.Context)
}

type TenantBookingHTTP interface {
	List(c *gin.Context)
	Review(c *gin.Context)
	Transition(c *gin.Context)
}

type AvailabilityHTTP interface {
	Check(c *gin.Context)
	Calendar(c *gin.Context)
	Toggle(c *gin.Context)
}

type PricingHTTP interface {
	Quote(c *gin.Context)
	ListAdjustments(c *gin.Context)
	CreateAdjustment(c *gin.Context)
	UpdateAdjustment(c *gin.Context)
	DeleteAdjustment(c *gin.Context)
}

type PaymentWebhookHTTP interface {
	Notify(c *gin.Context)
}

type Handlers struct {
	Booking       BookingHTTP
	TenantBooking TenantBookingHTTP
	Availability  AvailabilityHTTP
	Pricing       PricingHTTP
	Webhook       PaymentWebhookHTTP
	// CreateLimiter throttles booking creation when set.
	CreateLimiter *RateLimiter
	Metrics       *obs.Metrics
	// MetricsHandler serves /metrics; nil leaves the route out.
	MetricsHandler http.Handler
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	if h.Metrics != nil {
		router.Use(h.Metrics.HTTP())
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", IdempotencyHeader, UserIDHeader, UserRoleHeader},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			obs.RequestIDHeader,
			"Retry-After",
		},
		MaxAge: 12 * time.Hour,
	}))
	router.Use(PrincipalMiddleware())

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	if h.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(h.MetricsHandler))
	}

	api := router.Group("/api/v1")
	if h.Booking != nil {
		create := []gin.HandlerFunc{h.Booking.Create}
		if h.CreateLimiter != nil {
			create = append([]gin.HandlerFunc{h.CreateLimiter.Handle}, create...)
		}
		api.POST("/bookings", create...)
		api.GET("/bookings/:id", h.Booking.Get)
		api.POST("/bookings/:id/cancel", h.Booking.Cancel)
		api.POST("/bookings/:id/payment-proof", h.Booking.UploadProof)
		api.GET("/bookings/:id/history", h.Booking.History)

		meGroup := api.Group("/me")
		meGroup.GET("/bookings", h.Booking.ListMine)
	}
	if h.Availability != nil {
		api.GET("/rooms/:id/availability", h.Availability.Check)
		api.GET("/rooms/:id/calendar", h.Availability.Calendar)
	}
	if h.Pricing != nil {
		api.GET("/rooms/:id/quote", h.Pricing.Quote)
	}
	if h.Webhook != nil {
		api.POST("/payments/notifications", h.Webhook.Notify)
	}

	tenantGroup := api.Group("/tenant")
	if h.TenantBooking != nil {
		tenantGroup.GET("/bookings", h.TenantBooking.List)
		tenantGroup.POST("/bookings/:id/review", h.TenantBooking.Review)
		tenantGroup.POST("/bookings/:id/status", h.TenantBooking.Transition)
	}
	if h.Availability != nil {
		tenantGroup.PUT("/rooms/:id/calendar", h.Availability.Toggle)
	}
	if h.Pricing != nil {
		tenantGroup.GET("/rooms/:id/adjustments", h.Pricing.ListAdjustments)
		tenantGroup.POST("/rooms/:id/adjustments", h.Pricing.CreateAdjustment)
		tenantGroup.PUT("/adjustments/:adjustmentID", h.Pricing.UpdateAdjustment)
		tenantGroup.DELETE("/adjustments/:adjustmentID", h.Pricing.DeleteAdjustment)
	}

	return router
}

// DefaultMetricsHandler exposes the default prometheus registry.
func DefaultMetricsHandler() http.Handler {
	return promhttp.Handler()
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
