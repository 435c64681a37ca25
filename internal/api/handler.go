package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/service"
	"booking-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Probe checks one dependency for the readiness endpoint
type Probe func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	bookingService  *service.BookingService
	catalogService  *service.CatalogService
	identityService *service.IdentityService
	probes          map[string]Probe
	production      bool
	logger          *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	bookingService *service.BookingService,
	catalogService *service.CatalogService,
	identityService *service.IdentityService,
	probes map[string]Probe,
	production bool,
) *Handler {
	return &Handler{
		bookingService:  bookingService,
		catalogService:  catalogService,
		identityService: identityService,
		probes:          probes,
		production:      production,
		logger:          util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(h.requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", h.identityMiddleware())
	{
		v1.POST("/bookings", h.createBooking)
		v1.GET("/bookings", h.listBookings)
		v1.GET("/bookings/:id", h.getBooking)
		v1.PATCH("/bookings/:id/status", h.updateBookingStatus)
		v1.POST("/bookings/:id/cancel", h.cancelBooking)
		v1.POST("/bookings/:id/payment/confirm", h.confirmPayment)
		v1.POST("/bookings/:id/review", h.addReview)
		v1.POST("/bookings/:id/messages", h.addMessage)
		v1.PATCH("/bookings/:id/messages/read", h.markMessagesRead)

		v1.GET("/products/:id", h.getProduct)
		v1.POST("/products/:id/ratings", h.rateProduct)
		v1.GET("/destinations/:id", h.getDestination)
		v1.POST("/destinations/:id/ratings", h.rateDestination)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every backing store answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failing := gin.H{}
	for name, probe := range h.probes {
		if err := probe(ctx); err != nil {
			h.logger.Warn("Readiness probe failed", zap.String("dependency", name), zap.Error(err))
			failing[name] = "unavailable"
		}
	}

	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "not_ready",
			"dependencies": failing,
			"time":         time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// respondError renders a classified error. Internal failures keep their cause out of
// production responses.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal("internal server error", err)
	}

	body := gin.H{"error": appErr.Message}
	if len(appErr.Fields) > 0 {
		body["details"] = appErr.Fields
	}

	if apperr.Is(err, apperr.KindInternal) {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		if h.production {
			body = gin.H{"error": "internal server error"}
		} else if appErr.Err != nil {
			body["details"] = appErr.Err.Error()
		}
	}

	c.AbortWithStatusJSON(status, body)
}

// respondBindError reports a malformed request body or query
func (h *Handler) respondBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request",
		"details": err.Error(),
	})
}

// requestLogger logs each request through zap instead of gin's default writer
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		h.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
