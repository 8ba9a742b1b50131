package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/compost/internal/server/handlers"
)

// Handlers groups the HTTP adapters mounted by New.
type Handlers struct {
	Facilities   *handlers.FacilityHandler
	Batches      *handlers.BatchHandler
	Restorations *handlers.RestorationHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	facilities := r.Group("/facilities")
	facilities.PUT("/:code", h.Facilities.Put)
	facilities.GET("/:code", h.Facilities.Get)
	facilities.POST("/:code/advance", h.Facilities.Advance)

	batches := r.Group("/batches")
	batches.POST("", h.Batches.Create)
	batches.GET("/:id", h.Batches.Get)
	batches.DELETE("/:id", h.Batches.Delete)
	batches.GET("/:id/guidance", h.Batches.Guidance)
	batches.GET("/:id/mass", h.Batches.Mass)
	batches.POST("/:id/contributions", h.Batches.AddContribution)
	batches.POST("/:id/photos", h.Batches.AddPhoto)
	batches.POST("/:id/advance", h.Batches.Advance)
	batches.POST("/:id/finalize", h.Batches.Finalize)
	batches.POST("/:id/certify", h.Batches.Certify)
	batches.GET("/:id/verify", h.Batches.Verify)

	r.DELETE("/contributions/:id", h.Batches.DeleteContribution)
	r.POST("/restorations", h.Restorations.Restore)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
