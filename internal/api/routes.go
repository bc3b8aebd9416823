package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter mounts the raffle routes under /api.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	api := r.Group("/api")
	{
		api.POST("/enter", h.Enter)
		api.GET("/upkeep", h.CheckUpkeep)
		api.POST("/upkeep", h.PerformUpkeep)
		api.GET("/state", h.GetState)
		api.GET("/players/:index", h.GetPlayer)
		api.GET("/winners", h.ListWinners)
		api.GET("/accounts/:address", h.GetAccount)
		api.POST("/faucet", h.Faucet)
		api.GET("/events", h.StreamEvents)
	}

	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
		)
	}
}
