package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/VideoRoom/internal/app"
	"github.com/dkeye/VideoRoom/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const snapshotTimeout = 2 * time.Second

// SessionView is the read side of a session the status server reports on.
type SessionView interface {
	ID() string
	Closed() bool
	Snapshot(ctx context.Context) (app.Snapshot, error)
}

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, sessions ...SessionView) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		for _, s := range sessions {
			if s.Closed() {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "closed", "session_id": s.ID()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/sessions", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
		defer cancel()
		out := make([]app.Snapshot, 0, len(sessions))
		for _, s := range sessions {
			snap, err := s.Snapshot(ctx)
			if err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Str("request_id", c.GetString("request_id")).Msg("snapshot failed")
				c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
				return
			}
			out = append(out, snap)
		}
		c.JSON(http.StatusOK, out)
	})
	api.GET("/sessions/:id", func(c *gin.Context) {
		for _, s := range sessions {
			if s.ID() != c.Param("id") {
				continue
			}
			ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
			defer cancel()
			snap, err := s.Snapshot(ctx)
			if err != nil {
				c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, snap)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
	})

	log.Info().Str("module", "adapters.http").Int("sessions", len(sessions)).Msg("router setup")
	return r
}
