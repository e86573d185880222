package web

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the dashboard routes. limiter may be nil.
func NewRouter(h *Handler, limiter gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)

	app := r.Group("")
	if limiter != nil {
		app.Use(limiter)
	}
	app.GET("/", h.Index)

	s := app.Group("", h.requireSession)
	s.GET("/records", h.Records)
	s.GET("/notification", h.Notification)
	s.POST("/notification/dismiss", h.Dismiss)
	s.POST("/draft/field", h.SetField)
	s.POST("/draft/photo", h.UploadPhoto)
	s.POST("/draft/photo-url", h.SetPhotoURL)
	s.POST("/birthdays", h.Submit)
	s.POST("/birthdays/:id/delete", h.Delete)
	return r
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
