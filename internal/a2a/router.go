package a2a

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/advisor"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/metrics"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/session"
)

// NewRouter wires the A2A endpoint, the JSON API and the operational routes.
func NewRouter(adv *advisor.Advisor, sessions *session.Store, allowedOrigins []string) http.Handler {
	a2aHandler := NewA2AHandler(adv, sessions)
	api := NewAPIHandler(adv, sessions)

	router := gin.New()
	router.Use(gin.Recovery(), RequestLoggingMiddleware(), MetricsMiddleware())

	router.GET("/.well-known/agent.json", a2aHandler.ServeAgentCard)
	router.POST("/a2a/resale", a2aHandler.HandleResale)

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v := router.Group("/api")
	v.POST("/guide", api.Guide)
	v.POST("/insights", api.Insights)
	v.GET("/session", api.GetSession)
	v.DELETE("/session", api.ClearSession)
	v.GET("/chart.svg", api.ChartSVG)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", SessionHeader},
		ExposedHeaders: []string{SessionHeader},
		MaxAge:         300,
	}).Handler(router)
}

// MetricsMiddleware records request counts and latency per route.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RequestCount.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
