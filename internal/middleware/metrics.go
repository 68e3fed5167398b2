package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kyc-attestation-api/internal/service"
)

// health and scrape routes are polled every few seconds and stay out of the API series.
var unobserved = map[string]struct{}{
	"/metrics": {},
	"/health":  {},
	"/ready":   {},
}

// Metrics records latency and status per route template, so that
// /documents/:address is one series regardless of the address requested.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if _, skip := unobserved[route]; skip || metricsSvc == nil {
			c.Next()
			return
		}
		if route == "" {
			route = "unmatched"
		}

		start := time.Now()
		c.Next()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
