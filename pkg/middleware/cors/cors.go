package cors

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Options configures cross-origin access for the dashboard.
type Options struct {
	// AllowedOrigins lists exact origins. Empty allows any origin.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         time.Duration
}

// DefaultOptions suits bearer-token sessions: no cookies, so credentials stay off.
func DefaultOptions(origins []string) Options {
	return Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         10 * time.Minute,
	}
}

// New returns the middleware with DefaultOptions for the given origins.
func New(allowedOrigins []string) gin.HandlerFunc {
	return WithOptions(DefaultOptions(allowedOrigins))
}

// WithOptions returns a CORS middleware. Preflight requests are answered with 204.
func WithOptions(opts Options) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		origins[normalise(origin)] = struct{}{}
	}
	anyOrigin := len(origins) == 0

	methods := strings.Join(opts.AllowedMethods, ", ")
	headers := strings.Join(opts.AllowedHeaders, ", ")
	exposed := strings.Join(opts.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(int(opts.MaxAge.Seconds()))

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Add("Vary", "Origin")

		origin := c.GetHeader("Origin")
		switch {
		case origin == "":
		case anyOrigin:
			h.Set("Access-Control-Allow-Origin", "*")
		default:
			if _, ok := origins[normalise(origin)]; ok {
				h.Set("Access-Control-Allow-Origin", origin)
			}
		}
		if exposed != "" {
			h.Set("Access-Control-Expose-Headers", exposed)
		}

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Allow-Headers", headers)
		h.Set("Access-Control-Max-Age", maxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}

func normalise(origin string) string {
	return strings.ToLower(strings.TrimRight(origin, "/"))
}
