package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareGeneratesAndEchoes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	var seen, fromCtx string
	r.GET("/", func(c *gin.Context) {
		seen = Value(c)
		fromCtx = FromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name     string
		header   string
		expected string
	}{
		{name: "generated"},
		{name: "caller supplied", header: "abc-123", expected: "abc-123"},
		{name: "too long", header: strings.Repeat("x", 200)},
		{name: "log injection", header: "id\nlevel=error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(Header, tc.header)
			}
			r.ServeHTTP(rec, req)

			if tc.expected != "" {
				assert.Equal(t, tc.expected, seen)
			} else {
				assert.Len(t, seen, 36)
			}
			assert.Equal(t, seen, fromCtx)
			assert.Equal(t, seen, rec.Header().Get(Header))
		})
	}
}
