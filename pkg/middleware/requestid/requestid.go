package requestid

import (
	"context"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the request id in both directions.
const Header = "X-Request-ID"

const ginKey = "request_id"

type ctxKey struct{}

// Caller-supplied ids end up in logs, so only short opaque tokens are kept.
var acceptable = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)

// Middleware tags each request with an id, reusing the caller's X-Request-ID
// when it is acceptable. The id is stored on the gin context and on the
// request context so that services can log it.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if !acceptable.MatchString(id) {
			id = uuid.NewString()
		}

		c.Set(ginKey, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ctxKey{}, id))
		c.Writer.Header().Set(Header, id)
		c.Next()
	}
}

// Value returns the id stored on the gin context.
func Value(c *gin.Context) string {
	return c.GetString(ginKey)
}

// FromContext returns the id carried by a request context.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
