package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/logger"
	"github.com/noah-isme/kyc-attestation-api/pkg/response"
)

// ContextSessionKey is the gin context key storing the connected session.
const ContextSessionKey = "currentSession"

// Authenticator resolves a bearer token into a session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Session, error)
}

// Session protects routes by requiring a connected wallet session.
func Session(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "wallet session required"))
			c.Abort()
			return
		}

		session, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		attach(c, session)
		c.Next()
	}
}

// OptionalSession attaches the session when present but does not block.
func OptionalSession(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if session, err := auth.Authenticate(c.Request.Context(), token); err == nil {
				attach(c, session)
			}
		}
		c.Next()
	}
}

// SessionFromContext returns the connected session, if any.
func SessionFromContext(c *gin.Context) *models.Session {
	value, exists := c.Get(ContextSessionKey)
	if !exists {
		return nil
	}
	session, _ := value.(*models.Session)
	return session
}

func attach(c *gin.Context, session *models.Session) {
	c.Set(ContextSessionKey, session)
	c.Set(logger.AddressKey, session.Address.Hex())
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
