package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/kyc-attestation-api/internal/middleware"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/response"
)

var validate = validator.New()

func sessionFromContext(c *gin.Context) *models.Session {
	return middleware.SessionFromContext(c)
}

// requireSession writes an unauthorized response when no session is attached.
func requireSession(c *gin.Context) (*models.Session, bool) {
	session := sessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return session, true
}

// bindJSON decodes and validates the request body into dest.
func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message))
		return false
	}
	if err := validate.Struct(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message))
		return false
	}
	return true
}

func respond(c *gin.Context, status int, data interface{}) {
	response.JSON(c, status, data, middleware.ExtractMeta(c))
}
