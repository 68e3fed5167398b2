package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kyc-attestation-api/internal/middleware"
)

// Handlers bundles the HTTP handlers mounted under the API prefix.
type Handlers struct {
	Session   *SessionHandler
	Ledger    *LedgerHandler
	Dashboard *DashboardHandler
	Uploads   *UploadHandler
	Export    *ExportHandler
	Metrics   *MetricsHandler
}

// Register mounts every route. auth resolves session tokens.
func Register(r *gin.Engine, prefix string, h Handlers, auth middleware.Authenticator) {
	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/ready", h.Metrics.Ready)
		r.GET("/metrics", h.Metrics.Prometheus)
	}

	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta())
	requireSession := middleware.Session(auth)

	session := api.Group("/session")
	session.POST("/challenge", h.Session.Challenge)
	session.POST("/connect", h.Session.Connect)
	session.POST("/disconnect", requireSession, h.Session.Disconnect)

	api.GET("/statistics", h.Ledger.Statistics)
	api.GET("/dashboard", requireSession, h.Dashboard.Summary)

	documents := api.Group("/documents")
	documents.GET("/:address", h.Ledger.Documents)
	documents.GET("/:address/export", h.Export.DocumentHistory)
	documents.POST("", requireSession, h.Ledger.Submit)
	documents.POST("/upload", requireSession, h.Uploads.Upload)

	uploads := api.Group("/uploads", requireSession)
	uploads.GET("/unsubmitted", h.Uploads.Unsubmitted)
	uploads.POST("/:id/submit", h.Uploads.Resubmit)

	attesters := api.Group("/attesters")
	attesters.GET("/stake", h.Ledger.Stake)
	attesters.GET("/pending", requireSession, h.Ledger.Pending)
	attesters.GET("/:address", h.Ledger.Attester)
	attesters.POST("", requireSession, h.Ledger.BecomeAttester)
	attesters.POST("/pending/:owner/:index/approve", requireSession, h.Ledger.Approve)
	attesters.POST("/pending/:owner/:index/reject", requireSession, h.Ledger.Reject)
}
