package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/adg-admissions-api/internal/models"
)

type auditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Audit records an audit log entry after successful admin mutations. The
// resource id is taken from the :id route parameter when present.
func Audit(store auditStore, logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 || store == nil {
			return
		}

		var userID *string
		if claims := CurrentUser(c); claims != nil {
			userID = &claims.UserID
		}
		var resourceID *string
		if id := c.Param("id"); id != "" {
			resourceID = &id
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		if err := store.CreateAuditLog(c.Request.Context(), &models.AuditLog{
			UserID:     userID,
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
			NewValues:  body,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		}); err != nil {
			logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		}
	}
}
