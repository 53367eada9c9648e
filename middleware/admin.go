package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quillboard/quillboard/models"
	"github.com/quillboard/quillboard/utils"
)

// ContextIsAdminKey stores the admin verdict for the authenticated member.
const ContextIsAdminKey = "is_admin"

// AdminRequired loads the authenticated member and aborts unless it carries
// the administrator role. Must be mounted after AuthRequired.
func AdminRequired(db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		value, exists := ctx.Get(ContextMemberIDKey)
		if !exists {
			utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
			ctx.Abort()
			return
		}
		memberID, ok := value.(uint)
		if !ok {
			utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
			ctx.Abort()
			return
		}

		var member models.Member
		if err := db.First(&member, memberID).Error; err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40111, "member not found")
			ctx.Abort()
			return
		}
		if !member.IsAdmin() {
			utils.Error(ctx, http.StatusForbidden, 40310, "administrator role required")
			ctx.Abort()
			return
		}

		ctx.Set(ContextIsAdminKey, true)
		ctx.Next()
	}
}
