package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quillboard/quillboard/utils"
)

// Context keys set by AuthRequired for downstream handlers.
const (
	ContextMemberIDKey = "member_id"
	ContextUsernameKey = "username"
)

// AuthRequired authenticates the request from its bearer token. The member
// id and username land in the Gin context; revoked tokens are rejected even
// before their natural expiration.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, ok := bearerToken(ctx)
		if !ok {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "missing or malformed authorization header")
			ctx.Abort()
			return
		}

		if utils.IsTokenBlacklisted(token) {
			utils.Error(ctx, http.StatusUnauthorized, 40104, "token revoked")
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(token)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
			ctx.Abort()
			return
		}

		ctx.Set(ContextMemberIDKey, claims.MemberID)
		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Next()
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(ctx *gin.Context) (string, bool) {
	header := ctx.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
