package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quillboard/quillboard/models"
	"github.com/quillboard/quillboard/utils"
)

const tokenTTL = 72 * time.Hour

// MemberController handles registration, login, and member lookups. It is
// the thin identity layer in front of the post engine: it resolves who the
// actor is, while the engine decides what the actor may do.
type MemberController struct {
	db *gorm.DB
}

// NewMemberController creates a new MemberController instance.
func NewMemberController(db *gorm.DB) *MemberController {
	return &MemberController{db: db}
}

// Register creates a new member account with a bcrypt password hash.
func (m *MemberController) Register(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required,min=3,max=64"`
		Email    string `json:"email" binding:"omitempty,email"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	username := strings.TrimSpace(req.Username)
	var existing models.Member
	if err := m.db.Where("username = ?", username).First(&existing).Error; err == nil {
		utils.Error(ctx, http.StatusConflict, 40910, "username already taken")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to hash password")
		return
	}

	member := models.Member{
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Role:         models.RoleMember,
	}
	if err := m.db.Create(&member).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to create member")
		return
	}

	utils.Success(ctx, gin.H{"member": member})
}

// Login verifies credentials and issues a JWT.
func (m *MemberController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request payload")
		return
	}

	var member models.Member
	if err := m.db.Where("username = ?", strings.TrimSpace(req.Username)).First(&member).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40120, "invalid credentials")
		return
	}
	if !utils.CheckPassword(member.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40120, "invalid credentials")
		return
	}

	token, err := utils.GenerateToken(member.ID, member.Username, tokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to issue token")
		return
	}

	utils.Success(ctx, gin.H{"token": token, "member": member})
}

// Logout revokes the current bearer token until its natural expiration.
func (m *MemberController) Logout(ctx *gin.Context) {
	authHeader := ctx.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		utils.Error(ctx, http.StatusBadRequest, 40003, "missing bearer token")
		return
	}
	token := strings.TrimSpace(parts[1])

	claims, err := utils.ParseToken(token)
	if err == nil && claims.ExpiresAt != nil {
		utils.BlacklistToken(token, claims.ExpiresAt.Time)
	}
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the authenticated member.
func (m *MemberController) Me(ctx *gin.Context) {
	memberID, ok := getMemberID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var member models.Member
	if err := m.db.First(&member, memberID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40410, "member not found")
		return
	}
	utils.Success(ctx, gin.H{"member": member})
}

// GetMemberPublic returns the public view of a member by id.
func (m *MemberController) GetMemberPublic(ctx *gin.Context) {
	id, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("id")), 10, 64)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40011, "missing or invalid member id")
		return
	}

	var member models.Member
	if err := m.db.First(&member, uint(id)).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40410, "member not found")
		return
	}
	utils.Success(ctx, gin.H{
		"member": gin.H{
			"id":       member.ID,
			"username": member.Username,
			"role":     member.Role,
		},
	})
}
