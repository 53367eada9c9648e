package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quillboard/quillboard/models"
	"github.com/quillboard/quillboard/utils"
)

// CategoryController manages the post categories.
type CategoryController struct {
	db *gorm.DB
}

// NewCategoryController creates a new CategoryController instance.
func NewCategoryController(db *gorm.DB) *CategoryController {
	return &CategoryController{db: db}
}

// ListCategories returns all categories.
func (c *CategoryController) ListCategories(ctx *gin.Context) {
	var categories []models.Category
	if err := c.db.Order("name ASC").Find(&categories).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to list categories")
		return
	}
	utils.Success(ctx, gin.H{"categories": categories})
}

// CreateCategory creates a category. Admin-only route.
func (c *CategoryController) CreateCategory(ctx *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required,min=1,max=64"`
		Description string `json:"description"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid request payload")
		return
	}

	category := models.Category{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
	}
	if err := c.db.Create(&category).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to create category")
		return
	}
	utils.Success(ctx, gin.H{"category": category})
}
