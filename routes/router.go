package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quillboard/quillboard/config"
	"github.com/quillboard/quillboard/controllers"
	"github.com/quillboard/quillboard/middleware"
	"github.com/quillboard/quillboard/service"
	"github.com/quillboard/quillboard/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, posts *service.PostService) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(utils.GinLogger())
	r.Use(utils.GinRecovery(false))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	memberController := controllers.NewMemberController(db)
	postController := controllers.NewPostController(db, posts)
	categoryController := controllers.NewCategoryController(db)
	statsController := controllers.NewStatsController(posts)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", memberController.Register)
	authGroup.POST("/login", memberController.Login)
	authGroup.POST("/logout", middleware.AuthRequired(), memberController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), memberController.Me)

	// Public read paths
	api.GET("/categories", categoryController.ListCategories)
	api.GET("/posts", postController.ListPosts)
	api.GET("/posts/:id", postController.GetPost)
	api.GET("/stats", statsController.GetStats)
	api.GET("/members/:id", memberController.GetMemberPublic)

	// View counting is public: anonymous readers count too.
	api.POST("/posts/:id/view", postController.IncrementView)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())
	protected.POST("/posts", postController.CreatePost)
	protected.PUT("/posts/:id/title", postController.EditTitle)
	protected.PUT("/posts/:id/content", postController.EditContent)
	protected.DELETE("/posts/:id", postController.DeletePost)
	protected.POST("/posts/:id/like", postController.LikePost)
	protected.POST("/posts/:id/report", postController.ReportPost)
	protected.POST("/posts/:id/quote", postController.QuotePost)
	protected.GET("/posts/:id/can-edit", postController.CanEdit)
	protected.GET("/posts/:id/can-delete", postController.CanDelete)
	protected.POST("/posts/:id/comments", postController.CreateComment)
	protected.DELETE("/comments/:commentId", postController.DeleteComment)

	admin := api.Group("")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired(db))
	admin.POST("/posts/:id/hide", postController.HidePost)
	admin.POST("/posts/:id/restore", postController.RestorePost)
	admin.POST("/categories", categoryController.CreateCategory)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
