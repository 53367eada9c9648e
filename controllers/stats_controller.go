package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quillboard/quillboard/service"
	"github.com/quillboard/quillboard/utils"
)

// StatsController serves the moderation overview: post counts per lifecycle
// state and the total report volume.
type StatsController struct {
	posts *service.PostService
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(posts *service.PostService) *StatsController {
	return &StatsController{posts: posts}
}

// GetStats returns the cached moderation stats.
func (s *StatsController) GetStats(ctx *gin.Context) {
	cacheKey := utils.StatsCacheKey()
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(200, "application/json", b)
		return
	}

	stats, err := s.posts.Stats()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to compute stats")
		return
	}

	payload := gin.H{"stats": stats}
	utils.CacheSetJSON(cacheKey, utils.JSONResponse{Code: 0, Message: "success", Data: payload}, 5*time.Minute)
	utils.Success(ctx, payload)
}
