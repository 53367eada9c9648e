package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quillboard/quillboard/config"
	"github.com/quillboard/quillboard/middleware"
	"github.com/quillboard/quillboard/models"
	"github.com/quillboard/quillboard/service"
	"github.com/quillboard/quillboard/utils"
)

// PostController exposes the post lifecycle operations over HTTP. All
// decisions are delegated to the post service; handlers only bind input,
// resolve the actor, and translate service errors.
type PostController struct {
	db    *gorm.DB
	posts *service.PostService
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB, posts *service.PostService) *PostController {
	return &PostController{db: db, posts: posts}
}

// CreatePost allows authenticated members to create new posts.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var req struct {
		CategoryID  uint     `json:"category_id" binding:"required"`
		Title       string   `json:"title" binding:"required,min=1"`
		Content     string   `json:"content" binding:"required"`
		Attachments []string `json:"attachments"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	memberID, ok := getMemberID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	post, err := p.posts.CreatePost(memberID, req.CategoryID, req.Title, req.Content, req.Attachments)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	utils.InvalidateListingCaches()
	utils.Success(ctx, gin.H{"post": post})
}

// ListPosts returns one page of visible posts in a category.
func (p *PostController) ListPosts(ctx *gin.Context) {
	categoryID, err := strconv.ParseUint(ctx.Query("category_id"), 10, 64)
	if err != nil || categoryID == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40021, "missing or invalid category_id")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	cacheKey := utils.PostListCacheKey(categoryID, page, pageSize)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(200, "application/json", b)
		return
	}

	posts, total, err := p.posts.ListPostsByCategory(uint(categoryID), page, pageSize)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to list posts")
		return
	}

	payload := utils.NewPageData(posts, page, pageSize, total)
	utils.CacheSetJSON(cacheKey, utils.JSONResponse{Code: 0, Message: "success", Data: payload}, time.Hour)
	utils.Success(ctx, payload)
}

// GetPost returns a single post with author, attachments, and comments.
func (p *PostController) GetPost(ctx *gin.Context) {
	postID, ok := parsePostID(ctx)
	if !ok {
		return
	}

	cacheKey := utils.PostDetailCacheKey(ctx.Param("id"))
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(200, "application/json", b)
		return
	}

	post, err := p.posts.GetPost(postID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	comments, err := p.posts.ListComments(postID)
	if err == nil {
		post.Comments = comments
	}

	payload := gin.H{"post": post}
	utils.CacheSetJSON(cacheKey, utils.JSONResponse{Code: 0, Message: "success", Data: payload}, time.Hour)
	utils.Success(ctx, payload)
}

// EditTitle updates the post title on behalf of the authenticated member.
// Whether the actor is an administrator is resolved here and passed to the
// service explicitly.
func (p *PostController) EditTitle(ctx *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required,min=1"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid request payload")
		return
	}
	p.editPostField(ctx, func(postID, actorID uint, isAdmin bool) (*models.Post, error) {
		return p.posts.EditTitle(postID, req.Title, actorID, isAdmin)
	})
}

// EditContent updates the post content, symmetric to EditTitle.
func (p *PostController) EditContent(ctx *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid request payload")
		return
	}
	p.editPostField(ctx, func(postID, actorID uint, isAdmin bool) (*models.Post, error) {
		return p.posts.EditContent(postID, req.Content, actorID, isAdmin)
	})
}

func (p *PostController) editPostField(ctx *gin.Context, edit func(postID, actorID uint, isAdmin bool) (*models.Post, error)) {
	postID, ok := parsePostID(ctx)
	if !ok {
		return
	}
	actorID, ok := getMemberID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	post, err := edit(postID, actorID, p.actorIsAdmin(actorID))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	p.invalidatePostCaches(ctx.Param("id"))
	utils.Success(ctx, gin.H{"post": post})
}

// DeletePost soft-deletes a post on behalf of its author or an administrator.
func (p *PostController) DeletePost(ctx *gin.Context) {
	postID, ok := parsePostID(ctx)
	if !ok {
		return
	}
	actorID, ok := getMemberID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40112, "unauthorized")
		return
	}

	if err := p.posts.DeletePost(postID, actorID, p.actorIsAdmin(actorID)); err != nil {
		writeServiceError(ctx, err)
		return
	}

	p.invalidatePostCaches(ctx.Param("id"))
	utils.Success(ctx, gin.H{"message": "post deleted"})
}

// HidePost hides a post from public view. Route access is restricted to
// administrators; the operation itself carries no actor parameter.
func (p *PostController) HidePost(ctx *gin.Context) {
	postID, ok := parsePostID(ctx)
	if !ok {
		return
	}
	if err := p.posts.HidePost(postID); err != nil {
		writeServiceError(ctx, err)
		return
	}
	p.invalidatePostCaches(ctx.Param("id"))
	utils.Success(ctx, gin.H{"message": "post hidden"})
}

// RestorePost makes a hidden post visible again.
func (p *PostController) RestorePost(ctx *gin.Context) {
	postID, ok := parsePostID(ctx)
	if !ok {
		return
	}
	if err := p.posts.RestorePost(postID); err != nil {
		writeServiceError(ctx, err)
		return
	}
	p.invalidatePostCaches(ctx.Param("id"))
	utils.Success(ctx, gin.H{"message": "post restored"})
}

// IncrementView bumps the post view counter.
func (p *PostController) IncrementView(ctx *gin.Context) {
	postID, ok := parsePostID(ctx)
	if !ok {
		return
	}
	if err := p.posts.IncrementViewCount(postID); err != nil {
		writeServiceError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "view recorded"})
}

// LikePost bumps the post like counter.
func (p *PostController) LikePost(ctx *gin.Context) {
	postID, ok := parsePostID(ctx)
	if !ok {
		return
	}
	if err := p.posts.LikePost(postID); err != nil {
		writeServiceError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "like recorded"})
}

// ReportPost records a report from the authenticated member and returns the
// updated post, hidden when the report count reached the threshold.
func (p *PostController) ReportPost(ctx *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = ctx.ShouldBindJSON(&req)

	postID, ok := parsePostID(ctx)
	if !ok {
		return
	}
	reporterID, ok := getMemberID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}

	post, err := p.posts.ReportPost(postID, reporterID, req.Reason)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	p.invalidatePostCaches(ctx.Param("id"))
	utils.Success(ctx, gin.H{"post": post})
}

// QuotePost creates a new post quoting the target post.
func (p *PostController) QuotePost(ctx *gin.Context) {
	var req struct {
		Comment string `json:"comment" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid request payload")
		return
	}

	quotedPostID, ok := parsePostID(ctx)
	if !ok {
		return
	}
	memberID, ok := getMemberID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40114, "unauthorized")
		return
	}

	post, err := p.posts.QuotePost(memberID, quotedPostID, req.Comment)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	utils.InvalidateListingCaches()
	utils.Success(ctx, gin.H{"post": post})
}

// CanEdit is the pre-flight probe frontends use before showing an edit
// affordance. It runs the exact predicate the mutating path runs.
func (p *PostController) CanEdit(ctx *gin.Context) {
	p.permissionProbe(ctx, p.posts.CanEdit)
}

// CanDelete is the pre-flight probe for the delete affordance.
func (p *PostController) CanDelete(ctx *gin.Context) {
	p.permissionProbe(ctx, p.posts.CanDelete)
}

func (p *PostController) permissionProbe(ctx *gin.Context, probe func(postID, actorID uint, isAdmin bool) (bool, error)) {
	postID, ok := parsePostID(ctx)
	if !ok {
		return
	}
	actorID, ok := getMemberID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40115, "unauthorized")
		return
	}

	allowed, err := probe(postID, actorID, p.actorIsAdmin(actorID))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"allowed": allowed})
}

// CreateComment allows authenticated members to comment on visible posts.
func (p *PostController) CreateComment(ctx *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40025, "invalid request payload")
		return
	}

	postID, ok := parsePostID(ctx)
	if !ok {
		return
	}
	memberID, ok := getMemberID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40116, "unauthorized")
		return
	}

	comment, err := p.posts.CreateComment(postID, memberID, req.Content)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	utils.InvalidatePostDetail(ctx.Param("id"))
	utils.Success(ctx, gin.H{"comment": comment})
}

// DeleteComment allows the comment owner or an administrator to delete a comment.
func (p *PostController) DeleteComment(ctx *gin.Context) {
	commentID, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("commentId")), 10, 64)
	if err != nil || commentID == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40070, "missing comment id")
		return
	}
	actorID, ok := getMemberID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40120, "unauthorized")
		return
	}

	postID, err := p.posts.DeleteComment(uint(commentID), actorID, p.actorIsAdmin(actorID))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	utils.InvalidatePostDetail(strconv.FormatUint(uint64(postID), 10))
	utils.Success(ctx, gin.H{"message": "comment deleted"})
}

func (p *PostController) invalidatePostCaches(postID string) {
	utils.InvalidatePostCaches(postID)
}

// actorIsAdmin resolves the member collaborator's isAdmin answer for the
// actor, so the admin flag is always an explicit service argument.
func (p *PostController) actorIsAdmin(memberID uint) bool {
	var member models.Member
	if err := p.db.First(&member, memberID).Error; err != nil {
		return false
	}
	return member.IsAdmin()
}

func parsePostID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("id")), 10, 64)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40010, "missing or invalid post id")
		return 0, false
	}
	return uint(id), true
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	cfg := config.Get()
	page := 1
	pageSize := cfg.DefaultPageSize
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= cfg.MaxPageSize {
		pageSize = s
	}
	return page, pageSize
}

func getMemberID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextMemberIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

// writeServiceError maps service error kinds onto HTTP statuses and app
// codes. Every kind keeps its own code so clients can distinguish
// not-found, authorization, terminal-state, and concurrency failures.
func writeServiceError(ctx *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.Error(ctx, http.StatusBadRequest, 40030, verr.Error())
	case errors.Is(err, service.ErrPostNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
	case errors.Is(err, service.ErrMemberNotFound):
		utils.Error(ctx, http.StatusNotFound, 40410, "member not found")
	case errors.Is(err, service.ErrUnauthorized):
		utils.Error(ctx, http.StatusForbidden, 40301, "operation not permitted")
	case errors.Is(err, service.ErrPostRemoved):
		utils.Error(ctx, http.StatusConflict, 40901, "post has been removed")
	case errors.Is(err, service.ErrInvalidTransition):
		utils.Error(ctx, http.StatusConflict, 40902, "invalid lifecycle transition")
	case errors.Is(err, service.ErrConflict):
		utils.Error(ctx, http.StatusConflict, 40903, "post was modified concurrently, retry")
	default:
		utils.Error(ctx, http.StatusInternalServerError, 50000, "internal error")
	}
}
