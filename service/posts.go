package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillboard/quillboard/models"
	"github.com/quillboard/quillboard/utils"
)

// PostService is the single entry point for every mutating post operation.
// Each method loads the post, asks the authorization predicates for a
// verdict, applies the lifecycle transition as one conditional write, and
// returns the updated post or a specific error.
//
// Counters are incremented inside the database, never read-modify-write in
// Go, so concurrent requests cannot lose updates. State transitions are
// guarded by conditional updates keyed on the state observed at load time; a
// lost race surfaces as ErrConflict and is never retried here.
type PostService struct {
	db                  *gorm.DB
	reportHideThreshold int
}

// NewPostService creates a PostService. reportHideThreshold is the report
// count at which a post is automatically hidden; values below 1 fall back
// to the default of 5.
func NewPostService(db *gorm.DB, reportHideThreshold int) *PostService {
	if reportHideThreshold < 1 {
		reportHideThreshold = 5
	}
	return &PostService{db: db, reportHideThreshold: reportHideThreshold}
}

// ReportHideThreshold returns the configured auto-hide threshold.
func (s *PostService) ReportHideThreshold() int {
	return s.reportHideThreshold
}

// CreatePost validates the required fields, verifies the author and
// category exist, and persists the post together with its ordered
// attachment URLs. Counters start at zero, the post starts active and
// unlocked.
func (s *PostService) CreatePost(authorID, categoryID uint, title, content string, fileURLs []string) (*models.Post, error) {
	if authorID == 0 {
		return nil, missingField("author_id")
	}
	if categoryID == 0 {
		return nil, missingField("category_id")
	}
	title = utils.SanitizeTitle(strings.TrimSpace(title))
	if title == "" {
		return nil, missingField("title")
	}
	content = utils.Sanitize(content)
	if strings.TrimSpace(content) == "" {
		return nil, missingField("content")
	}

	if err := s.memberExists(authorID); err != nil {
		return nil, err
	}
	var category models.Category
	if err := s.db.First(&category, categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ValidationError{Field: "category_id", Reason: "unknown category"}
		}
		return nil, err
	}

	post := models.Post{
		CategoryID: categoryID,
		AuthorID:   authorID,
		Title:      title,
		Content:    content,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			return err
		}
		for i, url := range fileURLs {
			url = strings.TrimSpace(url)
			if url == "" {
				continue
			}
			file := models.PostFile{PostID: post.ID, Position: i, URL: url}
			if err := tx.Create(&file).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPost(post.ID)
}

// GetPost loads a post with its author and ordered attachments.
func (s *PostService) GetPost(postID uint) (*models.Post, error) {
	var post models.Post
	err := s.db.
		Preload("Author").
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&post, postID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

// ListPostsByCategory returns one page of publicly visible posts in a
// category, newest first with sticky posts on top. Pages are 1-based at the
// API boundary and translated to an offset internally. Hidden and removed
// posts never appear in the public listing.
func (s *PostService) ListPostsByCategory(categoryID uint, page, size int) ([]models.Post, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	if size > 100 {
		size = 100
	}

	q := s.db.Where("category_id = ? AND removed_by IS NULL AND hidden = ?", categoryID, false)

	var total int64
	if err := q.Model(&models.Post{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var posts []models.Post
	err := q.
		Preload("Author").
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("sticky DESC, created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&posts).Error
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// EditTitle replaces the post title. Administrative edits mark the title as
// admin-edited and permanently lock the post against non-admin edits;
// non-admin edits clear the marker.
func (s *PostService) EditTitle(postID uint, newTitle string, actorID uint, isAdmin bool) (*models.Post, error) {
	newTitle = utils.SanitizeTitle(strings.TrimSpace(newTitle))
	if newTitle == "" {
		return nil, missingField("title")
	}
	return s.editField(postID, actorID, isAdmin, "title", "edited_by_title", newTitle)
}

// EditContent replaces the post content, symmetric to EditTitle.
func (s *PostService) EditContent(postID uint, newContent string, actorID uint, isAdmin bool) (*models.Post, error) {
	newContent = utils.Sanitize(newContent)
	if strings.TrimSpace(newContent) == "" {
		return nil, missingField("content")
	}
	return s.editField(postID, actorID, isAdmin, "content", "edited_by_content", newContent)
}

// editField applies one field edit as a conditional update keyed on the
// lock state observed during the authorization check, so an admin locking
// the post concurrently cannot be overwritten by a stale non-admin edit.
func (s *PostService) editField(postID, actorID uint, isAdmin bool, column, markerColumn, value string) (*models.Post, error) {
	post, err := s.GetPost(postID)
	if err != nil {
		return nil, err
	}
	if post.Removed() {
		return nil, ErrPostRemoved
	}
	if !CanEditPost(post, actorID, isAdmin) {
		return nil, ErrUnauthorized
	}

	updates := map[string]interface{}{
		column:       value,
		"updated_at": time.Now(),
	}
	if isAdmin {
		updates[markerColumn] = models.EditedByAdmin
		updates["locked"] = true
	} else {
		updates[markerColumn] = nil
	}

	res := s.db.Model(&models.Post{}).
		Where("id = ? AND removed_by IS NULL AND locked = ?", postID, post.Locked).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, s.classifyWriteMiss(s.db, postID)
	}
	return s.GetPost(postID)
}

// DeletePost soft-deletes the post, recording who removed it: "ADMIN" for
// administrators, "OP" for the author. Removal is terminal.
func (s *PostService) DeletePost(postID, actorID uint, isAdmin bool) error {
	post, err := s.GetPost(postID)
	if err != nil {
		return err
	}
	if post.Removed() {
		return ErrPostRemoved
	}
	if !CanDeletePost(post, actorID, isAdmin) {
		return ErrUnauthorized
	}

	tag := models.RemovedByOP
	if isAdmin {
		tag = models.RemovedByAdmin
	}
	res := s.db.Model(&models.Post{}).
		Where("id = ? AND removed_by IS NULL", postID).
		Updates(map[string]interface{}{"removed_by": tag, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.classifyWriteMiss(s.db, postID)
	}
	return nil
}

// HidePost transitions an active post to hidden. Caller-side access control
// applies; the operation itself takes no actor.
func (s *PostService) HidePost(postID uint) error {
	return s.setHidden(postID, true)
}

// RestorePost transitions a hidden post back to active. The report counter
// is deliberately left untouched, so further reports can re-hide the post.
func (s *PostService) RestorePost(postID uint) error {
	return s.setHidden(postID, false)
}

func (s *PostService) setHidden(postID uint, hidden bool) error {
	res := s.db.Model(&models.Post{}).
		Where("id = ? AND removed_by IS NULL AND hidden = ?", postID, !hidden).
		Updates(map[string]interface{}{"hidden": hidden, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.classifyTransitionMiss(s.db, postID, hidden)
	}
	return nil
}

// IncrementViewCount bumps the view counter inside the database. It cannot
// fail for an existing, non-removed post.
func (s *PostService) IncrementViewCount(postID uint) error {
	return s.incrementCounter(postID, "views_count")
}

// LikePost bumps the like counter inside the database.
func (s *PostService) LikePost(postID uint) error {
	return s.incrementCounter(postID, "likes_count")
}

func (s *PostService) incrementCounter(postID uint, column string) error {
	res := s.db.Model(&models.Post{}).
		Where("id = ? AND removed_by IS NULL", postID).
		Updates(map[string]interface{}{
			column:       gorm.Expr(column+" + ?", 1),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.classifyWriteMiss(s.db, postID)
	}
	return nil
}

// ReportPost records one report against the post. The counter increment and
// the threshold check happen in a single conditional UPDATE: the hidden flag
// flips in the same statement the moment the incremented count reaches the
// threshold, so two racing reports cannot both observe a pre-threshold
// count. An audit row with the reporter and reason is written in the same
// transaction. Duplicate reports from the same reporter are accepted.
func (s *PostService) ReportPost(postID, reporterID uint, reason string) (*models.Post, error) {
	if reporterID == 0 {
		return nil, missingField("reporter_id")
	}
	if err := s.memberExists(reporterID); err != nil {
		return nil, err
	}

	var updated *models.Post
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Post{}).
			Where("id = ? AND removed_by IS NULL", postID).
			Updates(map[string]interface{}{
				"report_count": gorm.Expr("report_count + ?", 1),
				// MySQL evaluates SET clauses left to right against
				// already-assigned values, SQLite against the pre-update
				// row. Gorm orders map keys alphabetically, so "hidden" is
				// assigned before "report_count" and both engines see the
				// pre-update count here; keep the explicit + 1 and the
				// column names in this alphabetical relation.
				"hidden":     gorm.Expr("CASE WHEN report_count + 1 >= ? THEN ? ELSE hidden END", s.reportHideThreshold, true),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return s.classifyWriteMiss(tx, postID)
		}

		report := models.PostReport{
			Reference:  uuid.NewString(),
			PostID:     postID,
			ReporterID: reporterID,
			Reason:     strings.TrimSpace(reason),
		}
		if err := tx.Create(&report).Error; err != nil {
			return err
		}

		var post models.Post
		if err := tx.Preload("Author").First(&post, postID).Error; err != nil {
			return err
		}
		updated = &post
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// QuotePost creates a new post quoting an existing one: the quoted content
// is embedded as a block quote followed by the quoting member's comment.
// The quoted post itself is not mutated. Quoting a removed post fails.
func (s *PostService) QuotePost(quotingMemberID, quotedPostID uint, commentContent string) (*models.Post, error) {
	if quotingMemberID == 0 {
		return nil, missingField("quoting_member_id")
	}
	commentContent = utils.Sanitize(commentContent)
	if strings.TrimSpace(commentContent) == "" {
		return nil, missingField("comment_content")
	}
	if err := s.memberExists(quotingMemberID); err != nil {
		return nil, err
	}

	quoted, err := s.GetPost(quotedPostID)
	if err != nil {
		return nil, err
	}
	if quoted.Removed() {
		return nil, ErrPostRemoved
	}

	post := models.Post{
		CategoryID: quoted.CategoryID,
		AuthorID:   quotingMemberID,
		Title:      "Re: " + quoted.Title,
		Content:    fmt.Sprintf("<blockquote>%s</blockquote>\n%s", quoted.Content, commentContent),
	}
	if err := s.db.Create(&post).Error; err != nil {
		return nil, err
	}
	return s.GetPost(post.ID)
}

// CanEdit is the read-only pre-flight probe for the edit predicate. It uses
// the exact same function the mutating paths use.
func (s *PostService) CanEdit(postID, actorID uint, isAdmin bool) (bool, error) {
	post, err := s.GetPost(postID)
	if err != nil {
		return false, err
	}
	return CanEditPost(post, actorID, isAdmin), nil
}

// CanDelete is the read-only pre-flight probe for the delete predicate.
func (s *PostService) CanDelete(postID, actorID uint, isAdmin bool) (bool, error) {
	post, err := s.GetPost(postID)
	if err != nil {
		return false, err
	}
	return CanDeletePost(post, actorID, isAdmin), nil
}

// CreateComment adds a reply to a visible post. Removed posts reject
// comments as a terminal-state conflict; hidden posts reject them as an
// invalid operation on a non-visible post.
func (s *PostService) CreateComment(postID, memberID uint, content string) (*models.Comment, error) {
	content = utils.Sanitize(content)
	if strings.TrimSpace(content) == "" {
		return nil, missingField("content")
	}
	if err := s.memberExists(memberID); err != nil {
		return nil, err
	}
	post, err := s.GetPost(postID)
	if err != nil {
		return nil, err
	}
	if post.Removed() {
		return nil, ErrPostRemoved
	}
	if post.Hidden {
		return nil, ErrInvalidTransition
	}

	comment := models.Comment{PostID: postID, MemberID: memberID, Content: content}
	if err := s.db.Create(&comment).Error; err != nil {
		return nil, err
	}
	if err := s.db.Preload("Member").First(&comment, comment.ID).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

// DeleteComment removes a comment and returns the id of the post it
// belonged to. Only the comment owner or an administrator may delete it.
func (s *PostService) DeleteComment(commentID, actorID uint, isAdmin bool) (uint, error) {
	var comment models.Comment
	if err := s.db.First(&comment, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrPostNotFound
		}
		return 0, err
	}
	if comment.MemberID != actorID && !isAdmin {
		return 0, ErrUnauthorized
	}
	if err := s.db.Delete(&comment).Error; err != nil {
		return 0, err
	}
	return comment.PostID, nil
}

// ListComments returns the comments of a post, oldest first.
func (s *PostService) ListComments(postID uint) ([]models.Comment, error) {
	if _, err := s.GetPost(postID); err != nil {
		return nil, err
	}
	var comments []models.Comment
	err := s.db.Where("post_id = ?", postID).
		Preload("Member").
		Order("created_at ASC").
		Find(&comments).Error
	return comments, err
}

// ModerationStats summarizes the lifecycle state of the whole board.
type ModerationStats struct {
	ActivePosts  int64 `json:"active_posts"`
	HiddenPosts  int64 `json:"hidden_posts"`
	RemovedPosts int64 `json:"removed_posts"`
	TotalReports int64 `json:"total_reports"`
}

// Stats counts posts per lifecycle state plus the total report volume.
func (s *PostService) Stats() (*ModerationStats, error) {
	var stats ModerationStats
	counts := []struct {
		dst  *int64
		cond string
	}{
		{&stats.ActivePosts, "removed_by IS NULL AND hidden = 0"},
		{&stats.HiddenPosts, "removed_by IS NULL AND hidden = 1"},
		{&stats.RemovedPosts, "removed_by IS NOT NULL"},
	}
	for _, c := range counts {
		if err := s.db.Model(&models.Post{}).Where(c.cond).Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	if err := s.db.Model(&models.PostReport{}).Count(&stats.TotalReports).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// memberExists checks the member collaborator for the given id.
func (s *PostService) memberExists(memberID uint) error {
	var member models.Member
	if err := s.db.First(&member, memberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMemberNotFound
		}
		return err
	}
	return nil
}

// classifyWriteMiss turns a zero-row conditional update into the precise
// failure: the post is gone, terminally removed, or lost a concurrent race.
// The read must go through the same handle that issued the update: inside a
// transaction the root handle would wait on the pooled connection the
// transaction holds.
func (s *PostService) classifyWriteMiss(db *gorm.DB, postID uint) error {
	var post models.Post
	if err := db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPostNotFound
		}
		return err
	}
	if post.Removed() {
		return ErrPostRemoved
	}
	return ErrConflict
}

// classifyTransitionMiss resolves a failed hide/restore: if the post is
// already in the requested visibility the transition did not apply to its
// state; otherwise a concurrent writer won the race.
func (s *PostService) classifyTransitionMiss(db *gorm.DB, postID uint, wantHidden bool) error {
	var post models.Post
	if err := db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPostNotFound
		}
		return err
	}
	if post.Removed() {
		return ErrPostRemoved
	}
	if post.Hidden == wantHidden {
		return ErrInvalidTransition
	}
	return ErrConflict
}
