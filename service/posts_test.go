package service

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quillboard/quillboard/models"
)

const testThreshold = 5

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Single connection keeps the shared in-memory database alive and
	// serializes writers, which SQLite requires anyway.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Member{},
		&models.Category{},
		&models.Post{},
		&models.PostFile{},
		&models.Comment{},
		&models.PostReport{},
	))
	return db
}

type fixture struct {
	db       *gorm.DB
	svc      *PostService
	author   models.Member
	admin    models.Member
	stranger models.Member
	category models.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)

	f := &fixture{
		db:       db,
		svc:      NewPostService(db, testThreshold),
		author:   models.Member{Username: "alice", Role: models.RoleMember},
		admin:    models.Member{Username: "mod", Role: models.RoleAdmin},
		stranger: models.Member{Username: "bob", Role: models.RoleMember},
		category: models.Category{Name: "general"},
	}
	require.NoError(t, db.Create(&f.author).Error)
	require.NoError(t, db.Create(&f.admin).Error)
	require.NoError(t, db.Create(&f.stranger).Error)
	require.NoError(t, db.Create(&f.category).Error)
	return f
}

func (f *fixture) newPost(t *testing.T) *models.Post {
	t.Helper()
	post, err := f.svc.CreatePost(f.author.ID, f.category.ID, "T", "C", nil)
	require.NoError(t, err)
	return post
}

func TestCreatePostValidation(t *testing.T) {
	f := newFixture(t)

	var verr *ValidationError

	_, err := f.svc.CreatePost(0, f.category.ID, "T", "C", nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "author_id", verr.Field)

	_, err = f.svc.CreatePost(f.author.ID, 0, "T", "C", nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "category_id", verr.Field)

	_, err = f.svc.CreatePost(f.author.ID, f.category.ID, "   ", "C", nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)

	_, err = f.svc.CreatePost(f.author.ID, f.category.ID, "T", "", nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "content", verr.Field)

	_, err = f.svc.CreatePost(f.author.ID, 9999, "T", "C", nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "category_id", verr.Field)

	_, err = f.svc.CreatePost(9999, f.category.ID, "T", "C", nil)
	require.ErrorIs(t, err, ErrMemberNotFound)

	// validation failures are side-effect free
	var count int64
	require.NoError(t, f.db.Model(&models.Post{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreatePostInitialState(t *testing.T) {
	f := newFixture(t)

	post, err := f.svc.CreatePost(f.author.ID, f.category.ID, "T", "C",
		[]string{"https://files.example/a.png", "https://files.example/b.png"})
	require.NoError(t, err)

	assert.Equal(t, models.PostStateActive, post.State())
	assert.False(t, post.Hidden)
	assert.False(t, post.Locked)
	assert.Zero(t, post.ViewsCount)
	assert.Zero(t, post.LikesCount)
	assert.Zero(t, post.ReportCount)
	assert.Nil(t, post.RemovedBy)
	assert.Nil(t, post.EditedByTitle)
	assert.Nil(t, post.EditedByContent)
	require.Len(t, post.Files, 2)
	assert.Equal(t, "https://files.example/a.png", post.PrimaryFileURL())
}

func TestIncrementViewCount(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.IncrementViewCount(post.ID))
	}

	got, err := f.svc.GetPost(post.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ViewsCount)

	require.ErrorIs(t, f.svc.IncrementViewCount(9999), ErrPostNotFound)
}

func TestLikePost(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)

	require.NoError(t, f.svc.LikePost(post.ID))
	require.NoError(t, f.svc.LikePost(post.ID))

	got, err := f.svc.GetPost(post.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.LikesCount)
}

func TestAdminEditLocksPost(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)

	updated, err := f.svc.EditTitle(post.ID, "New", f.admin.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.Locked)
	require.NotNil(t, updated.EditedByTitle)
	assert.Equal(t, models.EditedByAdmin, *updated.EditedByTitle)
	assert.True(t, updated.TitleEditedByAdmin())
	assert.Equal(t, "New", updated.Title)

	// the administrative edit permanently restricts the original author
	_, err = f.svc.EditTitle(post.ID, "Mine again", f.author.ID, false)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.svc.EditContent(post.ID, "Mine again", f.author.ID, false)
	require.ErrorIs(t, err, ErrUnauthorized)

	// admins still can edit the locked post
	updated, err = f.svc.EditContent(post.ID, "Moderated", f.admin.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.ContentEditedByAdmin())
	assert.Equal(t, "Moderated", updated.Content)
}

func TestAuthorEditKeepsPostUnlocked(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)

	updated, err := f.svc.EditTitle(post.ID, "Better title", f.author.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Locked)
	assert.Nil(t, updated.EditedByTitle)

	_, err = f.svc.EditTitle(post.ID, "x", f.stranger.ID, false)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestEditLockedConcurrentlyIsConflict(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)

	// Lock the post between the authorization read and the conditional
	// write, the way a concurrent admin edit would. The callback runs on
	// the update's own connection right before the statement executes.
	raced := false
	err := f.db.Callback().Update().Before("gorm:update").Register("lock_race", func(tx *gorm.DB) {
		if raced {
			return
		}
		raced = true
		_, execErr := tx.Statement.ConnPool.ExecContext(tx.Statement.Context,
			"UPDATE posts SET locked = ? WHERE id = ?", true, post.ID)
		assert.NoError(t, execErr)
	})
	require.NoError(t, err)

	_, err = f.svc.EditTitle(post.ID, "stale write", f.author.ID, false)
	require.ErrorIs(t, err, ErrConflict)

	got, err := f.svc.GetPost(post.ID)
	require.NoError(t, err)
	assert.True(t, got.Locked)
	assert.Equal(t, "T", got.Title, "the losing edit must not land")
}

func TestEditRemovedPostFails(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)
	require.NoError(t, f.svc.DeletePost(post.ID, f.author.ID, false))

	_, err := f.svc.EditTitle(post.ID, "x", f.author.ID, false)
	require.ErrorIs(t, err, ErrPostRemoved)
	_, err = f.svc.EditContent(post.ID, "x", f.admin.ID, true)
	require.ErrorIs(t, err, ErrPostRemoved)

	_, err = f.svc.EditTitle(9999, "x", f.author.ID, false)
	require.ErrorIs(t, err, ErrPostNotFound)
}

func TestDeletePostAuthorization(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)

	err := f.svc.DeletePost(post.ID, f.stranger.ID, false)
	require.ErrorIs(t, err, ErrUnauthorized)

	got, err := f.svc.GetPost(post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStateActive, got.State())

	require.NoError(t, f.svc.DeletePost(post.ID, f.author.ID, false))
	got, err = f.svc.GetPost(post.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RemovedBy)
	assert.Equal(t, models.RemovedByOP, *got.RemovedBy)

	// removal is terminal
	require.ErrorIs(t, f.svc.DeletePost(post.ID, f.author.ID, false), ErrPostRemoved)
	require.ErrorIs(t, f.svc.DeletePost(post.ID, f.admin.ID, true), ErrPostRemoved)
}

func TestAdminDeleteRecordsAdminTag(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)

	require.NoError(t, f.svc.DeletePost(post.ID, f.admin.ID, true))
	got, err := f.svc.GetPost(post.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RemovedBy)
	assert.Equal(t, models.RemovedByAdmin, *got.RemovedBy)
}

func TestHideAndRestore(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)

	require.NoError(t, f.svc.HidePost(post.ID))
	got, err := f.svc.GetPost(post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStateHidden, got.State())

	// hiding a hidden post does not apply
	require.ErrorIs(t, f.svc.HidePost(post.ID), ErrInvalidTransition)

	require.NoError(t, f.svc.RestorePost(post.ID))
	got, err = f.svc.GetPost(post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStateActive, got.State())

	// restoring an active post does not apply
	require.ErrorIs(t, f.svc.RestorePost(post.ID), ErrInvalidTransition)

	require.ErrorIs(t, f.svc.HidePost(9999), ErrPostNotFound)
}

func TestHideRestoreRemovedPostFails(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)
	require.NoError(t, f.svc.DeletePost(post.ID, f.author.ID, false))

	require.ErrorIs(t, f.svc.HidePost(post.ID), ErrPostRemoved)
	require.ErrorIs(t, f.svc.RestorePost(post.ID), ErrPostRemoved)
}

func TestReportThresholdAutoHides(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)

	for i := 1; i < testThreshold; i++ {
		updated, err := f.svc.ReportPost(post.ID, f.stranger.ID, "spam")
		require.NoError(t, err)
		assert.Equal(t, i, updated.ReportCount)
		assert.False(t, updated.Hidden, "report %d must not hide the post", i)
	}

	// the fifth report flips hidden in the same call
	updated, err := f.svc.ReportPost(post.ID, f.stranger.ID, "spam")
	require.NoError(t, err)
	assert.Equal(t, testThreshold, updated.ReportCount)
	assert.True(t, updated.Hidden)

	var audits int64
	require.NoError(t, f.db.Model(&models.PostReport{}).Where("post_id = ?", post.ID).Count(&audits).Error)
	assert.EqualValues(t, testThreshold, audits)

	var ref models.PostReport
	require.NoError(t, f.db.Where("post_id = ?", post.ID).First(&ref).Error)
	assert.Len(t, ref.Reference, 36)
}

func TestRestoreDoesNotResetReportCount(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)

	for i := 0; i < testThreshold; i++ {
		_, err := f.svc.ReportPost(post.ID, f.stranger.ID, "spam")
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.RestorePost(post.ID))

	got, err := f.svc.GetPost(post.ID)
	require.NoError(t, err)
	assert.False(t, got.Hidden)
	assert.Equal(t, testThreshold, got.ReportCount)

	// one more report re-triggers the hide without a fresh run-up
	updated, err := f.svc.ReportPost(post.ID, f.stranger.ID, "still spam")
	require.NoError(t, err)
	assert.True(t, updated.Hidden)
	assert.Equal(t, testThreshold+1, updated.ReportCount)
}

func TestReportFailures(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)

	_, err := f.svc.ReportPost(9999, f.stranger.ID, "spam")
	require.ErrorIs(t, err, ErrPostNotFound)

	_, err = f.svc.ReportPost(post.ID, 9999, "spam")
	require.ErrorIs(t, err, ErrMemberNotFound)

	require.NoError(t, f.svc.DeletePost(post.ID, f.author.ID, false))
	_, err = f.svc.ReportPost(post.ID, f.stranger.ID, "spam")
	require.ErrorIs(t, err, ErrPostRemoved)

	got, err := f.svc.GetPost(post.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ReportCount)
}

func TestConcurrentReportsLoseNoUpdates(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)

	const reporters = 8
	var wg sync.WaitGroup
	wg.Add(reporters)
	for i := 0; i < reporters; i++ {
		go func() {
			defer wg.Done()
			_, err := f.svc.ReportPost(post.ID, f.stranger.ID, "spam")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.svc.GetPost(post.ID)
	require.NoError(t, err)
	assert.Equal(t, reporters, got.ReportCount)
	assert.True(t, got.Hidden)
}

func TestQuotePost(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)
	require.NoError(t, f.svc.IncrementViewCount(post.ID))

	quote, err := f.svc.QuotePost(f.stranger.ID, post.ID, "good point")
	require.NoError(t, err)
	assert.Equal(t, "Re: T", quote.Title)
	assert.Contains(t, quote.Content, "good point")
	assert.Contains(t, quote.Content, "C")
	assert.Equal(t, f.stranger.ID, quote.AuthorID)
	assert.Equal(t, post.CategoryID, quote.CategoryID)

	// the quoted post is untouched
	orig, err := f.svc.GetPost(post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, orig.ViewsCount)
	assert.Equal(t, "T", orig.Title)

	require.NoError(t, f.svc.DeletePost(post.ID, f.author.ID, false))
	_, err = f.svc.QuotePost(f.stranger.ID, post.ID, "too late")
	require.ErrorIs(t, err, ErrPostRemoved)
}

func TestPermissionProbesMatchMutations(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)

	ok, err := f.svc.CanEdit(post.ID, f.author.ID, false)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.svc.CanEdit(post.ID, f.stranger.ID, false)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.EditTitle(post.ID, "locking", f.admin.ID, true)
	require.NoError(t, err)

	ok, err = f.svc.CanEdit(post.ID, f.author.ID, false)
	require.NoError(t, err)
	assert.False(t, ok, "probe must agree with the rejected mutation on a locked post")
	ok, err = f.svc.CanEdit(post.ID, f.admin.ID, true)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.CanDelete(post.ID, f.author.ID, false)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.svc.DeletePost(post.ID, f.author.ID, false))
	ok, err = f.svc.CanDelete(post.ID, f.author.ID, false)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.CanEdit(9999, f.author.ID, false)
	require.ErrorIs(t, err, ErrPostNotFound)
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t)

	comment, err := f.svc.CreateComment(post.ID, f.stranger.ID, "first!")
	require.NoError(t, err)
	assert.Equal(t, "first!", comment.Content)
	assert.Equal(t, f.stranger.ID, comment.MemberID)

	_, err = f.svc.DeleteComment(comment.ID, f.author.ID, false)
	require.ErrorIs(t, err, ErrUnauthorized)
	postID, err := f.svc.DeleteComment(comment.ID, f.admin.ID, true)
	require.NoError(t, err)
	assert.Equal(t, post.ID, postID)

	require.NoError(t, f.svc.HidePost(post.ID))
	_, err = f.svc.CreateComment(post.ID, f.stranger.ID, "hello?")
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, f.svc.RestorePost(post.ID))
	require.NoError(t, f.svc.DeletePost(post.ID, f.author.ID, false))
	_, err = f.svc.CreateComment(post.ID, f.stranger.ID, "gone")
	require.ErrorIs(t, err, ErrPostRemoved)
}

func TestListPostsByCategory(t *testing.T) {
	f := newFixture(t)

	var ids []uint
	for i := 0; i < 3; i++ {
		post, err := f.svc.CreatePost(f.author.ID, f.category.ID, fmt.Sprintf("post %d", i), "C", nil)
		require.NoError(t, err)
		ids = append(ids, post.ID)
	}

	require.NoError(t, f.svc.HidePost(ids[0]))
	require.NoError(t, f.svc.DeletePost(ids[1], f.author.ID, false))

	posts, total, err := f.svc.ListPostsByCategory(f.category.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, posts, 1)
	assert.Equal(t, ids[2], posts[0].ID)

	// pages are 1-based
	posts, total, err = f.svc.ListPostsByCategory(f.category.ID, 2, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Empty(t, posts)
}

func TestStats(t *testing.T) {
	f := newFixture(t)

	active := f.newPost(t)
	hidden := f.newPost(t)
	removed := f.newPost(t)

	require.NoError(t, f.svc.HidePost(hidden.ID))
	require.NoError(t, f.svc.DeletePost(removed.ID, f.admin.ID, true))
	_, err := f.svc.ReportPost(active.ID, f.stranger.ID, "spam")
	require.NoError(t, err)

	stats, err := f.svc.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.ActivePosts)
	assert.EqualValues(t, 1, stats.HiddenPosts)
	assert.EqualValues(t, 1, stats.RemovedPosts)
	assert.EqualValues(t, 1, stats.TotalReports)
}
