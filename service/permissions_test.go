package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quillboard/quillboard/models"
)

func strPtr(s string) *string { return &s }

func TestCanEditPost(t *testing.T) {
	tests := []struct {
		name    string
		post    *models.Post
		actorID uint
		isAdmin bool
		want    bool
	}{
		{"author edits own post", &models.Post{AuthorID: 7}, 7, false, true},
		{"stranger cannot edit", &models.Post{AuthorID: 7}, 8, false, false},
		{"admin edits any post", &models.Post{AuthorID: 7}, 99, true, true},
		{"author blocked on locked post", &models.Post{AuthorID: 7, Locked: true}, 7, false, false},
		{"admin edits locked post", &models.Post{AuthorID: 7, Locked: true}, 99, true, true},
		{"nobody edits removed post", &models.Post{AuthorID: 7, RemovedBy: strPtr(models.RemovedByOP)}, 7, false, false},
		{"admin cannot edit removed post", &models.Post{AuthorID: 7, RemovedBy: strPtr(models.RemovedByAdmin)}, 99, true, false},
		{"nil post", nil, 7, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanEditPost(tt.post, tt.actorID, tt.isAdmin))
		})
	}
}

func TestCanDeletePost(t *testing.T) {
	tests := []struct {
		name    string
		post    *models.Post
		actorID uint
		isAdmin bool
		want    bool
	}{
		{"author deletes own post", &models.Post{AuthorID: 7}, 7, false, true},
		{"stranger cannot delete", &models.Post{AuthorID: 7}, 8, false, false},
		{"admin deletes any post", &models.Post{AuthorID: 7}, 99, true, true},
		{"locked post still deletable by author", &models.Post{AuthorID: 7, Locked: true}, 7, false, true},
		{"removed post cannot be deleted again", &models.Post{AuthorID: 7, RemovedBy: strPtr(models.RemovedByOP)}, 7, false, false},
		{"nil post", nil, 7, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanDeletePost(tt.post, tt.actorID, tt.isAdmin))
		})
	}
}

func TestPostState(t *testing.T) {
	assert.Equal(t, models.PostStateActive, (&models.Post{}).State())
	assert.Equal(t, models.PostStateHidden, (&models.Post{Hidden: true}).State())
	assert.Equal(t, models.PostStateRemoved, (&models.Post{RemovedBy: strPtr(models.RemovedByOP)}).State())
	// removal wins over visibility
	assert.Equal(t, models.PostStateRemoved, (&models.Post{Hidden: true, RemovedBy: strPtr(models.RemovedByAdmin)}).State())
}
