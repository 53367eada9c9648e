package service

import "github.com/quillboard/quillboard/models"

// CanEditPost decides whether the actor may edit the post's title or
// content. Removed posts are never editable. A locked post only yields to
// administrators, regardless of authorship; otherwise the author or an
// administrator may edit.
//
// The predicate is pure: the same function backs both the pre-flight
// can-edit probe and the internal check before every edit, so the two can
// never drift apart.
func CanEditPost(post *models.Post, actorID uint, isAdmin bool) bool {
	if post == nil || post.Removed() {
		return false
	}
	if post.Locked {
		return isAdmin
	}
	return isAdmin || post.AuthorID == actorID
}

// CanDeletePost decides whether the actor may soft-delete the post. The
// author or an administrator may delete, but an already removed post cannot
// be deleted again.
func CanDeletePost(post *models.Post, actorID uint, isAdmin bool) bool {
	if post == nil || post.Removed() {
		return false
	}
	return isAdmin || post.AuthorID == actorID
}
