package models

import "time"

// Audit tags recorded on posts when an administrator or the original
// poster performs a destructive or restricted action.
const (
	RemovedByOP    = "OP"
	RemovedByAdmin = "ADMIN"
	EditedByAdmin  = "ADMIN"
)

// PostState is the derived lifecycle state of a post.
type PostState string

const (
	PostStateActive  PostState = "active"
	PostStateHidden  PostState = "hidden"
	PostStateRemoved PostState = "removed"
)

// Post represents a forum post created by a member.
//
// A post is never physically deleted here: setting RemovedBy soft-deletes it
// and is terminal. Hidden is an independent visibility flag that only flips
// back to false through an explicit restore.
type Post struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	CategoryID      uint       `gorm:"index;not null" json:"category_id"`
	AuthorID        uint       `gorm:"index;not null" json:"author_id"`
	Title           string     `gorm:"size:255;not null" json:"title"`
	Content         string     `gorm:"type:text;not null" json:"content"`
	Sticky          bool       `gorm:"not null;default:false" json:"sticky"`
	ViewsCount      int        `gorm:"not null;default:0" json:"views_count"`
	LikesCount      int        `gorm:"not null;default:0" json:"likes_count"`
	ReportCount     int        `gorm:"not null;default:0" json:"report_count"`
	Hidden          bool       `gorm:"not null;default:false" json:"hidden"`
	Locked          bool       `gorm:"not null;default:false" json:"locked"`
	RemovedBy       *string    `gorm:"size:16" json:"removed_by"`
	EditedByTitle   *string    `gorm:"size:16" json:"edited_by_title"`
	EditedByContent *string    `gorm:"size:16" json:"edited_by_content"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Author          Member     `gorm:"foreignKey:AuthorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Files           []PostFile `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"files"`
	Comments        []Comment  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"comments,omitempty"`
}

// Removed reports whether the post has been soft-deleted. Removal is
// terminal: no edit, hide, restore, or report applies afterwards.
func (p *Post) Removed() bool {
	return p.RemovedBy != nil
}

// State derives the lifecycle state from the persisted flags. Removal wins
// over visibility so the two axes cannot produce an ambiguous answer.
func (p *Post) State() PostState {
	switch {
	case p.Removed():
		return PostStateRemoved
	case p.Hidden:
		return PostStateHidden
	default:
		return PostStateActive
	}
}

// TitleEditedByAdmin reports whether the last title edit was administrative.
func (p *Post) TitleEditedByAdmin() bool {
	return p.EditedByTitle != nil && *p.EditedByTitle == EditedByAdmin
}

// ContentEditedByAdmin reports whether the last content edit was administrative.
func (p *Post) ContentEditedByAdmin() bool {
	return p.EditedByContent != nil && *p.EditedByContent == EditedByAdmin
}

// PrimaryFileURL returns the first attached file URL, or "" when the post
// carries no attachments. Files are kept ordered by position.
func (p *Post) PrimaryFileURL() string {
	if len(p.Files) == 0 {
		return ""
	}
	return p.Files[0].URL
}
