package models

// PostFile stores one resolved attachment URL of a post. Position preserves
// the order the URLs were supplied in; position 0 is the primary file.
type PostFile struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	PostID   uint   `gorm:"index;not null" json:"post_id"`
	Position int    `gorm:"not null" json:"position"`
	URL      string `gorm:"size:512;not null" json:"url"`
}
