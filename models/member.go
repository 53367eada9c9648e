package models

import (
	"time"

	"gorm.io/gorm"
)

// Member roles. Admins may moderate any post; regular members only their own.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Member represents a forum member. Passwords are stored as bcrypt hashes only.
type Member struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email        string         `gorm:"size:255" json:"email"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	Role         string         `gorm:"size:16;not null;default:member" json:"role"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Posts        []Post         `gorm:"foreignKey:AuthorID" json:"-"`
	Comments     []Comment      `json:"-"`
}

// IsAdmin reports whether the member carries the administrator role.
func (m *Member) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (m *Member) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.Role == "" {
		m.Role = RoleMember
	}
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (m *Member) BeforeUpdate(tx *gorm.DB) error {
	m.UpdatedAt = time.Now()
	return nil
}
