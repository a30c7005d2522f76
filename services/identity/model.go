package identity

import (
	"time"
)

type User struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Username  string    `gorm:"column:username;not null"`
	Email     string    `gorm:"column:email;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (User) TableName() string { return "users" }

type Project struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Slug      string    `gorm:"column:slug;uniqueIndex;not null"`
	OwnerID   string    `gorm:"column:owner_id;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Project) TableName() string { return "projects" }

// Membership links a user to a project. The composite primary key makes
// a duplicate insert a constraint conflict, which find-or-create treats
// as a benign no-op.
type Membership struct {
	ProjectID string    `gorm:"column:project_id;primaryKey"`
	UserID    string    `gorm:"column:user_id;primaryKey"`
	Role      string    `gorm:"column:role;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Membership) TableName() string { return "memberships" }

const RoleOwner = "owner"
