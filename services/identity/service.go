// Package identity resolves the owning user and project for keys held in
// the direct store. Both operations are idempotent find-or-create: the
// remote API variant never needs them because the server infers ownership
// from the caller's credential.
package identity

import (
	"context"
	"errors"

	"github.com/memorybank/keyctl/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// slugFallback names projects whose titles slugify to nothing.
const slugFallback = "project"

// Resolver is what the operator-facing layer needs from identity
// resolution; the store backend satisfies it by delegation.
type Resolver interface {
	FindOrCreateUser(ctx context.Context, username, email string) (string, error)
	FindOrCreateProject(ctx context.Context, name, ownerID string) (string, error)
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	log  *zap.Logger
}

func NewService(db *gorm.DB, node *snowflake.Node, log *zap.Logger) *Service {
	return &Service{db: db, node: node, log: log}
}

// FindOrCreateUser looks a user up by email and creates one when absent.
// Idempotent on email: two calls with the same email return the same id
// and leave exactly one row behind.
func (s *Service) FindOrCreateUser(ctx context.Context, username, email string) (string, error) {
	if email == "" {
		return "", errutil.Validation("email is required to resolve a user")
	}

	var existing User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", errutil.Backend("failed to look up user", errutil.WithErr(err))
	}

	user := User{
		ID:       s.node.Generate().String(),
		Username: username,
		Email:    email,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return "", errutil.Backend("failed to create user", errutil.WithErr(err))
	}

	s.log.Info("user created", zap.String("user_id", user.ID))
	return user.ID, nil
}

// FindOrCreateProject looks a project up by (name, owner) and creates it
// when absent, deriving a unique slug from the name. The project and its
// owner membership are inserted in one transaction; a pre-existing
// membership is left alone.
func (s *Service) FindOrCreateProject(ctx context.Context, name, ownerID string) (string, error) {
	if name == "" || ownerID == "" {
		return "", errutil.Validation("project name and owner are required")
	}

	var existing Project
	err := s.db.WithContext(ctx).Where("name = ? AND owner_id = ?", name, ownerID).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", errutil.Backend("failed to look up project", errutil.WithErr(err))
	}

	projectID := s.node.Generate().String()

	slugName := slug.Make(name)
	if slugName == "" {
		slugName = slugFallback
	}

	var collisions int64
	if err := s.db.WithContext(ctx).Model(&Project{}).Where("slug = ?", slugName).Count(&collisions).Error; err != nil {
		return "", errutil.Backend("failed to check project slug", errutil.WithErr(err))
	}
	if collisions > 0 {
		slugName = slugName + "-" + shortSuffix(projectID)
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project := Project{
			ID:      projectID,
			Name:    name,
			Slug:    slugName,
			OwnerID: ownerID,
		}
		if err := tx.Create(&project).Error; err != nil {
			return err
		}

		membership := Membership{
			ProjectID: projectID,
			UserID:    ownerID,
			Role:      RoleOwner,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&membership).Error
	}); err != nil {
		return "", errutil.Backend("failed to create project", errutil.WithErr(err))
	}

	s.log.Info("project created",
		zap.String("project_id", projectID),
		zap.String("slug", slugName),
	)
	return projectID, nil
}

// shortSuffix disambiguates a colliding slug with the tail of the new
// project's own id.
func shortSuffix(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[len(id)-6:]
}
