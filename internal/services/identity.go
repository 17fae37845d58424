package services

import (
	"context"
	"errors"

	"github.com/giftring/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IdentityService answers parent/child delegation questions and owns the
// lifecycle of managed accounts. All lookups are pure reads; an absent
// parent yields an empty result, never an error.
type IdentityService struct {
	DB *gorm.DB
}

func NewIdentityService(db *gorm.DB) *IdentityService {
	return &IdentityService{DB: db}
}

func (s *IdentityService) IsParentOf(actor *models.User, target *models.User) bool {
	return target.ParentID != nil && *target.ParentID == actor.ID
}

// ResponsibleParty returns the user that answers for the given account:
// the parent for a managed account, the user itself otherwise.
func (s *IdentityService) ResponsibleParty(ctx context.Context, user *models.User) (*models.User, error) {
	if !user.IsManaged() || user.ParentID == nil {
		return user, nil
	}

	var parent models.User
	err := s.DB.WithContext(ctx).First(&parent, "id = ?", *user.ParentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return user, nil
	}
	if err != nil {
		return nil, err
	}
	return &parent, nil
}

func (s *IdentityService) ChildrenOf(ctx context.Context, parentID uuid.UUID) ([]models.User, error) {
	var children []models.User
	err := s.DB.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("created_at ASC").
		Find(&children).Error
	if err != nil {
		return nil, err
	}
	return children, nil
}

// ActingIDs returns the set of user ids the actor may act as: the actor
// itself plus all of its managed children.
func (s *IdentityService) ActingIDs(ctx context.Context, actor *models.User) ([]uuid.UUID, error) {
	ids := []uuid.UUID{actor.ID}

	var childIDs []uuid.UUID
	err := s.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("parent_id = ?", actor.ID).
		Pluck("id", &childIDs).Error
	if err != nil {
		return nil, err
	}

	return append(ids, childIDs...), nil
}

// CreateChild creates a managed account owned by the actor. Managed
// accounts carry no email and no credentials.
func (s *IdentityService) CreateChild(ctx context.Context, actor *models.User, name, locale string) (*models.User, error) {
	if name == "" {
		return nil, NewValidationError("name", "name is required")
	}
	if locale == "" {
		locale = actor.Locale
	}

	child := models.User{
		Name:        name,
		AccountType: models.AccountTypeManaged,
		ParentID:    &actor.ID,
		Locale:      locale,
	}
	if err := s.DB.WithContext(ctx).Create(&child).Error; err != nil {
		return nil, err
	}
	return &child, nil
}

// DeleteUser removes a user and everything it owns: managed children
// (recursively, with their own memberships, gifts and invitations), own
// memberships, created gift ideas with recipient rows, and created
// invitations. The cascade runs in one transaction.
func (s *IdentityService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var childIDs []uuid.UUID
		if err := tx.Model(&models.User{}).Where("parent_id = ?", userID).Pluck("id", &childIDs).Error; err != nil {
			return err
		}

		targets := append([]uuid.UUID{userID}, childIDs...)

		var giftIDs []uuid.UUID
		if err := tx.Model(&models.GiftIdea{}).Where("created_by_id IN ?", targets).Pluck("id", &giftIDs).Error; err != nil {
			return err
		}
		if len(giftIDs) > 0 {
			if err := tx.Where("gift_idea_id IN ?", giftIDs).Delete(&models.GiftRecipient{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", giftIDs).Delete(&models.GiftIdea{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("user_id IN ?", targets).Delete(&models.GiftRecipient{}).Error; err != nil {
			return err
		}
		if err := tx.Where("created_by_id IN ?", targets).Delete(&models.Invitation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id IN ?", targets).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id IN ? OR actor_id IN ?", targets, targets).Delete(&models.Activity{}).Error; err != nil {
			return err
		}

		return tx.Where("id IN ?", targets).Delete(&models.User{}).Error
	})
}
