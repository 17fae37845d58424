package services

import (
	"context"
	"errors"

	"github.com/giftring/backend/internal/models"
	"github.com/giftring/backend/pkg/logger"
	"github.com/giftring/backend/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GroupService struct {
	DB *gorm.DB
}

func NewGroupService(db *gorm.DB) *GroupService {
	return &GroupService{DB: db}
}

// CreateGroup creates the group, its creator's admin membership, and one
// initial invitation so the group is shareable immediately. A missing
// admin at invitation time skips the invitation with a log line; it never
// fails group creation.
func (s *GroupService) CreateGroup(ctx context.Context, actor *models.User, name string, description *string) (*models.Group, error) {
	if name == "" {
		return nil, NewValidationError("name", "name is required")
	}

	group := models.Group{Name: name, Description: description}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}

		membership := models.GroupMembership{
			UserID:  actor.ID,
			GroupID: group.ID,
			Role:    models.GroupRoleAdmin,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}

		var admin models.GroupMembership
		err := tx.Where("group_id = ? AND role = ?", group.ID, models.GroupRoleAdmin).
			Order("created_at ASC").
			First(&admin).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("group_initial_invitation_skipped", map[string]interface{}{
				"group_id": group.ID.String(),
				"reason":   "no admin membership",
			})
			return nil
		}
		if err != nil {
			return err
		}

		token, err := utils.GenerateInviteToken()
		if err != nil {
			return err
		}
		invitation := models.Invitation{
			Token:       token,
			GroupID:     group.ID,
			CreatedByID: admin.UserID,
			Role:        models.GroupRoleMember,
		}
		return tx.Create(&invitation).Error
	})
	if err != nil {
		return nil, err
	}

	return &group, nil
}

// DeleteGroup destroys the group with its memberships and invitations.
func (s *GroupService) DeleteGroup(ctx context.Context, groupID uuid.UUID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.Invitation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.Activity{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, "id = ?", groupID).Error
	})
}

func (s *GroupService) GetGroup(ctx context.Context, groupID uuid.UUID) (*models.Group, error) {
	var group models.Group
	err := s.DB.WithContext(ctx).First(&group, "id = ?", groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}
