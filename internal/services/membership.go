package services

import (
	"context"
	"errors"

	"github.com/giftring/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MembershipService is the single mutation boundary for group memberships.
// The last-admin guard lives here, not in callers: no role downgrade or
// removal may leave a group with zero admins while members remain.
type MembershipService struct {
	DB *gorm.DB
}

func NewMembershipService(db *gorm.DB) *MembershipService {
	return &MembershipService{DB: db}
}

// AddUser upserts a membership: re-adding an existing member updates its
// role and returns the same row. Demoting the sole admin trips the guard.
func (s *MembershipService) AddUser(ctx context.Context, groupID, userID uuid.UUID, role models.GroupMembershipRole) (*models.GroupMembership, error) {
	if !models.ValidMembershipRole(role) {
		return nil, NewValidationError("role", "role must be member or admin")
	}

	var membership models.GroupMembership
	err := s.DB.WithContext(ctx).First(&membership, "group_id = ? AND user_id = ?", groupID, userID).Error
	if err == nil {
		if membership.Role == role {
			return &membership, nil
		}
		if membership.Role == models.GroupRoleAdmin && role != models.GroupRoleAdmin {
			if err := s.ensureNotSoleAdminDemotion(ctx, groupID); err != nil {
				return nil, err
			}
		}
		if err := s.DB.WithContext(ctx).Model(&membership).Update("role", role).Error; err != nil {
			return nil, err
		}
		membership.Role = role
		return &membership, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	membership = models.GroupMembership{GroupID: groupID, UserID: userID, Role: role}
	if err := s.DB.WithContext(ctx).Create(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race against a concurrent join; fall back to the
			// upsert path on the row that won.
			return s.AddUser(ctx, groupID, userID, role)
		}
		return nil, err
	}
	return &membership, nil
}

// JoinGroup creates a membership without upsert semantics, as used by the
// invitation acceptance flow. A pre-existing membership — including one
// created concurrently — is reported as created=false, never as a failure.
func (s *MembershipService) JoinGroup(ctx context.Context, groupID, userID uuid.UUID, role models.GroupMembershipRole) (*models.GroupMembership, bool, error) {
	membership := models.GroupMembership{GroupID: groupID, UserID: userID, Role: role}
	err := s.DB.WithContext(ctx).Create(&membership).Error
	if err == nil {
		return &membership, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, err
	}

	var existing models.GroupMembership
	if err := s.DB.WithContext(ctx).First(&existing, "group_id = ? AND user_id = ?", groupID, userID).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

// RemoveMembership deletes a membership. Removing the sole admin fails
// with ErrLastAdmin while other members remain; the final member may
// always leave.
func (s *MembershipService) RemoveMembership(ctx context.Context, groupID, userID uuid.UUID) error {
	var membership models.GroupMembership
	err := s.DB.WithContext(ctx).First(&membership, "group_id = ? AND user_id = ?", groupID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if membership.Role == models.GroupRoleAdmin {
		admins, err := s.AdminCount(ctx, groupID)
		if err != nil {
			return err
		}
		members, err := s.MembersCount(ctx, groupID)
		if err != nil {
			return err
		}
		if admins == 1 && members > 1 {
			return ErrLastAdmin
		}
	}

	return s.DB.WithContext(ctx).Delete(&models.GroupMembership{}, "id = ?", membership.ID).Error
}

// UpdateRole changes a member's role, refusing to demote the sole admin.
func (s *MembershipService) UpdateRole(ctx context.Context, groupID, userID uuid.UUID, role models.GroupMembershipRole) (*models.GroupMembership, error) {
	if !models.ValidMembershipRole(role) {
		return nil, NewValidationError("role", "role must be member or admin")
	}

	var membership models.GroupMembership
	err := s.DB.WithContext(ctx).First(&membership, "group_id = ? AND user_id = ?", groupID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if membership.Role == models.GroupRoleAdmin && role != models.GroupRoleAdmin {
		if err := s.ensureNotSoleAdminDemotion(ctx, groupID); err != nil {
			return nil, err
		}
	}

	if err := s.DB.WithContext(ctx).Model(&membership).Update("role", role).Error; err != nil {
		return nil, err
	}
	membership.Role = role
	return &membership, nil
}

func (s *MembershipService) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *MembershipService) AdminUsers(ctx context.Context, groupID uuid.UUID) ([]models.User, error) {
	var users []models.User
	err := s.DB.WithContext(ctx).
		Model(&models.User{}).
		Joins("JOIN group_memberships ON group_memberships.user_id = users.id").
		Where("group_memberships.group_id = ? AND group_memberships.role = ?", groupID, models.GroupRoleAdmin).
		Order("group_memberships.created_at ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *MembershipService) AdminCount(ctx context.Context, groupID uuid.UUID) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("group_id = ? AND role = ?", groupID, models.GroupRoleAdmin).
		Count(&count).Error
	return count, err
}

func (s *MembershipService) MembersCount(ctx context.Context, groupID uuid.UUID) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("group_id = ?", groupID).
		Count(&count).Error
	return count, err
}

// A demoted admin stays on as a member, so demotion of the sole admin
// always leaves members behind without one.
func (s *MembershipService) ensureNotSoleAdminDemotion(ctx context.Context, groupID uuid.UUID) error {
	admins, err := s.AdminCount(ctx, groupID)
	if err != nil {
		return err
	}
	if admins == 1 {
		return ErrLastAdmin
	}
	return nil
}
