package services

import (
	"context"

	"github.com/giftring/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VisibilityService is the authorization core. For every entity type it
// offers a bulk scope query and per-instance predicates derived from the
// same membership relations, so the set a scope returns always equals the
// set of instances whose show predicate holds.
//
// The acting principal is the authenticated user plus its managed
// children; reachability is resolved through group-id set joins, never
// through per-user loops.
type VisibilityService struct {
	DB       *gorm.DB
	Identity *IdentityService
}

func NewVisibilityService(db *gorm.DB, identity *IdentityService) *VisibilityService {
	return &VisibilityService{DB: db, Identity: identity}
}

// CommonGroupIDs returns ids of groups in which both users hold a
// membership.
func (s *VisibilityService) CommonGroupIDs(ctx context.Context, a, b uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Distinct().
		Joins("JOIN group_memberships other ON other.group_id = group_memberships.group_id AND other.user_id = ?", b).
		Where("group_memberships.user_id = ?", a).
		Pluck("group_memberships.group_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *VisibilityService) SharesGroup(ctx context.Context, a, b uuid.UUID) (bool, error) {
	ids, err := s.CommonGroupIDs(ctx, a, b)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// ReachableUserIDs returns every user id the actor can see: the actor
// itself, its managed children, and every user sharing a group with the
// actor or with one of its children.
func (s *VisibilityService) ReachableUserIDs(ctx context.Context, actor *models.User) ([]uuid.UUID, error) {
	actingIDs, err := s.Identity.ActingIDs(ctx, actor)
	if err != nil {
		return nil, err
	}

	var peerIDs []uuid.UUID
	err = s.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Distinct().
		Joins("JOIN group_memberships acting ON acting.group_id = group_memberships.group_id AND acting.user_id IN ?", actingIDs).
		Pluck("group_memberships.user_id", &peerIDs).Error
	if err != nil {
		return nil, err
	}

	return mergeIDs(actingIDs, peerIDs), nil
}

// actingGroupIDs returns ids of every group in which the actor or one of
// its children holds a membership.
func (s *VisibilityService) actingGroupIDs(ctx context.Context, actor *models.User) ([]uuid.UUID, error) {
	actingIDs, err := s.Identity.ActingIDs(ctx, actor)
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	err = s.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Distinct().
		Where("user_id IN ?", actingIDs).
		Pluck("group_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// --- Group ---

func (s *VisibilityService) GroupScope(ctx context.Context, actor *models.User) (*gorm.DB, error) {
	groupIDs, err := s.actingGroupIDs(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.DB.WithContext(ctx).
		Model(&models.Group{}).
		Where("groups.id IN ?", emptySafe(groupIDs)), nil
}

func (s *VisibilityService) CanShowGroup(ctx context.Context, actor *models.User, groupID uuid.UUID) (bool, error) {
	actingIDs, err := s.Identity.ActingIDs(ctx, actor)
	if err != nil {
		return false, err
	}
	var count int64
	err = s.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id IN ?", groupID, actingIDs).
		Count(&count).Error
	return count > 0, err
}

// CanManageGroup reports whether the actor or one of its children is an
// admin of the group. It gates group update/destroy and invitation
// management.
func (s *VisibilityService) CanManageGroup(ctx context.Context, actor *models.User, groupID uuid.UUID) (bool, error) {
	actingIDs, err := s.Identity.ActingIDs(ctx, actor)
	if err != nil {
		return false, err
	}
	var count int64
	err = s.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id IN ? AND role = ?", groupID, actingIDs, models.GroupRoleAdmin).
		Count(&count).Error
	return count > 0, err
}

// --- User ---

func (s *VisibilityService) UserScope(ctx context.Context, actor *models.User) (*gorm.DB, error) {
	reach, err := s.ReachableUserIDs(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("users.id IN ?", emptySafe(reach)), nil
}

func (s *VisibilityService) CanShowUser(ctx context.Context, actor *models.User, targetID uuid.UUID) (bool, error) {
	reach, err := s.ReachableUserIDs(ctx, actor)
	if err != nil {
		return false, err
	}
	return containsID(reach, targetID), nil
}

// --- Membership ---

func (s *VisibilityService) MembershipScope(ctx context.Context, actor *models.User) (*gorm.DB, error) {
	groupIDs, err := s.actingGroupIDs(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("group_memberships.group_id IN ?", emptySafe(groupIDs)), nil
}

func (s *VisibilityService) CanShowMembership(ctx context.Context, actor *models.User, m *models.GroupMembership) (bool, error) {
	return s.CanShowGroup(ctx, actor, m.GroupID)
}

// CanManageMembership allows group admins, and always the membership's own
// user: self-removal needs no admin role.
func (s *VisibilityService) CanManageMembership(ctx context.Context, actor *models.User, m *models.GroupMembership) (bool, error) {
	actingIDs, err := s.Identity.ActingIDs(ctx, actor)
	if err != nil {
		return false, err
	}
	if containsID(actingIDs, m.UserID) {
		return true, nil
	}
	return s.CanManageGroup(ctx, actor, m.GroupID)
}

// --- Invitation ---

func (s *VisibilityService) InvitationScope(ctx context.Context, actor *models.User) (*gorm.DB, error) {
	groupIDs, err := s.actingGroupIDs(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.DB.WithContext(ctx).
		Model(&models.Invitation{}).
		Where("invitations.group_id IN ?", emptySafe(groupIDs)), nil
}

func (s *VisibilityService) CanShowInvitation(ctx context.Context, actor *models.User, inv *models.Invitation) (bool, error) {
	return s.CanShowGroup(ctx, actor, inv.GroupID)
}

func (s *VisibilityService) CanManageInvitation(ctx context.Context, actor *models.User, inv *models.Invitation) (bool, error) {
	actingIDs, err := s.Identity.ActingIDs(ctx, actor)
	if err != nil {
		return false, err
	}
	if containsID(actingIDs, inv.CreatedByID) {
		return true, nil
	}
	return s.CanManageGroup(ctx, actor, inv.GroupID)
}

// --- GiftIdea ---

// GiftIdeaScope returns all gift ideas visible to the actor: ideas created
// by the actor or its children, plus ideas with a reachable recipient —
// excluding, while the idea is not yet bought, ideas that target the actor
// itself. Recipients must not see their own pending surprises.
func (s *VisibilityService) GiftIdeaScope(ctx context.Context, actor *models.User) (*gorm.DB, error) {
	actingIDs, err := s.Identity.ActingIDs(ctx, actor)
	if err != nil {
		return nil, err
	}
	reach, err := s.ReachableUserIDs(ctx, actor)
	if err != nil {
		return nil, err
	}

	db := s.DB.WithContext(ctx)
	return db.
		Model(&models.GiftIdea{}).
		Distinct("gift_ideas.*").
		Joins("LEFT JOIN gift_recipients ON gift_recipients.gift_idea_id = gift_ideas.id").
		Where(
			db.Where("gift_ideas.created_by_id IN ?", actingIDs).
				Or("gift_recipients.user_id IN ? AND (gift_ideas.status = ? OR NOT EXISTS (SELECT 1 FROM gift_recipients blocked WHERE blocked.gift_idea_id = gift_ideas.id AND blocked.user_id = ?))",
					emptySafe(reach), models.GiftStatusBought, actor.ID),
		), nil
}

// CanShowGift evaluates the recipient-blind rule for a single gift idea:
// the creator always sees it; a recipient sees it only once bought; anyone
// else sees it when some recipient is reachable.
func (s *VisibilityService) CanShowGift(ctx context.Context, actor *models.User, gift *models.GiftIdea) (bool, error) {
	actingIDs, err := s.Identity.ActingIDs(ctx, actor)
	if err != nil {
		return false, err
	}
	if containsID(actingIDs, gift.CreatedByID) {
		return true, nil
	}

	recipientIDs, err := s.giftRecipientIDs(ctx, gift.ID)
	if err != nil {
		return false, err
	}

	if containsID(recipientIDs, actor.ID) {
		return gift.Status == models.GiftStatusBought, nil
	}

	reach, err := s.ReachableUserIDs(ctx, actor)
	if err != nil {
		return false, err
	}
	for _, r := range recipientIDs {
		if containsID(reach, r) {
			return true, nil
		}
	}
	return false, nil
}

func (s *VisibilityService) CanUpdateGift(ctx context.Context, actor *models.User, gift *models.GiftIdea) (bool, error) {
	actingIDs, err := s.Identity.ActingIDs(ctx, actor)
	if err != nil {
		return false, err
	}
	return containsID(actingIDs, gift.CreatedByID), nil
}

func (s *VisibilityService) giftRecipientIDs(ctx context.Context, giftID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.DB.WithContext(ctx).
		Model(&models.GiftRecipient{}).
		Where("gift_idea_id = ?", giftID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func mergeIDs(a, b []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(a)+len(b))
	merged := make([]uuid.UUID, 0, len(a)+len(b))
	for _, id := range a {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	return merged
}

// emptySafe keeps IN clauses well-formed when a set resolves empty.
func emptySafe(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return []uuid.UUID{uuid.Nil}
	}
	return ids
}
