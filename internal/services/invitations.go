package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/giftring/backend/internal/models"
	"github.com/giftring/backend/pkg/logger"
	"github.com/giftring/backend/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const tokenRetries = 3

// InvitationService mints invitation tokens and runs the acceptance
// workflow. Acceptance is deliberately multi-use: membership uniqueness is
// the only dedup, so a parent can accept the same token again later for a
// newly added child.
type InvitationService struct {
	DB         *gorm.DB
	Identity   *IdentityService
	Membership *MembershipService
	Notifier   *Notifier
}

func NewInvitationService(db *gorm.DB, identity *IdentityService, membership *MembershipService, notifier *Notifier) *InvitationService {
	return &InvitationService{DB: db, Identity: identity, Membership: membership, Notifier: notifier}
}

// CreateInvitation mints a new shareable token for the group.
func (s *InvitationService) CreateInvitation(ctx context.Context, actor *models.User, groupID uuid.UUID, role models.GroupMembershipRole) (*models.Invitation, error) {
	if !models.ValidMembershipRole(role) {
		return nil, NewValidationError("role", "role must be member or admin")
	}

	invitation := models.Invitation{
		GroupID:     groupID,
		CreatedByID: actor.ID,
		Role:        role,
	}

	// Token collisions are vanishingly rare; retry a couple of times on
	// the unique index rather than pre-checking.
	var err error
	for attempt := 0; attempt < tokenRetries; attempt++ {
		invitation.Token, err = utils.GenerateInviteToken()
		if err != nil {
			return nil, err
		}
		err = s.DB.WithContext(ctx).Create(&invitation).Error
		if err == nil {
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	s.notifyAdmins(ctx, invitation.GroupID, actor.ID, models.ActivityInvitationCreated,
		fmt.Sprintf("%s created an invitation", actor.Name))

	return &invitation, nil
}

// GetByToken resolves an invitation from its shareable token.
func (s *InvitationService) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	var invitation models.Invitation
	err := s.DB.WithContext(ctx).Preload("Group").First(&invitation, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

type AcceptUserResult struct {
	UserID   uuid.UUID `json:"userID"`
	UserName string    `json:"userName"`
	Message  string    `json:"message"`
}

type AcceptUserError struct {
	UserID uuid.UUID `json:"userID"`
	Error  string    `json:"error"`
}

type GroupSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type AcceptResult struct {
	Success       bool               `json:"success"`
	AlreadyMember bool               `json:"alreadyMember,omitempty"`
	Results       []AcceptUserResult `json:"results"`
	Errors        []AcceptUserError  `json:"errors,omitempty"`
	Group         GroupSummary       `json:"group"`
}

// AcceptInvitation runs the acceptance workflow for the actor and a list
// of target users (the actor itself and/or its managed children).
//
// Per-user failures accumulate instead of aborting: some users joining
// while others are rejected is the designed outcome. Only input-stage
// validation aborts the whole call. When every target was already a
// member the result is still a success, flagged AlreadyMember.
func (s *InvitationService) AcceptInvitation(ctx context.Context, invitation *models.Invitation, actor *models.User, targetIDs []uuid.UUID) (*AcceptResult, error) {
	// Stage 1: validate input.
	if invitation == nil {
		return nil, ErrNotFound
	}
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if len(targetIDs) == 0 {
		return nil, NewValidationError("users", "at least one user id is required")
	}
	for _, id := range targetIDs {
		if id == uuid.Nil {
			return nil, NewValidationError("users", "invalid user id")
		}
	}

	var group models.Group
	err := s.DB.WithContext(ctx).First(&group, "id = ?", invitation.GroupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	result := &AcceptResult{
		Results: []AcceptUserResult{},
		Group:   GroupSummary{ID: group.ID, Name: group.Name},
	}

	// Stage 2: resolve targets. The actor may add itself and its own
	// managed children; anything else is a per-id error, never an abort.
	var targets []models.User
	for _, id := range targetIDs {
		if id == actor.ID {
			targets = append(targets, *actor)
			continue
		}

		var user models.User
		err := s.DB.WithContext(ctx).First(&user, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Errors = append(result.Errors, AcceptUserError{UserID: id, Error: "User not found"})
			continue
		}
		if err != nil {
			return nil, err
		}

		if !s.Identity.IsParentOf(actor, &user) {
			result.Errors = append(result.Errors, AcceptUserError{UserID: id, Error: "Not authorized to add this user"})
			continue
		}
		targets = append(targets, user)
	}

	// Stage 3: process memberships, aggregating per-user outcomes.
	var added []models.User
	duplicates := 0
	for i := range targets {
		target := targets[i]

		_, created, err := s.Membership.JoinGroup(ctx, group.ID, target.ID, invitation.Role)
		if err != nil {
			result.Errors = append(result.Errors, AcceptUserError{UserID: target.ID, Error: err.Error()})
			continue
		}
		if !created {
			duplicates++
			result.Errors = append(result.Errors, AcceptUserError{UserID: target.ID, Error: ErrAlreadyMember.Error()})
			continue
		}

		added = append(added, target)
		result.Results = append(result.Results, AcceptUserResult{
			UserID:   target.ID,
			UserName: target.Name,
			Message:  fmt.Sprintf("Added to %s", group.Name),
		})
	}

	switch {
	case len(added) > 0:
		result.Success = true
	case duplicates > 0 && duplicates == len(result.Errors):
		// Re-accepting an invitation everyone already used is idempotent,
		// not an error.
		result.Success = true
		result.AlreadyMember = true
	default:
		result.Success = false
	}

	if len(added) > 0 && !invitation.Used {
		if err := s.DB.WithContext(ctx).Model(invitation).Update("used", true).Error; err != nil {
			logger.Error("invitation_mark_used_failed", err, map[string]interface{}{
				"invitation_id": invitation.ID.String(),
			})
		}
	}

	// Stage 4: notify. Fire-and-forget; never affects the outcome.
	for _, user := range added {
		s.notifyAcceptance(ctx, invitation, actor, &group, user)
	}

	return result, nil
}

// notifyAcceptance tells the group's first admin — or the invitation's
// creator when no admin resolves — about the new member.
func (s *InvitationService) notifyAcceptance(ctx context.Context, invitation *models.Invitation, actor *models.User, group *models.Group, newMember models.User) {
	recipientID := invitation.CreatedByID

	admins, err := s.Membership.AdminUsers(ctx, group.ID)
	if err != nil {
		logger.Error("invitation_admin_lookup_failed", err, map[string]interface{}{
			"group_id": group.ID.String(),
		})
	} else if len(admins) > 0 {
		recipientID = admins[0].ID
	}

	// Joining members do not need a notification about themselves.
	if recipientID == newMember.ID {
		return
	}

	s.Notifier.Notify(NotificationEvent{
		Kind:    models.ActivityInvitationAccepted,
		UserID:  recipientID,
		ActorID: actor.ID,
		GroupID: &group.ID,
		Message: fmt.Sprintf("%s joined %s", newMember.Name, group.Name),
	})
}

func (s *InvitationService) notifyAdmins(ctx context.Context, groupID, actorID uuid.UUID, kind models.ActivityKind, message string) {
	admins, err := s.Membership.AdminUsers(ctx, groupID)
	if err != nil {
		logger.Error("invitation_admin_lookup_failed", err, map[string]interface{}{
			"group_id": groupID.String(),
		})
		return
	}
	for _, admin := range admins {
		if admin.ID == actorID {
			continue
		}
		s.Notifier.Notify(NotificationEvent{
			Kind:    kind,
			UserID:  admin.ID,
			ActorID: actorID,
			GroupID: &groupID,
			Message: message,
		})
	}
}
