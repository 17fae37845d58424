package handlers

import (
	"github.com/giftring/backend/internal/middleware"
	"github.com/giftring/backend/internal/models"
	"github.com/giftring/backend/internal/services"
	"github.com/giftring/backend/pkg/logger"
	"github.com/giftring/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvitationsHandler struct {
	DB          *gorm.DB
	Groups      *services.GroupService
	Invitations *services.InvitationService
	Visibility  *services.VisibilityService
}

func NewInvitationsHandler(db *gorm.DB, groups *services.GroupService, invitations *services.InvitationService, visibility *services.VisibilityService) *InvitationsHandler {
	return &InvitationsHandler{DB: db, Groups: groups, Invitations: invitations, Visibility: visibility}
}

type createInvitationRequest struct {
	Role models.GroupMembershipRole `json:"role"`
}

// Create mints a shareable invitation. Any member of the group may
// invite; only managing it afterwards needs the admin role.
func (h *InvitationsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	if _, err := h.Groups.GetGroup(c.Context(), groupID); err != nil {
		return serviceError(c, err)
	}

	allowed, err := h.Visibility.CanShowGroup(c.Context(), currentUser, groupID)
	if err != nil {
		return serviceError(c, err)
	}
	if !allowed {
		return utils.Error(c, fiber.StatusForbidden, "forbidden")
	}

	var req createInvitationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Role == "" {
		req.Role = models.GroupRoleMember
	}

	invitation, err := h.Invitations.CreateInvitation(c.Context(), currentUser, groupID, req.Role)
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "invitation_created", map[string]interface{}{
		"group_id":      groupID.String(),
		"invitation_id": invitation.ID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, invitation)
}

func (h *InvitationsHandler) ListForGroup(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	if _, err := h.Groups.GetGroup(c.Context(), groupID); err != nil {
		return serviceError(c, err)
	}

	scope, err := h.Visibility.InvitationScope(c.Context(), currentUser)
	if err != nil {
		return serviceError(c, err)
	}

	var invitations []models.Invitation
	if err := scope.
		Where("invitations.group_id = ?", groupID).
		Order("invitations.created_at DESC").
		Find(&invitations).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing invitations")
	}

	return utils.Success(c, fiber.StatusOK, invitations)
}

func (h *InvitationsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	invitationID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid invitation id")
	}

	var invitation models.Invitation
	if err := h.DB.First(&invitation, "id = ?", invitationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading invitation")
	}

	allowed, err := h.Visibility.CanManageInvitation(c.Context(), currentUser, &invitation)
	if err != nil {
		return serviceError(c, err)
	}
	if !allowed {
		return utils.Error(c, fiber.StatusForbidden, "forbidden")
	}

	if err := h.DB.Delete(&models.Invitation{}, "id = ?", invitation.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting invitation")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "invitation deleted"})
}

// Preview resolves a token to its group so the invitee can see what they
// were invited to before accepting. No authentication required.
func (h *InvitationsHandler) Preview(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return utils.Error(c, fiber.StatusBadRequest, "token is required")
	}

	invitation, err := h.Invitations.GetByToken(c.Context(), token)
	if err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"group": services.GroupSummary{ID: invitation.GroupID, Name: invitation.Group.Name},
		"role":  invitation.Role,
	})
}

type acceptInvitationRequest struct {
	UserIDs []uuid.UUID `json:"userIDs"`
}

// Accept joins the listed users (the caller and/or its managed children)
// to the invitation's group. Partial success is a 200 with per-user
// errors in the body; only zero additions with real errors is a 422.
func (h *InvitationsHandler) Accept(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	token := c.Params("token")
	if token == "" {
		return utils.Error(c, fiber.StatusBadRequest, "token is required")
	}

	invitation, err := h.Invitations.GetByToken(c.Context(), token)
	if err != nil {
		return serviceError(c, err)
	}

	var req acceptInvitationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.UserIDs) == 0 {
		req.UserIDs = []uuid.UUID{currentUser.ID}
	}

	result, err := h.Invitations.AcceptInvitation(c.Context(), invitation, currentUser, req.UserIDs)
	if err != nil {
		return serviceError(c, err)
	}

	status := fiber.StatusOK
	if !result.Success {
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(result)
}
