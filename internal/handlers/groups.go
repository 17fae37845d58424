package handlers

import (
	"strings"

	"github.com/giftring/backend/internal/middleware"
	"github.com/giftring/backend/internal/models"
	"github.com/giftring/backend/internal/services"
	"github.com/giftring/backend/pkg/logger"
	"github.com/giftring/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GroupsHandler struct {
	DB         *gorm.DB
	Groups     *services.GroupService
	Membership *services.MembershipService
	Visibility *services.VisibilityService
}

func NewGroupsHandler(db *gorm.DB, groups *services.GroupService, membership *services.MembershipService, visibility *services.VisibilityService) *GroupsHandler {
	return &GroupsHandler{DB: db, Groups: groups, Membership: membership, Visibility: visibility}
}

type createGroupRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (h *GroupsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	group, err := h.Groups.CreateGroup(c.Context(), currentUser, strings.TrimSpace(req.Name), req.Description)
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_created", map[string]interface{}{
		"group_id":   group.ID.String(),
		"group_name": group.Name,
	})

	return utils.Success(c, fiber.StatusCreated, group)
}

func (h *GroupsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	scope, err := h.Visibility.GroupScope(c.Context(), currentUser)
	if err != nil {
		return serviceError(c, err)
	}

	var groups []models.Group
	if err := scope.
		Preload("Memberships").
		Order("groups.created_at DESC").
		Find(&groups).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing groups")
	}

	return utils.Success(c, fiber.StatusOK, groups)
}

func (h *GroupsHandler) Get(c *fiber.Ctx) error {
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

	visible, err := h.Visibility.CanShowGroup(c.Context(), currentUser, groupID)
	if err != nil {
		return serviceError(c, err)
	}
	if !visible {
		return utils.Error(c, fiber.StatusForbidden, "forbidden")
	}

	var group models.Group
	if err := h.DB.Preload("Memberships.User").First(&group, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	return utils.Success(c, fiber.StatusOK, group)
}

// ListMembers returns the memberships of a group the actor can see.
// Groups outside the actor's reach yield an empty list, not an error.
func (h *GroupsHandler) ListMembers(c *fiber.Ctx) error {
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

	scope, err := h.Visibility.MembershipScope(c.Context(), currentUser)
	if err != nil {
		return serviceError(c, err)
	}

	var memberships []models.GroupMembership
	if err := scope.
		Preload("User").
		Where("group_memberships.group_id = ?", groupID).
		Order("group_memberships.created_at ASC").
		Find(&memberships).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing members")
	}

	return utils.Success(c, fiber.StatusOK, memberships)
}

type updateGroupRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *GroupsHandler) Update(c *fiber.Ctx) error {
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

	allowed, err := h.Visibility.CanManageGroup(c.Context(), currentUser, groupID)
	if err != nil {
		return serviceError(c, err)
	}
	if !allowed {
		return utils.Error(c, fiber.StatusForbidden, "forbidden")
	}

	var req updateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return utils.Error(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		updates["name"] = name
	}
	if req.Description != nil {
		trimmed := strings.TrimSpace(*req.Description)
		if trimmed == "" {
			updates["description"] = nil
		} else {
			updates["description"] = trimmed
		}
	}
	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.Group{}).Where("id = ?", groupID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating group")
	}

	var updated models.Group
	if err := h.DB.First(&updated, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading updated group")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *GroupsHandler) Delete(c *fiber.Ctx) error {
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

	allowed, err := h.Visibility.CanManageGroup(c.Context(), currentUser, groupID)
	if err != nil {
		return serviceError(c, err)
	}
	if !allowed {
		return utils.Error(c, fiber.StatusForbidden, "forbidden")
	}

	if err := h.Groups.DeleteGroup(c.Context(), groupID); err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_deleted", map[string]interface{}{
		"group_id": groupID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "group deleted"})
}

type addMemberRequest struct {
	UserID uuid.UUID                  `json:"userID"`
	Role   models.GroupMembershipRole `json:"role"`
}

func (h *GroupsHandler) AddMember(c *fiber.Ctx) error {
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

	allowed, err := h.Visibility.CanManageGroup(c.Context(), currentUser, groupID)
	if err != nil {
		return serviceError(c, err)
	}
	if !allowed {
		return utils.Error(c, fiber.StatusForbidden, "forbidden")
	}

	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.UserID == uuid.Nil {
		return utils.Error(c, fiber.StatusBadRequest, "userID is required")
	}
	if req.Role == "" {
		req.Role = models.GroupRoleMember
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", req.UserID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	membership, err := h.Membership.AddUser(c.Context(), groupID, req.UserID, req.Role)
	if err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusCreated, membership)
}

func (h *GroupsHandler) RemoveMember(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	userID, err := parseUUID(c.Params("userId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if _, err := h.Groups.GetGroup(c.Context(), groupID); err != nil {
		return serviceError(c, err)
	}

	var target models.GroupMembership
	if err := h.DB.First(&target, "group_id = ? AND user_id = ?", groupID, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading membership")
	}

	allowed, err := h.Visibility.CanManageMembership(c.Context(), currentUser, &target)
	if err != nil {
		return serviceError(c, err)
	}
	if !allowed {
		return utils.Error(c, fiber.StatusForbidden, "forbidden")
	}

	if err := h.Membership.RemoveMembership(c.Context(), groupID, userID); err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "member removed"})
}

type updateMemberRoleRequest struct {
	Role models.GroupMembershipRole `json:"role"`
}

func (h *GroupsHandler) UpdateMemberRole(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	userID, err := parseUUID(c.Params("userId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if _, err := h.Groups.GetGroup(c.Context(), groupID); err != nil {
		return serviceError(c, err)
	}

	allowed, err := h.Visibility.CanManageGroup(c.Context(), currentUser, groupID)
	if err != nil {
		return serviceError(c, err)
	}
	if !allowed {
		return utils.Error(c, fiber.StatusForbidden, "forbidden")
	}

	var req updateMemberRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	membership, err := h.Membership.UpdateRole(c.Context(), groupID, userID, req.Role)
	if err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, membership)
}

// Leave removes the current user's own membership; no admin role needed.
func (h *GroupsHandler) Leave(c *fiber.Ctx) error {
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

	if err := h.Membership.RemoveMembership(c.Context(), groupID, currentUser.ID); err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "left group"})
}
