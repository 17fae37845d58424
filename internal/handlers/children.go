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

// ChildrenHandler manages the actor's managed accounts.
type ChildrenHandler struct {
	DB       *gorm.DB
	Identity *services.IdentityService
}

func NewChildrenHandler(db *gorm.DB, identity *services.IdentityService) *ChildrenHandler {
	return &ChildrenHandler{DB: db, Identity: identity}
}

type createChildRequest struct {
	Name   string `json:"name"`
	Locale string `json:"locale"`
}

func (h *ChildrenHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createChildRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	child, err := h.Identity.CreateChild(c.Context(), currentUser, strings.TrimSpace(req.Name), strings.TrimSpace(req.Locale))
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "child_created", map[string]interface{}{
		"child_id": child.ID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, child)
}

func (h *ChildrenHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	children, err := h.Identity.ChildrenOf(c.Context(), currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, children)
}

type updateChildRequest struct {
	Name   *string `json:"name"`
	Locale *string `json:"locale"`
}

func (h *ChildrenHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	childID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	child, loadErr := h.loadChild(currentUser, childID)
	if loadErr != nil {
		return serviceError(c, loadErr)
	}

	var req updateChildRequest
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
	if req.Locale != nil {
		locale := strings.TrimSpace(*req.Locale)
		if locale == "" {
			return utils.Error(c, fiber.StatusBadRequest, "locale cannot be empty")
		}
		updates["locale"] = locale
	}
	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(child).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating child")
	}

	var updated models.User
	if err := h.DB.First(&updated, "id = ?", child.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading child")
	}
	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *ChildrenHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	childID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	child, loadErr := h.loadChild(currentUser, childID)
	if loadErr != nil {
		return serviceError(c, loadErr)
	}

	if err := h.Identity.DeleteUser(c.Context(), child.ID); err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "child_deleted", map[string]interface{}{
		"child_id": child.ID.String(),
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "child deleted"})
}

// loadChild resolves a managed account owned by the current user.
// Not-found is reported before ownership.
func (h *ChildrenHandler) loadChild(currentUser *models.User, childID uuid.UUID) (*models.User, error) {
	var child models.User
	if err := h.DB.First(&child, "id = ?", childID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, services.ErrNotFound
		}
		return nil, err
	}

	if !h.Identity.IsParentOf(currentUser, &child) {
		return nil, services.ErrForbidden
	}
	return &child, nil
}
