package handlers

import (
	"strings"

	"github.com/giftring/backend/internal/middleware"
	"github.com/giftring/backend/internal/models"
	"github.com/giftring/backend/internal/services"
	"github.com/giftring/backend/pkg/logger"
	"github.com/giftring/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type UsersHandler struct {
	DB         *gorm.DB
	Identity   *services.IdentityService
	Visibility *services.VisibilityService
}

func NewUsersHandler(db *gorm.DB, identity *services.IdentityService, visibility *services.VisibilityService) *UsersHandler {
	return &UsersHandler{DB: db, Identity: identity, Visibility: visibility}
}

// Search looks up reachable users by name or email. Reachability bounds
// the search: strangers never appear in results.
func (h *UsersHandler) Search(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		return utils.Error(c, fiber.StatusBadRequest, "q is required")
	}

	scope, err := h.Visibility.UserScope(c.Context(), currentUser)
	if err != nil {
		return serviceError(c, err)
	}

	pattern := "%" + strings.ToLower(query) + "%"
	var users []models.User
	if err := scope.
		Where("LOWER(users.name) LIKE ? OR LOWER(users.email) LIKE ?", pattern, pattern).
		Order("users.name ASC").
		Limit(20).
		Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed searching users")
	}

	return utils.Success(c, fiber.StatusOK, users)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	visible, err := h.Visibility.CanShowUser(c.Context(), currentUser, userID)
	if err != nil {
		return serviceError(c, err)
	}
	if !visible {
		return utils.Error(c, fiber.StatusForbidden, "forbidden")
	}

	return utils.Success(c, fiber.StatusOK, user)
}

// DeleteMe removes the current account and cascades to everything it
// owns, managed children included.
func (h *UsersHandler) DeleteMe(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	if err := h.Identity.DeleteUser(c.Context(), currentUser.ID); err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "user_deleted", nil)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "account deleted"})
}
