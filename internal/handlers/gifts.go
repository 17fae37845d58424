package handlers

import (
	"context"
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

type GiftsHandler struct {
	DB    *gorm.DB
	Gifts *services.GiftService
}

func NewGiftsHandler(db *gorm.DB, gifts *services.GiftService) *GiftsHandler {
	return &GiftsHandler{DB: db, Gifts: gifts}
}

type createGiftRequest struct {
	Title        string      `json:"title"`
	Description  *string     `json:"description"`
	Link         *string     `json:"link"`
	Price        *float64    `json:"price"`
	RecipientIDs []uuid.UUID `json:"recipientIDs"`
}

func (h *GiftsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createGiftRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	gift, err := h.Gifts.Create(c.Context(), currentUser, services.GiftCreateInput{
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		Link:         req.Link,
		Price:        req.Price,
		RecipientIDs: req.RecipientIDs,
	})
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "gift_created", map[string]interface{}{
		"gift_id": gift.ID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, gift)
}

func (h *GiftsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	gifts, err := h.Gifts.List(c.Context(), currentUser)
	if err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, gifts)
}

func (h *GiftsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	giftID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid gift id")
	}

	gift, err := h.Gifts.Get(c.Context(), currentUser, giftID)
	if err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, gift)
}

type updateGiftRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Link        *string  `json:"link"`
	Price       *float64 `json:"price"`
}

func (h *GiftsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	giftID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid gift id")
	}

	var req updateGiftRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	gift, err := h.Gifts.Update(c.Context(), currentUser, giftID, services.GiftUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Link:        req.Link,
		Price:       req.Price,
	})
	if err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, gift)
}

func (h *GiftsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	giftID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid gift id")
	}

	if err := h.Gifts.Delete(c.Context(), currentUser, giftID); err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "gift_deleted", map[string]interface{}{
		"gift_id": giftID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "gift deleted"})
}

func (h *GiftsHandler) MarkAsBuying(c *fiber.Ctx) error {
	return h.transition(c, h.Gifts.MarkAsBuying)
}

func (h *GiftsHandler) MarkAsBought(c *fiber.Ctx) error {
	return h.transition(c, h.Gifts.MarkAsBought)
}

func (h *GiftsHandler) CancelBuying(c *fiber.Ctx) error {
	return h.transition(c, h.Gifts.CancelBuying)
}

func (h *GiftsHandler) transition(c *fiber.Ctx, fn func(ctx context.Context, actor *models.User, giftID uuid.UUID) (*models.GiftIdea, error)) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	giftID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid gift id")
	}

	gift, err := fn(c.Context(), currentUser, giftID)
	if err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, gift)
}
