package services

import (
	"context"
	"errors"

	"github.com/giftring/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GiftService owns the gift idea lifecycle: creation with the
// common-group rule, and the proposed → buying → bought state machine.
// Bought is terminal.
type GiftService struct {
	DB         *gorm.DB
	Identity   *IdentityService
	Visibility *VisibilityService
}

func NewGiftService(db *gorm.DB, identity *IdentityService, visibility *VisibilityService) *GiftService {
	return &GiftService{DB: db, Identity: identity, Visibility: visibility}
}

type GiftCreateInput struct {
	Title        string
	Description  *string
	Link         *string
	Price        *float64
	RecipientIDs []uuid.UUID
}

// Create validates that every recipient either is the creator (or one of
// the creator's managed children — self-gifting through delegation) or
// shares at least one group with the creator, then persists the idea with
// its recipient rows.
func (s *GiftService) Create(ctx context.Context, actor *models.User, input GiftCreateInput) (*models.GiftIdea, error) {
	if input.Title == "" {
		return nil, NewValidationError("title", "title is required")
	}
	if input.Price != nil && *input.Price < 0 {
		return nil, NewValidationError("price", "price must not be negative")
	}
	if len(input.RecipientIDs) == 0 {
		return nil, NewValidationError("recipient", "at least one recipient is required")
	}

	actingIDs, err := s.Identity.ActingIDs(ctx, actor)
	if err != nil {
		return nil, err
	}

	seen := map[uuid.UUID]struct{}{}
	for _, recipientID := range input.RecipientIDs {
		if recipientID == uuid.Nil {
			return nil, NewValidationError("recipient", "invalid recipient id")
		}
		if _, dup := seen[recipientID]; dup {
			return nil, NewValidationError("recipient", "duplicate recipient")
		}
		seen[recipientID] = struct{}{}

		var recipient models.User
		err := s.DB.WithContext(ctx).First(&recipient, "id = ?", recipientID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError("recipient", "recipient not found")
		}
		if err != nil {
			return nil, err
		}

		if containsID(actingIDs, recipientID) {
			continue
		}
		shares, err := s.Visibility.SharesGroup(ctx, actor.ID, recipientID)
		if err != nil {
			return nil, err
		}
		if !shares {
			return nil, NewValidationError("recipient", "recipient must share a group with you")
		}
	}

	gift := models.GiftIdea{
		Title:       input.Title,
		Description: input.Description,
		Link:        input.Link,
		Price:       input.Price,
		Status:      models.GiftStatusProposed,
		CreatedByID: actor.ID,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&gift).Error; err != nil {
			return err
		}
		for _, recipientID := range input.RecipientIDs {
			recipient := models.GiftRecipient{GiftIdeaID: gift.ID, UserID: recipientID}
			if err := tx.Create(&recipient).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, actor, gift.ID)
}

// Get loads a gift idea. Not-found surfaces before the visibility check.
func (s *GiftService) Get(ctx context.Context, actor *models.User, giftID uuid.UUID) (*models.GiftIdea, error) {
	gift, err := s.load(ctx, giftID)
	if err != nil {
		return nil, err
	}

	visible, err := s.Visibility.CanShowGift(ctx, actor, gift)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrForbidden
	}
	return gift, nil
}

func (s *GiftService) List(ctx context.Context, actor *models.User) ([]models.GiftIdea, error) {
	scope, err := s.Visibility.GiftIdeaScope(ctx, actor)
	if err != nil {
		return nil, err
	}

	var gifts []models.GiftIdea
	if err := scope.Preload("Recipients.User").Order("gift_ideas.created_at DESC").Find(&gifts).Error; err != nil {
		return nil, err
	}
	return gifts, nil
}

type GiftUpdateInput struct {
	Title       *string
	Description *string
	Link        *string
	Price       *float64
}

func (s *GiftService) Update(ctx context.Context, actor *models.User, giftID uuid.UUID, input GiftUpdateInput) (*models.GiftIdea, error) {
	gift, err := s.requireCreator(ctx, actor, giftID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Title != nil {
		if *input.Title == "" {
			return nil, NewValidationError("title", "title cannot be empty")
		}
		updates["title"] = *input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Link != nil {
		updates["link"] = *input.Link
	}
	if input.Price != nil {
		if *input.Price < 0 {
			return nil, NewValidationError("price", "price must not be negative")
		}
		updates["price"] = *input.Price
	}
	if len(updates) == 0 {
		return gift, nil
	}

	if err := s.DB.WithContext(ctx).Model(gift).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.load(ctx, giftID)
}

func (s *GiftService) Delete(ctx context.Context, actor *models.User, giftID uuid.UUID) error {
	gift, err := s.requireCreator(ctx, actor, giftID)
	if err != nil {
		return err
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("gift_idea_id = ?", gift.ID).Delete(&models.GiftRecipient{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.GiftIdea{}, "id = ?", gift.ID).Error
	})
}

// MarkAsBuying claims the purchase: allowed only for a user who can see
// the gift, is neither creator nor recipient, and only before bought.
func (s *GiftService) MarkAsBuying(ctx context.Context, actor *models.User, giftID uuid.UUID) (*models.GiftIdea, error) {
	gift, err := s.load(ctx, giftID)
	if err != nil {
		return nil, err
	}

	actingIDs, err := s.Identity.ActingIDs(ctx, actor)
	if err != nil {
		return nil, err
	}
	if containsID(actingIDs, gift.CreatedByID) || gift.HasRecipient(actor.ID) {
		return nil, ErrForbidden
	}

	visible, err := s.Visibility.CanShowGift(ctx, actor, gift)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrForbidden
	}

	if gift.Status == models.GiftStatusBought {
		return nil, NewValidationError("status", "gift has already been bought")
	}

	updates := map[string]interface{}{
		"status":   models.GiftStatusBuying,
		"buyer_id": actor.ID,
	}
	if err := s.DB.WithContext(ctx).Model(gift).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.load(ctx, giftID)
}

// MarkAsBought finalizes the purchase. The buyer or the creator may do it;
// when no buyer was set the actor becomes the buyer.
func (s *GiftService) MarkAsBought(ctx context.Context, actor *models.User, giftID uuid.UUID) (*models.GiftIdea, error) {
	gift, err := s.load(ctx, giftID)
	if err != nil {
		return nil, err
	}

	if gift.Status == models.GiftStatusBought {
		return nil, NewValidationError("status", "gift has already been bought")
	}

	actingIDs, err := s.Identity.ActingIDs(ctx, actor)
	if err != nil {
		return nil, err
	}
	isBuyer := gift.BuyerID != nil && *gift.BuyerID == actor.ID
	isCreator := containsID(actingIDs, gift.CreatedByID)
	if !isBuyer && !isCreator {
		return nil, ErrForbidden
	}

	buyerID := actor.ID
	if gift.BuyerID != nil {
		buyerID = *gift.BuyerID
	}

	updates := map[string]interface{}{
		"status":   models.GiftStatusBought,
		"buyer_id": buyerID,
	}
	if err := s.DB.WithContext(ctx).Model(gift).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.load(ctx, giftID)
}

// CancelBuying releases a claimed purchase back to proposed. Only the
// current buyer may cancel, and only while buying.
func (s *GiftService) CancelBuying(ctx context.Context, actor *models.User, giftID uuid.UUID) (*models.GiftIdea, error) {
	gift, err := s.load(ctx, giftID)
	if err != nil {
		return nil, err
	}

	if gift.Status != models.GiftStatusBuying {
		return nil, NewValidationError("status", "gift is not being bought")
	}
	if gift.BuyerID == nil || *gift.BuyerID != actor.ID {
		return nil, ErrForbidden
	}

	updates := map[string]interface{}{
		"status":   models.GiftStatusProposed,
		"buyer_id": nil,
	}
	if err := s.DB.WithContext(ctx).Model(gift).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.load(ctx, giftID)
}

func (s *GiftService) load(ctx context.Context, giftID uuid.UUID) (*models.GiftIdea, error) {
	var gift models.GiftIdea
	err := s.DB.WithContext(ctx).Preload("Recipients.User").First(&gift, "id = ?", giftID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &gift, nil
}

func (s *GiftService) requireCreator(ctx context.Context, actor *models.User, giftID uuid.UUID) (*models.GiftIdea, error) {
	gift, err := s.load(ctx, giftID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.Visibility.CanUpdateGift(ctx, actor, gift)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}
	return gift, nil
}
