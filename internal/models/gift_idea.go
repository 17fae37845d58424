package models

import "github.com/google/uuid"

type GiftIdeaStatus string

const (
	GiftStatusProposed GiftIdeaStatus = "proposed"
	GiftStatusBuying   GiftIdeaStatus = "buying"
	GiftStatusBought   GiftIdeaStatus = "bought"
)

type GiftIdea struct {
	BaseModel
	Title       string         `json:"title" gorm:"type:varchar(255);not null"`
	Description *string        `json:"description,omitempty" gorm:"type:text"`
	Link        *string        `json:"link,omitempty" gorm:"type:text"`
	Price       *float64       `json:"price,omitempty"`
	Status      GiftIdeaStatus `json:"status" gorm:"type:varchar(20);not null;default:'proposed';index"`
	CreatedByID uuid.UUID      `json:"createdByID" gorm:"type:uuid;not null;index"`
	BuyerID     *uuid.UUID     `json:"buyerID,omitempty" gorm:"type:uuid;index"`

	CreatedBy  User            `json:"createdBy,omitempty" gorm:"foreignKey:CreatedByID"`
	Buyer      *User           `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
	Recipients []GiftRecipient `json:"recipients,omitempty" gorm:"foreignKey:GiftIdeaID"`
}

func (g *GiftIdea) RecipientIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(g.Recipients))
	for _, r := range g.Recipients {
		ids = append(ids, r.UserID)
	}
	return ids
}

func (g *GiftIdea) HasRecipient(userID uuid.UUID) bool {
	for _, r := range g.Recipients {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
