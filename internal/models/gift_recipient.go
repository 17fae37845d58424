package models

import "github.com/google/uuid"

type GiftRecipient struct {
	BaseModel
	GiftIdeaID uuid.UUID `json:"giftIdeaID" gorm:"type:uuid;not null;index;uniqueIndex:idx_gift_recipient"`
	UserID     uuid.UUID `json:"userID" gorm:"type:uuid;not null;index;uniqueIndex:idx_gift_recipient"`

	GiftIdea GiftIdea `json:"-" gorm:"foreignKey:GiftIdeaID"`
	User     User     `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (GiftRecipient) TableName() string {
	return "gift_recipients"
}
