package models

import "github.com/google/uuid"

// Invitation is a shareable join token for a group. Tokens are not
// single-use: membership uniqueness is the only dedup, so a parent can
// accept the same token for several children over time. Used only records
// that at least one acceptance happened.
type Invitation struct {
	BaseModel
	Token       string              `json:"token" gorm:"type:varchar(64);not null;uniqueIndex"`
	GroupID     uuid.UUID           `json:"groupID" gorm:"type:uuid;not null;index"`
	CreatedByID uuid.UUID           `json:"createdByID" gorm:"type:uuid;not null;index"`
	Role        GroupMembershipRole `json:"role" gorm:"type:varchar(20);not null;default:'member'"`
	Used        bool                `json:"used" gorm:"not null;default:false"`

	Group     Group `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	CreatedBy User  `json:"createdBy,omitempty" gorm:"foreignKey:CreatedByID"`
}
