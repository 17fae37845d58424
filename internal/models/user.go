package models

import "github.com/google/uuid"

type AccountType string

const (
	AccountTypeStandard AccountType = "standard"
	AccountTypeManaged  AccountType = "managed"
)

// User is either a standard account that can authenticate, or a managed
// account owned by a parent user. Managed accounts have no email and no
// credentials; every action on their behalf is performed by the parent.
type User struct {
	BaseModel
	Name         string      `json:"name" gorm:"type:varchar(150);not null"`
	Email        *string     `json:"email,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	PasswordHash string      `json:"-" gorm:"type:text"`
	AccountType  AccountType `json:"accountType" gorm:"type:varchar(20);not null;default:'standard';index"`
	ParentID     *uuid.UUID  `json:"parentID,omitempty" gorm:"type:uuid;index"`
	Locale       string      `json:"locale" gorm:"type:varchar(10);not null;default:'en'"`
	Newsletter   bool        `json:"newsletter" gorm:"not null;default:false"`

	Parent             *User             `json:"parent,omitempty" gorm:"foreignKey:ParentID"`
	Children           []User            `json:"children,omitempty" gorm:"foreignKey:ParentID"`
	Memberships        []GroupMembership `json:"-" gorm:"foreignKey:UserID"`
	CreatedGiftIdeas   []GiftIdea        `json:"-" gorm:"foreignKey:CreatedByID"`
	CreatedInvitations []Invitation      `json:"-" gorm:"foreignKey:CreatedByID"`
}

func (u *User) IsManaged() bool {
	return u.AccountType == AccountTypeManaged
}
