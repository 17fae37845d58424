package models

type Group struct {
	BaseModel
	Name        string  `json:"name" gorm:"type:varchar(150);not null"`
	Description *string `json:"description,omitempty" gorm:"type:text"`

	Memberships []GroupMembership `json:"memberships,omitempty" gorm:"foreignKey:GroupID"`
	Invitations []Invitation      `json:"-" gorm:"foreignKey:GroupID"`
}
