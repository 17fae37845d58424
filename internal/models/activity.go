package models

import "github.com/google/uuid"

type ActivityKind string

const (
	ActivityInvitationCreated  ActivityKind = "invitation_created"
	ActivityInvitationAccepted ActivityKind = "invitation_accepted"
)

// Activity is an in-app notification row. The notifier queue writes these
// asynchronously; delivery beyond the feed (email, push) is out of scope.
type Activity struct {
	BaseModel
	UserID  uuid.UUID    `json:"userID" gorm:"type:uuid;not null;index"`
	ActorID uuid.UUID    `json:"actorID" gorm:"type:uuid;not null"`
	Kind    ActivityKind `json:"kind" gorm:"type:varchar(50);not null"`
	GroupID *uuid.UUID   `json:"groupID,omitempty" gorm:"type:uuid;index"`
	Message string       `json:"message" gorm:"type:text;not null"`
	IsRead  bool         `json:"isRead" gorm:"not null;default:false;index"`

	Actor User   `json:"actor,omitempty" gorm:"foreignKey:ActorID"`
	Group *Group `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}

func (Activity) TableName() string {
	return "activities"
}
