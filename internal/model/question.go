package model

import (
	"time"

	"github.com/google/uuid"
)

type Question struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Content   string    `gorm:"size:255;not null"`
	Username  string    `gorm:"size:20"`
	EventCode string    `gorm:"size:10;not null;index"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
	Upvotes   []Upvote  `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE"`
}
