package model

import (
	"time"

	"github.com/google/uuid"
)

// Upvote is one participant's vote on one question. The composite primary key
// allows at most one row per (question, participant).
type Upvote struct {
	QuestionID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	ParticipantID uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	CreatedAt     time.Time
}
