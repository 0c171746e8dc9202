package dto

import (
	"time"

	"github.com/google/uuid"
)

type EventView struct {
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	Questions []QuestionView `json:"questions,omitempty"`
}

// QuestionView is a question as seen by one participant.
type QuestionView struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	Username  string    `json:"username"`
	EventCode string    `json:"event_code"`
	CreatedAt time.Time `json:"created_at"`
	Upvotes   int64     `json:"upvotes"`
	Upvoted   bool      `json:"upvoted"`
	CanUpvote bool      `json:"can_upvote"`
	Owner     bool      `json:"owner"`
}

type Topic string

const (
	TopicNewQuestion        Topic = "new_question"
	TopicQuestionDeleted    Topic = "question_deleted"
	TopicUpvoteCountChanged Topic = "upvote_count_changed"
)

var AllTopics = []Topic{TopicNewQuestion, TopicQuestionDeleted, TopicUpvoteCountChanged}

func (t Topic) Valid() bool {
	switch t {
	case TopicNewQuestion, TopicQuestionDeleted, TopicUpvoteCountChanged:
		return true
	}
	return false
}

// LiveUpdate is the payload carried on every fan-out topic.
// Viewer-dependent fields of Question (upvoted, owner) are left false.
type LiveUpdate struct {
	Topic      Topic         `json:"topic"`
	EventCode  string        `json:"event_code"`
	Question   *QuestionView `json:"question,omitempty"`
	QuestionID *uuid.UUID    `json:"question_id,omitempty"`
	Upvotes    *int64        `json:"upvotes,omitempty"`
}
