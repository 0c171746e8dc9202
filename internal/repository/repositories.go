package repository

import (
	"github.com/pooly/backend/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Repositories interface {
	Event() EventRepository
	Question() QuestionRepository
	Upvote() UpvoteRepository
}

type repositories struct {
	eventRepository    EventRepository
	questionRepository QuestionRepository
	upvoteRepository   UpvoteRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	err := db.AutoMigrate(&model.Event{}, &model.Question{}, &model.Upvote{})
	if err != nil {
		logrus.Panic(err)
	}
	eventRepository := newEventRepository(db)
	questionRepository := newQuestionRepository(db)
	upvoteRepository := newUpvoteRepository(db)
	return &repositories{
		eventRepository:    eventRepository,
		questionRepository: questionRepository,
		upvoteRepository:   upvoteRepository,
	}
}

func (r repositories) Event() EventRepository {
	return r.eventRepository
}

func (r repositories) Question() QuestionRepository {
	return r.questionRepository
}

func (r repositories) Upvote() UpvoteRepository {
	return r.upvoteRepository
}
