package service

import (
	"github.com/pooly/backend/internal/client"
	"github.com/pooly/backend/internal/repository"
)

type Services interface {
	Auth() AuthService
	Event() EventService
	Question() QuestionService
	Upvote() UpvoteService
	Broker() EventBroker
}

type services struct {
	authService     AuthService
	eventService    EventService
	questionService QuestionService
	upvoteService   UpvoteService
	eventBroker     EventBroker
}

func NewServices(repositories repository.Repositories, clients client.Clients) Services {
	authService := newAuthService(clients.AuthClient(), client.IsTokenExpired)
	eventBroker := newEventBroker(clients.PubSubClient())
	questionService := newQuestionService(repositories.Question(), repositories.Upvote(), authService, eventBroker)
	return &services{
		authService:     authService,
		eventService:    newEventService(repositories.Event(), questionService, authService),
		questionService: questionService,
		upvoteService:   newUpvoteService(repositories.Question(), repositories.Upvote(), authService, eventBroker),
		eventBroker:     eventBroker,
	}
}

func (s services) Auth() AuthService {
	return s.authService
}

func (s services) Event() EventService {
	return s.eventService
}

func (s services) Question() QuestionService {
	return s.questionService
}

func (s services) Upvote() UpvoteService {
	return s.upvoteService
}

func (s services) Broker() EventBroker {
	return s.eventBroker
}
