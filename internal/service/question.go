package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pooly/backend/internal/dto"
	"github.com/pooly/backend/internal/model"
	"github.com/pooly/backend/internal/repository"
	"github.com/sirupsen/logrus"
)

const (
	maxContentLength  = 255
	maxUsernameLength = 20
	defaultUsername   = "Anonymous"
)

type QuestionService interface {
	List(ctx context.Context, identity dto.Identity) ([]dto.QuestionView, error)
	Create(ctx context.Context, identity dto.Identity, content, username string) (dto.QuestionView, error)
	Delete(ctx context.Context, identity dto.Identity, questionID uuid.UUID) error
}

type questionService struct {
	questionRepository repository.QuestionRepository
	upvoteRepository   repository.UpvoteRepository
	authService        AuthService
	eventBroker        EventBroker
	policy             *bluemonday.Policy
}

func newQuestionService(questionRepository repository.QuestionRepository, upvoteRepository repository.UpvoteRepository, authService AuthService, eventBroker EventBroker) QuestionService {
	return &questionService{
		questionRepository: questionRepository,
		upvoteRepository:   upvoteRepository,
		authService:        authService,
		eventBroker:        eventBroker,
		policy:             bluemonday.StrictPolicy(),
	}
}

// List returns the questions of the caller's event with counts and the
// caller's upvote flags resolved through one batch per lookup kind.
func (q *questionService) List(ctx context.Context, identity dto.Identity) ([]dto.QuestionView, error) {
	questions, err := q.questionRepository.ListByEvent(ctx, identity.EventCode)
	if err != nil {
		return nil, err
	}

	loaders := NewLoaders(q.upvoteRepository, identity.ParticipantID)
	counts := make([]dataloader.Thunk[int64], len(questions))
	upvoted := make([]dataloader.Thunk[bool], len(questions))
	for i, question := range questions {
		counts[i] = loaders.UpvoteCount.Load(ctx, question.ID)
		upvoted[i] = loaders.Upvoted.Load(ctx, question.ID)
	}

	views := make([]dto.QuestionView, len(questions))
	for i, question := range questions {
		count, err := counts[i]()
		if err != nil {
			return nil, err
		}
		hasUpvoted, err := upvoted[i]()
		if err != nil {
			return nil, err
		}
		views[i] = toQuestionView(question, identity, count, hasUpvoted)
	}

	return views, nil
}

func (q *questionService) Create(ctx context.Context, identity dto.Identity, content, username string) (dto.QuestionView, error) {
	content = q.sanitize(content)
	if content == "" {
		return dto.QuestionView{}, fmt.Errorf("%w: question content is required", dto.ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return dto.QuestionView{}, fmt.Errorf("%w: question content exceeds %d characters", dto.ErrInvalidInput, maxContentLength)
	}

	username = q.sanitize(username)
	if username == "" {
		username = defaultUsername
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return dto.QuestionView{}, fmt.Errorf("%w: username exceeds %d characters", dto.ErrInvalidInput, maxUsernameLength)
	}

	question, err := q.questionRepository.Create(ctx, model.Question{
		ID:        uuid.New(),
		Content:   content,
		Username:  username,
		EventCode: identity.EventCode,
		OwnerID:   identity.ParticipantID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return dto.QuestionView{}, err
	}

	logrus.Infof("Participant %s asked question %s in event %s", identity.ParticipantID, question.ID, question.EventCode)

	// subscribers see the question as a non-owner who has not upvoted yet
	broadcast := toQuestionView(question, dto.Identity{}, 0, false)
	q.eventBroker.Publish(ctx, dto.LiveUpdate{
		Topic:     dto.TopicNewQuestion,
		EventCode: question.EventCode,
		Question:  &broadcast,
	})

	return toQuestionView(question, identity, 0, false), nil
}

func (q *questionService) Delete(ctx context.Context, identity dto.Identity, questionID uuid.UUID) error {
	question, err := q.questionRepository.Owner(ctx, questionID)
	if err != nil {
		return err
	}
	if err := q.authService.AuthorizeDelete(identity, question); err != nil {
		return err
	}

	if err := q.questionRepository.Delete(ctx, questionID); err != nil {
		return err
	}

	logrus.Infof("Participant %s deleted question %s", identity.ParticipantID, questionID)

	q.eventBroker.Publish(ctx, dto.LiveUpdate{
		Topic:      dto.TopicQuestionDeleted,
		EventCode:  question.EventCode,
		QuestionID: &questionID,
	})

	return nil
}

func (q *questionService) sanitize(s string) string {
	return sanitizeText(q.policy, s)
}

const maxSanitizePasses = 4

// sanitizeText strips markup and returns plain text. Entities are decoded, so
// the result is stripped again until it is stable; encoded markup such as
// &lt;b&gt; cannot survive as a tag.
func sanitizeText(policy *bluemonday.Policy, s string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		next := strings.TrimSpace(html.UnescapeString(policy.Sanitize(s)))
		if next == s {
			return next
		}
		s = next
	}
	// still changing after several decodes: keep the escaped form
	return strings.TrimSpace(policy.Sanitize(s))
}

func toQuestionView(question model.Question, viewer dto.Identity, upvotes int64, upvoted bool) dto.QuestionView {
	return dto.QuestionView{
		ID:        question.ID,
		Content:   question.Content,
		Username:  question.Username,
		EventCode: question.EventCode,
		CreatedAt: question.CreatedAt,
		Upvotes:   upvotes,
		Upvoted:   upvoted,
		CanUpvote: !upvoted,
		Owner:     viewer.ParticipantID != uuid.Nil && viewer.ParticipantID == question.OwnerID,
	}
}
