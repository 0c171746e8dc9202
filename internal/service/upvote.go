package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pooly/backend/internal/dto"
	"github.com/pooly/backend/internal/repository"
	"github.com/sirupsen/logrus"
)

// UpvoteService is the upvote ledger. Counts are always derived from the
// stored facts; nothing is cached between calls.
type UpvoteService interface {
	Cast(ctx context.Context, identity dto.Identity, questionID uuid.UUID) (int64, error)
	Revoke(ctx context.Context, identity dto.Identity, questionID uuid.UUID) (int64, error)
	HasUpvoted(ctx context.Context, questionID, participantID uuid.UUID) (bool, error)
	Count(ctx context.Context, questionID uuid.UUID) (int64, error)
	CountMany(ctx context.Context, questionIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	UpvotedMany(ctx context.Context, questionIDs []uuid.UUID, participantID uuid.UUID) (map[uuid.UUID]bool, error)
}

type upvoteService struct {
	questionRepository repository.QuestionRepository
	upvoteRepository   repository.UpvoteRepository
	authService        AuthService
	eventBroker        EventBroker
}

func newUpvoteService(questionRepository repository.QuestionRepository, upvoteRepository repository.UpvoteRepository, authService AuthService, eventBroker EventBroker) UpvoteService {
	return &upvoteService{
		questionRepository: questionRepository,
		upvoteRepository:   upvoteRepository,
		authService:        authService,
		eventBroker:        eventBroker,
	}
}

// Cast records the caller's upvote and returns the new count. The existence
// pre-check only saves a write; under concurrent casts the unique key decides
// and the loser gets ErrAlreadyUpvoted.
func (u *upvoteService) Cast(ctx context.Context, identity dto.Identity, questionID uuid.UUID) (int64, error) {
	if err := u.authorize(ctx, identity, questionID); err != nil {
		return 0, err
	}

	upvoted, err := u.upvoteRepository.Exists(ctx, questionID, identity.ParticipantID)
	if err != nil {
		return 0, err
	}
	if upvoted {
		return 0, fmt.Errorf("%w: question %s", dto.ErrAlreadyUpvoted, questionID)
	}

	if err := u.upvoteRepository.Create(ctx, questionID, identity.ParticipantID); err != nil {
		return 0, err
	}

	count, err := u.upvoteRepository.Count(ctx, questionID)
	if err != nil {
		return 0, err
	}

	logrus.Infof("Participant %s upvoted question %s (%d upvotes)", identity.ParticipantID, questionID, count)
	u.publishCount(ctx, identity.EventCode, questionID, count)

	return count, nil
}

func (u *upvoteService) Revoke(ctx context.Context, identity dto.Identity, questionID uuid.UUID) (int64, error) {
	if err := u.authorize(ctx, identity, questionID); err != nil {
		return 0, err
	}

	if err := u.upvoteRepository.Delete(ctx, questionID, identity.ParticipantID); err != nil {
		return 0, err
	}

	count, err := u.upvoteRepository.Count(ctx, questionID)
	if err != nil {
		return 0, err
	}

	logrus.Infof("Participant %s revoked upvote on question %s (%d upvotes)", identity.ParticipantID, questionID, count)
	u.publishCount(ctx, identity.EventCode, questionID, count)

	return count, nil
}

func (u *upvoteService) HasUpvoted(ctx context.Context, questionID, participantID uuid.UUID) (bool, error) {
	return u.upvoteRepository.Exists(ctx, questionID, participantID)
}

func (u *upvoteService) Count(ctx context.Context, questionID uuid.UUID) (int64, error) {
	return u.upvoteRepository.Count(ctx, questionID)
}

func (u *upvoteService) CountMany(ctx context.Context, questionIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	return u.upvoteRepository.CountMany(ctx, questionIDs)
}

func (u *upvoteService) UpvotedMany(ctx context.Context, questionIDs []uuid.UUID, participantID uuid.UUID) (map[uuid.UUID]bool, error) {
	return u.upvoteRepository.ExistsMany(ctx, questionIDs, participantID)
}

func (u *upvoteService) authorize(ctx context.Context, identity dto.Identity, questionID uuid.UUID) error {
	question, err := u.questionRepository.GetByID(ctx, questionID)
	if err != nil {
		return err
	}
	return u.authService.AuthorizeQuestion(identity, question)
}

func (u *upvoteService) publishCount(ctx context.Context, eventCode string, questionID uuid.UUID, count int64) {
	u.eventBroker.Publish(ctx, dto.LiveUpdate{
		Topic:      dto.TopicUpvoteCountChanged,
		EventCode:  eventCode,
		QuestionID: &questionID,
		Upvotes:    &count,
	})
}
