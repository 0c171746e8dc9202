package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pooly/backend/internal/dto"
	"github.com/pooly/backend/internal/model"
	"github.com/pooly/backend/internal/repository"
	"github.com/sirupsen/logrus"
)

const (
	maxEventNameLength = 100
	eventCodeLength    = 6
	eventCodeAttempts  = 5
)

type EventService interface {
	List(ctx context.Context) ([]dto.EventView, error)
	Get(ctx context.Context, identity dto.Identity, code string) (dto.EventView, error)
	Create(ctx context.Context, name string) (dto.EventView, dto.Credential, error)
	Join(ctx context.Context, code string) (dto.EventView, dto.Credential, error)
}

type eventService struct {
	eventRepository repository.EventRepository
	questionService QuestionService
	authService     AuthService
	policy          *bluemonday.Policy
	newCode         func() (string, error)
}

func newEventService(eventRepository repository.EventRepository, questionService QuestionService, authService AuthService) EventService {
	return &eventService{
		eventRepository: eventRepository,
		questionService: questionService,
		authService:     authService,
		policy:          bluemonday.StrictPolicy(),
		newCode:         generateEventCode,
	}
}

func (e *eventService) List(ctx context.Context) ([]dto.EventView, error) {
	events, err := e.eventRepository.List(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]dto.EventView, len(events))
	for i, event := range events {
		views[i] = dto.EventView{Code: event.Code, Name: event.Name}
	}
	return views, nil
}

// Get returns the event with its questions as seen by the caller. The
// credential must belong to the requested event.
func (e *eventService) Get(ctx context.Context, identity dto.Identity, code string) (dto.EventView, error) {
	if err := e.authService.AuthorizeEvent(identity, code); err != nil {
		return dto.EventView{}, err
	}

	event, err := e.eventRepository.GetByCode(ctx, code)
	if err != nil {
		return dto.EventView{}, err
	}

	questions, err := e.questionService.List(ctx, identity)
	if err != nil {
		return dto.EventView{}, err
	}

	return dto.EventView{Code: event.Code, Name: event.Name, Questions: questions}, nil
}

// Create stores a new event under a random code and hands its creator an
// admin credential. A code collision is retried with a fresh code.
func (e *eventService) Create(ctx context.Context, name string) (dto.EventView, dto.Credential, error) {
	name = sanitizeText(e.policy, name)
	if name == "" {
		return dto.EventView{}, dto.Credential{}, fmt.Errorf("%w: event name is required", dto.ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxEventNameLength {
		return dto.EventView{}, dto.Credential{}, fmt.Errorf("%w: event name exceeds %d characters", dto.ErrInvalidInput, maxEventNameLength)
	}

	var (
		event model.Event
		err   error
	)
	for attempt := 0; attempt < eventCodeAttempts; attempt++ {
		var code string
		code, err = e.newCode()
		if err != nil {
			return dto.EventView{}, dto.Credential{}, fmt.Errorf("generate event code: %w", err)
		}

		event, err = e.eventRepository.Create(ctx, model.Event{
			Code:      code,
			Name:      name,
			CreatedAt: time.Now().UTC(),
		})
		if err == nil {
			break
		}
		if !errors.Is(err, dto.ErrConflict) {
			return dto.EventView{}, dto.Credential{}, err
		}
		logrus.Warnf("Event code %s already taken, retrying", code)
	}
	if err != nil {
		return dto.EventView{}, dto.Credential{}, err
	}

	credential, err := e.authService.Issue(event.Code, true)
	if err != nil {
		return dto.EventView{}, dto.Credential{}, err
	}

	logrus.Infof("Created event %s (%s) by %s", event.Code, event.Name, credential.Identity.ParticipantID)

	return dto.EventView{Code: event.Code, Name: event.Name}, credential, nil
}

func (e *eventService) Join(ctx context.Context, code string) (dto.EventView, dto.Credential, error) {
	event, err := e.eventRepository.GetByCode(ctx, code)
	if err != nil {
		return dto.EventView{}, dto.Credential{}, err
	}

	credential, err := e.authService.Issue(event.Code, false)
	if err != nil {
		return dto.EventView{}, dto.Credential{}, err
	}

	logrus.Infof("Participant %s joined event %s", credential.Identity.ParticipantID, event.Code)

	return dto.EventView{Code: event.Code, Name: event.Name}, credential, nil
}

func generateEventCode() (string, error) {
	code := make([]byte, eventCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}
