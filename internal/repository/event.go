package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/pooly/backend/internal/dto"
	"github.com/pooly/backend/internal/model"
	"gorm.io/gorm"
)

type EventRepository interface {
	Create(ctx context.Context, event model.Event) (model.Event, error)
	GetByCode(ctx context.Context, code string) (model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
}

type event struct {
	db *gorm.DB
}

func newEventRepository(db *gorm.DB) EventRepository {
	return &event{
		db: db,
	}
}

func (e *event) Create(ctx context.Context, event model.Event) (model.Event, error) {
	result := e.db.WithContext(ctx).Create(&event)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return model.Event{}, fmt.Errorf("%w: event code %s already taken", dto.ErrConflict, event.Code)
		}
		return model.Event{}, fmt.Errorf("%w: %v", dto.ErrStorageUnavailable, result.Error)
	}

	return event, nil
}

func (e *event) GetByCode(ctx context.Context, code string) (model.Event, error) {
	var event model.Event
	result := e.db.WithContext(ctx).Where("code = ?", code).First(&event)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return model.Event{}, fmt.Errorf("%w: event %s", dto.ErrNotFound, code)
		}
		return model.Event{}, fmt.Errorf("%w: %v", dto.ErrStorageUnavailable, result.Error)
	}

	return event, nil
}

func (e *event) List(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	result := e.db.WithContext(ctx).Order("created_at").Find(&events)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", dto.ErrStorageUnavailable, result.Error)
	}

	return events, nil
}
