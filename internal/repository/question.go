package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pooly/backend/internal/dto"
	"github.com/pooly/backend/internal/model"
	"gorm.io/gorm"
)

type QuestionRepository interface {
	Create(ctx context.Context, question model.Question) (model.Question, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Question, error)
	ListByEvent(ctx context.Context, eventCode string) ([]model.Question, error)
	Owner(ctx context.Context, id uuid.UUID) (model.Question, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type question struct {
	db *gorm.DB
}

func newQuestionRepository(db *gorm.DB) QuestionRepository {
	return &question{
		db: db,
	}
}

func (q *question) Create(ctx context.Context, question model.Question) (model.Question, error) {
	result := q.db.WithContext(ctx).Create(&question)
	if result.Error != nil {
		if isForeignKeyViolation(result.Error) {
			return model.Question{}, fmt.Errorf("%w: event %s", dto.ErrNotFound, question.EventCode)
		}
		if isUniqueViolation(result.Error) {
			return model.Question{}, fmt.Errorf("%w: question %s", dto.ErrConflict, question.ID)
		}
		return model.Question{}, fmt.Errorf("%w: %v", dto.ErrStorageUnavailable, result.Error)
	}

	return question, nil
}

func (q *question) GetByID(ctx context.Context, id uuid.UUID) (model.Question, error) {
	var question model.Question
	result := q.db.WithContext(ctx).Where("id = ?", id).First(&question)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return model.Question{}, fmt.Errorf("%w: question %s", dto.ErrNotFound, id)
		}
		return model.Question{}, fmt.Errorf("%w: %v", dto.ErrStorageUnavailable, result.Error)
	}

	return question, nil
}

func (q *question) ListByEvent(ctx context.Context, eventCode string) ([]model.Question, error) {
	var questions []model.Question
	result := q.db.WithContext(ctx).
		Where("event_code = ?", eventCode).
		Order("created_at").
		Find(&questions)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", dto.ErrStorageUnavailable, result.Error)
	}

	return questions, nil
}

// Owner loads only the columns the delete authorization needs.
func (q *question) Owner(ctx context.Context, id uuid.UUID) (model.Question, error) {
	var question model.Question
	result := q.db.WithContext(ctx).Select("id", "event_code", "owner_id").Where("id = ?", id).First(&question)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return model.Question{}, fmt.Errorf("%w: question %s", dto.ErrNotFound, id)
		}
		return model.Question{}, fmt.Errorf("%w: %v", dto.ErrStorageUnavailable, result.Error)
	}

	return question, nil
}

// Delete removes the question and its upvotes in one transaction. The
// ON DELETE CASCADE constraint covers the same rows on databases that enforce it.
func (q *question) Delete(ctx context.Context, id uuid.UUID) error {
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", id).Delete(&model.Upvote{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&model.Question{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: question %s", dto.ErrNotFound, id)
		}
		return fmt.Errorf("%w: %v", dto.ErrStorageUnavailable, err)
	}

	return nil
}
