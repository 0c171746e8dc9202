package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pooly/backend/internal/dto"
	"github.com/pooly/backend/internal/model"
	"gorm.io/gorm"
)

// UpvoteRepository is the storage side of the upvote ledger. Every method is a
// single statement; the (question_id, participant_id) key is the only arbiter
// between concurrent writers.
type UpvoteRepository interface {
	Create(ctx context.Context, questionID, participantID uuid.UUID) error
	Delete(ctx context.Context, questionID, participantID uuid.UUID) error
	Exists(ctx context.Context, questionID, participantID uuid.UUID) (bool, error)
	Count(ctx context.Context, questionID uuid.UUID) (int64, error)
	CountMany(ctx context.Context, questionIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	ExistsMany(ctx context.Context, questionIDs []uuid.UUID, participantID uuid.UUID) (map[uuid.UUID]bool, error)
}

type upvote struct {
	db *gorm.DB
}

func newUpvoteRepository(db *gorm.DB) UpvoteRepository {
	return &upvote{
		db: db,
	}
}

func (u *upvote) Create(ctx context.Context, questionID, participantID uuid.UUID) error {
	result := u.db.WithContext(ctx).Create(&model.Upvote{
		QuestionID:    questionID,
		ParticipantID: participantID,
	})
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return fmt.Errorf("%w: question %s", dto.ErrAlreadyUpvoted, questionID)
		}
		if isForeignKeyViolation(result.Error) {
			return fmt.Errorf("%w: question %s", dto.ErrNotFound, questionID)
		}
		return fmt.Errorf("%w: %v", dto.ErrStorageUnavailable, result.Error)
	}

	return nil
}

func (u *upvote) Delete(ctx context.Context, questionID, participantID uuid.UUID) error {
	result := u.db.WithContext(ctx).
		Where("question_id = ? AND participant_id = ?", questionID, participantID).
		Delete(&model.Upvote{})
	if result.Error != nil {
		return fmt.Errorf("%w: %v", dto.ErrStorageUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: question %s", dto.ErrNotUpvoted, questionID)
	}

	return nil
}

func (u *upvote) Exists(ctx context.Context, questionID, participantID uuid.UUID) (bool, error) {
	var count int64
	result := u.db.WithContext(ctx).Model(&model.Upvote{}).
		Where("question_id = ? AND participant_id = ?", questionID, participantID).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("%w: %v", dto.ErrStorageUnavailable, result.Error)
	}

	return count > 0, nil
}

func (u *upvote) Count(ctx context.Context, questionID uuid.UUID) (int64, error) {
	var count int64
	result := u.db.WithContext(ctx).Model(&model.Upvote{}).Where("question_id = ?", questionID).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("%w: %v", dto.ErrStorageUnavailable, result.Error)
	}

	return count, nil
}

// CountMany returns the upvote count of every requested question in one query.
// Questions without upvotes, including unknown ids, map to 0.
func (u *upvote) CountMany(ctx context.Context, questionIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(questionIDs))
	for _, id := range questionIDs {
		counts[id] = 0
	}
	if len(questionIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		QuestionID uuid.UUID
		Upvotes    int64
	}
	result := u.db.WithContext(ctx).Model(&model.Upvote{}).
		Select("question_id, COUNT(*) AS upvotes").
		Where("question_id IN ?", idStrings(questionIDs)).
		Group("question_id").
		Scan(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", dto.ErrStorageUnavailable, result.Error)
	}

	for _, row := range rows {
		counts[row.QuestionID] = row.Upvotes
	}

	return counts, nil
}

// ExistsMany reports, for every requested question, whether participantID has
// upvoted it. Missing facts map to false.
func (u *upvote) ExistsMany(ctx context.Context, questionIDs []uuid.UUID, participantID uuid.UUID) (map[uuid.UUID]bool, error) {
	upvoted := make(map[uuid.UUID]bool, len(questionIDs))
	for _, id := range questionIDs {
		upvoted[id] = false
	}
	if len(questionIDs) == 0 {
		return upvoted, nil
	}

	var found []uuid.UUID
	result := u.db.WithContext(ctx).Model(&model.Upvote{}).
		Where("participant_id = ? AND question_id IN ?", participantID, idStrings(questionIDs)).
		Pluck("question_id", &found)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", dto.ErrStorageUnavailable, result.Error)
	}

	for _, id := range found {
		upvoted[id] = true
	}

	return upvoted, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
