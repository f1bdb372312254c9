package repository

import (
	"context"
	"errors"

	"github.com/Quid-proquo/Quid/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// submissionRepository implements SubmissionRepository and StakeRepository
type submissionRepository struct {
	db *gorm.DB
}

// newSubmissionRepository creates a repository for submissions and their stakes
func newSubmissionRepository(db *gorm.DB) *submissionRepository {
	return &submissionRepository{db: db}
}

// GetSubmission retrieves a submission by (mission, hunter)
func (r *submissionRepository) GetSubmission(ctx context.Context, missionID uint64, hunter string) (*models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("mission_id = ? AND hunter = ?", missionID, hunter).
		First(&submission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &submission, nil
}

// SaveSubmission inserts or updates a submission
func (r *submissionRepository) SaveSubmission(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

// DeleteSubmission deletes a submission
func (r *submissionRepository) DeleteSubmission(ctx context.Context, missionID uint64, hunter string) error {
	return r.db.WithContext(ctx).
		Where("mission_id = ? AND hunter = ?", missionID, hunter).
		Delete(&models.Submission{}).Error
}

// ListSubmissions finds submissions of one mission
func (r *submissionRepository) ListSubmissions(ctx context.Context, missionID uint64) ([]*models.Submission, error) {
	var submissions []*models.Submission
	err := r.db.WithContext(ctx).
		Where("mission_id = ?", missionID).
		Order("created_at ASC, hunter ASC").
		Find(&submissions).Error
	return submissions, err
}

// GetStake retrieves the stake escrow record for (mission, hunter)
func (r *submissionRepository) GetStake(ctx context.Context, missionID uint64, hunter string) (*models.Stake, error) {
	var stake models.Stake
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("mission_id = ? AND hunter = ?", missionID, hunter).
		First(&stake).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &stake, nil
}

// SaveStake inserts or updates a stake
func (r *submissionRepository) SaveStake(ctx context.Context, stake *models.Stake) error {
	return r.db.WithContext(ctx).Save(stake).Error
}

// DeleteStake deletes a stake record
func (r *submissionRepository) DeleteStake(ctx context.Context, missionID uint64, hunter string) error {
	return r.db.WithContext(ctx).
		Where("mission_id = ? AND hunter = ?", missionID, hunter).
		Delete(&models.Stake{}).Error
}

// ListStakes returns every live stake
func (r *submissionRepository) ListStakes(ctx context.Context) ([]*models.Stake, error) {
	var stakes []*models.Stake
	err := r.db.WithContext(ctx).
		Order("mission_id ASC, hunter ASC").
		Find(&stakes).Error
	return stakes, err
}
