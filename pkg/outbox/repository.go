package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dkemp/subcycle-backend/pkg/db/models"
	"github.com/dkemp/subcycle-backend/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes the task inside the caller's transaction so the handoff
// commits or rolls back with the business write.
func (r *Repository) Insert(tx *gorm.DB, task models.OutboxTask) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&task).Error
}

// FetchUnprocessed returns pending tasks oldest first, capped at limit and
// skipping tasks that exhausted their attempts.
func (r *Repository) FetchUnprocessed(ctx context.Context, limit, maxAttempts int) ([]models.OutboxTask, error) {
	var rows []models.OutboxTask
	err := r.db.WithContext(ctx).
		Where("processed_at IS NULL").
		Where("attempt_count < ?", maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.OutboxTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed_at": time.Now(),
		}).Error
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	return r.db.WithContext(ctx).Model(&models.OutboxTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    cause.Error(),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// CountExhausted reports tasks that hit the attempt ceiling without being
// processed. They need operator attention.
func (r *Repository) CountExhausted(ctx context.Context, kind enums.OutboxTaskKind, maxAttempts int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OutboxTask{}).
		Where("processed_at IS NULL").
		Where("kind = ?", kind).
		Where("attempt_count >= ?", maxAttempts).
		Count(&count).Error
	return count, err
}
