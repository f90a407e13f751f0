package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dkemp/subcycle-backend/pkg/enums"
)

// OutboxTask is one unit of asynchronous work handed off with at-least-once
// delivery. Confirmation payloads land here in the same transaction as the
// submission bookkeeping and are drained by the reconcile dispatcher.
type OutboxTask struct {
	ID           uuid.UUID            `gorm:"type:uuid;primaryKey"`
	Kind         enums.OutboxTaskKind `gorm:"column:kind;not null;index"`
	Payload      json.RawMessage      `gorm:"column:payload;type:jsonb;not null"`
	AttemptCount int                  `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string              `gorm:"column:last_error"`
	ProcessedAt  *time.Time           `gorm:"column:processed_at;index"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (OutboxTask) TableName() string { return "outbox_tasks" }

func (t *OutboxTask) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
