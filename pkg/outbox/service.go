package outbox

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/dkemp/subcycle-backend/pkg/db/models"
	"github.com/dkemp/subcycle-backend/pkg/enums"
	"github.com/dkemp/subcycle-backend/pkg/logger"
)

// Service enqueues work that must survive the request that produced it. Tasks
// ride the same transaction as the business write, so a committed charge
// always leaves a confirmation task behind and a rolled-back one leaves
// nothing.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Enqueue marshals the payload and inserts the task in the caller's
// transaction. Delivery is at least once; consumers must tolerate replays.
func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, kind enums.OutboxTaskKind, payload any) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !kind.IsValid() {
		return errors.New("unknown outbox task kind")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	row := models.OutboxTask{
		Kind:    kind,
		Payload: json.RawMessage(data),
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"kind": string(kind)})
		s.logg.Info(logCtx, "outbox task queued")
	}
	return nil
}

// EnqueueStandalone opens its own transaction for callers that have no
// business write to ride along with, such as gateway callbacks.
func (s *Service) EnqueueStandalone(ctx context.Context, kind enums.OutboxTaskKind, payload any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.Enqueue(ctx, tx, kind, payload)
	})
}
