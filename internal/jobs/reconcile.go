package jobs

import (
	"log/slog"

	"gorm.io/gorm"

	"glance/internal/database"
	"glance/internal/events"
	"glance/internal/visitors"
)

// ReconcileJob merges duplicate rows left behind by concurrent first
// sights: visitor rows sharing a (website, hash) pair and error rows
// sharing a content hash. Both passes are idempotent.
type ReconcileJob struct {
	dbManager *database.Manager
	logger    *slog.Logger
}

func NewReconcileJob(dbManager *database.Manager, logger *slog.Logger) *ReconcileJob {
	return &ReconcileJob{dbManager: dbManager, logger: logger}
}

func (j *ReconcileJob) Run() error {
	var merged int64

	err := j.dbManager.PerformWrite(func(tx *gorm.DB) error {
		var err error
		merged, err = visitors.ReconcileDuplicates(tx, j.logger)
		return err
	})
	if err != nil {
		return err
	}
	if merged > 0 {
		j.logger.Info("Merged duplicate visitors", slog.Int64("merged", merged))
	}

	err = j.dbManager.PerformWrite(func(tx *gorm.DB) error {
		var err error
		merged, err = events.ReconcileDuplicateErrors(tx)
		return err
	})
	if err != nil {
		return err
	}
	if merged > 0 {
		j.logger.Info("Merged duplicate js errors", slog.Int64("merged", merged))
	}

	return nil
}
