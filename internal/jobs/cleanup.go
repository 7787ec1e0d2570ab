package jobs

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"glance/internal/config"
	"glance/internal/database"
	"glance/internal/events"
	"glance/internal/sessions"
)

// cleanupBatchSize bounds each delete so the writer lock is held briefly.
const cleanupBatchSize = 1000

// CleanupJob removes events and sessions older than the retention period.
// A retention of zero days disables the job.
type CleanupJob struct {
	dbManager *database.Manager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewCleanupJob(dbManager *database.Manager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{dbManager: dbManager, logger: logger, cfg: cfg}
}

func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.EventRetentionDays
	if retentionDays <= 0 {
		j.logger.Debug("Event retention disabled, skipping cleanup")
		return nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	j.logger.Info("Starting retention cleanup",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff", cutoff))

	deletedEvents, err := j.deleteInBatches(&events.Event{}, cutoff)
	if err != nil {
		return err
	}
	deletedSessions, err := j.deleteInBatches(&sessions.Session{}, cutoff)
	if err != nil {
		return err
	}

	if deletedEvents > 0 || deletedSessions > 0 {
		j.logger.Info("Retention cleanup finished",
			slog.Int64("events_deleted", deletedEvents),
			slog.Int64("sessions_deleted", deletedSessions))
	}
	return nil
}

// deleteInBatches removes matching rows in fixed-size chunks through the
// serialized write path, so each batch holds the writer lock briefly.
func (j *CleanupJob) deleteInBatches(model interface{}, cutoff time.Time) (int64, error) {
	var total int64

	for {
		var affected int64
		err := j.dbManager.PerformWrite(func(tx *gorm.DB) error {
			result := tx.Where("created_at < ?", cutoff).
				Limit(cleanupBatchSize).
				Delete(model)
			affected = result.RowsAffected
			return result.Error
		})
		if err != nil {
			j.logger.Error("Retention delete batch failed", slog.Any("error", err))
			return total, err
		}

		total += affected
		if affected < cleanupBatchSize {
			return total, nil
		}
	}
}
