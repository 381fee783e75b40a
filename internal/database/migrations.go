package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/notifications"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillNotificationContext = "2026-10-01_backfill_notification_context"

	backfillBatchSize = 500
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillNotificationContext, apply: backfillNotificationContext},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillNotificationContext copies data.context into the indexed context columns for mention
// and comment rows inserted by external writers (imports, manual SQL) that only filled the JSON
// payload. Rows without those columns are invisible to the post and comment cascades.
func backfillNotificationContext(db *gorm.DB) error {
	var lastID uint64
	for {
		var batch []notifications.Notification
		err := db.Where("context_type = ? AND type IN ? AND id > ?", "",
			[]notifications.Type{notifications.TypeMention, notifications.TypeComment}, lastID).
			Order("id").
			Limit(backfillBatchSize).
			Find(&batch).Error
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, notification := range batch {
			lastID = notification.ID
			target := notification.Payload().Context
			if target == nil {
				continue
			}
			if err := db.Model(&notifications.Notification{}).
				Where("id = ?", notification.ID).
				Updates(map[string]interface{}{"context_type": target.Type, "context_id": target.ID}).Error; err != nil {
				return err
			}
		}
	}
}
