package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/svcerr"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/txn"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrReportNotFound indicates the report does not exist.
	ErrReportNotFound = errors.New("moderation: report not found")
	// ErrInvalidReport indicates the report input failed validation.
	ErrInvalidReport = errors.New("moderation: invalid report")
	// ErrForbidden indicates the actor lacks the moderator role.
	ErrForbidden = errors.New("moderation: forbidden")
	// ErrReportClosed indicates the report is already closed.
	ErrReportClosed = errors.New("moderation: report already closed")
	// ErrReportOpen indicates the report is already pending.
	ErrReportOpen = errors.New("moderation: report already open")

	errMissingDatabase = errors.New("database handle is required")
	errMissingLoaders  = errors.New("snapshot loaders are required")
	noOpLogger         = zap.NewNop()
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Observer is told about every created or updated report.
type Observer interface {
	ReportChanged(ctx context.Context, report Report)
}

// ServiceConfig describes the dependencies of the moderation service.
type ServiceConfig struct {
	Database *gorm.DB
	Loaders  SnapshotLoaders
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service files and resolves reports.
type Service struct {
	db        *gorm.DB
	loaders   SnapshotLoaders
	clock     func() time.Time
	logger    *zap.Logger
	validate  *validator.Validate
	observers []Observer
}

// NewService constructs the moderation service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, svcerr.New("moderation.service.new", "missing_database", errMissingDatabase)
	}
	if len(cfg.Loaders) == 0 {
		return nil, svcerr.New("moderation.service.new", "missing_loaders", errMissingLoaders)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:       cfg.Database,
		loaders:  cfg.Loaders,
		clock:    clock,
		logger:   logger,
		validate: validator.New(),
	}, nil
}

// Observe registers an observer. It is not safe to call concurrently with writes.
func (s *Service) Observe(observer Observer) {
	if observer != nil {
		s.observers = append(s.observers, observer)
	}
}

// CreateReportInput describes a new report.
type CreateReportInput struct {
	ReportableType ReportableType `json:"reportable_type" validate:"required,oneof=post comment user"`
	ReportableID   uint64         `json:"reportable_id" validate:"required,gt=0"`
	Reason         string         `json:"reason" validate:"required,max=500"`
}

// CreateReport files a report from reporter and captures the snapshot of the reported entity.
func (s *Service) CreateReport(ctx context.Context, reporter users.User, input CreateReportInput) (Report, error) {
	const operation = "moderation.create_report"
	input.Reason = strings.TrimSpace(input.Reason)
	if err := s.validate.Struct(input); err != nil {
		return Report{}, svcerr.New(operation, "invalid_input", fmt.Errorf("%w: %v", ErrInvalidReport, err))
	}
	if input.ReportableType == ReportableUser && input.ReportableID == reporter.ID {
		return Report{}, svcerr.New(operation, "self_report", ErrInvalidReport)
	}

	var report Report
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		snapshot, err := s.loaders.Load(ctx, input.ReportableType, input.ReportableID)
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		snapshot.CapturedAt = now
		report = Report{
			ReporterID:     reporter.ID,
			ReportableType: input.ReportableType,
			ReportableID:   input.ReportableID,
			Reason:         input.Reason,
			Snapshot:       datatypes.NewJSONType(snapshot),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&report).Error; err != nil {
			s.logError(operation, "insert_failed", err, zap.Uint64("reporter_id", reporter.ID))
			return svcerr.New(operation, "insert_failed", err)
		}
		s.announce(ctx, report)
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

// CloseReport resolves a pending report.
func (s *Service) CloseReport(ctx context.Context, resolver users.User, reportID uint64, notes string) (Report, error) {
	const operation = "moderation.close_report"
	return s.update(ctx, operation, resolver, reportID, func(report Report) (map[string]interface{}, error) {
		if !report.Pending() {
			return nil, ErrReportClosed
		}
		updates := map[string]interface{}{
			"closed_at":   s.clock().UTC(),
			"resolver_id": resolver.ID,
		}
		if trimmed := strings.TrimSpace(notes); trimmed != "" {
			updates["notes"] = trimmed
		}
		return updates, nil
	})
}

// ReopenReport returns a closed report to the pending queue.
func (s *Service) ReopenReport(ctx context.Context, moderator users.User, reportID uint64) (Report, error) {
	const operation = "moderation.reopen_report"
	return s.update(ctx, operation, moderator, reportID, func(report Report) (map[string]interface{}, error) {
		if report.Pending() {
			return nil, ErrReportOpen
		}
		return map[string]interface{}{"closed_at": nil, "resolver_id": nil}, nil
	})
}

// UpdateNotes replaces the moderator notes of a report. An empty value clears them.
func (s *Service) UpdateNotes(ctx context.Context, moderator users.User, reportID uint64, notes string) (Report, error) {
	const operation = "moderation.update_notes"
	return s.update(ctx, operation, moderator, reportID, func(Report) (map[string]interface{}, error) {
		trimmed := strings.TrimSpace(notes)
		if trimmed == "" {
			return map[string]interface{}{"notes": nil}, nil
		}
		return map[string]interface{}{"notes": trimmed}, nil
	})
}

// GetReport loads a report for a moderator.
func (s *Service) GetReport(ctx context.Context, moderator users.User, reportID uint64) (Report, error) {
	if !moderator.CanModerate() {
		return Report{}, svcerr.New("moderation.get_report", "forbidden", ErrForbidden)
	}
	return s.load(ctx, reportID)
}

// ListOptions narrows a report listing.
type ListOptions struct {
	PendingOnly bool
	Limit       int
	BeforeID    uint64
}

// ListReports returns reports newest first.
func (s *Service) ListReports(ctx context.Context, moderator users.User, options ListOptions) ([]Report, error) {
	const operation = "moderation.list_reports"
	if !moderator.CanModerate() {
		return nil, svcerr.New(operation, "forbidden", ErrForbidden)
	}
	limit := options.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := txn.From(ctx, s.db)
	if options.PendingOnly {
		query = query.Where("closed_at IS NULL")
	}
	if options.BeforeID > 0 {
		query = query.Where("id < ?", options.BeforeID)
	}
	var reports []Report
	if err := query.Order("id DESC").Limit(limit).Find(&reports).Error; err != nil {
		s.logError(operation, "query_failed", err)
		return nil, svcerr.New(operation, "query_failed", err)
	}
	return reports, nil
}

// PendingCount counts reports without a closed timestamp.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	count, err := countPending(txn.From(ctx, s.db))
	if err != nil {
		return 0, svcerr.New("moderation.pending_count", "query_failed", err)
	}
	return count, nil
}

func (s *Service) update(ctx context.Context, operation string, moderator users.User, reportID uint64, change func(Report) (map[string]interface{}, error)) (Report, error) {
	if !moderator.CanModerate() {
		return Report{}, svcerr.New(operation, "forbidden", ErrForbidden)
	}
	var report Report
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		current, err := s.load(ctx, reportID)
		if err != nil {
			return err
		}
		updates, err := change(current)
		if err != nil {
			return svcerr.New(operation, "conflict", err)
		}
		updates["updated_at"] = s.clock().UTC()
		if err := tx.Model(&Report{}).Where("id = ?", reportID).Updates(updates).Error; err != nil {
			s.logError(operation, "update_failed", err, zap.Uint64("report_id", reportID))
			return svcerr.New(operation, "update_failed", err)
		}
		report, err = s.load(ctx, reportID)
		if err != nil {
			return err
		}
		s.announce(ctx, report)
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

func (s *Service) load(ctx context.Context, reportID uint64) (Report, error) {
	var report Report
	err := txn.From(ctx, s.db).Where("id = ?", reportID).Take(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Report{}, svcerr.New("moderation.get_report", "not_found", ErrReportNotFound)
	}
	if err != nil {
		return Report{}, svcerr.New("moderation.get_report", "query_failed", err)
	}
	return report, nil
}

func (s *Service) announce(ctx context.Context, report Report) {
	for _, observer := range s.observers {
		observer.ReportChanged(ctx, report)
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("moderation service error", attrs...)
}

func countPending(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&Report{}).Where("closed_at IS NULL").Count(&count).Error
	return count, err
}
