package repositories

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/anonto42/folio/backend/internal/errbus"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/tasks"
	"gorm.io/gorm"
)

// DiagnosticsRepository persists permission rejections for later inspection
type DiagnosticsRepository interface {
	Record(ctx context.Context, d *models.PermissionDiagnostic) error
	Recent(ctx context.Context, uid string, limit int) ([]models.PermissionDiagnostic, error)
}

// PostgresDiagnosticsRepository implements DiagnosticsRepository for PostgreSQL
type PostgresDiagnosticsRepository struct {
	db *gorm.DB
}

// NewPostgresDiagnosticsRepository creates a new PostgresDiagnosticsRepository
func NewPostgresDiagnosticsRepository(db *gorm.DB) *PostgresDiagnosticsRepository {
	return &PostgresDiagnosticsRepository{db: db}
}

// Migrate creates or updates the diagnostics table.
func (r *PostgresDiagnosticsRepository) Migrate() error {
	return r.db.AutoMigrate(&models.PermissionDiagnostic{})
}

func (r *PostgresDiagnosticsRepository) Record(ctx context.Context, d *models.PermissionDiagnostic) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *PostgresDiagnosticsRepository) Recent(ctx context.Context, uid string, limit int) ([]models.PermissionDiagnostic, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	var rows []models.PermissionDiagnostic
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if uid != "" {
		q = q.Where("user_id = ?", uid)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DiagnosticFrom converts a rejection into its stored row.
func DiagnosticFrom(e errbus.PermissionError) *models.PermissionDiagnostic {
	d := &models.PermissionDiagnostic{
		UserID:    e.UID,
		Path:      e.Path,
		Operation: e.Operation,
		CreatedAt: e.At,
	}
	if e.Err != nil {
		d.Error = e.Err.Error()
	}
	if len(e.Payload) > 0 {
		if raw, err := json.Marshal(e.Payload); err == nil {
			d.Payload = string(raw)
		} else {
			d.Payload = err.Error()
		}
	}
	return d
}

// DiagnosticsListener records each rejection on the background runner. It
// never waits for a slot: rejections raised from inside a runner task would
// otherwise hold the slot they wait for. Rows are dropped while the runner is
// saturated.
func DiagnosticsListener(repo DiagnosticsRepository, runner *tasks.Runner, logger *slog.Logger) errbus.Listener {
	return func(e errbus.PermissionError) {
		row := DiagnosticFrom(e)
		err := runner.TryGo("diagnostics.record", func(ctx context.Context) error {
			return repo.Record(ctx, row)
		})
		if err != nil {
			logger.Warn("dropping permission diagnostic", "path", e.Path, "error", err)
		}
	}
}
