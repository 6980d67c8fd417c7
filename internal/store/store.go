// Package store is the gorm backed persistence layer for profiles,
// models and slice jobs. The DSN selects the driver: postgres:// goes
// to Postgres, anything else is treated as a SQLite path.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/printforge/slicerd/internal/model"
)

type Store struct {
	db *gorm.DB
}

// Open connects to the database described by dsn and migrates the
// schema.
func Open(dsn string) (*Store, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&model.Profile{}, &model.Model{}, &model.SliceJob{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Profiles

func (s *Store) CreateProfile(ctx context.Context, p *model.Profile) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	var p model.Profile
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrProfileNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles returns a page of profiles ordered by creation time,
// newest first, plus the total count. Empty source means no filter.
func (s *Store) ListProfiles(ctx context.Context, source string, limit, offset int) ([]model.Profile, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Profile{})
	if source != "" {
		q = q.Where("source = ?", source)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []model.Profile
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateProfile applies a partial update: only the supplied columns
// change.
func (s *Store) UpdateProfile(ctx context.Context, id string, fields map[string]any) (*model.Profile, error) {
	if _, err := s.GetProfile(ctx, id); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		err := s.db.WithContext(ctx).Model(&model.Profile{ID: id}).Updates(fields).Error
		if err != nil {
			return nil, err
		}
	}
	return s.GetProfile(ctx, id)
}

func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	if _, err := s.GetProfile(ctx, id); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&model.Profile{ID: id}).Error
}

// Models

func (s *Store) CreateModel(ctx context.Context, m *model.Model) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *Store) GetModel(ctx context.Context, id string) (*model.Model, error) {
	var m model.Model
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrModelNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) ListModels(ctx context.Context, limit, offset int) ([]model.Model, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Model{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []model.Model
	err := q.Order("uploaded_at DESC").Limit(limit).Offset(offset).Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Jobs

func (s *Store) CreateJob(ctx context.Context, j *model.SliceJob) error {
	return s.db.WithContext(ctx).Create(j).Error
}

func (s *Store) GetJob(ctx context.Context, id string) (*model.SliceJob, error) {
	var j model.SliceJob
	err := s.db.WithContext(ctx).First(&j, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrSliceJobNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// SaveJob persists the whole job record. Only the orchestrator worker
// owning the job may call it.
func (s *Store) SaveJob(ctx context.Context, j *model.SliceJob) error {
	return s.db.WithContext(ctx).Save(j).Error
}

// ListExpiredJobs returns terminal jobs finished before the cutoff
// which still have output artifacts recorded.
func (s *Store) ListExpiredJobs(ctx context.Context, cutoff time.Time) ([]model.SliceJob, error) {
	var items []model.SliceJob
	err := s.db.WithContext(ctx).
		Where("status IN ?", []model.JobStatus{model.StatusCompleted, model.StatusFailed}).
		Where("finished_at < ?", cutoff).
		Where("gcode_path <> '' OR project_3mf_path <> ''").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
