package store

import (
	"context"
	"errors"

	"github.com/firesci/debrisflow/internal/store/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StageRun interface {
	Create(ctx context.Context, run model.StageRun) (*model.StageRun, error)
	Latest(ctx context.Context, fireID, stage string) (*model.StageRun, error)
	List(ctx context.Context, fireID string) (model.StageRunList, error)
	InitialMigration() error
}

type StageRunStore struct {
	db *gorm.DB
}

// Make sure we conform to StageRun interface
var _ StageRun = (*StageRunStore)(nil)

func NewStageRunStore(db *gorm.DB) StageRun {
	return &StageRunStore{db: db}
}

func (s *StageRunStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.StageRun{})
}

func (s *StageRunStore) Create(ctx context.Context, run model.StageRun) (*model.StageRun, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	result := s.getDB(ctx).Create(&run)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &run, nil
}

// Latest returns the most recent run recorded for a fire and stage, or
// ErrRecordNotFound when the stage has never run.
func (s *StageRunStore) Latest(ctx context.Context, fireID, stage string) (*model.StageRun, error) {
	var run model.StageRun
	result := s.getDB(ctx).
		Where("fire_id = ? AND stage = ?", fireID, stage).
		Order("created_at DESC").
		First(&run)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &run, nil
}

func (s *StageRunStore) List(ctx context.Context, fireID string) (model.StageRunList, error) {
	var runs model.StageRunList
	result := s.getDB(ctx).
		Where("fire_id = ?", fireID).
		Order("created_at").
		Find(&runs)
	if result.Error != nil {
		return nil, result.Error
	}
	return runs, nil
}

func (s *StageRunStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
