package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/firesci/debrisflow/internal/store/model"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Fire() Fire
	StageRun() StageRun
	Statistics(ctx context.Context) (model.ArchiveStats, error)
	InitialMigration() error
	Close() error
}

type DataStore struct {
	fire     Fire
	stageRun StageRun
	db       *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		fire:     NewFireStore(db),
		stageRun: NewStageRunStore(db),
		db:       db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Fire() Fire {
	return s.fire
}

func (s *DataStore) StageRun() StageRun {
	return s.stageRun
}

func (s *DataStore) Statistics(ctx context.Context) (model.ArchiveStats, error) {
	fires, err := s.Fire().List(ctx, NewFireQueryFilter())
	if err != nil {
		return model.ArchiveStats{}, err
	}
	return model.NewArchiveStats(fires), nil
}

func (s *DataStore) InitialMigration() error {
	if err := s.fire.InitialMigration(); err != nil {
		return err
	}
	return s.stageRun.InitialMigration()
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
