package store

import (
	"context"
	"errors"
	"time"

	"github.com/firesci/debrisflow/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FireQueryFilter struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

func NewFireQueryFilter() *FireQueryFilter {
	return &FireQueryFilter{}
}

func (f *FireQueryFilter) ByYear(year string) *FireQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("year = ?", year)
	})
	return f
}

func (f *FireQueryFilter) CompleteOnly() *FireQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("complete = ?", true)
	})
	return f
}

type Fire interface {
	List(ctx context.Context, filter *FireQueryFilter) (model.FireList, error)
	Get(ctx context.Context, id string) (*model.Fire, error)
	Upsert(ctx context.Context, fire model.Fire) (*model.Fire, error)
	Delete(ctx context.Context, id string) error
	InitialMigration() error
}

type FireStore struct {
	db *gorm.DB
}

// Make sure we conform to Fire interface
var _ Fire = (*FireStore)(nil)

func NewFireStore(db *gorm.DB) Fire {
	return &FireStore{db: db}
}

func (f *FireStore) InitialMigration() error {
	return f.db.AutoMigrate(&model.Fire{})
}

func (f *FireStore) List(ctx context.Context, filter *FireQueryFilter) (model.FireList, error) {
	var fires model.FireList
	tx := f.getDB(ctx).Model(&fires).Order("id")

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	result := tx.Find(&fires)
	if result.Error != nil {
		return nil, result.Error
	}
	return fires, nil
}

func (f *FireStore) Get(ctx context.Context, id string) (*model.Fire, error) {
	var fire model.Fire
	result := f.getDB(ctx).First(&fire, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &fire, nil
}

// Upsert writes the inventoried state of a fire, updating every mutable
// column when a row with the same id already exists.
func (f *FireStore) Upsert(ctx context.Context, fire model.Fire) (*model.Fire, error) {
	now := time.Now()
	fire.UpdatedAt = &now

	result := f.getDB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"year", "name", "folder", "size_mb",
			"perimeter_path", "dem_path", "dnbr_path", "metadata_path",
			"complete", "updated_at",
		}),
	}).Create(&fire)
	if result.Error != nil {
		return nil, result.Error
	}
	return &fire, nil
}

func (f *FireStore) Delete(ctx context.Context, id string) error {
	result := f.getDB(ctx).Unscoped().Delete(&model.Fire{}, "id = ?", id)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

func (f *FireStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return f.db
}
