package model

import (
	"encoding/json"
	"time"
)

// Fire is the persisted snapshot of an inventoried fire. The filesystem stays
// the source of truth; rows exist so later runs can skip completed work
// without probing directories.
type Fire struct {
	ID            string `gorm:"primaryKey;column:id;type:VARCHAR(255);"`
	CreatedAt     time.Time
	UpdatedAt     *time.Time
	Year          string `gorm:"not null;index:fires_year_idx;type:VARCHAR(16)"`
	Name          string `gorm:"not null"`
	Folder        string
	SizeMB        float64
	PerimeterPath string
	DEMPath       string
	DNBRPath      string
	MetadataPath  string
	Complete      bool
	StageRuns     []StageRun `gorm:"foreignKey:FireID;references:ID;constraint:OnDelete:CASCADE;"`
}

type FireList []Fire

func (f Fire) String() string {
	val, _ := json.Marshal(f)
	return string(val)
}
