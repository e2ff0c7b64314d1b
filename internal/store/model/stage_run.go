package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Pipeline stages recorded per fire.
const (
	StageExtract    = "extract"
	StageInventory  = "inventory"
	StageValidate   = "validate"
	StageClip       = "clip"
	StageUpload     = "upload"
	StageDownload   = "download"
	StageInitialize = "initialize"
	StagePreprocess = "preprocess"
	StageAssess     = "assess"
	StageExport     = "export"
	StageRasterize  = "rasterize"
	StageReport     = "report"
)

// Terminal states of a stage run.
const (
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateSkipped   = "skipped"
)

// Failure classification. Memory failures are counted separately so batch
// summaries can tell exhaustion apart from everything else.
const (
	ErrorKindMemory  = "memory"
	ErrorKindGeneric = "generic"
)

type StageRun struct {
	ID         uuid.UUID `gorm:"primaryKey;column:id;type:VARCHAR(255);"`
	CreatedAt  time.Time
	FireID     string `gorm:"not null;index:stage_runs_fire_idx;type:VARCHAR(255)"`
	Stage      string `gorm:"not null;index:stage_runs_stage_idx;type:VARCHAR(100)"`
	State      string `gorm:"not null;type:VARCHAR(50)"`
	Error      string
	ErrorKind  string `gorm:"type:VARCHAR(50)"`
	DurationMs int64
}

type StageRunList []StageRun

func (s StageRun) String() string {
	val, _ := json.Marshal(s)
	return string(val)
}
