package genjob

import (
	"bytes"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type Kind string

const (
	KindArticle Kind = "article"
	KindImage   Kind = "image"
)

// Progress checkpoints written by the Processor.
const (
	ProgressQueued      = 0
	ProgressStarted     = 10
	ProgressStreaming   = 30
	ProgressMainContent = 60
	ProgressDone        = 100
)

type Job struct {
	ID string `gorm:"primaryKey;size:26;index:idx_gen_job_user_id,priority:2"` // ULID length

	UserID uint64 `gorm:"not null;index:idx_gen_job_user_id,priority:1;index:uniq_gen_job_idempo,unique,priority:1"`
	Kind   Kind   `gorm:"type:varchar(16);not null"`

	// immutable after creation
	Input datatypes.JSON `gorm:"not null"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_gen_job_idempo,unique,priority:2"`

	Status   Status `gorm:"type:varchar(16);index;not null"`
	Progress int    `gorm:"not null;default:0"`

	// preview while processing, cleared once terminal
	PartialContent *string `gorm:"type:text"`

	// Filled when completed
	ResultData datatypes.JSON

	// Filled when failed
	ErrorMessage *string `gorm:"type:text"`

	Attempts   int       `gorm:"not null;default:0"`
	DeadlineAt time.Time `gorm:"index"`
	EnqueuedAt time.Time `gorm:"index"`
	StartedAt  *time.Time
	FinishedAt *time.Time `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string { return "generation_jobs" }

func (j *Job) HasResult() bool { return hasJSON(j.ResultData) }

func hasJSON(b datatypes.JSON) bool {
	t := bytes.TrimSpace(b)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

// View is the poller-facing representation of a job.
type View struct {
	ID             string          `json:"id"`
	Kind           Kind            `json:"kind"`
	Status         Status          `json:"status"`
	Progress       int             `json:"progress"`
	PartialContent *string         `json:"partial_content,omitempty"`
	ResultData     json.RawMessage `json:"result_data,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	Input          json.RawMessage `json:"input,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

func (j *Job) View() View {
	v := View{
		ID:             j.ID,
		Kind:           j.Kind,
		Status:         j.Status,
		Progress:       j.Progress,
		PartialContent: j.PartialContent,
		ErrorMessage:   j.ErrorMessage,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		FinishedAt:     j.FinishedAt,
	}
	if hasJSON(j.Input) {
		v.Input = json.RawMessage(j.Input)
	}
	if j.HasResult() {
		v.ResultData = json.RawMessage(j.ResultData)
	}
	return v
}
