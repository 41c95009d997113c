package models

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionKind string

const (
	KindScore     ExecutionKind = "score"
	KindCalibrate ExecutionKind = "calibrate"
)

type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

type Execution struct {
	ID              int64           `json:"id"`
	RunID           uuid.UUID       `json:"run_id"`
	Kind            ExecutionKind   `json:"kind"`
	DatasetID       *int64          `json:"dataset_id,omitempty"`
	ParametersSetID *int64          `json:"parameters_set_id,omitempty"`
	Method          *string         `json:"method,omitempty"`
	Status          ExecutionStatus `json:"status"`
	Notes           *string         `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type ParameterSet struct {
	ID        int64            `json:"id"`
	Name      *string          `json:"name,omitempty"`
	IsAnchor  bool             `json:"is_anchor"`
	CreatedAt time.Time        `json:"created_at"`
	Items     []ItemParameters `json:"items"`
}

type ExecutionList struct {
	Executions []Execution `json:"executions"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}
