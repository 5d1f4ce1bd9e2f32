package core

import (
	"encoding/json"
	"time"
)

// Row is one parsed record of an uploaded table: column name to scalar
// (float64, string, bool or nil).
type Row = map[string]any

// Plan names recognised by the usage limiter.
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// User is the request identity resolved from the X-User-Id / X-User-Plan headers.
type User struct {
	ID        string    `json:"id"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"createdAt"`
}

// Batch groups the files of one upload. All files share one strategy.
type Batch struct {
	ID           string       `json:"id"`
	UserID       string       `json:"userId"`
	StrategyName string       `json:"strategyName"`
	CreatedAt    time.Time    `json:"createdAt"`
	Files        []FileRecord `json:"files"`
}

// FileRecord describes one stored trade-list file of a batch.
type FileRecord struct {
	ID          string    `json:"id"`
	BatchID     string    `json:"batchId"`
	Ticker      string    `json:"ticker"`
	Strategy    string    `json:"strategy"`
	ExportDate  time.Time `json:"exportDate"`
	Filename    string    `json:"filename"`
	ObjectKey   string    `json:"objectKey"`
	RowsParsed  int       `json:"rowsParsed"`
	RowsSkipped int       `json:"rowsSkipped"`
	Warnings    []string  `json:"warnings"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RunRecord is a persisted portfolio run. Result holds the encoded run output.
type RunRecord struct {
	ID           string          `json:"id"`
	BatchID      string          `json:"batchId"`
	Currency     string          `json:"currency"`
	TotalCapital float64         `json:"totalCapital"`
	DateStart    *time.Time      `json:"dateStart"`
	DateEnd      *time.Time      `json:"dateEnd"`
	CreatedAt    time.Time       `json:"createdAt"`
	Result       json.RawMessage `json:"result"`
}

// Usage counts a user's activity on one UTC day.
type Usage struct {
	UserID        string `json:"userId"`
	Day           string `json:"day"` // YYYY-MM-DD
	FilesUploaded int    `json:"filesUploaded"`
	Runs          int    `json:"runs"`
}

// Feedback is a free-form message left by a user.
type Feedback struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Rating    *int      `json:"rating,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
