package telemetry

import (
	"time"
)

// ID tipe untuk Upload
type UploadID string

// SimTitle enum
type SimTitle string

const (
	SimIRacing  SimTitle = "iRacing"
	SimACC      SimTitle = "ACC"
	SimAC       SimTitle = "AC"
	SimRFactor2 SimTitle = "rFactor2"
	SimAMS2     SimTitle = "AMS2"
	SimF1       SimTitle = "F1"
	SimOther    SimTitle = "Other"
)

// UploadStatus enum
type UploadStatus string

const (
	UploadStatusUploaded   UploadStatus = "uploaded"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusReported   UploadStatus = "reported"
	UploadStatusError      UploadStatus = "error"
)

// Aggregate Root: Upload
type Upload struct {
	ID           UploadID     `json:"id"`
	TenantID     string       `json:"tenant_id"`
	Filename     string       `json:"filename"`
	StoragePath  string       `json:"storage_path"`
	SizeBytes    int64        `json:"size_bytes"`
	Sim          SimTitle     `json:"sim,omitempty"`
	Track        string       `json:"track,omitempty"`
	Car          string       `json:"car,omitempty"`
	SessionDate  string       `json:"session_date,omitempty"`
	Status       UploadStatus `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}
