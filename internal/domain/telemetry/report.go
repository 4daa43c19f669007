package telemetry

import "time"

// ReportStatus enum: how much of the AI output was usable
type ReportStatus string

const (
	ReportStatusOK      ReportStatus = "ok"
	ReportStatusPartial ReportStatus = "partial"
	ReportStatusFailed  ReportStatus = "failed"
)

// ReportSections are the five fixed keys every report must carry.
type ReportSections struct {
	Pace        string `json:"pace"`
	Braking     string `json:"braking"`
	Throttle    string `json:"throttle"`
	Corners     string `json:"corners"`
	SessionPlan string `json:"sessionPlan"`
}

// SectionKeys in render order.
var SectionKeys = []string{"pace", "braking", "throttle", "corners", "sessionPlan"}

// SegmentInsight is one corner/sequence observation.
type SegmentInsight struct {
	Name        string `json:"name"`
	Issue       string `json:"issue"`
	Improvement string `json:"improvement"`
	Metric      string `json:"metric,omitempty"`
}

// Recommendation pair title + detail
type Recommendation struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// ReportBody is the normalized, always-renderable report payload.
type ReportBody struct {
	Summary         string           `json:"summary"`
	Recommendations []Recommendation `json:"recommendations"`
	Preview         Preview          `json:"preview"`
	Sections        ReportSections   `json:"sections"`
	Segments        []SegmentInsight `json:"segments"`
	Status          ReportStatus     `json:"status"`
	MissingSections []string         `json:"missingSections"`
}

// Report is a derived artifact, upserted by the orchestrator (upload_id unique).
type Report struct {
	ID               string     `json:"id"`
	UploadID         UploadID   `json:"upload_id"`
	Model            string     `json:"model,omitempty"`
	PromptTokens     int        `json:"prompt_tokens,omitempty"`
	CompletionTokens int        `json:"completion_tokens,omitempty"`
	Body             ReportBody `json:"report"`
	CreatedAt        time.Time  `json:"created_at"`
}
