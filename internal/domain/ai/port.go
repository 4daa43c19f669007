package ai

import "context"

// InsightRequest carries upload metadata plus the raw file text for the model.
type InsightRequest struct {
	UploadID    string
	Filename    string
	Sim         string
	Track       string
	Car         string
	SessionDate string
	RawSample   string
	FileText    string
}

// RawSections mirror the five report keys; any of them may come back blank.
type RawSections struct {
	Pace        string `json:"pace"`
	Braking     string `json:"braking"`
	Throttle    string `json:"throttle"`
	Corners     string `json:"corners"`
	SessionPlan string `json:"sessionPlan"`
}

type RawRecommendation struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type RawSegment struct {
	Name        string `json:"name"`
	Issue       string `json:"issue"`
	Improvement string `json:"improvement"`
	Metric      string `json:"metric,omitempty"`
}

// RawInsights is the untrusted model output, decoded but not yet validated.
type RawInsights struct {
	Summary          string              `json:"summary"`
	Recommendations  []RawRecommendation `json:"recommendations"`
	Sections         RawSections         `json:"sections"`
	Segments         []RawSegment        `json:"segments"`
	Model            string              `json:"-"`
	PromptTokens     int                 `json:"-"`
	CompletionTokens int                 `json:"-"`
}

// Unusable reports whether the response carries nothing worth normalizing.
func (r *RawInsights) Unusable() bool {
	if r == nil {
		return true
	}
	return r.Summary == "" &&
		len(r.Recommendations) == 0 &&
		r.Sections == (RawSections{}) &&
		len(r.Segments) == 0
}

// Client is the inference capability port. Implementations may be slow and may
// return malformed output; callers own the timeout.
type Client interface {
	GenerateInsights(ctx context.Context, req InsightRequest) (*RawInsights, error)
}
