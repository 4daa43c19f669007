package telemetry

import (
	"strings"

	"github.com/bryanwahyu/telemetry-insight/internal/domain/ai"
)

// Placeholder wording depends on whether the upstream call failed outright or
// just omitted pieces.
const (
	sectionFailedText      = "Analysis failed for this section."
	sectionUnavailableText = "Analysis unavailable for this section."
)

// Normalize repairs untrusted model output into a complete, renderable body and
// classifies the degradation. failed=true means the upstream call never
// completed usably; raw may be nil in that case. Malformed input never errors,
// it only degrades the classification.
func Normalize(raw *ai.RawInsights, preview Preview, failed bool) ReportBody {
	var src ai.RawInsights
	if raw != nil {
		src = *raw
	}

	sections, missing := ensureSections(src.Sections, failed)
	segments, segmentsMissing := ensureSegments(src.Segments, failed)

	status := ReportStatusOK
	if failed {
		status = ReportStatusFailed
	} else if len(missing) > 0 || segmentsMissing {
		status = ReportStatusPartial
	}

	summary := strings.TrimSpace(src.Summary)
	if summary == "" {
		summary = "Summary unavailable."
	}

	return ReportBody{
		Summary:         summary,
		Recommendations: filterRecommendations(src.Recommendations),
		Preview:         preview,
		Sections:        sections,
		Segments:        segments,
		Status:          status,
		MissingSections: missing,
	}
}

// ensureSections guarantees all five keys resolve to non-empty strings and
// records which ones had to be synthesized.
func ensureSections(raw ai.RawSections, failed bool) (ReportSections, []string) {
	placeholder := sectionUnavailableText
	if failed {
		placeholder = sectionFailedText
	}

	values := map[string]string{
		"pace":        raw.Pace,
		"braking":     raw.Braking,
		"throttle":    raw.Throttle,
		"corners":     raw.Corners,
		"sessionPlan": raw.SessionPlan,
	}

	missing := []string{}
	for _, key := range SectionKeys {
		v := strings.TrimSpace(values[key])
		if v == "" {
			v = placeholder
			missing = append(missing, key)
		}
		values[key] = v
	}

	return ReportSections{
		Pace:        values["pace"],
		Braking:     values["braking"],
		Throttle:    values["throttle"],
		Corners:     values["corners"],
		SessionPlan: values["sessionPlan"],
	}, missing
}

// ensureSegments drops entries missing a required field; when nothing valid
// remains it synthesizes exactly one placeholder entry and flags segments as
// missing.
func ensureSegments(raw []ai.RawSegment, failed bool) ([]SegmentInsight, bool) {
	cleaned := make([]SegmentInsight, 0, len(raw))
	for _, seg := range raw {
		name := strings.TrimSpace(seg.Name)
		issue := strings.TrimSpace(seg.Issue)
		improvement := strings.TrimSpace(seg.Improvement)
		if name == "" || issue == "" || improvement == "" {
			continue
		}
		cleaned = append(cleaned, SegmentInsight{
			Name:        name,
			Issue:       issue,
			Improvement: improvement,
			Metric:      strings.TrimSpace(seg.Metric),
		})
	}
	if len(cleaned) > 0 {
		return cleaned, false
	}

	placeholder := SegmentInsight{
		Name:        "No Insights",
		Issue:       "No specific corner insights were generated for this session.",
		Improvement: "Try uploading a clearer telemetry file.",
	}
	if failed {
		placeholder.Name = "Analysis Failed"
		placeholder.Issue = "We could not generate corner insights due to an error."
	}
	return []SegmentInsight{placeholder}, true
}

// filterRecommendations keeps entries with both fields set; an empty list is
// acceptable, nothing is synthesized here.
func filterRecommendations(raw []ai.RawRecommendation) []Recommendation {
	out := make([]Recommendation, 0, len(raw))
	for _, rec := range raw {
		title := strings.TrimSpace(rec.Title)
		detail := strings.TrimSpace(rec.Detail)
		if title == "" || detail == "" {
			continue
		}
		out = append(out, Recommendation{Title: title, Detail: detail})
	}
	return out
}
