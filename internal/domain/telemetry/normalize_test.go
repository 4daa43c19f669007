package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/telemetry-insight/internal/domain/ai"
)

func fullRaw() *ai.RawInsights {
	return &ai.RawInsights{
		Summary: "Strong pace overall.",
		Recommendations: []ai.RawRecommendation{
			{Title: "Brake later into T1", Detail: "Move the marker 10m deeper."},
		},
		Sections: ai.RawSections{
			Pace:        "Consistent lap flow.",
			Braking:     "Late, stable releases.",
			Throttle:    "Smooth ramps.",
			Corners:     "Good line choice.",
			SessionPlan: "Work on exits next.",
		},
		Segments: []ai.RawSegment{
			{Name: "T1", Issue: "Early turn-in", Improvement: "Delay apex by 2m", Metric: "Entry 136 mph"},
		},
	}
}

func TestNormalizeOK(t *testing.T) {
	body := Normalize(fullRaw(), Preview{}, false)

	assert.Equal(t, ReportStatusOK, body.Status)
	assert.Empty(t, body.MissingSections)
	assert.Equal(t, "Strong pace overall.", body.Summary)
	assert.Len(t, body.Segments, 1)
	assert.Len(t, body.Recommendations, 1)
	assert.Equal(t, "Consistent lap flow.", body.Sections.Pace)
}

func TestNormalizeAllSectionsMissing(t *testing.T) {
	raw := fullRaw()
	raw.Sections = ai.RawSections{}

	body := Normalize(raw, Preview{}, false)

	assert.Equal(t, ReportStatusPartial, body.Status)
	assert.Equal(t, SectionKeys, body.MissingSections)
	for _, s := range []string{body.Sections.Pace, body.Sections.Braking, body.Sections.Throttle, body.Sections.Corners, body.Sections.SessionPlan} {
		assert.Equal(t, "Analysis unavailable for this section.", s)
	}
}

func TestNormalizeFailedMode(t *testing.T) {
	body := Normalize(nil, Preview{}, true)

	assert.Equal(t, ReportStatusFailed, body.Status)
	assert.Equal(t, SectionKeys, body.MissingSections)
	assert.Equal(t, "Analysis failed for this section.", body.Sections.Pace)
	assert.Equal(t, "Summary unavailable.", body.Summary)

	// exactly one synthesized segment with failure wording
	assert.Len(t, body.Segments, 1)
	assert.Equal(t, "Analysis Failed", body.Segments[0].Name)
	assert.Equal(t, "We could not generate corner insights due to an error.", body.Segments[0].Issue)
	assert.NotEmpty(t, body.Segments[0].Improvement)
}

func TestNormalizeBlankSectionCountsAsMissing(t *testing.T) {
	raw := fullRaw()
	raw.Sections.Braking = "   "

	body := Normalize(raw, Preview{}, false)

	assert.Equal(t, ReportStatusPartial, body.Status)
	assert.Equal(t, []string{"braking"}, body.MissingSections)
	assert.Equal(t, "Analysis unavailable for this section.", body.Sections.Braking)
	// the others survive untouched
	assert.Equal(t, "Consistent lap flow.", body.Sections.Pace)
}

func TestNormalizeDropsInvalidSegments(t *testing.T) {
	raw := fullRaw()
	raw.Segments = []ai.RawSegment{
		{Name: "T1", Issue: "ok", Improvement: "ok"},
		{Name: "", Issue: "no name", Improvement: "dropped"},
		{Name: "T3", Issue: "", Improvement: "dropped"},
		{Name: "T4", Issue: "no improvement", Improvement: "  "},
	}

	body := Normalize(raw, Preview{}, false)

	assert.Len(t, body.Segments, 1)
	assert.Equal(t, "T1", body.Segments[0].Name)
	assert.Equal(t, ReportStatusOK, body.Status)
}

func TestNormalizeSynthesizesSegmentWhenNoneValid(t *testing.T) {
	raw := fullRaw()
	raw.Segments = []ai.RawSegment{{Name: "", Issue: "", Improvement: ""}}

	body := Normalize(raw, Preview{}, false)

	assert.Equal(t, ReportStatusPartial, body.Status)
	assert.Len(t, body.Segments, 1)
	assert.Equal(t, "No Insights", body.Segments[0].Name)
	// sections were all present, only segments were synthesized
	assert.Empty(t, body.MissingSections)
}

func TestNormalizeFiltersRecommendations(t *testing.T) {
	raw := fullRaw()
	raw.Recommendations = []ai.RawRecommendation{
		{Title: "Keep", Detail: "this one"},
		{Title: "", Detail: "no title"},
		{Title: "no detail", Detail: "  "},
	}

	body := Normalize(raw, Preview{}, false)

	assert.Len(t, body.Recommendations, 1)
	assert.Equal(t, "Keep", body.Recommendations[0].Title)
}

func TestNormalizeEmptyRecommendationsStayEmpty(t *testing.T) {
	raw := fullRaw()
	raw.Recommendations = nil

	body := Normalize(raw, Preview{}, false)

	assert.Empty(t, body.Recommendations)
	// empty recommendations alone do not degrade the status
	assert.Equal(t, ReportStatusOK, body.Status)
}

func TestNormalizeCarriesPreview(t *testing.T) {
	preview := ParsePreview("a,b\n1,2")
	body := Normalize(fullRaw(), preview, false)

	assert.Equal(t, preview, body.Preview)
}
