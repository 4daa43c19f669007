package prompt

import (
    "encoding/json"
    "fmt"
    "strings"

    "github.com/bryanwahyu/telemetry-insight/internal/domain/ai"
)

const (
    maxExcerptChars = 150_000
    maxExcerptLines = 1200
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
    return `You are a professional racing engineer creating actionable telemetry insights for a single lap. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Schema:
{
  "summary": "<string>",
  "recommendations": [ { "title": "<string>", "detail": "<string>" } ],
  "sections": {
    "pace": "<string>",
    "braking": "<string>",
    "throttle": "<string>",
    "corners": "<string>",
    "sessionPlan": "<string>"
  },
  "segments": [
    { "name": "<string>", "issue": "<string>", "improvement": "<string>", "metric": "<string>" }
  ]
}

Requirements:
- Output must be a single JSON object with no text before or after it.
- If track or car details are missing in metadata, give general high-performance driving advice based on the telemetry patterns (g-forces, inputs).
- Always cite specific evidence: distances from corner, speeds (mph with kph in parentheses), gears, RPM, brake %, throttle %, lateral/longitudinal G values.
- Provide segment entries referencing specific corners or sequences, each with a non-empty metric summarizing the key signal.
- Never use vague directives; specify how to change the input (brake release profile, throttle ramp timing, line change with apex/exit description).
- Tailor recommendations to the data trends you see and avoid redundancy across sections and segments.`
}

// GetUserPrompt builds the user message with metadata, preview and excerpt.
func GetUserPrompt(req ai.InsightRequest) string {
    meta, _ := json.Marshal(map[string]string{
        "id":           req.UploadID,
        "filename":     req.Filename,
        "sim":          req.Sim,
        "track":        req.Track,
        "car":          req.Car,
        "session_date": req.SessionDate,
    })

    sample := req.RawSample
    if sample == "" {
        sample = "No preview rows provided."
    }
    excerpt := BuildExcerpt(req.FileText)
    if excerpt == "" {
        excerpt = "Raw CSV was empty."
    }

    return fmt.Sprintf("Metadata:\n%s\nPreview (first few rows):\n%s\nNormalized telemetry rows (start after headers):\n%s",
        meta, sample, excerpt)
}

// BuildExcerpt windows the raw file down to the data lines the model needs:
// find the header row (time + speed/distance), then cap lines and characters.
func BuildExcerpt(fileText string) string {
    normalized := make([]string, 0, maxExcerptLines)
    for _, line := range strings.FieldsFunc(fileText, func(r rune) bool { return r == '\n' || r == '\r' }) {
        line = strings.TrimSpace(strings.ReplaceAll(line, "\x00", ""))
        if line != "" {
            normalized = append(normalized, line)
        }
    }

    headerIndex := -1
    for i, line := range normalized {
        lower := strings.ToLower(line)
        if strings.Contains(lower, "time") && (strings.Contains(lower, "speed") || strings.Contains(lower, "distance")) {
            headerIndex = i
            break
        }
    }

    var dataLines []string
    if headerIndex == -1 {
        dataLines = normalized
    } else {
        dataLines = normalized[headerIndex:]
    }
    if len(dataLines) > maxExcerptLines {
        dataLines = dataLines[:maxExcerptLines]
    }

    excerpt := strings.Join(dataLines, "\n")
    if len(excerpt) > maxExcerptChars {
        excerpt = excerpt[:maxExcerptChars]
    }
    return excerpt
}
