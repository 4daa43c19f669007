package telemetry

import "strings"

const (
	maxPreviewRows  = 20
	maxPreviewChars = 32_000
)

// Preview is a bounded structural sample of an uploaded file.
type Preview struct {
	Delimiter string     `json:"delimiter"`
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
	RawSample string     `json:"rawSample"`
	Truncated bool       `json:"truncated"`
}

func splitRows(text string) []string {
	lines := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// detectDelimiter is a heuristic against the first line, not a full CSV sniffer:
// comma wins, else tab, else single space.
func detectDelimiter(line string) string {
	if strings.Contains(line, ",") {
		return ","
	}
	if strings.Contains(line, "\t") {
		return "\t"
	}
	return " "
}

// ParsePreview builds a bounded preview from raw file text. Pure, no I/O, never
// fails; hostile input is capped before any splitting.
func ParsePreview(contents string) Preview {
	sliced := contents
	if len(sliced) > maxPreviewChars {
		sliced = sliced[:maxPreviewChars]
	}
	lines := splitRows(sliced)

	if len(lines) == 0 {
		return Preview{
			Delimiter: ",",
			Headers:   []string{},
			Rows:      [][]string{},
			RawSample: "",
			Truncated: len(contents) > maxPreviewChars,
		}
	}

	delimiter := detectDelimiter(lines[0])

	split := func(line string) []string {
		fields := strings.Split(line, delimiter)
		for i, f := range fields {
			fields[i] = strings.TrimSpace(f)
		}
		return fields
	}

	headers := split(lines[0])

	end := len(lines)
	if end > maxPreviewRows+1 {
		end = maxPreviewRows + 1
	}
	rows := make([][]string, 0, end-1)
	for _, line := range lines[1:end] {
		rows = append(rows, split(line))
	}

	return Preview{
		Delimiter: delimiter,
		Headers:   headers,
		Rows:      rows,
		RawSample: strings.Join(lines[:end], "\n"),
		Truncated: len(contents) > maxPreviewChars || len(lines) > maxPreviewRows+1,
	}
}
