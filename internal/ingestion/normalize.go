package ingestion

import (
	"path/filepath"
	"strings"
)

// Normalize reads raw source content and returns (title, text). It
// handles Markdown (title from the first heading) and plain text
// (title falls back to the filename), matching spec §4.6 step 1.
func Normalize(filename string, raw []byte) (title, text string) {
	content := string(raw)
	if t := firstMarkdownHeading(content); t != "" {
		return t, content
	}
	return titleFromFilename(filename), content
}

func firstMarkdownHeading(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return ""
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
