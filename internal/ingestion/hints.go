package ingestion

import (
	"regexp"
	"strings"
)

// HintCategory names one of the rule-based entity-hint buckets of spec
// §4.6 step 4.
type HintCategory string

const (
	HintClient     HintCategory = "clients"
	HintProject    HintCategory = "projects"
	HintRequirement HintCategory = "requirements"
	HintTask       HintCategory = "tasks"
	HintTeamMember HintCategory = "team_members"
	HintTechnology HintCategory = "technologies"
)

var hintPatterns = map[HintCategory]*regexp.Regexp{
	HintClient:      regexp.MustCompile(`(?i)\bclient[:\s]+([A-Z][\w&.\- ]{1,60})`),
	HintProject:     regexp.MustCompile(`(?i)\bproject[:\s]+([A-Z][\w&.\- ]{1,60})`),
	HintRequirement: regexp.MustCompile(`(?i)\b(?:requirement|must|shall)[:\s]+([\w&.\-, ]{3,80})`),
	HintTask:        regexp.MustCompile(`(?i)\b(?:task|todo|action item)[:\s]+([\w&.\-, ]{3,80})`),
	HintTeamMember:  regexp.MustCompile(`(?i)\b(?:assigned to|owner)[:\s]+([A-Z][\w.\- ]{1,40})`),
	HintTechnology:  regexp.MustCompile(`(?i)\b(Go|Python|Kubernetes|Postgres|Redis|React|TypeScript|AWS|gRPC|Kafka)\b`),
}

// ExtractHints scans raw text for simple rule-based entity mentions and
// returns them as flat string fields, keyed by category, suitable for
// attaching to chunk metadata. They stay on chunk metadata only: graph
// episodes do not carry them and they are never graph entities (spec
// §4.6 step 4, §9).
func ExtractHints(text string) map[string][]string {
	hints := make(map[string][]string)
	for category, pattern := range hintPatterns {
		matches := pattern.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			continue
		}
		seen := make(map[string]bool)
		var values []string
		for _, m := range matches {
			var val string
			if len(m) > 1 {
				val = strings.TrimSpace(m[1])
			} else {
				val = strings.TrimSpace(m[0])
			}
			if val == "" || seen[val] {
				continue
			}
			seen[val] = true
			values = append(values, val)
		}
		if len(values) > 0 {
			hints[string(category)] = values
		}
	}
	return hints
}

// ToMetadata flattens hints into chunk-metadata-compatible string fields.
func ToMetadata(hints map[string][]string) map[string]any {
	meta := make(map[string]any, len(hints))
	for k, v := range hints {
		meta["hint_"+k] = strings.Join(v, "; ")
	}
	return meta
}
